// Package persist saves and restores composer state through a kv.Store.
//
// Records are JSON under "{namespace}:v{version}:{key}". Loading never
// fails: missing, unreadable or corrupt records yield the schema defaults,
// and whatever is read is passed through the schema's sanitizer. Saves are
// coalesced so a burst of edits produces one write per key.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/livetemplate/composer/internal/kv"
	"github.com/livetemplate/composer/internal/logger"
	"github.com/livetemplate/composer/internal/metrics"
)

// Schema supplies defaults and repairs values for a key.
type Schema[T any] interface {
	Defaults(key string) T
	Sanitize(key string, v T) T
}

// Options configures an Adapter.
type Options struct {
	Namespace string
	Version   int
	// Timeout bounds each store call. Zero means 5s.
	Timeout   time.Duration
	Scheduler Scheduler
	Logger    logger.Logger
	Metrics   *metrics.Metrics
}

type pendingWrite[T any] struct {
	value T
	seq   uint64
	// retire lists keys of older schema versions to delete once the
	// value is written under the current version.
	retire []string
}

// Adapter persists values of type T.
type Adapter[T any] struct {
	store   kv.Store
	schema  Schema[T]
	ns      string
	version int
	timeout time.Duration
	sched   Scheduler
	log     logger.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	pending map[string]pendingWrite[T]
	seq     uint64

	// writeMu serializes flushes with Clear so a clear is never undone by
	// a write that was already in flight.
	writeMu sync.Mutex
}

// New returns an Adapter over store.
func New[T any](store kv.Store, schema Schema[T], opts Options) *Adapter[T] {
	if opts.Namespace == "" {
		opts.Namespace = "builder"
	}
	if opts.Version < 1 {
		opts.Version = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Scheduler == nil {
		opts.Scheduler = NewDebounceScheduler(250 * time.Millisecond)
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &Adapter[T]{
		store:   store,
		schema:  schema,
		ns:      opts.Namespace,
		version: opts.Version,
		timeout: opts.Timeout,
		sched:   opts.Scheduler,
		log:     opts.Logger.With(logger.Component("persist"), logger.String("namespace", opts.Namespace)),
		metrics: opts.Metrics,
		pending: make(map[string]pendingWrite[T]),
	}
}

// Key returns the storage key for key under the current version.
func (a *Adapter[T]) Key(key string) string {
	return versionedKey(a.ns, a.version, key)
}

func versionedKey(ns string, version int, key string) string {
	return fmt.Sprintf("%s:v%d:%s", ns, version, key)
}

// Load returns the value for key. A value saved but not yet written is
// returned as is, so callers always read their own writes.
func (a *Adapter[T]) Load(ctx context.Context, key string) T {
	a.mu.Lock()
	p, ok := a.pending[key]
	a.mu.Unlock()
	if ok {
		return a.schema.Sanitize(key, p.value)
	}

	v, err := a.read(ctx, a.Key(key))
	switch {
	case err == nil:
		return a.schema.Sanitize(key, v)
	case errors.Is(err, kv.ErrNotFound):
		if v, ok := a.migrate(ctx, key); ok {
			return v
		}
	default:
		a.log.Warn("load failed, using defaults", logger.String("key", a.Key(key)), logger.Error(err))
	}
	return a.schema.Defaults(key)
}

func (a *Adapter[T]) read(ctx context.Context, storeKey string) (T, error) {
	var v T
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := a.store.Get(ctx, storeKey)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", storeKey, err)
	}
	return v, nil
}

// migrate looks for the newest record under an older schema version,
// carries it forward through the sanitizer and schedules it to be
// rewritten under the current version.
func (a *Adapter[T]) migrate(ctx context.Context, key string) (T, bool) {
	var zero T
	for v := a.version - 1; v >= 1; v-- {
		old := versionedKey(a.ns, v, key)
		raw, err := a.read(ctx, old)
		if err != nil {
			continue
		}
		value := a.schema.Sanitize(key, raw)
		a.log.Info("migrating stored state", logger.String("from", old), logger.String("to", a.Key(key)))
		a.enqueue(key, value, old)
		return value, true
	}
	return zero, false
}

// Save records v as the latest value for key and schedules a write. Write
// failures are logged, never returned.
func (a *Adapter[T]) Save(key string, v T) {
	a.enqueue(key, v)
}

func (a *Adapter[T]) enqueue(key string, v T, retire ...string) {
	a.mu.Lock()
	a.seq++
	prev, superseded := a.pending[key]
	a.pending[key] = pendingWrite[T]{
		value:  v,
		seq:    a.seq,
		retire: append(slices.Clone(prev.retire), retire...),
	}
	a.mu.Unlock()

	if superseded {
		a.metrics.Coalesced()
	}
	a.sched.Schedule(a.flush)
}

// Flush writes everything pending now.
func (a *Adapter[T]) Flush() {
	a.sched.Flush()
}

// Close flushes pending writes and stops the scheduler.
func (a *Adapter[T]) Close() {
	a.sched.Stop()
}

func (a *Adapter[T]) flush() {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.mu.Lock()
	batch := make(map[string]pendingWrite[T], len(a.pending))
	for k, p := range a.pending {
		batch[k] = p
	}
	a.mu.Unlock()

	keys := make([]string, 0, len(batch))
	for k := range batch {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, key := range keys {
		p := batch[key]
		if err := a.write(key, p); err != nil {
			a.metrics.Write(false)
			a.log.Warn("save failed", logger.String("key", a.Key(key)), logger.Error(err))
		} else {
			a.metrics.Write(true)
		}

		a.mu.Lock()
		if cur, ok := a.pending[key]; ok && cur.seq == p.seq {
			delete(a.pending, key)
		}
		a.mu.Unlock()
	}
}

func (a *Adapter[T]) write(key string, p pendingWrite[T]) error {
	raw, err := json.Marshal(p.value)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	if err := a.store.Set(ctx, a.Key(key), string(raw)); err != nil {
		return err
	}
	for _, old := range p.retire {
		if err := a.store.Remove(ctx, old); err != nil {
			a.log.Warn("failed to remove migrated key", logger.String("key", old), logger.Error(err))
		}
	}
	return nil
}

// Clear drops any pending write for key and deletes its record under the
// current and every older version, so the next Load yields defaults.
func (a *Adapter[T]) Clear(ctx context.Context, key string) {
	a.mu.Lock()
	delete(a.pending, key)
	a.mu.Unlock()

	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	for v := a.version; v >= 1; v-- {
		if err := a.store.Remove(ctx, versionedKey(a.ns, v, key)); err != nil {
			a.log.Warn("clear failed", logger.String("key", versionedKey(a.ns, v, key)), logger.Error(err))
		}
	}
}
