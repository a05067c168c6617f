package kv

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/livetemplate/composer/internal/logger"
)

// ErrCircuitOpen is returned while a store's breaker rejects calls.
var ErrCircuitOpen = errors.New("kv: circuit open")

// RetryConfig configures retries of failed store calls.
type RetryConfig struct {
	MaxRetries int           // attempts after the first (default: 3)
	BaseDelay  time.Duration // delay before the first retry (default: 50ms)
	MaxDelay   time.Duration // cap on any delay (default: 2s)
	Multiplier float64       // exponential backoff factor (default: 2.0)
}

// DefaultRetryConfig returns the retry policy Open applies to network stores.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  50 * time.Millisecond,
		MaxDelay:   2 * time.Second,
		Multiplier: 2.0,
	}
}

// backoff returns the delay before retry number attempt, with ±20% jitter.
func (c RetryConfig) backoff(attempt int) time.Duration {
	d := float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(attempt))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	return time.Duration(d * (0.8 + rand.Float64()*0.4))
}

// BreakerState is the state of a circuit breaker.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // calls pass
	BreakerOpen                         // calls fail fast
	BreakerHalfOpen                     // probing for recovery
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           // failures within FailureWindow that open the breaker (default: 5)
	SuccessThreshold int           // half-open successes that close it (default: 2)
	Cooldown         time.Duration // time open before probing (default: 30s)
	FailureWindow    time.Duration // default: 1m
}

// DefaultBreakerConfig returns the breaker Open applies to network stores.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
		FailureWindow:    time.Minute,
	}
}

type breaker struct {
	cfg BreakerConfig
	now func() time.Time
	log logger.Logger

	mu        sync.Mutex
	state     BreakerState
	failures  []time.Time
	successes int
	changed   time.Time
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen {
		if b.now().Sub(b.changed) < b.cfg.Cooldown {
			return false
		}
		b.transition(BreakerHalfOpen)
	}
	return true
}

func (b *breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// A definite answer from the backend, ErrNotFound included, proves it
	// is reachable. Only a caller giving up says nothing about it.
	if err == nil || (!transient(err) && !isContextErr(err)) {
		switch b.state {
		case BreakerHalfOpen:
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.transition(BreakerClosed)
			}
		case BreakerClosed:
			b.failures = b.failures[:0]
		}
		return
	}
	if !transient(err) {
		return
	}

	now := b.now()
	cutoff := now.Add(-b.cfg.FailureWindow)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = append(kept, now)

	switch b.state {
	case BreakerClosed:
		if len(b.failures) >= b.cfg.FailureThreshold {
			b.transition(BreakerOpen)
		}
	case BreakerHalfOpen:
		b.transition(BreakerOpen)
	}
}

// transition changes state. Callers hold b.mu.
func (b *breaker) transition(to BreakerState) {
	if b.state == to {
		return
	}
	b.log.Warn("store circuit state changed",
		logger.String("from", b.state.String()),
		logger.String("to", to.String()))
	b.state = to
	b.changed = b.now()
	b.successes = 0
	if to == BreakerClosed {
		b.failures = b.failures[:0]
	}
}

// ResilientStore retries transient failures of the wrapped store and
// stops calling it while it keeps failing.
type ResilientStore struct {
	next  Store
	retry RetryConfig
	br    *breaker
	sleep func(ctx context.Context, d time.Duration) error
}

// NewResilientStore wraps next. A nil log discards breaker transitions.
func NewResilientStore(next Store, retry RetryConfig, br BreakerConfig, log logger.Logger) *ResilientStore {
	if log == nil {
		log = logger.NewNop()
	}
	return &ResilientStore{
		next:  next,
		retry: retry,
		br: &breaker{
			cfg: br,
			now: time.Now,
			log: log.With(logger.Component("kv")),
		},
		sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State reports the breaker state.
func (r *ResilientStore) State() BreakerState {
	r.br.mu.Lock()
	defer r.br.mu.Unlock()
	return r.br.state
}

func (r *ResilientStore) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= r.retry.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !r.br.allow() {
			return fmt.Errorf("%s: %w", op, ErrCircuitOpen)
		}
		err = fn(ctx)
		r.br.record(err)
		if err == nil || !transient(err) {
			return err
		}
		if attempt < r.retry.MaxRetries {
			if serr := r.sleep(ctx, r.retry.backoff(attempt)); serr != nil {
				return serr
			}
		}
	}
	return fmt.Errorf("%s: giving up after %d attempts: %w", op, r.retry.MaxRetries+1, err)
}

func (r *ResilientStore) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := r.do(ctx, "get", func(ctx context.Context) error {
		var err error
		v, err = r.next.Get(ctx, key)
		return err
	})
	return v, err
}

func (r *ResilientStore) Set(ctx context.Context, key, value string) error {
	return r.do(ctx, "set", func(ctx context.Context) error {
		return r.next.Set(ctx, key, value)
	})
}

func (r *ResilientStore) Remove(ctx context.Context, key string) error {
	return r.do(ctx, "remove", func(ctx context.Context) error {
		return r.next.Remove(ctx, key)
	})
}

func (r *ResilientStore) Close() error { return r.next.Close() }

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// transient reports whether err is worth retrying: network failures and
// the messages drivers use for them. Missing keys and cancellations are not.
func transient(err error) bool {
	if err == nil || errors.Is(err, ErrNotFound) ||
		errors.Is(err, context.Canceled) || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"no such host",
		"too many connections",
		"try again",
		"eof",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
