// Package cache holds rendered artifacts in memory for a bounded time so
// repeated previews and downloads of an unchanged layout skip rendering.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// Entry is a cached value with its freshness deadlines.
type Entry[V any] struct {
	Value     V
	ExpiresAt time.Time
	StaleAt   time.Time
}

func (e *Entry[V]) expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

func (e *Entry[V]) stale(now time.Time) bool {
	return now.After(e.StaleAt) && now.Before(e.ExpiresAt)
}

// Cache is the interface the exporter and preview handlers depend on.
type Cache[V any] interface {
	// Get returns (value, found, stale). A stale value is still usable.
	Get(key string) (V, bool, bool)
	Set(key string, value V, ttl time.Duration)
	SetWithStale(key string, value V, staleAfter, expireAfter time.Duration)
	Invalidate(key string)
	InvalidateAll()
}

// MemoryCache is an in-memory Cache with TTL expiry and a background sweep.
type MemoryCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]*Entry[V]
	now     func() time.Time

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewMemoryCache starts a cache that sweeps expired entries every minute.
func NewMemoryCache[V any]() *MemoryCache[V] {
	return newMemoryCache[V](time.Now, time.Minute)
}

func newMemoryCache[V any](now func() time.Time, interval time.Duration) *MemoryCache[V] {
	c := &MemoryCache[V]{
		entries:         make(map[string]*Entry[V]),
		now:             now,
		cleanupInterval: interval,
		stopCleanup:     make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

func (c *MemoryCache[V]) Get(key string) (V, bool, bool) {
	var zero V
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return zero, false, false
	}

	now := c.now()
	if entry.expired(now) {
		c.Invalidate(key)
		return zero, false, false
	}
	return entry.Value, true, entry.stale(now)
}

func (c *MemoryCache[V]) Set(key string, value V, ttl time.Duration) {
	c.SetWithStale(key, value, ttl, ttl)
}

func (c *MemoryCache[V]) SetWithStale(key string, value V, staleAfter, expireAfter time.Duration) {
	now := c.now()
	c.mu.Lock()
	c.entries[key] = &Entry[V]{
		Value:     value,
		StaleAt:   now.Add(staleAfter),
		ExpiresAt: now.Add(expireAfter),
	}
	c.mu.Unlock()
}

func (c *MemoryCache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *MemoryCache[V]) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]*Entry[V])
	c.mu.Unlock()
}

func (c *MemoryCache[V]) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *MemoryCache[V]) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, key)
		}
	}
}

// Stop ends the background sweep. Safe to call more than once.
func (c *MemoryCache[V]) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCleanup)
	})
}

// Len returns the number of entries, expired or not (for testing).
func (c *MemoryCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Fingerprint returns a stable hex digest of the JSON encoding of parts.
// Equal inputs always produce the same key.
func Fingerprint(parts ...any) (string, error) {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, p := range parts {
		if err := enc.Encode(p); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
