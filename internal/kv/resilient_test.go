package kv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails the first failures calls with err.
type flakyStore struct {
	*MemoryStore
	mu       sync.Mutex
	failures int
	err      error
	calls    int
}

func (f *flakyStore) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return f.err
	}
	return nil
}

func (f *flakyStore) Get(ctx context.Context, key string) (string, error) {
	if err := f.fail(); err != nil {
		return "", err
	}
	return f.MemoryStore.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key, value string) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.MemoryStore.Set(ctx, key, value)
}

var errRefused = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

func newResilient(next Store, br BreakerConfig) (*ResilientStore, *time.Time) {
	now := time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewResilientStore(next, RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2}, br, nil)
	r.br.now = func() time.Time { return now }
	r.sleep = func(context.Context, time.Duration) error { return nil }
	return r, &now
}

func TestResilientStoreRetriesTransientErrors(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{MemoryStore: NewMemoryStore(), failures: 2, err: errRefused}
	r, _ := newResilient(flaky, DefaultBreakerConfig())

	require.NoError(t, r.Set(ctx, "k", "v"))
	assert.Equal(t, 3, flaky.calls)

	v, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	assert.Equal(t, BreakerClosed, r.State())
}

func TestResilientStoreGivesUp(t *testing.T) {
	flaky := &flakyStore{MemoryStore: NewMemoryStore(), failures: 10, err: errRefused}
	r, _ := newResilient(flaky, DefaultBreakerConfig())

	err := r.Set(context.Background(), "k", "v")
	require.ErrorIs(t, err, errRefused)
	assert.Contains(t, err.Error(), "giving up after 3 attempts")
	assert.Equal(t, 3, flaky.calls)
}

func TestResilientStoreDoesNotRetryPermanentErrors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		err  error
	}{
		{"not found", ErrNotFound},
		{"wrapped not found", fmt.Errorf("lookup: %w", ErrNotFound)},
		{"cancelled", context.Canceled},
		{"constraint", errors.New("pq: value too long for type character varying(255)")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flaky := &flakyStore{MemoryStore: NewMemoryStore(), failures: 1, err: tt.err}
			r, _ := newResilient(flaky, DefaultBreakerConfig())

			_, err := r.Get(ctx, "k")
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1, flaky.calls)
		})
	}
}

func TestResilientStoreBreaker(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{MemoryStore: NewMemoryStore(), failures: 3, err: errRefused}
	r, now := newResilient(flaky, BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
		FailureWindow:    time.Minute,
	})

	err := r.Set(ctx, "k", "v")
	require.Error(t, err)
	assert.Equal(t, BreakerOpen, r.State())

	// Open: calls fail fast without reaching the store.
	calls := flaky.calls
	err = r.Set(ctx, "k", "v")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, calls, flaky.calls)

	// After the cooldown the breaker probes and closes on success.
	*now = now.Add(31 * time.Second)
	require.NoError(t, r.Set(ctx, "k", "v"))
	assert.Equal(t, BreakerHalfOpen, r.State())
	_, err = r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, BreakerClosed, r.State())
}

func TestResilientStoreHalfOpenClosesOnNotFound(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{MemoryStore: NewMemoryStore(), failures: 3, err: errRefused}
	r, now := newResilient(flaky, BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Cooldown:         time.Second,
		FailureWindow:    time.Minute,
	})

	_, err := r.Get(ctx, "missing")
	require.Error(t, err)
	require.Equal(t, BreakerOpen, r.State())

	*now = now.Add(2 * time.Second)
	for range 2 {
		_, err = r.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, BreakerClosed, r.State())
}

func TestResilientStoreHalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{MemoryStore: NewMemoryStore(), failures: 4, err: errRefused}
	r, now := newResilient(flaky, BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Cooldown:         time.Second,
		FailureWindow:    time.Minute,
	})

	require.Error(t, r.Set(ctx, "k", "v"))
	require.Equal(t, BreakerOpen, r.State())

	*now = now.Add(2 * time.Second)
	err := r.Set(ctx, "k", "v")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, BreakerOpen, r.State())
}

func TestResilientStoreHonoursContext(t *testing.T) {
	flaky := &flakyStore{MemoryStore: NewMemoryStore(), failures: 10, err: errRefused}
	r := NewResilientStore(flaky, RetryConfig{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}, DefaultBreakerConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := r.Set(ctx, "k", "v")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, flaky.calls)
}

func TestOpenWrapsRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := Open(context.Background(), Options{Driver: "redis", Redis: RedisConfig{Address: mr.Addr()}})
	require.NoError(t, err)
	defer s.Close()

	r, ok := s.(*ResilientStore)
	require.True(t, ok, "got %T", s)
	exerciseStore(t, r)
}

func TestRetryBackoff(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	for attempt, base := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, time.Second, time.Second} {
		d := cfg.backoff(attempt)
		assert.GreaterOrEqual(t, d, base*8/10, "attempt %d", attempt)
		assert.LessOrEqual(t, d, base*12/10, "attempt %d", attempt)
	}
}
