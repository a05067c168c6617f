package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(t *testing.T) (*MemoryCache[string], *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newMemoryCache[string](clock.Now, time.Hour)
	t.Cleanup(c.Stop)
	return c, clock
}

func TestMemoryCacheGetSet(t *testing.T) {
	c, _ := newTestCache(t)

	_, found, _ := c.Get("page")
	assert.False(t, found)

	c.Set("page", "<html>", time.Minute)

	got, found, stale := c.Get("page")
	assert.True(t, found)
	assert.False(t, stale)
	assert.Equal(t, "<html>", got)
}

func TestMemoryCacheTTL(t *testing.T) {
	c, clock := newTestCache(t)
	c.Set("short", "v", time.Second)

	clock.Advance(2 * time.Second)

	_, found, _ := c.Get("short")
	assert.False(t, found)
	assert.Equal(t, 0, c.Len(), "expired entry is removed on read")
}

func TestMemoryCacheStaleWindow(t *testing.T) {
	c, clock := newTestCache(t)
	c.SetWithStale("swr", "v", time.Second, 3*time.Second)

	tests := []struct {
		advance   time.Duration
		wantFound bool
		wantStale bool
	}{
		{0, true, false},
		{2 * time.Second, true, true},
		{2 * time.Second, false, false},
	}

	for _, tt := range tests {
		clock.Advance(tt.advance)
		_, found, stale := c.Get("swr")
		assert.Equal(t, tt.wantFound, found)
		assert.Equal(t, tt.wantStale, stale)
	}
}

func TestMemoryCacheInvalidate(t *testing.T) {
	c, _ := newTestCache(t)
	c.Set("a", "1", time.Minute)
	c.Set("b", "2", time.Minute)

	c.Invalidate("a")
	_, foundA, _ := c.Get("a")
	_, foundB, _ := c.Get("b")
	assert.False(t, foundA)
	assert.True(t, foundB)

	c.Set("c", "3", time.Minute)
	require.Equal(t, 2, c.Len())
	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCacheCleanup(t *testing.T) {
	c, clock := newTestCache(t)
	c.Set("old", "1", time.Second)
	c.Set("new", "2", time.Hour)

	clock.Advance(time.Minute)
	c.cleanup()

	assert.Equal(t, 1, c.Len())
}

func TestMemoryCacheStopIdempotent(t *testing.T) {
	c := NewMemoryCache[int]()
	c.Stop()
	c.Stop()
}

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint("blocks", []string{"x", "y"})
	require.NoError(t, err)
	b, err := Fingerprint("blocks", []string{"x", "y"})
	require.NoError(t, err)
	c, err := Fingerprint("blocks", []string{"y", "x"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)

	_, err = Fingerprint(make(chan int))
	assert.Error(t, err)
}
