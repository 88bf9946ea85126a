package ratelimiter_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/printforge/pkg/ratelimiter"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testConfig = ratelimiter.Config{Capacity: 3, RefillRate: 1, RefillInterval: time.Minute}

func newBucket(t *testing.T, clock *fakeClock) (*ratelimiter.Bucket, *ratelimiter.MemoryStore) {
	t.Helper()
	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0), ratelimiter.WithClock(clock.Now))
	t.Cleanup(func() { _ = store.Close() })
	b, err := ratelimiter.NewBucket(store, testConfig)
	require.NoError(t, err)
	return b, store
}

func TestNewBucket_InvalidConfig(t *testing.T) {
	t.Parallel()

	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
	defer store.Close()

	for name, cfg := range map[string]ratelimiter.Config{
		"capacity": {Capacity: 0, RefillRate: 1, RefillInterval: time.Second},
		"rate":     {Capacity: 1, RefillRate: 0, RefillInterval: time.Second},
		"interval": {Capacity: 1, RefillRate: 1},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ratelimiter.NewBucket(store, cfg)
			require.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
		})
	}

	assert.Panics(t, func() { _, _ = ratelimiter.NewBucket(nil, testConfig) })
}

func TestBucket_BurstThenDeny(t *testing.T) {
	t.Parallel()

	clock := newClock()
	b, _ := newBucket(t, clock)
	ctx := context.Background()

	for want := 2; want >= 0; want-- {
		res, err := b.Allow(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, res.Allowed())
		assert.Equal(t, want, res.Remaining)
		assert.Equal(t, 3, res.Limit)
	}

	res, err := b.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, res.Allowed())
	assert.Equal(t, -1, res.Remaining)
	assert.Equal(t, clock.Now().Add(time.Minute), res.ResetAt)

	// denials do not drain the bucket further
	status, err := b.Status(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, status.Remaining)

	other, err := b.Allow(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, 2, other.Remaining)
}

func TestBucket_Refill(t *testing.T) {
	t.Parallel()

	clock := newClock()
	b, _ := newBucket(t, clock)
	ctx := context.Background()

	_, err := b.AllowN(ctx, "k", 3)
	require.NoError(t, err)

	clock.Advance(90 * time.Second)
	res, err := b.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed())
	assert.Equal(t, 0, res.Remaining)
	// partial interval carries over instead of restarting at the call time
	assert.Equal(t, clock.Now().Add(30*time.Second), res.ResetAt)

	clock.Advance(24 * time.Hour)
	res, err = b.Status(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Remaining)
}

func TestBucket_AllowNAndReset(t *testing.T) {
	t.Parallel()

	b, _ := newBucket(t, newClock())
	ctx := context.Background()

	_, err := b.AllowN(ctx, "k", 0)
	require.ErrorIs(t, err, ratelimiter.ErrInvalidTokenCount)

	res, err := b.AllowN(ctx, "k", 5)
	require.NoError(t, err)
	assert.False(t, res.Allowed())
	assert.Equal(t, -2, res.Remaining)

	_, err = b.AllowN(ctx, "k", 3)
	require.NoError(t, err)
	require.NoError(t, b.Reset(ctx, "k"))

	res, err = b.Status(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Remaining)
}

func TestResult_RetryAfter(t *testing.T) {
	t.Parallel()

	allowed := &ratelimiter.Result{Remaining: 0, ResetAt: time.Now().Add(time.Minute)}
	assert.Zero(t, allowed.RetryAfter())

	denied := &ratelimiter.Result{Remaining: -1, ResetAt: time.Now().Add(time.Minute)}
	assert.InDelta(t, time.Minute.Seconds(), denied.RetryAfter().Seconds(), 1)

	past := &ratelimiter.Result{Remaining: -1, ResetAt: time.Now().Add(-time.Minute)}
	assert.Zero(t, past.RetryAfter())
}

func TestMemoryStore_Prune(t *testing.T) {
	t.Parallel()

	clock := newClock()
	b, store := newBucket(t, clock)
	ctx := context.Background()

	_, err := b.Allow(ctx, "old")
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)
	_, err = b.Allow(ctx, "fresh")
	require.NoError(t, err)

	assert.Equal(t, 1, store.Prune(time.Hour))
	assert.Equal(t, 1, store.Len())
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}

func TestMemoryStore_Concurrent(t *testing.T) {
	t.Parallel()

	b, _ := newBucket(t, newClock())
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := b.Allow(ctx, "shared")
			if err == nil && res.Allowed() {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, granted)
}
