package ratelimiter_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/printforge/pkg/ratelimiter"
)

func TestRedisStore(t *testing.T) {
	t.Parallel()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	clock := newClock()
	store := ratelimiter.NewRedisStore(client,
		ratelimiter.WithKeyPrefix("test:ratelimit:"+uuid.NewString()+":"),
		ratelimiter.WithRedisClock(clock.Now),
	)
	b, err := ratelimiter.NewBucket(store, testConfig)
	require.NoError(t, err)
	ctx := context.Background()

	for want := 2; want >= 0; want-- {
		res, err := b.Allow(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, want, res.Remaining)
	}
	res, err := b.Allow(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, res.Allowed())
	assert.Equal(t, clock.Now().Add(time.Minute).UnixMilli(), res.ResetAt.UnixMilli())

	clock.Advance(2 * time.Minute)
	res, err = b.Allow(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Remaining)

	require.NoError(t, b.Reset(ctx, "alice"))
	res, err = b.Status(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Remaining)
}
