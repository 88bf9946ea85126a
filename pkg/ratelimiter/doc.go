// Package ratelimiter implements a token bucket limiter with in-memory and
// Redis stores and a net/http middleware.
//
// A bucket holds up to Capacity tokens and regains RefillRate tokens every
// RefillInterval. Requests that find too few tokens are denied without
// draining the bucket further, so a client hammering a limited route does
// not extend its own penalty.
//
//	store := ratelimiter.NewMemoryStore()
//	defer store.Close()
//
//	bucket, err := ratelimiter.NewBucket(store, ratelimiter.Config{
//		Capacity:       20,
//		RefillRate:     5,
//		RefillInterval: time.Minute,
//	})
//	if err != nil {
//		return err
//	}
//
//	r.With(ratelimiter.Middleware(bucket, userKey)).Post("/v1/imports", createImport)
//
// RedisStore runs the same algorithm as a Lua script so replicas behind a
// load balancer share one bucket per key. Keys expire once the bucket would
// have refilled completely.
package ratelimiter
