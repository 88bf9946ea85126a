// Package redis connects to the Redis server that backs the shared job store
// and the cross-instance job event bus.
//
// Connect retries the initial ping according to Config, which is populated
// from the environment via pkg/config:
//
//	cfg, err := config.Load[redis.Config]()
//	client, err := redis.Connect(ctx, cfg, log)
//
// Healthcheck adapts the client into a readiness check for the HTTP layer.
package redis
