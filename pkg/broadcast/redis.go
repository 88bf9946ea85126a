package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBroadcaster publishes JSON-encoded messages over Redis pub/sub.
// Every instance sharing the Redis server and prefix sees every publish.
type RedisBroadcaster[T any] struct {
	client     redis.UniversalClient
	prefix     string
	bufferSize int
	logger     *slog.Logger

	mu     sync.Mutex
	subs   map[*subscriber[T]]struct{}
	closed bool
	wg     sync.WaitGroup
}

// RedisOption configures a RedisBroadcaster.
type RedisOption func(*redisOptions)

type redisOptions struct {
	prefix     string
	bufferSize int
	logger     *slog.Logger
}

// WithPrefix namespaces the Redis channel names. Default "broadcast:".
func WithPrefix(prefix string) RedisOption {
	return func(o *redisOptions) { o.prefix = prefix }
}

// WithBufferSize sets the per-subscriber buffer. Default 16.
func WithBufferSize(n int) RedisOption {
	return func(o *redisOptions) { o.bufferSize = max(n, 1) }
}

func WithLogger(l *slog.Logger) RedisOption {
	return func(o *redisOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

func NewRedisBroadcaster[T any](client redis.UniversalClient, opts ...RedisOption) *RedisBroadcaster[T] {
	if client == nil {
		panic("broadcast: redis client is required")
	}

	o := redisOptions{prefix: "broadcast:", bufferSize: 16, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	return &RedisBroadcaster[T]{
		client:     client,
		prefix:     o.prefix,
		bufferSize: o.bufferSize,
		logger:     o.logger,
		subs:       make(map[*subscriber[T]]struct{}),
	}
}

// Subscribe opens a Redis subscription on channel and forwards decoded
// messages until ctx is cancelled or the subscriber is closed.
func (b *RedisBroadcaster[T]) Subscribe(ctx context.Context, channel string) Subscriber[T] {
	sub := newSubscriber[T](b.bufferSize)
	sub.onClose = func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = sub.Close()
		return sub
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	ps := b.client.Subscribe(ctx, b.prefix+channel)
	// wait for the SUBSCRIBE confirmation so publishes made right after
	// Subscribe returns are not lost
	if _, err := ps.Receive(ctx); err != nil {
		b.logger.WarnContext(ctx, "redis subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		_ = ps.Close()
		_ = sub.Close()
		return sub
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer ps.Close()
		defer sub.Close()

		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.done:
				return
			case m, ok := <-in:
				if !ok {
					return
				}
				var data T
				if err := json.Unmarshal([]byte(m.Payload), &data); err != nil {
					b.logger.WarnContext(ctx, "dropping undecodable broadcast",
						slog.String("channel", channel),
						slog.String("error", err.Error()),
					)
					continue
				}
				if !sub.send(Message[T]{Channel: channel, Data: data}) {
					return
				}
			}
		}
	}()

	return sub
}

// Broadcast encodes data as JSON and publishes it on channel.
func (b *RedisBroadcaster[T]) Broadcast(ctx context.Context, channel string, data T) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("broadcast: encode message: %w", err)
	}
	if err := b.client.Publish(ctx, b.prefix+channel, payload).Err(); err != nil {
		return fmt.Errorf("broadcast: publish to %s: %w", channel, err)
	}
	return nil
}

// Close ends every subscription. The Redis client stays open.
func (b *RedisBroadcaster[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*subscriber[T], 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	b.wg.Wait()
	return nil
}
