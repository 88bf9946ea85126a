package mongo

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/printforge/pkg/logger"
)

// Connect opens a client and pings the primary, retrying per cfg.
// The returned database is cfg.Database on that client.
func Connect(ctx context.Context, cfg Config, log *slog.Logger) (*mongo.Client, *mongo.Database, error) {
	if cfg.ConnectionURL == "" {
		return nil, nil, ErrEmptyConnectionURL
	}
	if log == nil {
		log = logger.Discard()
	}

	clientOpts := options.Client().
		ApplyURI(cfg.ConnectionURL).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxConnIdleTime(cfg.MaxConnIdleTime).
		SetRetryWrites(cfg.RetryWrites).
		SetRetryReads(cfg.RetryReads)

	attempts := max(cfg.RetryAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		client, err := mongo.Connect(clientOpts)
		if err != nil {
			// option validation errors never heal on retry
			return nil, nil, errors.Join(ErrFailedToConnectToMongo, err)
		}
		if lastErr = ping(ctx, client, cfg.ConnectTimeout); lastErr == nil {
			return client, client.Database(cfg.Database), nil
		}
		_ = client.Disconnect(context.WithoutCancel(ctx))

		log.WarnContext(ctx, "mongo not ready",
			slog.Int("attempt", attempt),
			logger.Error(lastErr),
		)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, nil, errors.Join(ErrFailedToConnectToMongo, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, nil, errors.Join(ErrFailedToConnectToMongo, lastErr)
}

func ping(ctx context.Context, client *mongo.Client, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return client.Ping(ctx, nil)
}
