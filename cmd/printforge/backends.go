package main

import (
	"context"
	"fmt"
	"log/slog"

	firebaseapp "firebase.google.com/go/v4"

	"github.com/dmitrymomot/printforge/pkg/blob"
	"github.com/dmitrymomot/printforge/pkg/broadcast"
	"github.com/dmitrymomot/printforge/pkg/config"
	"github.com/dmitrymomot/printforge/pkg/email"
	"github.com/dmitrymomot/printforge/pkg/entitlement"
	"github.com/dmitrymomot/printforge/pkg/firebase"
	"github.com/dmitrymomot/printforge/pkg/httpserver"
	"github.com/dmitrymomot/printforge/pkg/importjob"
	"github.com/dmitrymomot/printforge/pkg/mongo"
	"github.com/dmitrymomot/printforge/pkg/ratelimiter"
	"github.com/dmitrymomot/printforge/pkg/redis"
)

// resources collects what main must release on exit, in reverse order.
type resources struct {
	closers []func()
	checks  map[string]httpserver.Check
}

func (r *resources) onClose(fn func()) { r.closers = append(r.closers, fn) }

func (r *resources) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func openEntitlementStore(ctx context.Context, cfg appConfig, app *firebaseapp.App, res *resources, log *slog.Logger) (entitlement.Store, error) {
	switch cfg.EntitlementStore {
	case "firestore":
		fbCfg, err := config.Load[firebase.Config]()
		if err != nil {
			return nil, err
		}
		client, err := firebase.Firestore(ctx, app)
		if err != nil {
			return nil, err
		}
		res.onClose(func() { _ = client.Close() })
		return entitlement.NewFirestoreStore(client, fbCfg.Collection), nil

	case "mongo":
		mCfg, err := config.Load[mongo.Config]()
		if err != nil {
			return nil, err
		}
		client, db, err := mongo.Connect(ctx, mCfg, log)
		if err != nil {
			return nil, err
		}
		res.onClose(func() { _ = client.Disconnect(context.Background()) })
		res.checks["mongo"] = httpserver.Check(mongo.Healthcheck(client))

		store := entitlement.NewMongoStore(db, mCfg.Collection)
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		return store, nil
	}

	log.WarnContext(ctx, "entitlements are kept in memory and lost on restart")
	return entitlement.NewMemoryStore(), nil
}

type jobBackends struct {
	store  importjob.Store
	events broadcast.Broadcaster[importjob.Event]
	limits ratelimiter.Store
}

func openJobBackends(ctx context.Context, cfg appConfig, res *resources, log *slog.Logger) (jobBackends, error) {
	if cfg.JobStore != "redis" {
		events := broadcast.NewMemoryBroadcaster[importjob.Event](64)
		limits := ratelimiter.NewMemoryStore()
		res.onClose(func() { _ = events.Close() })
		res.onClose(func() { _ = limits.Close() })
		return jobBackends{store: importjob.NewMemoryStore(), events: events, limits: limits}, nil
	}

	rCfg, err := config.Load[redis.Config]()
	if err != nil {
		return jobBackends{}, err
	}
	client, err := redis.Connect(ctx, rCfg, log)
	if err != nil {
		return jobBackends{}, err
	}
	res.onClose(func() { _ = client.Close() })
	res.checks["redis"] = httpserver.Check(redis.Healthcheck(client))

	// retention is enforced by the sweep; the key TTL only backs it up
	store := importjob.NewRedisStore(client, importjob.WithKeyTTL(2*cfg.JobRetention))
	events := broadcast.NewRedisBroadcaster[importjob.Event](client, broadcast.WithLogger(log))
	res.onClose(func() { _ = events.Close() })
	return jobBackends{
		store:  store,
		events: events,
		limits: ratelimiter.NewRedisStore(client, ratelimiter.WithKeyPrefix("printforge:ratelimit:jobs:")),
	}, nil
}

// openMirror returns nil when BLOB_DRIVER=none.
func openMirror(ctx context.Context, cfg appConfig) (blob.Storage, error) {
	switch cfg.BlobDriver {
	case "local":
		lCfg, err := config.Load[blob.LocalConfig]()
		if err != nil {
			return nil, err
		}
		return blob.NewLocal(lCfg)
	case "s3":
		sCfg, err := config.Load[blob.S3Config]()
		if err != nil {
			return nil, err
		}
		return blob.NewS3(ctx, sCfg)
	case "gcs":
		gCfg, err := config.Load[blob.GCSConfig]()
		if err != nil {
			return nil, err
		}
		client, err := blob.NewGCSClient(ctx, gCfg)
		if err != nil {
			return nil, err
		}
		return blob.NewGCS(client, gCfg)
	}
	return nil, nil
}

func openEmailSender(cfg appConfig) (email.EmailSender, error) {
	eCfg, err := config.Load[email.Config]()
	if err != nil {
		return nil, err
	}
	switch cfg.EmailDriver {
	case "postmark":
		return email.NewPostmarkClient(eCfg)
	case "sendgrid":
		return email.NewSendGridClient(eCfg)
	}
	return email.NewDevSender(eCfg.DevDir), nil
}
