// Package mongo connects to the MongoDB deployment used by the Mongo-backed
// entitlement store.
//
// Configuration comes from the environment (MONGODB_URL and friends) through
// pkg/config. Connect retries the first ping so the service can start while
// the database is still coming up:
//
//	cfg, err := config.Load[mongo.Config]()
//	client, db, err := mongo.Connect(ctx, cfg, log)
//	store := entitlement.NewMongoStore(db, cfg.Collection)
package mongo
