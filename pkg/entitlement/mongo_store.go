package entitlement

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	DefaultMongoCollection = "entitlements"
	mongoUpdateAttempts    = 5
)

// mongoEntitlement adds the optimistic-lock version to the stored document.
type mongoEntitlement struct {
	Entitlement `bson:",inline"`
	Version     int64 `bson:"version"`
}

// MongoStore keeps entitlements in one collection keyed by user id. Update
// uses a version field for optimistic concurrency; counters use $inc.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database, collection string) *MongoStore {
	if db == nil {
		panic("entitlement: mongo database is required")
	}
	if collection == "" {
		collection = DefaultMongoCollection
	}
	return &MongoStore{coll: db.Collection(collection)}
}

// EnsureIndexes creates the secondary indexes used by lookups and resets.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "customerRef", Value: 1}}},
		{Keys: bson.D{{Key: "lastMonthlyResetPeriod", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("mongo: create indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, userID string) (Entitlement, error) {
	doc, err := s.find(ctx, bson.D{{Key: "_id", Value: userID}})
	return doc.Entitlement, err
}

func (s *MongoStore) FindByCustomerRef(ctx context.Context, customerRef string) (Entitlement, error) {
	if customerRef == "" {
		return Entitlement{}, ErrNotFound
	}
	doc, err := s.find(ctx, bson.D{{Key: "customerRef", Value: customerRef}})
	return doc.Entitlement, err
}

func (s *MongoStore) find(ctx context.Context, filter bson.D) (mongoEntitlement, error) {
	var doc mongoEntitlement
	err := s.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return mongoEntitlement{}, ErrNotFound
	}
	if err != nil {
		return mongoEntitlement{}, fmt.Errorf("mongo: find entitlement: %w", err)
	}
	return doc, nil
}

func (s *MongoStore) Update(ctx context.Context, userID string, fn Mutation) (Entitlement, error) {
	for range mongoUpdateAttempts {
		doc, err := s.find(ctx, bson.D{{Key: "_id", Value: userID}})
		found := err == nil
		switch {
		case errors.Is(err, ErrNotFound):
			doc = mongoEntitlement{Entitlement: Entitlement{UserID: userID}}
		case err != nil:
			return Entitlement{}, err
		}

		next := doc.Entitlement
		if err := fn(&next, found); err != nil {
			if errors.Is(err, ErrSkipUpdate) {
				return doc.Entitlement, nil
			}
			return doc.Entitlement, err
		}
		next.UserID = userID

		if !found {
			_, err := s.coll.InsertOne(ctx, mongoEntitlement{Entitlement: next, Version: 1})
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			if err != nil {
				return Entitlement{}, fmt.Errorf("mongo: insert entitlement: %w", err)
			}
			return next, nil
		}

		res, err := s.coll.ReplaceOne(ctx,
			bson.D{{Key: "_id", Value: userID}, {Key: "version", Value: doc.Version}},
			mongoEntitlement{Entitlement: next, Version: doc.Version + 1},
		)
		if err != nil {
			return Entitlement{}, fmt.Errorf("mongo: replace entitlement: %w", err)
		}
		if res.MatchedCount == 0 {
			continue
		}
		return next, nil
	}
	return Entitlement{}, ErrConflict
}

func (s *MongoStore) DecrementQuota(ctx context.Context, userID string) (Usage, error) {
	doc, err := s.incr(ctx,
		bson.D{{Key: "_id", Value: userID}, {Key: "modelsRemainingThisMonth", Value: bson.D{{Key: "$gt", Value: 0}}}},
		bson.D{{Key: "modelsRemainingThisMonth", Value: -1}, {Key: "modelsGeneratedThisMonth", Value: 1}},
	)
	if err == nil {
		return doc.Usage(), nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Usage{}, err
	}

	// no match: unknown user, unlimited quota or nothing left
	cur, err := s.Get(ctx, userID)
	if err != nil {
		return Usage{}, err
	}
	if cur.ModelsRemaining == Unlimited {
		return cur.Usage(), nil
	}
	return cur.Usage(), ErrQuotaExhausted
}

func (s *MongoStore) IncrementDownloads(ctx context.Context, userID string) (Usage, error) {
	doc, err := s.incr(ctx,
		bson.D{{Key: "_id", Value: userID}},
		bson.D{{Key: "downloadsThisMonth", Value: 1}},
	)
	if err != nil {
		return Usage{}, err
	}
	return doc.Usage(), nil
}

// incr applies $inc atomically and bumps the version so that concurrent
// optimistic updates notice the change.
func (s *MongoStore) incr(ctx context.Context, filter, fields bson.D) (mongoEntitlement, error) {
	fields = append(fields, bson.E{Key: "version", Value: 1})

	var doc mongoEntitlement
	err := s.coll.FindOneAndUpdate(ctx, filter,
		bson.D{{Key: "$inc", Value: fields}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return mongoEntitlement{}, ErrNotFound
	}
	if err != nil {
		return mongoEntitlement{}, fmt.Errorf("mongo: increment: %w", err)
	}
	return doc, nil
}

func (s *MongoStore) ListStale(ctx context.Context, period string, limit int) ([]string, error) {
	opts := options.Find().SetProjection(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}

	cur, err := s.coll.Find(ctx, bson.D{{Key: "lastMonthlyResetPeriod", Value: bson.D{{Key: "$ne", Value: period}}}}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: list stale: %w", err)
	}

	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("mongo: decode stale ids: %w", err)
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids, nil
}
