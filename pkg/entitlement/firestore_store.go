package entitlement

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const DefaultFirestoreCollection = "users"

// FirestoreStore keeps one document per user. Updates and counter changes run
// in Firestore transactions, which retry on contention.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreStore(client *firestore.Client, collection string) *FirestoreStore {
	if client == nil {
		panic("entitlement: firestore client is required")
	}
	if collection == "" {
		collection = DefaultFirestoreCollection
	}
	return &FirestoreStore{client: client, collection: collection}
}

func (s *FirestoreStore) doc(userID string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(userID)
}

func (s *FirestoreStore) Get(ctx context.Context, userID string) (Entitlement, error) {
	snap, err := s.doc(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return Entitlement{}, ErrNotFound
	}
	if err != nil {
		return Entitlement{}, fmt.Errorf("firestore: get %s: %w", userID, err)
	}
	return decodeSnapshot(snap)
}

func (s *FirestoreStore) FindByCustomerRef(ctx context.Context, customerRef string) (Entitlement, error) {
	if customerRef == "" {
		return Entitlement{}, ErrNotFound
	}

	it := s.client.Collection(s.collection).
		Where("customerRef", "==", customerRef).
		Limit(1).
		Documents(ctx)
	defer it.Stop()

	snap, err := it.Next()
	if errors.Is(err, iterator.Done) {
		return Entitlement{}, ErrNotFound
	}
	if err != nil {
		return Entitlement{}, fmt.Errorf("firestore: find by customer: %w", err)
	}
	return decodeSnapshot(snap)
}

func (s *FirestoreStore) Update(ctx context.Context, userID string, fn Mutation) (Entitlement, error) {
	ref := s.doc(userID)

	var result Entitlement
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		cur := Entitlement{UserID: userID}
		found := true

		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
			found = false
		case err != nil:
			return err
		default:
			if cur, err = decodeSnapshot(snap); err != nil {
				return err
			}
		}

		result = cur
		next := cur
		if err := fn(&next, found); err != nil {
			return err
		}
		next.UserID = userID
		if err := tx.Set(ref, next); err != nil {
			return err
		}
		result = next
		return nil
	})
	if errors.Is(err, ErrSkipUpdate) {
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("firestore: update %s: %w", userID, err)
	}
	return result, nil
}

func (s *FirestoreStore) DecrementQuota(ctx context.Context, userID string) (Usage, error) {
	ref := s.doc(userID)

	var usage Usage
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		e, err := s.getInTx(tx, ref)
		if err != nil {
			return err
		}
		usage = e.Usage()
		if e.ModelsRemaining == Unlimited {
			return nil
		}
		if e.ModelsRemaining <= 0 {
			return ErrQuotaExhausted
		}
		usage.ModelsRemaining--
		usage.ModelsGenerated++
		return tx.Update(ref, []firestore.Update{
			{Path: "modelsRemainingThisMonth", Value: firestore.Increment(-1)},
			{Path: "modelsGeneratedThisMonth", Value: firestore.Increment(1)},
		})
	})
	return usage, classifyTxError(err)
}

func (s *FirestoreStore) IncrementDownloads(ctx context.Context, userID string) (Usage, error) {
	ref := s.doc(userID)

	var usage Usage
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		e, err := s.getInTx(tx, ref)
		if err != nil {
			return err
		}
		usage = e.Usage()
		usage.Downloads++
		return tx.Update(ref, []firestore.Update{
			{Path: "downloadsThisMonth", Value: firestore.Increment(1)},
		})
	})
	return usage, classifyTxError(err)
}

func (s *FirestoreStore) ListStale(ctx context.Context, period string, limit int) ([]string, error) {
	q := s.client.Collection(s.collection).Where("lastMonthlyResetPeriod", "!=", period)
	if limit > 0 {
		q = q.Limit(limit)
	}

	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("firestore: list stale: %w", err)
	}
	ids := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		ids = append(ids, snap.Ref.ID)
	}
	return ids, nil
}

func (s *FirestoreStore) getInTx(tx *firestore.Transaction, ref *firestore.DocumentRef) (Entitlement, error) {
	snap, err := tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return Entitlement{}, ErrNotFound
	}
	if err != nil {
		return Entitlement{}, err
	}
	return decodeSnapshot(snap)
}

func decodeSnapshot(snap *firestore.DocumentSnapshot) (Entitlement, error) {
	var e Entitlement
	if err := snap.DataTo(&e); err != nil {
		return Entitlement{}, fmt.Errorf("firestore: decode %s: %w", snap.Ref.ID, err)
	}
	if e.UserID == "" {
		e.UserID = snap.Ref.ID
	}
	return e, nil
}

func classifyTxError(err error) error {
	switch {
	case err == nil, errors.Is(err, ErrNotFound), errors.Is(err, ErrQuotaExhausted):
		return err
	default:
		return fmt.Errorf("firestore: transaction: %w", err)
	}
}
