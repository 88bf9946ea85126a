package entitlement

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
)

// MemoryStore is a process-local Store for development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Entitlement
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Entitlement)}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[userID]
	if !ok {
		return Entitlement{}, ErrNotFound
	}
	return e, nil
}

func (s *MemoryStore) FindByCustomerRef(_ context.Context, customerRef string) (Entitlement, error) {
	if customerRef == "" {
		return Entitlement{}, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.records {
		if e.CustomerRef == customerRef {
			return e, nil
		}
	}
	return Entitlement{}, ErrNotFound
}

func (s *MemoryStore) Update(_ context.Context, userID string, fn Mutation) (Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, found := s.records[userID]
	if !found {
		current = Entitlement{UserID: userID}
	}

	next := current
	if err := fn(&next, found); err != nil {
		if errors.Is(err, ErrSkipUpdate) {
			return current, nil
		}
		return current, err
	}
	next.UserID = userID
	s.records[userID] = next
	return next, nil
}

func (s *MemoryStore) DecrementQuota(_ context.Context, userID string) (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[userID]
	if !ok {
		return Usage{}, ErrNotFound
	}
	if e.ModelsRemaining == Unlimited {
		return e.Usage(), nil
	}
	if e.ModelsRemaining <= 0 {
		return e.Usage(), ErrQuotaExhausted
	}
	e.ModelsRemaining--
	e.ModelsGenerated++
	s.records[userID] = e
	return e.Usage(), nil
}

func (s *MemoryStore) IncrementDownloads(_ context.Context, userID string) (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[userID]
	if !ok {
		return Usage{}, ErrNotFound
	}
	e.Downloads++
	s.records[userID] = e
	return e.Usage(), nil
}

func (s *MemoryStore) ListStale(_ context.Context, period string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0)
	for _, id := range slices.Sorted(maps.Keys(s.records)) {
		if limit > 0 && len(ids) >= limit {
			break
		}
		if s.records[id].LastResetPeriod != period {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
