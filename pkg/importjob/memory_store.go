package importjob

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps jobs in a process-local map.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Job)}
}

func (s *MemoryStore) Insert(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return ErrJobExists
	}
	s.jobs[job.ID] = job.clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return job.clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(*Job) error) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}

	next := job.clone()
	if err := fn(&next); err != nil {
		return job.clone(), err
	}
	s.jobs[id] = next
	return next.clone(), nil
}

func (s *MemoryStore) List(_ context.Context) ([]Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.clone())
	}
	return out, nil
}

func (s *MemoryStore) DeleteIfUnchanged(_ context.Context, id string, updatedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || !job.UpdatedAt.Equal(updatedAt) {
		return false, nil
	}
	delete(s.jobs, id)
	return true, nil
}
