package importjob

import (
	"context"
	"time"
)

// Store persists jobs. Update must be atomic per job so concurrent advances
// are applied one after another.
type Store interface {
	// Insert fails with ErrJobExists when the id is taken.
	Insert(ctx context.Context, job Job) error
	// Get returns ErrJobNotFound for unknown ids.
	Get(ctx context.Context, id string) (Job, error)
	// Update applies fn to the stored job and saves the result. An error from
	// fn aborts the update. Returns ErrJobNotFound for unknown ids.
	Update(ctx context.Context, id string, fn func(*Job) error) (Job, error)
	// List returns every job.
	List(ctx context.Context) ([]Job, error)
	// DeleteIfUnchanged removes the job only if its UpdatedAt still equals
	// updatedAt. Reports whether it was removed.
	DeleteIfUnchanged(ctx context.Context, id string, updatedAt time.Time) (bool, error)
}
