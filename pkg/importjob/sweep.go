package importjob

import (
	"context"
	"time"

	"github.com/dmitrymomot/printforge/pkg/logger"
	"github.com/dmitrymomot/printforge/pkg/metrics"
)

// Sweep removes jobs imported more than the retention window before now,
// whatever their status, and deletes their files best effort. A job written
// between listing and deletion is left for the next sweep.
func (t *Tracker) Sweep(ctx context.Context, now time.Time) (int, error) {
	jobs, err := t.store.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := now.Add(-t.retention)
	reaped := 0
	for _, job := range jobs {
		if !job.ImportedAt.Before(cutoff) {
			continue
		}

		deleted, err := t.store.DeleteIfUnchanged(ctx, job.ID, job.UpdatedAt)
		if err != nil {
			t.logger.WarnContext(ctx, "delete stale job failed", logger.JobID(job.ID), logger.Error(err))
			continue
		}
		if !deleted {
			continue
		}
		reaped++

		name := filePath(job)
		if err := t.files.Delete(ctx, name); err != nil {
			t.logger.WarnContext(ctx, "delete job file failed", logger.JobID(job.ID), logger.Error(err))
		}
		if t.mirror != nil && job.FilePath != "" {
			if err := t.mirror.Delete(ctx, name); err != nil {
				t.logger.WarnContext(ctx, "delete mirrored file failed", logger.JobID(job.ID), logger.Error(err))
			}
		}
	}

	if reaped > 0 {
		metrics.JobsReaped.Add(float64(reaped))
		t.logger.InfoContext(ctx, "stale import jobs removed", logger.Count(reaped))
	}
	return reaped, nil
}

// Run sweeps once immediately and then on every interval until ctx is done.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.sweepInterval)
	defer ticker.Stop()

	for {
		if _, err := t.Sweep(ctx, t.now()); err != nil {
			t.logger.ErrorContext(ctx, "import job sweep failed", logger.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
