package importjob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrymomot/printforge/pkg/blob"
	"github.com/dmitrymomot/printforge/pkg/logger"
	"github.com/dmitrymomot/printforge/pkg/metrics"
)

// download drives a URL import to exactly one terminal state.
func (t *Tracker) download(job Job) {
	defer t.wg.Done()
	ctx := t.ctx

	if !t.step(ctx, job.ID, StatusDownloading) {
		return
	}

	start := time.Now()
	data, err := t.fetch(ctx, job.Source)
	metrics.DownloadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		t.fail(ctx, job.ID, err)
		return
	}

	if !t.step(ctx, job.ID, StatusProcessing) {
		return
	}
	t.finish(ctx, job, data)
}

// step advances to a non-terminal status. It reports false when the worker
// should stop, failing the job if it still exists.
func (t *Tracker) step(ctx context.Context, id string, status Status) bool {
	_, err := t.advance(ctx, id, status, Extra{})
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrJobNotFound):
		t.logger.WarnContext(ctx, "import job vanished", logger.JobID(id))
		return false
	case errors.Is(err, ErrInvalidTransition):
		t.logger.WarnContext(ctx, "import job moved on without the worker",
			logger.JobID(id),
			logger.Error(err),
		)
		return false
	default:
		t.fail(ctx, id, err)
		return false
	}
}

func (t *Tracker) fetch(ctx context.Context, source string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: source returned %d", ErrDownloadFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if int64(len(data)) > t.maxSize {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", ErrDownloadFailed, t.maxSize)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrDownloadFailed)
	}
	return data, nil
}

// finish writes the file and completes the job, or fails it.
func (t *Tracker) finish(ctx context.Context, job Job, data []byte) {
	name := filePath(job)

	obj, err := t.files.Upload(ctx, data, name, blob.ContentTypeSTL)
	if err != nil {
		t.fail(ctx, job.ID, fmt.Errorf("write file: %w", err))
		return
	}

	extra := Extra{FilePath: obj.Path, Metadata: t.mirrorFile(ctx, job.ID, obj.Path, data)}
	if _, err := t.advance(ctx, job.ID, StatusCompleted, extra); err != nil {
		t.logger.WarnContext(ctx, "import job not completed",
			logger.JobID(job.ID),
			logger.Error(err),
		)
		// nobody will ever reference the file
		if errors.Is(err, ErrJobNotFound) {
			_ = t.files.Delete(ctx, obj.Path)
		}
	}
}

func (t *Tracker) fail(ctx context.Context, id string, cause error) {
	t.logger.WarnContext(ctx, "import job failed",
		logger.JobID(id),
		logger.Error(cause),
	)
	if err := t.Advance(ctx, id, StatusFailed, Extra{Error: cause.Error()}); err != nil {
		t.logger.ErrorContext(ctx, "mark import job failed",
			logger.JobID(id),
			logger.Error(err),
		)
	}
}

// mirrorFile copies the finished file to the mirror. Failures are logged and
// leave the job without links.
func (t *Tracker) mirrorFile(ctx context.Context, id, name string, data []byte) map[string]any {
	if t.mirror == nil {
		return nil
	}

	obj, err := t.mirror.Upload(ctx, data, name, blob.ContentTypeSTL)
	if err != nil {
		t.logger.WarnContext(ctx, "mirror upload failed", logger.JobID(id), logger.Error(err))
		return nil
	}

	meta := map[string]any{"publicUrl": obj.URL}
	signed, err := t.mirror.SignedURL(ctx, obj.Path, t.mirrorTTL)
	if err != nil {
		t.logger.WarnContext(ctx, "sign mirror url failed", logger.JobID(id), logger.Error(err))
		return meta
	}
	meta["signedUrl"] = signed
	return meta
}

// filePath is where a job's file lives, whether or not it was written yet.
func filePath(job Job) string {
	if job.FilePath != "" {
		return job.FilePath
	}
	return job.ID + "_" + job.FileName
}
