package importjob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/printforge/pkg/blob"
	"github.com/dmitrymomot/printforge/pkg/broadcast"
	"github.com/dmitrymomot/printforge/pkg/logger"
	"github.com/dmitrymomot/printforge/pkg/metrics"
)

// FileStore holds the backing files of jobs. blob.Local satisfies it.
type FileStore interface {
	Upload(ctx context.Context, data []byte, path, contentType string) (blob.Object, error)
	Delete(ctx context.Context, path string) error
}

// Tracker creates import jobs, runs their background work and publishes
// every status change.
type Tracker struct {
	store  Store
	events broadcast.Broadcaster[Event]
	files  FileStore
	mirror blob.Storage
	logger *slog.Logger
	client *http.Client
	now    func() time.Time
	newID  func() string

	downloadTimeout time.Duration
	maxSize         int64
	retention       time.Duration
	sweepInterval   time.Duration
	mirrorTTL       time.Duration

	// background work outlives the request that started it
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTracker panics when store, events or files is nil.
func NewTracker(store Store, events broadcast.Broadcaster[Event], files FileStore, opts ...Option) *Tracker {
	if store == nil {
		panic("importjob: store is required")
	}
	if events == nil {
		panic("importjob: broadcaster is required")
	}
	if files == nil {
		panic("importjob: file store is required")
	}

	t := &Tracker{
		store:           store,
		events:          events,
		files:           files,
		logger:          logger.Discard(),
		client:          newPublicClient(),
		now:             time.Now,
		newID:           uuid.NewString,
		downloadTimeout: DefaultDownloadTimeout,
		maxSize:         DefaultMaxDownloadSize,
		retention:       DefaultRetention,
		sweepInterval:   DefaultSweepInterval,
		mirrorTTL:       DefaultSignedURLTTL,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(logger.Component("importjob"))
	t.ctx, t.cancel = context.WithCancel(context.Background())
	return t
}

// CreateImport registers a pending job for sourceURL and starts the download
// in the background. It returns as soon as the job is stored.
func (t *Tracker) CreateImport(ctx context.Context, sourceURL, fileName string, metadata map[string]any) (string, error) {
	u, err := url.Parse(sourceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidSource, sourceURL)
	}
	if fileName == "" {
		fileName = path.Base(u.Path)
	}

	job, err := t.insert(ctx, StatusPending, sourceURL, fileName, metadata)
	if err != nil {
		return "", err
	}

	t.wg.Add(1)
	go t.download(job)

	return job.ID, nil
}

// CreateUpload registers a job for bytes already in hand. It starts in
// processing and completes once the file is written.
func (t *Tracker) CreateUpload(ctx context.Context, data []byte, fileName string, metadata map[string]any) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyUpload
	}

	job, err := t.insert(ctx, StatusProcessing, SourceUpload, fileName, metadata)
	if err != nil {
		return "", err
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.finish(t.ctx, job, data)
	}()

	return job.ID, nil
}

func (t *Tracker) insert(ctx context.Context, status Status, source, fileName string, metadata map[string]any) (Job, error) {
	now := t.now()
	job := Job{
		ID:         t.newID(),
		Status:     status,
		Source:     source,
		FileName:   blob.SanitizeFilename(fileName),
		Metadata:   maps.Clone(metadata),
		History:    []Transition{{Status: status, At: now}},
		ImportedAt: now,
		UpdatedAt:  now,
	}

	if err := t.store.Insert(ctx, job); err != nil {
		return Job{}, fmt.Errorf("create import job: %w", err)
	}

	metrics.JobTransitions.WithLabelValues(string(status)).Inc()
	t.publish(ctx, job)
	t.logger.InfoContext(ctx, "import job created",
		logger.JobID(job.ID),
		logger.Status(string(status)),
	)
	return job, nil
}

// Advance moves a job to status, merging extra. Only forward transitions are
// accepted, completed requires extra.FilePath and only failed may carry
// extra.Error; anything else returns ErrInvalidTransition. An unknown id is
// logged and ignored since the job may have just been swept.
func (t *Tracker) Advance(ctx context.Context, id string, status Status, extra Extra) error {
	_, err := t.advance(ctx, id, status, extra)
	if errors.Is(err, ErrJobNotFound) {
		t.logger.WarnContext(ctx, "advance on unknown job",
			logger.JobID(id),
			logger.Status(string(status)),
		)
		return nil
	}
	return err
}

func (t *Tracker) advance(ctx context.Context, id string, status Status, extra Extra) (Job, error) {
	job, err := t.store.Update(ctx, id, func(j *Job) error {
		if err := apply(ctx, j, status, extra); err != nil {
			return err
		}

		now := t.now()
		// UpdatedAt must change on every write for the sweep's compare to hold
		if !now.After(j.UpdatedAt) {
			now = j.UpdatedAt.Add(time.Nanosecond)
		}

		j.UpdatedAt = now
		j.History = append(j.History, Transition{Status: status, At: now})

		if len(extra.Metadata) > 0 {
			if j.Metadata == nil {
				j.Metadata = make(map[string]any, len(extra.Metadata))
			}
			maps.Copy(j.Metadata, extra.Metadata)
		}
		return nil
	})
	if err != nil {
		return Job{}, err
	}

	metrics.JobTransitions.WithLabelValues(string(status)).Inc()
	t.publish(ctx, job)
	t.logger.DebugContext(ctx, "import job advanced",
		logger.JobID(id),
		logger.Status(string(status)),
	)
	return job, nil
}

func (t *Tracker) Get(ctx context.Context, id string) (Job, error) {
	return t.store.Get(ctx, id)
}

func (t *Tracker) publish(ctx context.Context, job Job) {
	for _, ev := range events(job) {
		if err := t.events.Broadcast(ctx, Channel(job.ID), ev); err != nil {
			t.logger.WarnContext(ctx, "publish job event failed",
				logger.JobID(job.ID),
				logger.Status(string(ev.Status)),
				logger.Error(err),
			)
		}
	}
}

// Close stops background work and waits for it to return.
func (t *Tracker) Close() error {
	t.cancel()
	t.wg.Wait()
	return nil
}
