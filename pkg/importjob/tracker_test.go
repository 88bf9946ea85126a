package importjob_test

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/printforge/pkg/blob"
	"github.com/dmitrymomot/printforge/pkg/broadcast"
	"github.com/dmitrymomot/printforge/pkg/importjob"
)

const stlBody = "solid cube\nendsolid cube\n"

type fixture struct {
	tracker *importjob.Tracker
	store   *importjob.MemoryStore
	dir     string
}

// newFixture lets imports reach the loopback test servers.
func newFixture(t *testing.T, opts ...importjob.Option) fixture {
	t.Helper()
	return buildFixture(t, append([]importjob.Option{importjob.WithPrivateNetworks()}, opts...)...)
}

func buildFixture(t *testing.T, opts ...importjob.Option) fixture {
	t.Helper()

	dir := t.TempDir()
	files, err := blob.NewLocal(blob.LocalConfig{Dir: dir, BaseURL: "/files/"})
	require.NoError(t, err)

	store := importjob.NewMemoryStore()
	events := broadcast.NewMemoryBroadcaster[importjob.Event](32)
	tracker := importjob.NewTracker(store, events, files, opts...)
	t.Cleanup(func() {
		_ = tracker.Close()
		_ = events.Close()
	})

	return fixture{tracker: tracker, store: store, dir: dir}
}

func stlServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/model.stl":
			_, _ = w.Write([]byte(stlBody))
		case "/slow.stl":
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// collect drains a subscription until it closes.
func collect(t *testing.T, sub *importjob.Subscription) []importjob.Event {
	t.Helper()
	var out []importjob.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("subscription did not finish")
			return out
		}
	}
}

func statusEvents(events []importjob.Event) []importjob.Event {
	var out []importjob.Event
	for _, ev := range events {
		if ev.Type == importjob.EventStatus {
			out = append(out, ev)
		}
	}
	return out
}

func statuses(events []importjob.Event) []importjob.Status {
	out := make([]importjob.Status, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Status)
	}
	return out
}

func TestTracker_ImportEndToEnd(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	srv := stlServer(t)
	ctx := context.Background()

	id, err := f.tracker.CreateImport(ctx, srv.URL+"/model.stl", "model.stl", map[string]any{"userId": "u1"})
	require.NoError(t, err)

	sub, err := f.tracker.Subscribe(ctx, id)
	require.NoError(t, err)
	defer sub.Close()

	all := collect(t, sub)
	events := statusEvents(all)
	require.Equal(t, []importjob.Status{
		importjob.StatusPending,
		importjob.StatusDownloading,
		importjob.StatusProcessing,
		importjob.StatusCompleted,
	}, statuses(events))

	for _, ev := range events[:3] {
		assert.Empty(t, ev.FilePath, "status %s", ev.Status)
	}
	final := events[3]
	assert.Equal(t, id+"_model.stl", final.FilePath)

	last := all[len(all)-1]
	assert.Equal(t, importjob.EventCompleted, last.Type)
	assert.Equal(t, final.FilePath, last.FilePath)
	assert.Equal(t, "u1", last.Metadata["userId"])

	data, err := os.ReadFile(filepath.Join(f.dir, final.FilePath))
	require.NoError(t, err)
	assert.Equal(t, stlBody, string(data))

	job, err := f.tracker.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, importjob.StatusCompleted, job.Status)
	assert.Empty(t, job.Error)
}

func TestTracker_ImportFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	srv := stlServer(t)
	ctx := context.Background()

	id, err := f.tracker.CreateImport(ctx, srv.URL+"/missing.stl", "", nil)
	require.NoError(t, err)

	sub, err := f.tracker.Subscribe(ctx, id)
	require.NoError(t, err)
	all := collect(t, sub)

	assert.Equal(t, []importjob.Status{
		importjob.StatusPending,
		importjob.StatusDownloading,
		importjob.StatusFailed,
	}, statuses(statusEvents(all)))

	last := all[len(all)-1]
	assert.Equal(t, importjob.EventFailed, last.Type)
	assert.Contains(t, last.Error, "404")
	assert.Empty(t, last.FilePath)

	job, err := f.tracker.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "missing.stl", job.FileName)
	assert.Equal(t, importjob.StatusFailed, job.Status)
}

func TestTracker_ImportRefusesInternalAddresses(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(stlBody))
	}))
	t.Cleanup(srv.Close)
	port := srv.Listener.Addr().(*net.TCPAddr).Port

	sources := []string{
		srv.URL + "/model.stl",
		fmt.Sprintf("http://127.0.0.2:%d/model.stl", port),
		"http://169.254.169.254/latest/meta-data/model.stl",
		"http://10.0.0.1/model.stl",
		"http://0.0.0.0/model.stl",
	}

	f := buildFixture(t)
	ctx := context.Background()

	for _, source := range sources {
		id, err := f.tracker.CreateImport(ctx, source, "model.stl", nil)
		require.NoError(t, err, source)

		sub, err := f.tracker.Subscribe(ctx, id)
		require.NoError(t, err, source)
		all := collect(t, sub)

		last := all[len(all)-1]
		assert.Equal(t, importjob.EventFailed, last.Type, source)
		assert.Contains(t, last.Error, importjob.ErrForbiddenAddress.Error(), source)
	}
	assert.Zero(t, hits.Load())
}

func TestTracker_DownloadTimeout(t *testing.T) {
	t.Parallel()
	f := newFixture(t, importjob.WithDownloadTimeout(50*time.Millisecond))
	srv := stlServer(t)
	ctx := context.Background()

	id, err := f.tracker.CreateImport(ctx, srv.URL+"/slow.stl", "slow.stl", nil)
	require.NoError(t, err)

	sub, err := f.tracker.Subscribe(ctx, id)
	require.NoError(t, err)
	all := collect(t, sub)

	assert.Equal(t, importjob.EventFailed, all[len(all)-1].Type)
}

func TestTracker_DownloadTooLarge(t *testing.T) {
	t.Parallel()
	f := newFixture(t, importjob.WithMaxDownloadSize(4))
	srv := stlServer(t)

	id, err := f.tracker.CreateImport(context.Background(), srv.URL+"/model.stl", "model.stl", nil)
	require.NoError(t, err)

	sub, err := f.tracker.Subscribe(context.Background(), id)
	require.NoError(t, err)
	all := collect(t, sub)

	assert.Contains(t, all[len(all)-1].Error, "exceeds")
}

func TestTracker_CreateImportRejectsBadSource(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for _, src := range []string{"", "ftp://example.com/a.stl", "not a url", "https:///a.stl"} {
		_, err := f.tracker.CreateImport(context.Background(), src, "a.stl", nil)
		require.ErrorIs(t, err, importjob.ErrInvalidSource, src)
	}
}

func TestTracker_Upload(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tracker.CreateUpload(ctx, nil, "empty.stl", nil)
	require.ErrorIs(t, err, importjob.ErrEmptyUpload)

	id, err := f.tracker.CreateUpload(ctx, []byte(stlBody), "../../benchy.stl", nil)
	require.NoError(t, err)

	sub, err := f.tracker.Subscribe(ctx, id)
	require.NoError(t, err)
	all := collect(t, sub)

	assert.Equal(t, []importjob.Status{importjob.StatusProcessing, importjob.StatusCompleted}, statuses(statusEvents(all)))

	job, err := f.tracker.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, importjob.SourceUpload, job.Source)
	assert.Equal(t, id+"_benchy.stl", job.FilePath)
	_, err = os.Stat(filepath.Join(f.dir, job.FilePath))
	require.NoError(t, err)
}

func TestTracker_Mirror(t *testing.T) {
	t.Parallel()
	mirror, err := blob.NewLocal(blob.LocalConfig{Dir: t.TempDir(), BaseURL: "https://cdn.example/"})
	require.NoError(t, err)

	f := newFixture(t, importjob.WithMirror(mirror, time.Hour))
	ctx := context.Background()

	id, err := f.tracker.CreateUpload(ctx, []byte(stlBody), "cube.stl", map[string]any{"source": "app"})
	require.NoError(t, err)

	sub, err := f.tracker.Subscribe(ctx, id)
	require.NoError(t, err)
	all := collect(t, sub)

	last := all[len(all)-1]
	assert.Equal(t, "https://cdn.example/"+id+"_cube.stl", last.Metadata["publicUrl"])
	assert.NotEmpty(t, last.Metadata["signedUrl"])
	assert.Equal(t, "app", last.Metadata["source"])

	ok, err := mirror.Exists(ctx, id+"_cube.stl")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTracker_AdvanceAfterFailureRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Insert(ctx, newJob("j1", time.Now())))

	require.NoError(t, f.tracker.Advance(ctx, "j1", importjob.StatusFailed, importjob.Extra{Error: "boom"}))
	err := f.tracker.Advance(ctx, "j1", importjob.StatusCompleted, importjob.Extra{FilePath: "j1_a.stl"})
	require.ErrorIs(t, err, importjob.ErrInvalidTransition)

	job, err := f.tracker.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, importjob.StatusFailed, job.Status)
	assert.Equal(t, "boom", job.Error)
	assert.Empty(t, job.FilePath)
}

func TestTracker_AdvanceBackwardsRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Insert(ctx, newJob("j1", time.Now())))
	require.NoError(t, f.tracker.Advance(ctx, "j1", importjob.StatusProcessing, importjob.Extra{}))

	err := f.tracker.Advance(ctx, "j1", importjob.StatusDownloading, importjob.Extra{})
	require.ErrorIs(t, err, importjob.ErrInvalidTransition)
}

func TestTracker_AdvanceEnforcesFileAndError(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Insert(ctx, newJob("j1", time.Now())))
	require.NoError(t, f.tracker.Advance(ctx, "j1", importjob.StatusProcessing, importjob.Extra{}))

	rejected := []struct {
		status importjob.Status
		extra  importjob.Extra
	}{
		{importjob.StatusCompleted, importjob.Extra{}},
		{importjob.StatusCompleted, importjob.Extra{FilePath: "j1_a.stl", Error: "half done"}},
		{importjob.StatusFailed, importjob.Extra{FilePath: "j1_a.stl", Error: "boom"}},
	}
	for _, tt := range rejected {
		err := f.tracker.Advance(ctx, "j1", tt.status, tt.extra)
		require.ErrorIs(t, err, importjob.ErrInvalidTransition, "%s %+v", tt.status, tt.extra)
	}

	job, err := f.tracker.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, importjob.StatusProcessing, job.Status)
	assert.Empty(t, job.FilePath)
	assert.Empty(t, job.Error)
	assert.Len(t, job.History, 2)

	require.NoError(t, f.tracker.Advance(ctx, "j1", importjob.StatusCompleted, importjob.Extra{FilePath: "j1_a.stl"}))
	job, err = f.tracker.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, importjob.StatusCompleted, job.Status)
	assert.Equal(t, "j1_a.stl", job.FilePath)
}

func TestTracker_AdvanceIntermediateStepRejectsFields(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Insert(ctx, newJob("j1", time.Now())))
	err := f.tracker.Advance(ctx, "j1", importjob.StatusDownloading, importjob.Extra{FilePath: "j1_a.stl"})
	require.ErrorIs(t, err, importjob.ErrInvalidTransition)
	err = f.tracker.Advance(ctx, "j1", importjob.StatusDownloading, importjob.Extra{Error: "early"})
	require.ErrorIs(t, err, importjob.ErrInvalidTransition)

	// failed without a message still gets one
	require.NoError(t, f.tracker.Advance(ctx, "j1", importjob.StatusFailed, importjob.Extra{}))
	job, err := f.tracker.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "import failed", job.Error)
	assert.Empty(t, job.FilePath)
}

func TestTracker_AdvanceUnknownJobIgnored(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, f.tracker.Advance(context.Background(), "ghost", importjob.StatusCompleted, importjob.Extra{}))
}

func TestTracker_AdvanceMergesMetadata(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	job := newJob("j1", time.Now())
	job.Metadata = map[string]any{"a": 1}
	require.NoError(t, f.store.Insert(ctx, job))

	require.NoError(t, f.tracker.Advance(ctx, "j1", importjob.StatusDownloading, importjob.Extra{Metadata: map[string]any{"b": 2}}))

	got, err := f.tracker.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, got.Metadata)
	assert.Len(t, got.History, 2)
}

func TestTracker_SubscribeUnknownJob(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, err := f.tracker.Subscribe(context.Background(), "ghost")
	require.ErrorIs(t, err, importjob.ErrJobNotFound)
}

func TestTracker_SubscribeLiveEvents(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Insert(ctx, newJob("j1", time.Now())))

	sub, err := f.tracker.Subscribe(ctx, "j1")
	require.NoError(t, err)

	first := <-sub.Events()
	assert.Equal(t, importjob.StatusPending, first.Status)

	require.NoError(t, f.tracker.Advance(ctx, "j1", importjob.StatusDownloading, importjob.Extra{}))
	require.NoError(t, f.tracker.Advance(ctx, "j1", importjob.StatusCompleted, importjob.Extra{FilePath: "j1_a.stl"}))

	rest := collect(t, sub)
	require.Len(t, rest, 3)
	assert.Equal(t, importjob.StatusDownloading, rest[0].Status)
	assert.Equal(t, 2, rest[0].Seq)
	assert.Equal(t, importjob.EventStatus, rest[1].Type)
	assert.Equal(t, "j1_a.stl", rest[1].FilePath)
	assert.Equal(t, importjob.EventCompleted, rest[2].Type)
}

func TestTracker_ConcurrentImports(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	srv := stlServer(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := f.tracker.CreateImport(ctx, srv.URL+"/model.stl", "model.stl", nil)
			assert.NoError(t, err)
			ids[i] = id
		}()
	}
	wg.Wait()

	for _, id := range ids {
		require.Eventually(t, func() bool {
			job, err := f.tracker.Get(ctx, id)
			return err == nil && job.Status == importjob.StatusCompleted
		}, 5*time.Second, 10*time.Millisecond)
	}
}

func TestTracker_Sweep(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	stale := newJob("stale", now.Add(-25*time.Hour))
	stale.Status = importjob.StatusCompleted
	stale.FilePath = "stale_model.stl"
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, stale.FilePath), []byte(stlBody), 0o644))
	require.NoError(t, f.store.Insert(ctx, stale))

	// still pending after a day: reaped all the same
	require.NoError(t, f.store.Insert(ctx, newJob("stuck", now.Add(-30*time.Hour))))
	require.NoError(t, f.store.Insert(ctx, newJob("fresh", now.Add(-23*time.Hour))))

	reaped, err := f.tracker.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, reaped)

	_, err = f.tracker.Get(ctx, "stale")
	require.ErrorIs(t, err, importjob.ErrJobNotFound)
	_, err = f.tracker.Get(ctx, "stuck")
	require.ErrorIs(t, err, importjob.ErrJobNotFound)
	_, err = f.tracker.Get(ctx, "fresh")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(f.dir, stale.FilePath))
	assert.True(t, os.IsNotExist(err))

	// a late advance on a reaped job is tolerated
	require.NoError(t, f.tracker.Advance(ctx, "stuck", importjob.StatusDownloading, importjob.Extra{}))
}

// racingStore advances a job between the sweep's List and its delete.
type racingStore struct {
	*importjob.MemoryStore
	tracker *importjob.Tracker
	once    sync.Once
}

func (s *racingStore) List(ctx context.Context) ([]importjob.Job, error) {
	jobs, err := s.MemoryStore.List(ctx)
	s.once.Do(func() {
		_ = s.tracker.Advance(ctx, "busy", importjob.StatusCompleted, importjob.Extra{FilePath: "busy_a.stl"})
	})
	return jobs, err
}

func TestTracker_SweepSkipsJobAdvancedMeanwhile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	files, err := blob.NewLocal(blob.LocalConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	events := broadcast.NewMemoryBroadcaster[importjob.Event](8)
	defer events.Close()

	store := &racingStore{MemoryStore: importjob.NewMemoryStore()}
	tracker := importjob.NewTracker(store, events, files, importjob.WithClock(func() time.Time { return now }))
	defer tracker.Close()
	store.tracker = tracker

	busy := newJob("busy", now.Add(-25*time.Hour))
	busy.Status = importjob.StatusProcessing
	require.NoError(t, store.Insert(ctx, busy))

	reaped, err := tracker.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, reaped)

	job, err := tracker.Get(ctx, "busy")
	require.NoError(t, err)
	assert.Equal(t, importjob.StatusCompleted, job.Status)

	// next sweep sees the settled job and removes it
	reaped, err = tracker.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)
}

func TestTracker_Run(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	f := newFixture(t,
		importjob.WithClock(func() time.Time { return now }),
		importjob.WithSweepInterval(10*time.Millisecond),
	)

	require.NoError(t, f.store.Insert(context.Background(), newJob("old", now.Add(-48*time.Hour))))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.tracker.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := f.tracker.Get(context.Background(), "old")
		return err != nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestNewTracker_PanicsOnMissingDependencies(t *testing.T) {
	t.Parallel()
	files, err := blob.NewLocal(blob.LocalConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	events := broadcast.NewMemoryBroadcaster[importjob.Event](1)
	defer events.Close()

	assert.Panics(t, func() { importjob.NewTracker(nil, events, files) })
	assert.Panics(t, func() { importjob.NewTracker(importjob.NewMemoryStore(), nil, files) })
	assert.Panics(t, func() { importjob.NewTracker(importjob.NewMemoryStore(), events, nil) })
}
