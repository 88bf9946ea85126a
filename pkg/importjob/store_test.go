package importjob_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/printforge/pkg/importjob"
)

func newJob(id string, importedAt time.Time) importjob.Job {
	return importjob.Job{
		ID:         id,
		Status:     importjob.StatusPending,
		Source:     "https://example.com/" + id + ".stl",
		FileName:   id + ".stl",
		History:    []importjob.Transition{{Status: importjob.StatusPending, At: importedAt}},
		ImportedAt: importedAt,
		UpdatedAt:  importedAt,
	}
}

func testJobStore(t *testing.T, newStore func(t *testing.T) importjob.Store) {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	t.Run("insert and get", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, newJob("a", at)))
		require.ErrorIs(t, s.Insert(ctx, newJob("a", at)), importjob.ErrJobExists)

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "a.stl", got.FileName)
		assert.True(t, got.ImportedAt.Equal(at))

		_, err = s.Get(ctx, "b")
		require.ErrorIs(t, err, importjob.ErrJobNotFound)
	})

	t.Run("update", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, newJob("a", at)))

		got, err := s.Update(ctx, "a", func(j *importjob.Job) error {
			j.Status = importjob.StatusDownloading
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, importjob.StatusDownloading, got.Status)

		boom := errors.New("boom")
		_, err = s.Update(ctx, "a", func(j *importjob.Job) error {
			j.Status = importjob.StatusFailed
			return boom
		})
		require.ErrorIs(t, err, boom)

		got, err = s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, importjob.StatusDownloading, got.Status)

		_, err = s.Update(ctx, "missing", func(*importjob.Job) error { return nil })
		require.ErrorIs(t, err, importjob.ErrJobNotFound)
	})

	t.Run("concurrent updates all apply", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, newJob("a", at)))

		var wg sync.WaitGroup
		for i := range 5 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Update(ctx, "a", func(j *importjob.Job) error {
					if j.Metadata == nil {
						j.Metadata = map[string]any{}
					}
					j.Metadata[fmt.Sprint(i)] = true
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Len(t, got.Metadata, 5)
	})

	t.Run("list", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, newJob("a", at)))
		require.NoError(t, s.Insert(ctx, newJob("b", at)))

		jobs, err := s.List(ctx)
		require.NoError(t, err)
		ids := make([]string, 0, len(jobs))
		for _, j := range jobs {
			ids = append(ids, j.ID)
		}
		assert.ElementsMatch(t, []string{"a", "b"}, ids)
	})

	t.Run("delete if unchanged", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, newJob("a", at)))

		deleted, err := s.DeleteIfUnchanged(ctx, "a", at.Add(-time.Second))
		require.NoError(t, err)
		assert.False(t, deleted)

		deleted, err = s.DeleteIfUnchanged(ctx, "a", at)
		require.NoError(t, err)
		assert.True(t, deleted)

		_, err = s.Get(ctx, "a")
		require.ErrorIs(t, err, importjob.ErrJobNotFound)

		deleted, err = s.DeleteIfUnchanged(ctx, "a", at)
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	testJobStore(t, func(*testing.T) importjob.Store { return importjob.NewMemoryStore() })
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := importjob.NewMemoryStore()

	job := newJob("a", time.Now())
	job.Metadata = map[string]any{"k": "v"}
	require.NoError(t, s.Insert(ctx, job))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	got.Metadata["k"] = "changed"

	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "v", again.Metadata["k"])
}

// Runs against a real Redis when REDIS_URL is set.
func TestRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opt)
	t.Cleanup(func() { _ = client.Close() })

	testJobStore(t, func(t *testing.T) importjob.Store {
		prefix := fmt.Sprintf("test:importjob:%d:", time.Now().UnixNano())
		t.Cleanup(func() {
			ctx := context.Background()
			iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
			for iter.Next(ctx) {
				client.Del(ctx, iter.Val())
			}
		})
		return importjob.NewRedisStore(client, importjob.WithKeyPrefix(prefix))
	})
}
