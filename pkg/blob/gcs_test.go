package blob_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/printforge/pkg/blob"
)

// Runs against fake-gcs-server when GCS_EMULATOR_HOST is set.
func TestGCS(t *testing.T) {
	host := os.Getenv("GCS_EMULATOR_HOST")
	if host == "" {
		t.Skip("GCS_EMULATOR_HOST not set")
	}

	ctx := context.Background()
	cfg := blob.GCSConfig{Bucket: "printforge-test", EmulatorHost: host}
	client, err := blob.NewGCSClient(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	s, err := blob.NewGCS(client, cfg)
	require.NoError(t, err)

	key := fmt.Sprintf("models/%d.stl", time.Now().UnixNano())
	obj, err := s.Upload(ctx, []byte("solid cube"), key, blob.ContentTypeSTL)
	require.NoError(t, err)
	assert.Equal(t, key, obj.Path)
	assert.Contains(t, obj.URL, "printforge-test/"+key)

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))

	ok, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
