package blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSConfig is read from GCS_* variables. EmulatorHost points the client at
// fake-gcs-server and disables authentication.
type GCSConfig struct {
	Bucket       string `env:"GCS_BUCKET,required"`
	AccessID     string `env:"GCS_ACCESS_ID"` // service account email used for signing
	BaseURL      string `env:"GCS_BASE_URL" envDefault:"https://storage.googleapis.com"`
	EmulatorHost string `env:"GCS_EMULATOR_HOST"`
}

// GCS stores blobs in a Google Cloud Storage bucket.
type GCS struct {
	client   *storage.Client
	bucket   *storage.BucketHandle
	name     string
	accessID string
	baseURL  string
	now      func() time.Time
}

// NewGCSClient builds a storage client, honoring cfg.EmulatorHost.
func NewGCSClient(ctx context.Context, cfg GCSConfig, opts ...option.ClientOption) (*storage.Client, error) {
	if cfg.EmulatorHost != "" {
		opts = append(opts,
			option.WithEndpoint("http://"+cfg.EmulatorHost+"/storage/v1/"),
			option.WithoutAuthentication(),
		)
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToLoadConfig, err)
	}
	return client, nil
}

func NewGCS(client *storage.Client, cfg GCSConfig) (*GCS, error) {
	if client == nil || cfg.Bucket == "" {
		return nil, ErrInvalidConfig
	}

	baseURL := cfg.BaseURL
	if cfg.EmulatorHost != "" {
		baseURL = "http://" + cfg.EmulatorHost
	}

	return &GCS{
		client:   client,
		bucket:   client.Bucket(cfg.Bucket),
		name:     cfg.Bucket,
		accessID: cfg.AccessID,
		baseURL:  baseURL,
		now:      time.Now,
	}, nil
}

func (s *GCS) Upload(ctx context.Context, data []byte, path, contentType string) (Object, error) {
	key, err := cleanKey(path)
	if err != nil {
		return Object{}, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return Object{}, classifyGCSError(err, "upload object")
	}
	if err := w.Close(); err != nil {
		return Object{}, classifyGCSError(err, "upload object")
	}

	return Object{
		Path:        key,
		URL:         s.publicURL(key),
		Size:        int64(len(data)),
		ContentType: contentType,
	}, nil
}

func (s *GCS) SignedURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	key, err := cleanKey(path)
	if err != nil {
		return "", err
	}

	u, err := s.bucket.SignedURL(key, &storage.SignedURLOptions{
		Method:         "GET",
		Expires:        s.now().Add(ttl),
		Scheme:         storage.SigningSchemeV4,
		GoogleAccessID: s.accessID,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFailedToSignURL, err)
	}
	return u, nil
}

func (s *GCS) Exists(ctx context.Context, path string) (bool, error) {
	key, err := cleanKey(path)
	if err != nil {
		return false, err
	}

	_, err = s.bucket.Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, classifyGCSError(err, "stat object")
	}
	return true, nil
}

func (s *GCS) Delete(ctx context.Context, path string) error {
	key, err := cleanKey(path)
	if err != nil {
		return err
	}

	err = s.bucket.Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return classifyGCSError(err, "delete object")
	}
	return nil
}

func (s *GCS) publicURL(key string) string {
	return joinURL(s.baseURL, url.PathEscape(s.name)+"/"+key)
}

func classifyGCSError(err error, operation string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s", ErrOperationTimeout, operation)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %s", ErrOperationCanceled, operation)
	case errors.Is(err, storage.ErrObjectNotExist):
		return fmt.Errorf("%w: %s", ErrNotFound, operation)
	case errors.Is(err, storage.ErrBucketNotExist):
		return ErrBucketNotFound
	default:
		return fmt.Errorf("%s failed: %w", operation, err)
	}
}
