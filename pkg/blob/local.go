package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalConfig is read from BLOB_LOCAL_* variables.
type LocalConfig struct {
	Dir     string `env:"BLOB_LOCAL_DIR" envDefault:"./data/blobs"`
	BaseURL string `env:"BLOB_LOCAL_BASE_URL" envDefault:"/files/"`
}

// Local keeps blobs on the local filesystem. All paths stay inside the base dir.
type Local struct {
	baseDir string
	baseURL string
}

func NewLocal(cfg LocalConfig) (*Local, error) {
	if cfg.Dir == "" {
		return nil, ErrInvalidConfig
	}

	abs, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &Local{baseDir: abs, baseURL: cfg.BaseURL}, nil
}

func (s *Local) Upload(ctx context.Context, data []byte, path, contentType string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}

	key, abs, err := s.resolve(path)
	if err != nil {
		return Object{}, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return Object{}, fmt.Errorf("%w: %v", ErrFailedToWriteObject, err)
	}

	if err := os.WriteFile(abs, data, 0o644); err != nil {
		_ = os.Remove(abs)
		return Object{}, fmt.Errorf("%w: %v", ErrFailedToWriteObject, err)
	}

	return Object{
		Path:        key,
		URL:         joinURL(s.baseURL, key),
		Size:        int64(len(data)),
		ContentType: contentType,
	}, nil
}

// SignedURL returns the plain public URL; local files are served unsigned.
func (s *Local) SignedURL(ctx context.Context, path string, _ time.Duration) (string, error) {
	key, abs, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return "", err
	}
	return joinURL(s.baseURL, key), nil
}

func (s *Local) Exists(_ context.Context, path string) (bool, error) {
	_, abs, err := s.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(abs)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func (s *Local) Delete(_ context.Context, path string) error {
	_, abs, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// resolve keeps the path inside baseDir.
func (s *Local) resolve(path string) (string, string, error) {
	key, err := cleanKey(path)
	if err != nil {
		return "", "", err
	}

	abs := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if !strings.HasPrefix(abs, s.baseDir+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return key, abs, nil
}
