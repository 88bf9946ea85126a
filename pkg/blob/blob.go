package blob

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Object describes a stored blob.
type Object struct {
	Path        string `json:"path"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// Storage is implemented by Local, S3 and GCS.
type Storage interface {
	// Upload stores data at path, replacing any existing object.
	Upload(ctx context.Context, data []byte, path, contentType string) (Object, error)
	// SignedURL returns a link that allows reading path until ttl elapses.
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
	Exists(ctx context.Context, path string) (bool, error)
	// Delete removes path. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error
}

// ContentTypeSTL is used for model uploads when nothing better is known.
const ContentTypeSTL = "model/stl"

// SanitizeFilename strips directory components and NUL bytes.
// Returns "unnamed" for empty or special directory references.
func SanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "\\", "/")
	filename = filepath.Base(filename)
	filename = strings.ReplaceAll(filename, "\x00", "")

	if filename == "." || filename == ".." || filename == "" || filename == "/" {
		filename = "unnamed"
	}

	return filename
}

func cleanKey(path string) (string, error) {
	path = strings.TrimPrefix(filepath.ToSlash(path), "/")
	if path == "" || strings.Contains(path, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return path, nil
}

func joinURL(base, path string) string {
	if base == "" {
		return path
	}
	return strings.TrimSuffix(base, "/") + "/" + path
}
