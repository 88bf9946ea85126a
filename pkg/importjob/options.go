package importjob

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/printforge/pkg/blob"
)

const (
	DefaultDownloadTimeout = 60 * time.Second
	DefaultMaxDownloadSize = 100 << 20
	DefaultRetention       = 24 * time.Hour
	DefaultSweepInterval   = time.Hour
	DefaultSignedURLTTL    = 7 * 24 * time.Hour
)

// Option configures a Tracker.
type Option func(*Tracker)

func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithHTTPClient replaces the download client. The default client refuses
// loopback, private, link-local and metadata addresses; a custom client
// is trusted as is.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Tracker) {
		if c != nil {
			t.client = c
		}
	}
}

// WithPrivateNetworks lets imports reach internal addresses. Meant for
// local development and tests.
func WithPrivateNetworks() Option {
	return func(t *Tracker) {
		t.client = &http.Client{}
	}
}

// WithDownloadTimeout bounds each remote fetch.
func WithDownloadTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.downloadTimeout = d
		}
	}
}

// WithMaxDownloadSize fails imports whose body exceeds n bytes.
func WithMaxDownloadSize(n int64) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.maxSize = n
		}
	}
}

// WithRetention sets how long after import a job and its file are kept.
func WithRetention(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.retention = d
		}
	}
}

func WithSweepInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.sweepInterval = d
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(t *Tracker) {
		if fn != nil {
			t.newID = fn
		}
	}
}

// WithMirror copies completed files to s and stores "publicUrl" and
// "signedUrl" in the job metadata. The signed link is valid for ttl.
func WithMirror(s blob.Storage, ttl time.Duration) Option {
	return func(t *Tracker) {
		t.mirror = s
		if ttl > 0 {
			t.mirrorTTL = ttl
		}
	}
}
