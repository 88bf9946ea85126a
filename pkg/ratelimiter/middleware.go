package ratelimiter

import (
	"math"
	"net/http"
	"strconv"
)

// KeyFunc extracts the bucket key. An empty key skips limiting.
type KeyFunc func(r *http.Request) string

type middlewareConfig struct {
	onDenied func(w http.ResponseWriter, r *http.Request, res *Result)
	onError  func(w http.ResponseWriter, r *http.Request, err error)
}

type MiddlewareOption func(*middlewareConfig)

// WithDeniedHandler writes the response for a limited request. Rate limit
// headers are already set when it runs.
func WithDeniedHandler(fn func(w http.ResponseWriter, r *http.Request, res *Result)) MiddlewareOption {
	return func(c *middlewareConfig) {
		if fn != nil {
			c.onDenied = fn
		}
	}
}

// WithErrorHandler writes the response when the store fails.
func WithErrorHandler(fn func(w http.ResponseWriter, r *http.Request, err error)) MiddlewareOption {
	return func(c *middlewareConfig) {
		if fn != nil {
			c.onError = fn
		}
	}
}

// Middleware takes one token per request and sets X-RateLimit-* headers.
func Middleware(b *Bucket, keyFunc KeyFunc, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if b == nil || keyFunc == nil {
		panic("ratelimiter: bucket and key func are required")
	}
	cfg := &middlewareConfig{
		onDenied: func(w http.ResponseWriter, _ *http.Request, _ *Result) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		},
		onError: func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			res, err := b.Allow(r.Context(), key)
			if err != nil {
				cfg.onError(w, r, err)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(0, res.Remaining)))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed() {
				// rounded up so clients never retry a moment too early
				secs := int(math.Ceil(res.RetryAfter().Seconds()))
				h.Set("Retry-After", strconv.Itoa(max(secs, 1)))
				cfg.onDenied(w, r, res)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
