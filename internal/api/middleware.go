package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/printforge/pkg/firebase"
	"github.com/dmitrymomot/printforge/pkg/logger"
	"github.com/dmitrymomot/printforge/pkg/metrics"
	"github.com/dmitrymomot/printforge/pkg/ratelimiter"
)

type identityKey struct{}

func identityFrom(ctx context.Context) firebase.Identity {
	id, _ := ctx.Value(identityKey{}).(firebase.Identity)
	return id
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		if token == "" {
			token = r.URL.Query().Get("access_token")
		}

		id, err := s.auth.Verify(r.Context(), token)
		if err != nil {
			s.logger.DebugContext(r.Context(), "authentication failed", logger.Error(err))
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

// limitJobs caps job creation per user. Store failures let the request
// through.
func (s *Server) limitJobs(next http.Handler) http.Handler {
	if s.jobLimiter == nil {
		return next
	}
	return ratelimiter.Middleware(s.jobLimiter,
		func(r *http.Request) string { return identityFrom(r.Context()).UserID },
		ratelimiter.WithDeniedHandler(func(w http.ResponseWriter, r *http.Request, _ *ratelimiter.Result) {
			s.writeError(w, r, ErrRateLimited)
		}),
		ratelimiter.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			s.logger.WarnContext(r.Context(), "rate limiter unavailable", logger.Error(err))
			next.ServeHTTP(w, r)
		}),
	)(next)
}

// observe logs each request and records route-level metrics once the
// handler returns.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		if route != "/v1/jobs/{id}/events" {
			metrics.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
		}

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "http request",
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Int("bytes", ww.BytesWritten()),
			logger.Duration(elapsed),
		)
	})
}
