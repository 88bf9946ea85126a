package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/printforge/pkg/logger"
)

// Check reports whether a dependency is usable.
type Check func(context.Context) error

// HealthHandler serves a liveness response when checks is empty and a
// readiness response otherwise. Each check gets its own timeout; any
// failure turns the response into 503.
func HealthHandler(log *slog.Logger, timeout time.Duration, checks map[string]Check) http.HandlerFunc {
	if log == nil {
		log = logger.Discard()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		report := make(map[string]string, len(checks))
		for name, check := range checks {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			err := check(ctx)
			cancel()
			if err != nil {
				log.ErrorContext(r.Context(), "readiness check failed",
					slog.String("check", name),
					logger.Error(err),
				)
				report[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			report[name] = "ok"
		}

		body := map[string]any{"status": "ok"}
		if status != http.StatusOK {
			body["status"] = "unavailable"
		}
		if len(report) > 0 {
			body["checks"] = report
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
