package entitlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/printforge/pkg/logger"
)

const DefaultResetInterval = time.Hour

// Resetter runs ResetMonthlyLimits once per period. It checks on an interval,
// so a rollover is picked up at most one interval late.
type Resetter struct {
	svc      *Service
	interval time.Duration
	logger   *slog.Logger

	lastPeriod string
}

// NewResetter creates a resetter checking every interval (DefaultResetInterval when zero).
func NewResetter(svc *Service, interval time.Duration) *Resetter {
	if svc == nil {
		panic("entitlement: service is required")
	}
	if interval <= 0 {
		interval = DefaultResetInterval
	}
	return &Resetter{
		svc:      svc,
		interval: interval,
		logger:   svc.logger.With(logger.Component("monthly_reset")),
	}
}

// Run blocks until ctx is done. The first check happens immediately.
func (r *Resetter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.check(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("monthly resetter stopped")
			return ctx.Err()
		case <-ticker.C:
			r.check(ctx)
		}
	}
}

func (r *Resetter) check(ctx context.Context) {
	period := Period(r.svc.now())
	if period == r.lastPeriod {
		return
	}

	n, err := r.svc.ResetMonthlyLimits(ctx)
	if err != nil {
		// retried on the next tick
		r.logger.ErrorContext(ctx, "monthly reset failed", logger.Period(period), logger.Error(err))
		return
	}
	r.lastPeriod = period
	r.logger.InfoContext(ctx, "monthly reset complete", logger.Period(period), logger.Count(n))
}
