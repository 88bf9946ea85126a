package entitlement

import (
	"log/slog"
	"time"
)

const (
	DefaultFreeQuota       int64 = 5
	DefaultTrialDuration         = 7 * 24 * time.Hour
	DefaultProviderTimeout       = 5 * time.Second
	DefaultResetBatchSize        = 200
)

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithFreeQuota sets the monthly generation quota of free users.
func WithFreeQuota(n int64) ServiceOption {
	return func(s *Service) {
		if n >= 0 {
			s.freeQuota = n
		}
	}
}

func WithTrialDuration(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.trialDuration = d
		}
	}
}

// WithPrices registers the provider price ids of the paid plans.
func WithPrices(monthly, annual string) ServiceOption {
	return func(s *Service) {
		s.monthlyPrice = monthly
		s.annualPrice = annual
	}
}

// WithProviderTimeout bounds every billing provider call.
func WithProviderTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.providerTimeout = d
		}
	}
}

func WithResetBatchSize(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.resetBatch = n
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithNotifier enables lifecycle emails.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) {
		s.notifier = n
	}
}
