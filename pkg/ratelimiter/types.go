package ratelimiter

import "time"

// Result is the outcome of a single Allow call.
type Result struct {
	Limit     int       // bucket capacity
	Remaining int       // tokens left; negative when the request was denied
	ResetAt   time.Time // next refill
}

// Allowed reports whether the tokens were granted.
func (r *Result) Allowed() bool {
	return r.Remaining >= 0
}

// RetryAfter is zero for granted requests.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed() {
		return 0
	}
	return max(time.Until(r.ResetAt), 0)
}

// Config defines the token bucket. Env tags let callers load it with
// config.Load; the prefix is fixed to job creation since that is the only
// limited route group.
type Config struct {
	Capacity       int           `env:"RATE_LIMIT_JOBS_CAPACITY" envDefault:"20"`
	RefillRate     int           `env:"RATE_LIMIT_JOBS_REFILL" envDefault:"5"`
	RefillInterval time.Duration `env:"RATE_LIMIT_JOBS_INTERVAL" envDefault:"1m"`
}

func (c Config) validate() error {
	if c.Capacity <= 0 {
		return errInvalidConfig("capacity must be positive, got %d", c.Capacity)
	}
	if c.RefillRate <= 0 {
		return errInvalidConfig("refill rate must be positive, got %d", c.RefillRate)
	}
	if c.RefillInterval <= 0 {
		return errInvalidConfig("refill interval must be positive, got %v", c.RefillInterval)
	}
	return nil
}

// idleTTL is how long an untouched bucket takes to refill completely. After
// that its state is indistinguishable from a fresh bucket and can be dropped.
func (c Config) idleTTL() time.Duration {
	intervals := (c.Capacity + c.RefillRate - 1) / c.RefillRate
	return time.Duration(intervals+1) * c.RefillInterval
}
