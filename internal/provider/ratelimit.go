package provider

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a per-provider requests-per-minute budget using a
// token bucket. Upstream prop APIs publish limits in requests/minute, so
// configuration stays in those units.
type RateLimiter struct {
	limiter *rate.Limiter
	rpm     int
}

// NewRateLimiter creates a limiter for the given requests/minute and burst
func NewRateLimiter(requestsPerMinute, burst int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	if burst <= 0 {
		burst = requestsPerMinute / 10
		if burst < 1 {
			burst = 1
		}
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst),
		rpm:     requestsPerMinute,
	}
}

// Wait blocks until a token is available or the context is cancelled
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.limiter.Wait(ctx)
}

// Allow reports whether a request may proceed without waiting
func (rl *RateLimiter) Allow() bool {
	return rl.limiter.Allow()
}

// Stats returns a snapshot for health reporting
func (rl *RateLimiter) Stats() RateLimiterStats {
	return RateLimiterStats{
		RequestsPerMinute: rl.rpm,
		Burst:             rl.limiter.Burst(),
		TokensAvailable:   rl.limiter.Tokens(),
	}
}

// RateLimiterStats provides rate limiter statistics
type RateLimiterStats struct {
	RequestsPerMinute int     `json:"requests_per_minute"`
	Burst             int     `json:"burst"`
	TokensAvailable   float64 `json:"tokens_available"`
}

// RetryPolicy defines exponential backoff with jitter for transient errors
type RetryPolicy struct {
	Base        time.Duration `yaml:"base"`
	Factor      float64       `yaml:"factor"`
	Cap         time.Duration `yaml:"cap"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// DefaultRetryPolicy returns the stock backoff settings
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Base:        100 * time.Millisecond,
		Factor:      2.0,
		Cap:         5 * time.Second,
		MaxAttempts: 3,
	}
}
