package provider

import (
	"context"
	"math/rand"
	"time"
)

// Retry runs fn with exponential backoff and jitter, retrying only on
// transient errors (timeouts, 5xx, rate limits). A Retry-After hint from a
// 429 overrides the computed backoff. Permanent errors return immediately.
func Retry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	var err error
	delay := policy.Base

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsTemporary(err) {
			return err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		wait := jitter(delay)
		if pe, ok := err.(*Error); ok && pe.RetryAfter > 0 {
			wait = pe.RetryAfter
		}
		if wait > policy.Cap {
			wait = policy.Cap
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * policy.Factor)
		if delay > policy.Cap {
			delay = policy.Cap
		}
	}

	return err
}

// jitter spreads retries across [delay/2, delay) to avoid thundering herds
func jitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}
	half := delay / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
