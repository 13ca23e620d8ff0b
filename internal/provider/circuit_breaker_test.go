package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream boom")

func failingCall() error { return errUpstream }
func okCall() error      { return nil }

func rateLimitedCall() error {
	return &Error{Provider: "test", Code: ErrCodeRateLimited, RateLimited: true, Temporary: true}
}

func newTestBreaker() *CircuitBreaker {
	return NewCircuitBreaker("test", BreakerConfig{
		ConsecutiveFailures: 5,
		WindowSize:          20,
		FailureRate:         0.5,
		Cooldown:            30 * time.Second,
		MaxCooldown:         5 * time.Minute,
	})
}

func TestBreaker_TripsOnConsecutiveFailures(t *testing.T) {
	cb := newTestBreaker()

	for i := 0; i < 4; i++ {
		cb.Call(failingCall)
		assert.Equal(t, StateClosed, cb.GetState())
	}

	cb.Call(failingCall)
	assert.Equal(t, StateOpen, cb.GetState())

	err := cb.Call(okCall)
	assert.True(t, IsCircuitOpen(err), "open breaker rejects without calling")
}

func TestBreaker_SuccessResetsConsecutiveCount(t *testing.T) {
	cb := newTestBreaker()

	for i := 0; i < 4; i++ {
		cb.Call(failingCall)
	}
	require.NoError(t, cb.Call(okCall))

	for i := 0; i < 4; i++ {
		cb.Call(failingCall)
	}
	assert.Equal(t, StateClosed, cb.GetState(), "streak restarted after a success")
}

func TestBreaker_TripsOnWindowFailureRate(t *testing.T) {
	cb := newTestBreaker()

	// Alternate so the consecutive threshold never fires, but push the
	// window rate past 50%: pattern of 2 failures then 1 success
	for i := 0; i < 6; i++ {
		cb.Call(failingCall)
		cb.Call(failingCall)
		cb.Call(okCall)
	}
	// 18 calls so far, 12 failures; two more failures fill the window at 14/20
	cb.Call(failingCall)
	cb.Call(failingCall)

	assert.Equal(t, StateOpen, cb.GetState())
}

func TestBreaker_RateLimitedIsNeutral(t *testing.T) {
	cb := newTestBreaker()

	for i := 0; i < 4; i++ {
		cb.Call(failingCall)
	}
	// 429s must not extend the failure streak...
	for i := 0; i < 10; i++ {
		cb.Call(rateLimitedCall)
	}
	assert.Equal(t, StateClosed, cb.GetState())

	// ...and must not reset it either
	cb.Call(failingCall)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestBreaker_ContextErrorsAreNeutral(t *testing.T) {
	cb := newTestBreaker()

	for i := 0; i < 4; i++ {
		cb.Call(failingCall)
	}
	// A caller giving up says nothing about upstream health; cancellations
	// must not extend the failure streak, raw or wrapped...
	for i := 0; i < 10; i++ {
		cb.Call(func() error { return context.Canceled })
		cb.Call(func() error { return context.DeadlineExceeded })
		cb.Call(func() error {
			return &Error{
				Provider:  "test",
				Code:      ErrCodeUpstreamUnavailable,
				Message:   "request aborted",
				Temporary: true,
				Cause:     context.Canceled,
			}
		})
	}
	assert.Equal(t, StateClosed, cb.GetState())

	// ...and must not reset it either
	cb.Call(failingCall)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestBreaker_ContextErrorReleasesHalfOpenProbe(t *testing.T) {
	cb := newTestBreaker()
	for i := 0; i < 5; i++ {
		cb.Call(failingCall)
	}

	cb.mu.Lock()
	cb.openedAt = time.Now().Add(-time.Minute)
	cb.mu.Unlock()

	// A cancelled probe neither closes nor re-opens; the next caller gets
	// to probe again
	cb.Call(func() error { return context.Canceled })
	assert.Equal(t, StateHalfOpen, cb.GetState())

	require.NoError(t, cb.Call(okCall))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestBreaker_HalfOpenProbeSuccess(t *testing.T) {
	cb := newTestBreaker()
	for i := 0; i < 5; i++ {
		cb.Call(failingCall)
	}
	require.Equal(t, StateOpen, cb.GetState())

	// Expire the cooldown
	cb.mu.Lock()
	cb.openedAt = time.Now().Add(-time.Minute)
	cb.mu.Unlock()

	require.NoError(t, cb.Call(okCall))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestBreaker_FailedProbeDoublesCooldown(t *testing.T) {
	cb := newTestBreaker()
	for i := 0; i < 5; i++ {
		cb.Call(failingCall)
	}

	cb.mu.Lock()
	cb.openedAt = time.Now().Add(-time.Minute)
	cb.mu.Unlock()

	cb.Call(failingCall)
	assert.Equal(t, StateOpen, cb.GetState())

	cb.mu.Lock()
	assert.Equal(t, 60*time.Second, cb.cooldown)
	cb.mu.Unlock()

	// Repeated failed probes cap at the max cooldown
	for i := 0; i < 5; i++ {
		cb.mu.Lock()
		cb.openedAt = time.Now().Add(-10 * time.Minute)
		cb.mu.Unlock()
		cb.Call(failingCall)
	}
	cb.mu.Lock()
	assert.Equal(t, 5*time.Minute, cb.cooldown)
	cb.mu.Unlock()
}

func TestBreaker_HalfOpenAdmitsSingleProbe(t *testing.T) {
	cb := newTestBreaker()
	for i := 0; i < 5; i++ {
		cb.Call(failingCall)
	}

	cb.mu.Lock()
	cb.openedAt = time.Now().Add(-time.Minute)
	cb.mu.Unlock()

	// First admit transitions to half-open with the probe in flight
	require.NoError(t, cb.admit())
	assert.Equal(t, StateHalfOpen, cb.GetState())

	// A second caller is rejected until the probe resolves
	err := cb.admit()
	assert.True(t, IsCircuitOpen(err))
}

func TestBreaker_CloseResetsCooldown(t *testing.T) {
	cb := newTestBreaker()
	for i := 0; i < 5; i++ {
		cb.Call(failingCall)
	}
	cb.mu.Lock()
	cb.openedAt = time.Now().Add(-time.Minute)
	cb.mu.Unlock()
	cb.Call(failingCall) // cooldown now 60s

	cb.mu.Lock()
	cb.openedAt = time.Now().Add(-10 * time.Minute)
	cb.mu.Unlock()
	require.NoError(t, cb.Call(okCall))

	cb.mu.Lock()
	assert.Equal(t, 30*time.Second, cb.cooldown, "recovery restores the base cooldown")
	cb.mu.Unlock()
}
