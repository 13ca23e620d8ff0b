package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/oddsforge/propline/internal/domain"
)

// Client defines the interface for upstream prop providers. Clients are
// stateless fetchers; they surface structured errors and never fabricate
// data on failure. Fallback to cached data is the orchestrator's decision.
type Client interface {
	// Name returns the provider identifier ("prizepicks", "draftkings")
	Name() string

	// FetchScheduledGames returns only games with status SCHEDULED
	FetchScheduledGames(ctx context.Context, sport domain.Sport) ([]domain.Game, error)

	// FetchProps returns raw provider records for the given games and market
	FetchProps(ctx context.Context, sport domain.Sport, gameIDs []string, market domain.MarketType) ([]domain.RawProp, error)

	// Health reports operational status for the health endpoint
	Health() Health
}

// Health indicates provider operational status
type Health struct {
	Provider     string       `json:"provider"`
	Healthy      bool         `json:"healthy"`
	CircuitState string       `json:"circuit_state"`
	LastSuccess  time.Time    `json:"last_success,omitempty"`
	LastFailure  time.Time    `json:"last_failure,omitempty"`
	Breaker      BreakerStats `json:"breaker"`
}

// Config holds per-provider client configuration
type Config struct {
	Name              string        `yaml:"name"`
	BaseURL           string        `yaml:"base_url"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Burst             int           `yaml:"burst"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	Circuit           BreakerConfig `yaml:"circuit"`
}

// Error codes surfaced by provider clients
const (
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeCircuitOpen         = "CIRCUIT_OPEN"
	ErrCodeInvalidResponse     = "INVALID_RESPONSE"
)

// Error represents a provider-specific failure with enough structure for
// the orchestrator to decide between retry, fallback, and fast-fail.
type Error struct {
	Provider    string        `json:"provider"`
	Code        string        `json:"code"`
	Message     string        `json:"message"`
	HTTPStatus  int           `json:"http_status,omitempty"`
	RateLimited bool          `json:"rate_limited"`
	Temporary   bool          `json:"temporary"`
	RetryAfter  time.Duration `json:"-"`
	Cause       error         `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s (%s)", e.Provider, e.Message, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsTemporary reports whether err is a transient provider failure
func IsTemporary(err error) bool {
	if pe, ok := err.(*Error); ok {
		return pe.Temporary
	}
	return false
}

// IsRateLimited reports whether err is an upstream 429
func IsRateLimited(err error) bool {
	if pe, ok := err.(*Error); ok {
		return pe.RateLimited
	}
	return false
}

// IsCircuitOpen reports whether err is a fast-fail from an open breaker
func IsCircuitOpen(err error) bool {
	if pe, ok := err.(*Error); ok {
		return pe.Code == ErrCodeCircuitOpen
	}
	return false
}
