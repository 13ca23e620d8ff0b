package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State represents the current state of a circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig defines circuit breaker behavior
type BreakerConfig struct {
	ConsecutiveFailures int           `yaml:"threshold"`    // trip on N consecutive failures
	WindowSize          int           `yaml:"window_size"`  // rolling window for failure rate
	FailureRate         float64       `yaml:"failure_rate"` // trip when rate exceeded over a full window
	Cooldown            time.Duration `yaml:"cooldown"`     // initial open duration
	MaxCooldown         time.Duration `yaml:"max_cooldown"` // cap for exponential cooldown
}

// DefaultBreakerConfig returns the stock breaker settings
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		ConsecutiveFailures: 5,
		WindowSize:          20,
		FailureRate:         0.5,
		Cooldown:            30 * time.Second,
		MaxCooldown:         5 * time.Minute,
	}
}

// CircuitBreaker isolates a failing provider. Transitions:
// CLOSED -> OPEN on consecutive failures or excessive failure rate over a
// rolling window; OPEN -> HALF_OPEN after the cooldown, admitting a single
// probe; probe success closes the circuit, probe failure re-opens it with
// the cooldown doubled up to the cap.
type CircuitBreaker struct {
	name   string
	config BreakerConfig

	mu            sync.Mutex
	state         State
	consecutive   int
	window        []bool // true = failure
	windowPos     int
	windowFilled  bool
	cooldown      time.Duration
	openedAt      time.Time
	probeInFlight bool

	requestCount int64
	failureCount int64
	lastFailure  time.Time
	lastSuccess  time.Time
}

// NewCircuitBreaker creates a circuit breaker with defaults filled in
func NewCircuitBreaker(name string, config BreakerConfig) *CircuitBreaker {
	if config.ConsecutiveFailures <= 0 {
		config.ConsecutiveFailures = 5
	}
	if config.WindowSize <= 0 {
		config.WindowSize = 20
	}
	if config.FailureRate <= 0 {
		config.FailureRate = 0.5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}
	if config.MaxCooldown <= 0 {
		config.MaxCooldown = 5 * time.Minute
	}

	return &CircuitBreaker{
		name:     name,
		config:   config,
		state:    StateClosed,
		window:   make([]bool, config.WindowSize),
		cooldown: config.Cooldown,
	}
}

// Call executes fn with circuit breaker protection. Rate-limited and
// context errors are recorded as neutral: they neither trip nor reset the
// breaker, since neither reflects upstream health.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn()
	cb.record(err)
	return err
}

// admit decides whether a call may proceed in the current state
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(cb.openedAt) < cb.cooldown {
			return cb.openError()
		}
		cb.state = StateHalfOpen
		cb.probeInFlight = true
		return nil
	case StateHalfOpen:
		if cb.probeInFlight {
			return cb.openError()
		}
		cb.probeInFlight = true
		return nil
	default:
		return cb.openError()
	}
}

func (cb *CircuitBreaker) openError() *Error {
	return &Error{
		Provider:  cb.name,
		Code:      ErrCodeCircuitOpen,
		Message:   fmt.Sprintf("circuit breaker is %s", cb.state),
		Temporary: true,
	}
}

// record updates breaker state from a call outcome
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requestCount++

	// Rate limits reflect our own request volume, and context errors mean
	// the caller gave up; neither says anything about upstream health, so
	// both are neutral: they neither trip nor reset the breaker.
	if err != nil && (IsRateLimited(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		if cb.state == StateHalfOpen {
			cb.probeInFlight = false
		}
		return
	}

	if err != nil {
		cb.failureCount++
		cb.consecutive++
		cb.lastFailure = time.Now()
		cb.pushWindow(true)

		switch cb.state {
		case StateHalfOpen:
			cb.probeInFlight = false
			cb.reopen()
		case StateClosed:
			if cb.shouldTrip() {
				cb.open()
			}
		}
		return
	}

	cb.consecutive = 0
	cb.lastSuccess = time.Now()
	cb.pushWindow(false)

	if cb.state == StateHalfOpen {
		cb.probeInFlight = false
		cb.close()
	}
}

func (cb *CircuitBreaker) pushWindow(failed bool) {
	cb.window[cb.windowPos] = failed
	cb.windowPos = (cb.windowPos + 1) % len(cb.window)
	if cb.windowPos == 0 {
		cb.windowFilled = true
	}
}

// shouldTrip checks both trip conditions: consecutive failures and the
// rolling-window failure rate (rate applies only once the window is full)
func (cb *CircuitBreaker) shouldTrip() bool {
	if cb.consecutive >= cb.config.ConsecutiveFailures {
		return true
	}
	if !cb.windowFilled {
		return false
	}
	failures := 0
	for _, failed := range cb.window {
		if failed {
			failures++
		}
	}
	return float64(failures)/float64(len(cb.window)) > cb.config.FailureRate
}

func (cb *CircuitBreaker) open() {
	cb.state = StateOpen
	cb.openedAt = time.Now()
	cb.cooldown = cb.config.Cooldown
}

// reopen doubles the cooldown after a failed half-open probe, capped
func (cb *CircuitBreaker) reopen() {
	cb.state = StateOpen
	cb.openedAt = time.Now()
	cb.cooldown *= 2
	if cb.cooldown > cb.config.MaxCooldown {
		cb.cooldown = cb.config.MaxCooldown
	}
}

func (cb *CircuitBreaker) close() {
	cb.state = StateClosed
	cb.consecutive = 0
	cb.cooldown = cb.config.Cooldown
	cb.window = make([]bool, cb.config.WindowSize)
	cb.windowPos = 0
	cb.windowFilled = false
}

// GetState returns the current breaker state
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// BreakerStats provides circuit breaker statistics for health reporting
type BreakerStats struct {
	Name         string    `json:"name"`
	State        string    `json:"state"`
	RequestCount int64     `json:"request_count"`
	FailureCount int64     `json:"failure_count"`
	Consecutive  int       `json:"consecutive_failures"`
	Cooldown     string    `json:"cooldown"`
	LastFailure  time.Time `json:"last_failure,omitempty"`
	LastSuccess  time.Time `json:"last_success,omitempty"`
}

// Stats returns a snapshot of breaker counters
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return BreakerStats{
		Name:         cb.name,
		State:        cb.state.String(),
		RequestCount: cb.requestCount,
		FailureCount: cb.failureCount,
		Consecutive:  cb.consecutive,
		Cooldown:     cb.cooldown.String(),
		LastFailure:  cb.lastFailure,
		LastSuccess:  cb.lastSuccess,
	}
}

// Reset manually restores the breaker to closed
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.close()
}
