// Package circuitbreaker guards the outbound provider calls (OpenAI,
// Twilio, Cal.com) so a failing upstream is cut off instead of hammered.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the breaker's position: closed lets calls through, open rejects
// them, half-open probes the upstream with a limited number of calls.
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
	}
	return "unknown"
}

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config tunes when the breaker trips and recovers.
type Config struct {
	FailureThreshold    int
	SuccessThreshold    int
	OpenTimeout         time.Duration
	HalfOpenMaxRequests int
}

// DefaultConfig is the tuning used by the provider clients unless they
// override it.
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold:    5,
		SuccessThreshold:    3,
		OpenTimeout:         30 * time.Second,
		HalfOpenMaxRequests: 3,
	}
}

// CircuitBreaker trips open after consecutive failures and recovers through
// a half-open probe phase. Safe for concurrent use.
type CircuitBreaker struct {
	name   string
	cfg    *Config
	logger *zap.Logger

	mu            sync.Mutex
	state         State
	failureStreak int
	successStreak int
	probes        int
	lastFailure   time.Time
	lastChange    time.Time

	requests  int64
	successes int64
	failures  int64
	rejected  int64
	lastErr   error
}

// New creates a breaker named after the upstream it protects. A nil config
// uses DefaultConfig.
func New(name string, cfg *Config, logger *zap.Logger) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &CircuitBreaker{
		name:       name,
		cfg:        cfg,
		logger:     logger,
		state:      StateClosed,
		lastChange: time.Now(),
	}
}

// Execute runs fn if the breaker admits the call, and records the outcome.
// Rejected calls return ErrCircuitOpen or ErrTooManyRequests without
// touching the upstream.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.observe(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requests++
	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) < cb.cfg.OpenTimeout {
			cb.rejected++
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.probes = 1
		cb.logger.Info("circuit breaker probing upstream", zap.String("name", cb.name))
	case StateHalfOpen:
		if cb.probes >= cb.cfg.HalfOpenMaxRequests {
			cb.rejected++
			return ErrTooManyRequests
		}
		cb.probes++
	}
	return nil
}

func (cb *CircuitBreaker) observe(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.successes++
		cb.successStreak++
		cb.failureStreak = 0
		if cb.state == StateHalfOpen && cb.successStreak >= cb.cfg.SuccessThreshold {
			cb.transition(StateClosed)
			cb.logger.Info("circuit breaker closed", zap.String("name", cb.name))
		}
		return
	}

	cb.failures++
	cb.failureStreak++
	cb.successStreak = 0
	cb.lastFailure = time.Now()
	cb.lastErr = err

	switch cb.state {
	case StateClosed:
		if cb.failureStreak >= cb.cfg.FailureThreshold {
			cb.transition(StateOpen)
			cb.logger.Warn("circuit breaker opened",
				zap.String("name", cb.name),
				zap.Error(err),
			)
		}
	case StateHalfOpen:
		// One failed probe sends the breaker straight back to open.
		cb.transition(StateOpen)
		cb.logger.Warn("circuit breaker reopened", zap.String("name", cb.name), zap.Error(err))
	}
}

// transition resets the streak counters. Callers hold cb.mu.
func (cb *CircuitBreaker) transition(s State) {
	cb.state = s
	cb.lastChange = time.Now()
	cb.failureStreak = 0
	cb.successStreak = 0
	cb.probes = 0
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// IsOpen reports whether calls are currently being rejected outright. The
// health endpoint degrades the service status on open breakers.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state == StateOpen
}

// Stats is a snapshot of the breaker's counters for diagnostics.
type Stats struct {
	Name            string    `json:"name"`
	State           string    `json:"state"`
	Requests        int64     `json:"requests"`
	Successes       int64     `json:"successes"`
	Failures        int64     `json:"failures"`
	Rejected        int64     `json:"rejected"`
	LastStateChange time.Time `json:"last_state_change"`
	LastError       string    `json:"last_error,omitempty"`
}

// Stats returns a snapshot of the breaker's counters.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := Stats{
		Name:            cb.name,
		State:           cb.state.String(),
		Requests:        cb.requests,
		Successes:       cb.successes,
		Failures:        cb.failures,
		Rejected:        cb.rejected,
		LastStateChange: cb.lastChange,
	}
	if cb.lastErr != nil {
		s.LastError = cb.lastErr.Error()
	}
	return s
}
