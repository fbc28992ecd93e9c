package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BackoffConfig configures exponential backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxRetries   int
	// Jitter adds randomness to delays, 0.1 = +/- 10%.
	Jitter float64
	// RetryableStatusCodes are the HTTP statuses that trigger a retry.
	RetryableStatusCodes []int
	// RespectRetryAfter honors the Retry-After duration when the error
	// carries one.
	RespectRetryAfter bool
}

// DefaultBackoffConfig returns sensible defaults for API requests.
func DefaultBackoffConfig() *BackoffConfig {
	return &BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		MaxRetries:   3,
		Jitter:       0.2,
		RetryableStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
			http.StatusBadGateway,
			http.StatusRequestTimeout,
		},
		RespectRetryAfter: true,
	}
}

// Backoff retries operations with exponential backoff.
type Backoff struct {
	config *BackoffConfig
	logger *zap.Logger

	mu    sync.RWMutex
	stats BackoffStats
}

// BackoffStats tracks retry statistics.
type BackoffStats struct {
	TotalAttempts     int64         `json:"total_attempts"`
	TotalRetries      int64         `json:"total_retries"`
	SuccessfulRetries int64         `json:"successful_retries"`
	ExhaustedRetries  int64         `json:"exhausted_retries"`
	TotalDelayTime    time.Duration `json:"total_delay_time"`
}

// NewBackoff creates a Backoff instance.
func NewBackoff(config *BackoffConfig, logger *zap.Logger) *Backoff {
	if config == nil {
		config = DefaultBackoffConfig()
	}
	return &Backoff{
		config: config,
		logger: logger,
	}
}

// Backoff errors.
var (
	ErrMaxRetriesExhausted = errors.New("maximum retries exhausted")
	ErrNotRetryable        = errors.New("error is not retryable")
)

// RetryableError carries the HTTP status and optional Retry-After duration
// of a failed call so the backoff can decide whether and when to retry.
type RetryableError struct {
	Err        error
	StatusCode int
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %v", e.StatusCode, e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Operation is a function that can be retried.
type Operation func(ctx context.Context) error

// Execute runs the operation, retrying transient failures with exponential
// backoff until it succeeds, turns permanent, or retries run out.
func (b *Backoff) Execute(ctx context.Context, op Operation) error {
	for attempt := 0; ; attempt++ {
		b.mu.Lock()
		b.stats.TotalAttempts++
		b.mu.Unlock()

		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			if attempt > 0 {
				b.mu.Lock()
				b.stats.SuccessfulRetries++
				b.mu.Unlock()

				b.logger.Info("operation succeeded after retry",
					zap.Int("attempts", attempt+1),
				)
			}
			return nil
		}

		if !b.shouldRetry(err, attempt) {
			b.mu.Lock()
			b.stats.ExhaustedRetries++
			b.mu.Unlock()

			if attempt >= b.config.MaxRetries && b.config.MaxRetries > 0 {
				return fmt.Errorf("%w after %d attempts: %v", ErrMaxRetriesExhausted, attempt+1, err)
			}
			return fmt.Errorf("%w: %v", ErrNotRetryable, err)
		}

		delay := b.calculateDelay(err, attempt)

		b.mu.Lock()
		b.stats.TotalRetries++
		b.stats.TotalDelayTime += delay
		b.mu.Unlock()

		b.logger.Warn("operation failed, retrying with backoff",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (b *Backoff) shouldRetry(err error, attempt int) bool {
	if b.config.MaxRetries > 0 && attempt >= b.config.MaxRetries {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Only errors that declare a retryable HTTP status are retried;
	// anything else (auth failures, bad payloads) is permanent.
	var retryErr *RetryableError
	if errors.As(err, &retryErr) {
		for _, code := range b.config.RetryableStatusCodes {
			if retryErr.StatusCode == code {
				return true
			}
		}
	}
	return false
}

func (b *Backoff) calculateDelay(err error, attempt int) time.Duration {
	var retryErr *RetryableError
	if errors.As(err, &retryErr) && b.config.RespectRetryAfter && retryErr.RetryAfter > 0 {
		if retryErr.RetryAfter > b.config.MaxDelay {
			return b.config.MaxDelay
		}
		return retryErr.RetryAfter
	}

	delay := float64(b.config.InitialDelay) * math.Pow(b.config.Multiplier, float64(attempt))

	if b.config.Jitter > 0 {
		jitterRange := delay * b.config.Jitter
		delay += (rand.Float64()*2 - 1) * jitterRange
	}

	if delay > float64(b.config.MaxDelay) {
		delay = float64(b.config.MaxDelay)
	}
	return time.Duration(delay)
}

// Stats returns current backoff statistics.
func (b *Backoff) Stats() BackoffStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats
}
