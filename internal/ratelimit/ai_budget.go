// Package ratelimit provides rate limiting for cost control on paid APIs.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AIBudget caps how many AI completions the bot may request, so a traffic
// spike or a flooding sender cannot run up the OpenAI bill.
type AIBudget struct {
	mu sync.RWMutex

	maxPerMinute  int
	maxPerHour    int
	maxPerDay     int
	maxConcurrent int

	minuteBucket  *tokenBucket
	hourBucket    *tokenBucket
	dayBucket     *tokenBucket
	currentActive int

	totalRequests   int64
	totalRejected   int64
	lastRejectedAt  time.Time
	rejectionReason string

	logger *zap.Logger
}

// AIBudgetConfig holds the budget limits.
type AIBudgetConfig struct {
	MaxPerMinute  int
	MaxPerHour    int
	MaxPerDay     int
	MaxConcurrent int
}

// DefaultAIBudgetConfig returns limits sized for a single dealership's
// WhatsApp traffic.
func DefaultAIBudgetConfig() *AIBudgetConfig {
	return &AIBudgetConfig{
		MaxPerMinute:  30,
		MaxPerHour:    400,
		MaxPerDay:     2000,
		MaxConcurrent: 10,
	}
}

// NewAIBudget creates an AI call budget.
func NewAIBudget(cfg *AIBudgetConfig, logger *zap.Logger) *AIBudget {
	if cfg == nil {
		cfg = DefaultAIBudgetConfig()
	}

	now := time.Now()
	return &AIBudget{
		maxPerMinute:  cfg.MaxPerMinute,
		maxPerHour:    cfg.MaxPerHour,
		maxPerDay:     cfg.MaxPerDay,
		maxConcurrent: cfg.MaxConcurrent,
		minuteBucket:  newTokenBucket(cfg.MaxPerMinute, time.Minute, now),
		hourBucket:    newTokenBucket(cfg.MaxPerHour, time.Hour, now),
		dayBucket:     newTokenBucket(cfg.MaxPerDay, 24*time.Hour, now),
		logger:        logger,
	}
}

// Budget errors.
var (
	ErrMinuteBudgetExceeded     = errors.New("minute AI budget exceeded")
	ErrHourBudgetExceeded       = errors.New("hour AI budget exceeded")
	ErrDayBudgetExceeded        = errors.New("day AI budget exceeded")
	ErrConcurrentBudgetExceeded = errors.New("concurrent AI call limit exceeded")
)

// Acquire reserves one AI call against the budget. Returns an error when
// any window is exhausted; the caller answers with the fallback reply.
func (b *AIBudget) Acquire(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalRequests++
	now := time.Now()

	if b.currentActive >= b.maxConcurrent {
		b.reject("concurrent limit", now)
		return ErrConcurrentBudgetExceeded
	}

	if !b.minuteBucket.tryAcquire(now) {
		b.reject("minute limit", now)
		return ErrMinuteBudgetExceeded
	}

	if !b.hourBucket.tryAcquire(now) {
		b.minuteBucket.release()
		b.reject("hour limit", now)
		return ErrHourBudgetExceeded
	}

	if !b.dayBucket.tryAcquire(now) {
		b.minuteBucket.release()
		b.hourBucket.release()
		b.reject("day limit", now)
		return ErrDayBudgetExceeded
	}

	b.currentActive++
	return nil
}

// Release returns the concurrency slot after the AI call completes.
func (b *AIBudget) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.currentActive > 0 {
		b.currentActive--
	}
}

func (b *AIBudget) reject(reason string, t time.Time) {
	b.totalRejected++
	b.lastRejectedAt = t
	b.rejectionReason = reason

	b.logger.Warn("AI budget exceeded",
		zap.String("reason", reason),
		zap.Int64("total_rejected", b.totalRejected),
	)
}

// AIBudgetStats is a snapshot of the budget state.
type AIBudgetStats struct {
	CurrentActive       int       `json:"current_active"`
	MaxConcurrent       int       `json:"max_concurrent"`
	MinuteRemaining     int       `json:"minute_remaining"`
	HourRemaining       int       `json:"hour_remaining"`
	DayRemaining        int       `json:"day_remaining"`
	TotalRequests       int64     `json:"total_requests"`
	TotalRejected       int64     `json:"total_rejected"`
	LastRejectedAt      time.Time `json:"last_rejected_at,omitempty"`
	LastRejectionReason string    `json:"last_rejection_reason,omitempty"`
}

// Stats returns current budget statistics.
func (b *AIBudget) Stats() AIBudgetStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return AIBudgetStats{
		CurrentActive:       b.currentActive,
		MaxConcurrent:       b.maxConcurrent,
		MinuteRemaining:     b.minuteBucket.remaining(),
		HourRemaining:       b.hourBucket.remaining(),
		DayRemaining:        b.dayBucket.remaining(),
		TotalRequests:       b.totalRequests,
		TotalRejected:       b.totalRejected,
		LastRejectedAt:      b.lastRejectedAt,
		LastRejectionReason: b.rejectionReason,
	}
}

// tokenBucket is a fixed-window counter that refills when the window rolls
// over.
type tokenBucket struct {
	max       int
	period    time.Duration
	tokens    int
	lastReset time.Time
}

func newTokenBucket(maxTokens int, period time.Duration, now time.Time) *tokenBucket {
	return &tokenBucket{
		max:       maxTokens,
		period:    period,
		tokens:    maxTokens,
		lastReset: now,
	}
}

func (b *tokenBucket) tryAcquire(now time.Time) bool {
	b.refill(now)
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

func (b *tokenBucket) release() {
	if b.tokens < b.max {
		b.tokens++
	}
}

func (b *tokenBucket) remaining() int {
	return b.tokens
}

func (b *tokenBucket) refill(now time.Time) {
	if now.Sub(b.lastReset) >= b.period {
		b.tokens = b.max
		b.lastReset = now
	}
}
