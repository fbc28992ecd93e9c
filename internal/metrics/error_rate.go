package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// ErrorCategory labels where a tracked error came from.
type ErrorCategory string

const (
	ErrorCategoryDatabase ErrorCategory = "database"
	ErrorCategoryHTTP     ErrorCategory = "http"
	ErrorCategoryExternal ErrorCategory = "external"
	ErrorCategoryInternal ErrorCategory = "internal"
)

// ErrorRateConfig tunes the error rate tracker.
type ErrorRateConfig struct {
	// WindowDuration is the span the rate is computed over.
	WindowDuration time.Duration

	// BucketCount splits the window; more buckets, finer expiry.
	BucketCount int

	// AlertThreshold is the errors-per-second rate that fires the
	// callback.
	AlertThreshold float64

	// AlertCallback runs synchronously inside RecordError when the rate
	// for a category crosses the threshold.
	AlertCallback func(category ErrorCategory, rate float64)
}

// DefaultErrorRateConfig is a one minute window in sixty buckets with a
// 10/s alert threshold.
func DefaultErrorRateConfig() ErrorRateConfig {
	return ErrorRateConfig{
		WindowDuration: time.Minute,
		BucketCount:    60,
		AlertThreshold: 10.0,
	}
}

// ErrorRateTracker counts errors per category over a sliding time window
// and fires an alert callback when a category's rate crosses the threshold.
type ErrorRateTracker struct {
	cfg ErrorRateConfig

	mu      sync.Mutex
	windows map[ErrorCategory]*bucketRing

	errorsTotal   atomic.Int64
	requestsTotal atomic.Int64
}

// NewErrorRateTracker creates a tracker; zero config fields get defaults.
func NewErrorRateTracker(cfg ErrorRateConfig) *ErrorRateTracker {
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = time.Minute
	}
	if cfg.BucketCount <= 0 {
		cfg.BucketCount = 60
	}
	return &ErrorRateTracker{
		cfg:     cfg,
		windows: make(map[ErrorCategory]*bucketRing),
	}
}

// RecordError counts one error against the category and checks the alert
// threshold.
func (t *ErrorRateTracker) RecordError(category ErrorCategory) {
	t.errorsTotal.Add(1)
	t.window(category).add(time.Now())

	if t.cfg.AlertCallback != nil {
		if rate := t.Rate(category); rate > t.cfg.AlertThreshold {
			t.cfg.AlertCallback(category, rate)
		}
	}
}

// RecordRequest counts one request, for the error percentage.
func (t *ErrorRateTracker) RecordRequest() {
	t.requestsTotal.Add(1)
}

// Count returns the category's error count inside the current window.
func (t *ErrorRateTracker) Count(category ErrorCategory) int64 {
	t.mu.Lock()
	ring, ok := t.windows[category]
	t.mu.Unlock()
	if !ok {
		return 0
	}
	return ring.total(time.Now())
}

// Rate returns the category's errors per second over the window.
func (t *ErrorRateTracker) Rate(category ErrorCategory) float64 {
	return float64(t.Count(category)) / t.cfg.WindowDuration.Seconds()
}

// ErrorPercentage is the share of recorded requests that errored, since
// startup.
func (t *ErrorRateTracker) ErrorPercentage() float64 {
	requests := t.requestsTotal.Load()
	if requests == 0 {
		return 0
	}
	return float64(t.errorsTotal.Load()) / float64(requests) * 100
}

// Reset drops all counters.
func (t *ErrorRateTracker) Reset() {
	t.mu.Lock()
	t.windows = make(map[ErrorCategory]*bucketRing)
	t.mu.Unlock()
	t.errorsTotal.Store(0)
	t.requestsTotal.Store(0)
}

func (t *ErrorRateTracker) window(category ErrorCategory) *bucketRing {
	t.mu.Lock()
	defer t.mu.Unlock()
	ring, ok := t.windows[category]
	if !ok {
		ring = newBucketRing(t.cfg.WindowDuration, t.cfg.BucketCount)
		t.windows[category] = ring
	}
	return ring
}

// bucketRing is a ring of time buckets. Each slot remembers the bucket
// epoch it was last written in, so stale slots are ignored on read instead
// of being rotated out on a timer.
type bucketRing struct {
	mu        sync.Mutex
	span      time.Duration
	bucketDur time.Duration
	epochs    []int64
	counts    []int64
}

func newBucketRing(span time.Duration, buckets int) *bucketRing {
	return &bucketRing{
		span:      span,
		bucketDur: span / time.Duration(buckets),
		epochs:    make([]int64, buckets),
		counts:    make([]int64, buckets),
	}
}

func (r *bucketRing) add(now time.Time) {
	epoch := now.UnixNano() / int64(r.bucketDur)
	i := int(epoch % int64(len(r.counts)))

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.epochs[i] != epoch {
		r.epochs[i] = epoch
		r.counts[i] = 0
	}
	r.counts[i]++
}

func (r *bucketRing) total(now time.Time) int64 {
	epoch := now.UnixNano() / int64(r.bucketDur)
	oldest := epoch - int64(len(r.counts)) + 1

	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for i, e := range r.epochs {
		if e >= oldest {
			sum += r.counts[i]
		}
	}
	return sum
}
