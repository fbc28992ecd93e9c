package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestErrorRateTrackerDefaults(t *testing.T) {
	tracker := NewErrorRateTracker(ErrorRateConfig{})
	if tracker.cfg.WindowDuration != time.Minute {
		t.Errorf("window = %v, want 1m", tracker.cfg.WindowDuration)
	}
	if tracker.cfg.BucketCount != 60 {
		t.Errorf("buckets = %d, want 60", tracker.cfg.BucketCount)
	}
}

func TestErrorRateTrackerCountsPerCategory(t *testing.T) {
	tracker := NewErrorRateTracker(DefaultErrorRateConfig())

	tracker.RecordError(ErrorCategoryDatabase)
	tracker.RecordError(ErrorCategoryDatabase)
	tracker.RecordError(ErrorCategoryHTTP)

	if got := tracker.Count(ErrorCategoryDatabase); got != 2 {
		t.Errorf("database count = %d, want 2", got)
	}
	if got := tracker.Count(ErrorCategoryHTTP); got != 1 {
		t.Errorf("http count = %d, want 1", got)
	}
	if got := tracker.Count(ErrorCategoryExternal); got != 0 {
		t.Errorf("untouched category count = %d, want 0", got)
	}
}

func TestErrorRateTrackerRate(t *testing.T) {
	tracker := NewErrorRateTracker(ErrorRateConfig{
		WindowDuration: 10 * time.Second,
		BucketCount:    10,
	})
	for i := 0; i < 5; i++ {
		tracker.RecordError(ErrorCategoryHTTP)
	}
	if got := tracker.Rate(ErrorCategoryHTTP); got != 0.5 {
		t.Errorf("rate = %v, want 0.5/s", got)
	}
}

func TestErrorRateTrackerWindowExpiry(t *testing.T) {
	tracker := NewErrorRateTracker(ErrorRateConfig{
		WindowDuration: 40 * time.Millisecond,
		BucketCount:    4,
	})
	tracker.RecordError(ErrorCategoryHTTP)
	if got := tracker.Count(ErrorCategoryHTTP); got != 1 {
		t.Fatalf("fresh count = %d, want 1", got)
	}

	time.Sleep(60 * time.Millisecond)
	if got := tracker.Count(ErrorCategoryHTTP); got != 0 {
		t.Errorf("count after window = %d, want 0", got)
	}
}

func TestErrorRateTrackerAlertCallback(t *testing.T) {
	var mu sync.Mutex
	var fired []ErrorCategory

	cfg := DefaultErrorRateConfig()
	cfg.AlertThreshold = 0
	cfg.AlertCallback = func(category ErrorCategory, rate float64) {
		mu.Lock()
		fired = append(fired, category)
		mu.Unlock()
	}
	tracker := NewErrorRateTracker(cfg)

	tracker.RecordError(ErrorCategoryExternal)

	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 1 || fired[0] != ErrorCategoryExternal {
		t.Errorf("alerts = %v, want one for external", fired)
	}
}

func TestErrorRateTrackerNoAlertUnderThreshold(t *testing.T) {
	fired := 0
	cfg := DefaultErrorRateConfig()
	cfg.AlertThreshold = 1000
	cfg.AlertCallback = func(ErrorCategory, float64) { fired++ }
	tracker := NewErrorRateTracker(cfg)

	tracker.RecordError(ErrorCategoryHTTP)
	if fired != 0 {
		t.Errorf("alerts fired = %d, want 0 under threshold", fired)
	}
}

func TestErrorPercentage(t *testing.T) {
	tracker := NewErrorRateTracker(DefaultErrorRateConfig())
	if got := tracker.ErrorPercentage(); got != 0 {
		t.Errorf("percentage with no traffic = %v, want 0", got)
	}

	for i := 0; i < 10; i++ {
		tracker.RecordRequest()
	}
	tracker.RecordError(ErrorCategoryHTTP)
	tracker.RecordError(ErrorCategoryHTTP)
	if got := tracker.ErrorPercentage(); got != 20 {
		t.Errorf("percentage = %v, want 20", got)
	}
}

func TestErrorRateTrackerReset(t *testing.T) {
	tracker := NewErrorRateTracker(DefaultErrorRateConfig())
	tracker.RecordRequest()
	tracker.RecordError(ErrorCategoryHTTP)

	tracker.Reset()

	if got := tracker.Count(ErrorCategoryHTTP); got != 0 {
		t.Errorf("count after reset = %d, want 0", got)
	}
	if got := tracker.ErrorPercentage(); got != 0 {
		t.Errorf("percentage after reset = %v, want 0", got)
	}
}

func TestErrorRateTrackerConcurrentRecords(t *testing.T) {
	tracker := NewErrorRateTracker(DefaultErrorRateConfig())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				tracker.RecordError(ErrorCategoryDatabase)
				tracker.RecordRequest()
			}
		}()
	}
	wg.Wait()

	if got := tracker.Count(ErrorCategoryDatabase); got != 400 {
		t.Errorf("count = %d, want 400", got)
	}
}
