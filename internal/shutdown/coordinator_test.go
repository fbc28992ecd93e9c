package shutdown

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestShutdownRunsPhasesInOrder(t *testing.T) {
	coord := NewCoordinator(&Config{Timeout: time.Second}, zap.NewNop())

	var mu sync.Mutex
	var order []string
	record := func(name string) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	coord.RegisterFunc(PhaseCleanup, "pool", record("pool"))
	coord.RegisterFunc(PhaseDrain, "http", record("http"))
	coord.RegisterFunc(PhaseShutdown, "scheduler", record("scheduler"))

	if err := coord.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	want := []string{"http", "scheduler", "pool"}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestShutdownPhaseStepsRunConcurrently(t *testing.T) {
	coord := NewCoordinator(&Config{Timeout: time.Second}, zap.NewNop())

	var running int32
	var peak int32
	slowStep := func(ctx context.Context) error {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	}
	coord.RegisterFunc(PhaseShutdown, "a", slowStep)
	coord.RegisterFunc(PhaseShutdown, "b", slowStep)
	coord.RegisterFunc(PhaseShutdown, "c", slowStep)

	if err := coord.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if atomic.LoadInt32(&peak) < 2 {
		t.Errorf("peak concurrency = %d, want steps overlapping", peak)
	}
}

func TestShutdownCollectsStepErrors(t *testing.T) {
	coord := NewCoordinator(&Config{Timeout: time.Second}, zap.NewNop())

	boom := errors.New("pool close failed")
	coord.RegisterFunc(PhaseDrain, "http", func(ctx context.Context) error { return nil })
	coord.RegisterFunc(PhaseCleanup, "pool", func(ctx context.Context) error { return boom })

	err := coord.Shutdown(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("Shutdown() error = %v, want the step failure", err)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	coord := NewCoordinator(&Config{Timeout: time.Second}, zap.NewNop())

	var calls int32
	coord.RegisterFunc(PhaseDrain, "http", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	if err := coord.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown() error = %v", err)
	}
	if err := coord.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown() error = %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("step ran %d times, want 1", got)
	}
}

func TestShutdownTimeoutStopsLaterPhases(t *testing.T) {
	coord := NewCoordinator(&Config{Timeout: 30 * time.Millisecond}, zap.NewNop())

	var cleanupRan int32
	coord.RegisterFunc(PhaseDrain, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	coord.RegisterFunc(PhaseCleanup, "pool", func(ctx context.Context) error {
		atomic.AddInt32(&cleanupRan, 1)
		return nil
	})

	err := coord.Shutdown(context.Background())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if atomic.LoadInt32(&cleanupRan) != 0 {
		t.Error("phases after the timeout should not run")
	}
}

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseDrain, "drain"},
		{PhaseShutdown, "shutdown"},
		{PhaseCleanup, "cleanup"},
		{Phase(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tt.phase, got, tt.want)
		}
	}
}
