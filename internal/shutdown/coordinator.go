// Package shutdown runs the service teardown in ordered phases so in-flight
// WhatsApp messages finish before the workers and the pool go away.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Phase orders teardown: drain stops the HTTP intake, shutdown stops the
// background workers, cleanup releases connections. Steps in the same phase
// run concurrently; phases run in sequence.
type Phase int

const (
	PhaseDrain Phase = iota
	PhaseShutdown
	PhaseCleanup
)

func (p Phase) String() string {
	switch p {
	case PhaseDrain:
		return "drain"
	case PhaseShutdown:
		return "shutdown"
	case PhaseCleanup:
		return "cleanup"
	}
	return "unknown"
}

// Config holds the coordinator settings.
type Config struct {
	// Timeout bounds the whole teardown, all phases together.
	Timeout time.Duration
}

type step struct {
	name string
	fn   func(ctx context.Context) error
}

// Coordinator collects named teardown steps and runs them once, in phase
// order, inside the configured timeout.
type Coordinator struct {
	mu      sync.Mutex
	steps   map[Phase][]step
	timeout time.Duration
	logger  *zap.Logger

	once sync.Once
	err  error
}

// NewCoordinator creates a coordinator. A nil config gets a 30s timeout.
func NewCoordinator(cfg *Config, logger *zap.Logger) *Coordinator {
	timeout := 30 * time.Second
	if cfg != nil && cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}
	return &Coordinator{
		steps:   make(map[Phase][]step),
		timeout: timeout,
		logger:  logger,
	}
}

// RegisterFunc adds a teardown step to the given phase.
func (c *Coordinator) RegisterFunc(phase Phase, name string, fn func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps[phase] = append(c.steps[phase], step{name: name, fn: fn})
}

// Shutdown runs every registered step. It is safe to call more than once;
// later calls return the first run's result. The teardown gets its own
// timeout-bound context so a cancelled caller cannot cut it short.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		runCtx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		c.err = c.run(runCtx)
	})

	if err := ctx.Err(); err != nil {
		return err
	}
	return c.err
}

func (c *Coordinator) run(ctx context.Context) error {
	c.logger.Info("starting graceful shutdown", zap.Duration("timeout", c.timeout))

	var failures []error
	for _, phase := range []Phase{PhaseDrain, PhaseShutdown, PhaseCleanup} {
		c.mu.Lock()
		steps := c.steps[phase]
		c.mu.Unlock()
		if len(steps) == 0 {
			continue
		}

		c.logger.Info("shutdown phase",
			zap.String("phase", phase.String()),
			zap.Int("steps", len(steps)),
		)
		failures = append(failures, c.runPhase(ctx, phase, steps)...)

		if ctx.Err() != nil {
			c.logger.Error("shutdown timeout exceeded", zap.String("phase", phase.String()))
			failures = append(failures, ctx.Err())
			break
		}
	}

	if len(failures) > 0 {
		return errors.Join(failures...)
	}
	c.logger.Info("graceful shutdown complete")
	return nil
}

func (c *Coordinator) runPhase(ctx context.Context, phase Phase, steps []step) []error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(steps))

	for _, s := range steps {
		wg.Add(1)
		go func(s step) {
			defer wg.Done()
			start := time.Now()
			if err := s.fn(ctx); err != nil {
				c.logger.Error("shutdown step failed",
					zap.String("step", s.name),
					zap.String("phase", phase.String()),
					zap.Error(err),
				)
				errCh <- fmt.Errorf("%s: %w", s.name, err)
				return
			}
			c.logger.Debug("shutdown step done",
				zap.String("step", s.name),
				zap.Duration("took", time.Since(start)),
			)
		}(s)
	}
	wg.Wait()
	close(errCh)

	var out []error
	for err := range errCh {
		out = append(out, err)
	}
	return out
}
