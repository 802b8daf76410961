// Package scheduler invokes the billing processor on a recurring cadence.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Runner is the slice of the processor the scheduler drives.
type Runner interface {
	Run(ctx context.Context, now time.Time) error
}

// Scheduler ticks at a fixed interval and hands the processor an explicit
// as-of timestamp. The processor never reads the wall clock itself.
type Scheduler struct {
	runner     Runner
	interval   time.Duration
	runOnStart bool
	logger     *slog.Logger

	// now is the clock source, swappable in tests.
	now func() time.Time
}

// New creates a scheduler. When runOnStart is true the first run happens
// immediately instead of waiting a full interval.
func New(runner Runner, interval time.Duration, runOnStart bool, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		runOnStart: runOnStart,
		logger:     logger,
		now:        time.Now,
	}
}

// Start blocks, running the processor every interval until the context is
// cancelled. A failed run is logged and retried wholesale on the next
// tick, per the propagation policy for selection errors.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler starting", "interval", s.interval, "run_on_start", s.runOnStart)

	if s.runOnStart {
		s.runOnce(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if err := s.runner.Run(ctx, s.now()); err != nil {
		s.logger.Error("billing run failed", "error", err)
	}
}
