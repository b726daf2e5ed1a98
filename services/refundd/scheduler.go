package refundd

import (
	"context"
	"log/slog"
	"time"
)

// Runner executes a single job pass.
type Runner interface {
	Run(ctx context.Context) (Summary, error)
}

// SchedulerConfig configures the in-process scheduler.
type SchedulerConfig struct {
	Runner   Runner
	Interval time.Duration
	Logger   *slog.Logger
}

// Scheduler runs the job on a fixed cadence. It complements the HTTP trigger;
// overlapping runs are still serialised by the cron lock.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler constructs a scheduler. A non-positive interval yields a
// scheduler whose Start returns immediately.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{runner: cfg.Runner, interval: cfg.Interval, logger: logger}
}

// Start runs the job every interval until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.runner == nil || s.interval <= 0 {
		return
	}
	timer := time.NewTimer(s.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			summary, err := s.runner.Run(ctx)
			if err != nil {
				s.logger.Error("scheduled refund run failed", "error", err)
			} else {
				s.logger.Debug("scheduled refund run", "outcome", summary.Outcome, "message", summary.Message)
			}
			timer.Reset(s.interval)
		}
	}
}
