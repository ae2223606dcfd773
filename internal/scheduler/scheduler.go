// Package scheduler drives the ingestion pipeline on a fixed interval.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Runner is the unit of scheduled work.
type Runner interface {
	TriggerAsync() bool
}

// Scheduler triggers a Runner immediately and then once per interval until
// the context is canceled.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   *zap.Logger
}

func New(runner Runner, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{runner: runner, interval: interval, logger: logger}
}

// Run blocks until ctx is canceled. Ticks that land while a run is still
// executing are skipped, not queued.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	s.trigger()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.trigger()
		}
	}
}

func (s *Scheduler) trigger() {
	if !s.runner.TriggerAsync() {
		s.logger.Warn("previous run still executing, skipping tick")
	}
}
