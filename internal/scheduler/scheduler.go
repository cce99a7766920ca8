// Package scheduler runs the recurring background jobs on robfig/cron.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one tick of a recurring task. An error is logged and the job runs
// again on its next tick.
type Job func(ctx context.Context) error

type Scheduler struct {
	cron   *cron.Cron
	base   context.Context
	cancel context.CancelFunc
}

// New builds a scheduler whose internal messages go to logger. Panicking
// jobs are recovered, and a tick is skipped while the previous run of the
// same job is still going.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	cl := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelWarn))
	base, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		base:   base,
		cancel: cancel,
	}
}

// Add registers job under a cron spec such as "@every 1m" or "*/5 * * * *".
// Each run gets a context bounded by timeout and canceled on Stop.
func (s *Scheduler) Add(name, spec string, timeout time.Duration, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(s.base, timeout)
		defer cancel()

		start := time.Now()

		err := job(ctx)
		if err != nil {
			slog.Error("scheduled job failed", "job", name, "duration", time.Since(start), "error", err)

			return
		}

		slog.Debug("scheduled job done", "job", name, "duration", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}

	return nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops new ticks and waits for running jobs, or for ctx. Jobs still
// running when ctx ends see their context canceled.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()

	select {
	case <-done.Done():
		s.cancel()

		return nil
	case <-ctx.Done():
		s.cancel()

		return ctx.Err()
	}
}
