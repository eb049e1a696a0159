// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Disabled is the schedule value that turns auto-close off.
const Disabled = "off"

// Closer closes every poll whose deadline has passed.
type Closer interface {
	CloseDue(ctx context.Context) (int, error)
}

// Scheduler runs a Closer on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	closer  Closer
	timeout time.Duration
}

// New schedules closer with a standard cron spec or descriptor such as
// "@every 1m". Runs never overlap: a tick is skipped while the previous
// run is still going.
func New(spec string, closer Closer) (*Scheduler, error) {
	logger := slogLogger{}
	s := &Scheduler{
		cron:    cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		closer:  closer,
		timeout: 5 * time.Minute,
	}
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid auto-close schedule %q: %w", spec, err)
	}
	return s, nil
}

// RunOnce closes due polls now.
func (s *Scheduler) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	closed, err := s.closer.CloseDue(ctx)
	if err != nil {
		slog.Error("auto-close run failed", "error", err)
		return
	}
	if closed > 0 {
		slog.Info("auto-close run", "closed", closed, "duration_ms", time.Since(start).Milliseconds())
	}
}

// Start begins running the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("auto-close scheduler started")
}

// Stop halts the schedule and waits for a running job, up to ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// slogLogger adapts cron's logger to slog.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
