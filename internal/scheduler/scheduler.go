// Package scheduler queues a full re-scrape once a day.
package scheduler

import (
	"context"
	"time"

	"github.com/fortuna/clio/internal/jobs"
	"go.uber.org/zap"
)

// Enqueuer is the part of jobs.Service the scheduler needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, req jobs.Request) (*jobs.Job, error)
}

// Scheduler enqueues a default scrape job every day at a fixed hour.
type Scheduler struct {
	jobs   Enqueuer
	hour   int
	logger *zap.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// New creates a scheduler firing at hour:00 local time.
func New(enqueuer Enqueuer, hour int, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		jobs:   enqueuer,
		hour:   hour,
		logger: logger.Named("scheduler"),
		now:    time.Now,
		after:  time.After,
	}
}

// NextRun returns the first hour:00 strictly after now.
func NextRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("daily scrape scheduler started", zap.Int("hour", s.hour))

	for {
		next := NextRun(s.now(), s.hour)
		wait := next.Sub(s.now())
		s.logger.Info("next scheduled scrape",
			zap.Time("at", next),
			zap.Duration("in", wait.Round(time.Second)))

		select {
		case <-ctx.Done():
			s.logger.Info("daily scrape scheduler stopped")
			return
		case <-s.after(wait):
			s.trigger(ctx)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context) {
	job, err := s.jobs.Enqueue(ctx, jobs.Request{})
	if err != nil {
		s.logger.Error("scheduled scrape not queued", zap.Error(err))
		return
	}
	s.logger.Info("scheduled scrape queued", zap.String("job_id", job.JobID))
}

// Status reports the schedule.
func (s *Scheduler) Status() map[string]interface{} {
	return map[string]interface{}{
		"hour":     s.hour,
		"next_run": NextRun(s.now(), s.hour),
	}
}
