package worker

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

// Scheduler re-runs a RefreshJob for the enabled sources and today's date at
// a fixed interval.
type Scheduler struct {
	scheduler *gocron.Scheduler
	job       *RefreshJob
	interval  time.Duration
	logger    zerolog.Logger
}

// NewScheduler creates a scheduler. A non-positive interval disables it.
func NewScheduler(job *RefreshJob, interval time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		job:       job,
		interval:  interval,
		logger:    logger,
	}
}

// Start registers the refresh job and starts the scheduler in the
// background. The first run happens one interval after Start. Overlapping
// runs are skipped.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.logger.Info().Msg("scheduled refresh disabled")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).WaitForSchedule().SingletonMode().Do(func() {
		_, _ = s.job.Run(context.Background(), nil, time.Time{})
	})
	if err != nil {
		return err
	}

	s.logger.Info().Dur("interval", s.interval).Msg("scheduled refresh started")
	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future runs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// nextRun returns when the refresh job runs next, or the zero time if the
// scheduler is not running.
func (s *Scheduler) nextRun() time.Time {
	_, next := s.scheduler.NextRun()
	return next
}

// Status is a snapshot of the background refresh worker.
type Status struct {
	Interval time.Duration
	NextRun  time.Time
	Metrics  RefreshMetrics
}

// Status reports the schedule and the refresh job's running totals.
func (s *Scheduler) Status() Status {
	return Status{
		Interval: s.interval,
		NextRun:  s.nextRun(),
		Metrics:  s.job.GetMetrics(),
	}
}
