package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"

	"weather-etl/pkg/logging"
)

// Job is one scheduled run. The context is cancelled when the scheduler stops.
type Job func(ctx context.Context) error

// Scheduler re-runs a job at a fixed interval. Runs never overlap: a run that
// is still in progress when the next one falls due causes that one to be skipped.
type Scheduler struct {
	scheduler *gocron.Scheduler
	interval  time.Duration
	name      string
	job       Job
	logger    *logging.StructuredLogger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Scheduler.
func New(name string, interval time.Duration, job Job, logger *logging.StructuredLogger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		interval:  interval,
		name:      name,
		job:       job,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start schedules the job, runs it once immediately and returns.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		return errors.New("scheduler: interval must be positive")
	}

	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(s.run)
	if err != nil {
		return err
	}

	s.logger.Info(s.ctx, "[SCHEDULER_START] Job scheduled", logging.Fields{
		"job":      s.name,
		"interval": s.interval.String(),
	})
	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) run() {
	started := time.Now()
	s.logger.Info(s.ctx, "[SCHEDULER_RUN] Running job", logging.Fields{"job": s.name})

	if err := s.job(s.ctx); err != nil {
		s.logger.Error(s.ctx, "[SCHEDULER_ERROR] Job failed", logging.Fields{
			"job":         s.name,
			"duration_ms": time.Since(started).Milliseconds(),
		}, err)
		return
	}

	s.logger.Info(s.ctx, "[SCHEDULER_DONE] Job completed", logging.Fields{
		"job":         s.name,
		"duration_ms": time.Since(started).Milliseconds(),
	})
}

// Stop cancels the running job, if any, and stops future runs.
func (s *Scheduler) Stop() {
	s.cancel()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
