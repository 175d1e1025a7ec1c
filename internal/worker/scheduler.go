package worker

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

// Scheduler runs the ingest job on a fixed interval.
type Scheduler struct {
	scheduler  *gocron.Scheduler
	job        *IngestJob
	interval   time.Duration
	runOnStart bool
	logger     zerolog.Logger
}

// SchedulerConfig holds configuration for the Scheduler.
type SchedulerConfig struct {
	Job      *IngestJob
	Interval time.Duration

	// RunOnStart triggers a run as soon as the scheduler starts.
	RunOnStart bool

	Logger zerolog.Logger
}

// NewScheduler creates a new Scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	s := gocron.NewScheduler(time.UTC)
	// A slow run delays the next tick instead of stacking up.
	s.SingletonModeAll()

	return &Scheduler{
		scheduler:  s,
		job:        cfg.Job,
		interval:   interval,
		runOnStart: cfg.RunOnStart,
		logger:     cfg.Logger,
	}
}

// Run schedules the job and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	sched := s.scheduler.Every(s.interval)
	if !s.runOnStart {
		sched = sched.WaitForSchedule()
	}

	_, err := sched.Do(func() {
		s.logger.Info().Msg("scheduler: running ingest job")
		if _, err := s.job.Run(ctx); err != nil && !errors.Is(err, ErrIngestInProgress) {
			s.logger.Warn().Err(err).Msg("scheduler: ingest job failed")
		}
	})
	if err != nil {
		return err
	}

	s.logger.Info().Dur("interval", s.interval).Msg("scheduler started")
	s.scheduler.StartAsync()

	<-ctx.Done()
	s.scheduler.Stop()
	s.logger.Info().Msg("scheduler stopped")
	return nil
}
