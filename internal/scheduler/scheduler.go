// Package scheduler triggers mailbox passes and housekeeping on a fixed
// interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/altafino/order-mail-extractor/internal/jobs"
	"github.com/altafino/order-mail-extractor/internal/models"
	"github.com/altafino/order-mail-extractor/internal/types"
	"github.com/go-co-op/gocron"
)

// Submitter starts a job
type Submitter interface {
	Submit(ctx context.Context, jobType models.JobType, settings *types.Settings) (*models.Job, error)
}

// SettingsSource supplies the settings used at each tick
type SettingsSource interface {
	Get() *types.Settings
}

type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Submitter
	settings  SettingsSource
	cleaner   *Cleaner
	logger    *slog.Logger

	mu      sync.Mutex
	ingest  *gocron.Job
	cleanup *gocron.Job
}

// NewScheduler creates a new scheduler instance. cleaner may be nil.
func NewScheduler(runner Submitter, settings SettingsSource, cleaner *Cleaner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		runner:    runner,
		settings:  settings,
		cleaner:   cleaner,
		logger:    logger,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop stops the scheduler. Running jobs are not interrupted.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// Update replaces both scheduled jobs according to cfg
func (s *Scheduler) Update(cfg *types.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ingest != nil {
		s.scheduler.RemoveByReference(s.ingest)
		s.ingest = nil
	}
	if s.cleanup != nil {
		s.scheduler.RemoveByReference(s.cleanup)
		s.cleanup = nil
	}

	if cfg.Scheduling.Enabled {
		job, err := s.every(cfg.Scheduling.FrequencyAmount, cfg.Scheduling.FrequencyEvery, s.runIngestion)
		if err != nil {
			return fmt.Errorf("failed to schedule ingestion: %w", err)
		}
		s.ingest = job
		s.logger.Info("ingestion scheduled",
			"frequency", fmt.Sprintf("every %d %s", cfg.Scheduling.FrequencyAmount, cfg.Scheduling.FrequencyEvery),
			"job_type", cfg.Scheduling.JobType)
	} else {
		s.logger.Info("scheduled ingestion disabled")
	}

	if cfg.Cleanup.Enabled && s.cleaner != nil {
		job, err := s.every(cfg.Cleanup.FrequencyAmount, cfg.Cleanup.FrequencyEvery, s.runCleanup)
		if err != nil {
			return fmt.Errorf("failed to schedule cleanup: %w", err)
		}
		s.cleanup = job
		s.logger.Info("cleanup scheduled",
			"frequency", fmt.Sprintf("every %d %s", cfg.Cleanup.FrequencyAmount, cfg.Cleanup.FrequencyEvery),
			"retention_days", cfg.Cleanup.RetentionDays)
	}

	return nil
}

// Jobs returns the number of scheduled jobs
func (s *Scheduler) Jobs() int {
	return len(s.scheduler.Jobs())
}

func (s *Scheduler) every(amount int, unit string, fn func()) (*gocron.Job, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("invalid frequency amount: %d", amount)
	}

	sched := s.scheduler.Every(amount)
	switch unit {
	case "minute":
		sched = sched.Minutes()
	case "hour":
		sched = sched.Hours()
	case "day":
		sched = sched.Days()
	case "week":
		sched = sched.Weeks()
	default:
		return nil, fmt.Errorf("invalid frequency: %s", unit)
	}

	// the first tick waits for the interval instead of firing on start
	return sched.WaitForSchedule().SingletonMode().Do(fn)
}

func (s *Scheduler) runIngestion() {
	cfg := s.settings.Get()
	jobType := models.JobType(cfg.Scheduling.JobType)

	s.logger.Info("executing scheduled ingestion", "job_type", jobType, "time", time.Now().UTC())

	job, err := s.runner.Submit(context.Background(), jobType, cfg)
	if errors.Is(err, jobs.ErrJobRunning) {
		s.logger.Info("skipping scheduled ingestion, a job is already running")
		return
	}
	if err != nil {
		s.logger.Error("failed to start scheduled ingestion", "error", err)
		return
	}
	s.logger.Debug("scheduled ingestion started", "job_id", job.ID)
}

func (s *Scheduler) runCleanup() {
	if err := s.cleaner.Run(context.Background(), s.settings.Get()); err != nil {
		s.logger.Error("cleanup failed", "error", err)
	}
}
