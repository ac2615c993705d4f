package scheduler

import (
	"github.com/robfig/cron/v3"

	"utilbill-backend/internal/jobs"
	"utilbill-backend/internal/logger"
)

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron *cron.Cron
	jobs *jobs.JobRunner
}

// NewScheduler creates a new scheduler with the provided job runner.
// Schedules use seconds precision in the configured time zone.
func NewScheduler(jobRunner *jobs.JobRunner) (*Scheduler, error) {
	cfg := jobRunner.Config().Scheduler
	c := cron.New(
		cron.WithLocation(cfg.Location()),
		cron.WithSeconds(),
	)

	s := &Scheduler{
		cron: c,
		jobs: jobRunner,
	}

	if err := s.registerJobs(); err != nil {
		return nil, err
	}
	return s, nil
}

// registerJobs registers all scheduled jobs with the cron scheduler
func (s *Scheduler) registerJobs() error {
	cfg := s.jobs.Config().Scheduler

	// Bill readings first, then sweep
	if _, err := s.cron.AddFunc(cfg.GeneratePendingBills, func() { _ = s.jobs.GeneratePendingBills() }); err != nil {
		logger.Error("Failed to register GeneratePendingBills job", "schedule", cfg.GeneratePendingBills, "error", err)
		return err
	}

	if _, err := s.cron.AddFunc(cfg.MarkOverdueBills, func() { _ = s.jobs.MarkOverdueBills() }); err != nil {
		logger.Error("Failed to register MarkOverdueBills job", "schedule", cfg.MarkOverdueBills, "error", err)
		return err
	}

	logger.Info("All cron jobs registered successfully", "timezone", cfg.Timezone)
	return nil
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	logger.Info("Starting cron scheduler...")
	s.cron.Start()
	logger.Info("Cron scheduler started successfully")
}

// Stop gracefully stops the cron scheduler, waiting for running jobs
func (s *Scheduler) Stop() {
	logger.Info("Stopping cron scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Cron scheduler stopped")
}

// IsRunning returns true if the scheduler has jobs registered
func (s *Scheduler) IsRunning() bool {
	return len(s.cron.Entries()) > 0
}
