package jobs

import (
	"context"
	"fmt"
	"time"

	"utilbill-backend/internal/config"
	"utilbill-backend/internal/logger"
	"utilbill-backend/internal/metrics"
	"utilbill-backend/internal/service"
)

// Job names accepted by the scheduler and -run-once.
const (
	JobMarkOverdueBills     = "mark-overdue-bills"
	JobGeneratePendingBills = "generate-pending-bills"
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	services *Services
	metrics  *metrics.Metrics
	config   *config.Config
}

// Services holds all service dependencies needed by jobs
type Services struct {
	Billing service.BillingService
	Sweeper service.OverdueSweeper
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(services *Services, m *metrics.Metrics, cfg *config.Config) *JobRunner {
	return &JobRunner{
		services: services,
		metrics:  m,
		config:   cfg,
	}
}

// Config returns the configuration the runner was built with
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery. A panic is
// reported as an error so the run is counted as failed.
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func(ctx context.Context) error) (err error) {
	log := logger.WithJob(jobName)
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Job panicked", "panic", r)
			err = fmt.Errorf("job %s panicked: %v", jobName, r)
		}

		result := metrics.ResultOK
		if err != nil {
			result = metrics.ResultError
		}
		jr.metrics.JobRun(jobName, result)
	}()

	log.Info("Starting job")
	if err = jobFunc(context.Background()); err != nil {
		log.Error("Job failed", "error", err, "duration", time.Since(started))
		return err
	}
	log.Info("Job completed", "duration", time.Since(started))
	return nil
}

// Run executes one job by name
func (jr *JobRunner) Run(jobName string) error {
	switch jobName {
	case JobMarkOverdueBills:
		return jr.MarkOverdueBills()
	case JobGeneratePendingBills:
		return jr.GeneratePendingBills()
	default:
		return fmt.Errorf("unknown job %q", jobName)
	}
}

// RunAllNightlyJobs bills pending readings and then sweeps overdue bills
func (jr *JobRunner) RunAllNightlyJobs() error {
	genErr := jr.GeneratePendingBills()
	sweepErr := jr.MarkOverdueBills()
	if genErr != nil {
		return genErr
	}
	return sweepErr
}

// JobNames lists every job Run accepts
func JobNames() []string {
	return []string{JobMarkOverdueBills, JobGeneratePendingBills}
}
