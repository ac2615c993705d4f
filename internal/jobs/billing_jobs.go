package jobs

import (
	"context"
	"time"

	"utilbill-backend/internal/logger"
)

// MarkOverdueBills moves past-due unpaid bills to OVERDUE
func (jr *JobRunner) MarkOverdueBills() error {
	return jr.runWithRecovery(JobMarkOverdueBills, func(ctx context.Context) error {
		result, err := jr.services.Sweeper.Sweep(ctx, time.Time{})
		if err != nil {
			return err
		}

		logger.Info("Overdue bills marked",
			"run_id", result.RunID,
			"candidates", result.Candidates,
			"transitioned", result.Transitioned,
			"late_fees_applied", result.LateFeesApplied,
			"failed", result.Failed)
		return nil
	})
}

// GeneratePendingBills bills every billable reading that has no bill yet.
// Per-reading failures are logged by the billing service and do not fail the job.
func (jr *JobRunner) GeneratePendingBills() error {
	return jr.runWithRecovery(JobGeneratePendingBills, func(ctx context.Context) error {
		summary, err := jr.services.Billing.GeneratePendingBills(ctx)
		if err != nil {
			return err
		}

		logger.Info("Pending readings billed",
			"attempted", summary.Attempted,
			"generated", summary.Generated,
			"skipped", summary.Skipped,
			"failed", summary.Failed)
		return nil
	})
}
