package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"utilbill-backend/internal/domain"
	"utilbill-backend/internal/events"
	"utilbill-backend/internal/logger"
	"utilbill-backend/internal/metrics"
	"utilbill-backend/internal/repository"
)

const (
	sweepBatchSize = 200
	// Overdue bills given a late fee per sweep run.
	lateFeeSweepLimit = 5000
)

type overdueSweeper struct {
	store         repository.Store
	billing       BillingService
	applyLateFees bool
	publisher     events.Publisher
	metrics       *metrics.Metrics
	clock         Clock
}

func NewOverdueSweeper(
	store repository.Store,
	billing BillingService,
	applyLateFees bool,
	publisher events.Publisher,
	m *metrics.Metrics,
	clock Clock,
) OverdueSweeper {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &overdueSweeper{
		store:         store,
		billing:       billing,
		applyLateFees: applyLateFees,
		publisher:     publisher,
		metrics:       m,
		clock:         clock,
	}
}

// Sweep lists candidates then transitions each bill in its own short
// transaction. The UPDATE re-checks the full predicate, so a bill paid after
// it was listed is left alone. A failing bill is logged and skipped.
func (s *overdueSweeper) Sweep(ctx context.Context, asOf time.Time) (*SweepResult, error) {
	if asOf.IsZero() {
		asOf = s.clock.now()
	}
	result := &SweepResult{RunID: uuid.NewString()}
	log := logger.Get().With("runID", result.RunID)
	log.Info("Overdue sweep started", "asOf", asOf.Format(time.DateOnly))
	started := time.Now()

	// Failed bills stay eligible, so every batch is widened by the number of
	// failures to keep them from hiding the rest.
	seen := make(map[int64]bool)
	for {
		limit := sweepBatchSize + result.Failed
		ids, err := s.store.Repos().Bills.ListOverdueCandidates(ctx, asOf, limit)
		if err != nil {
			log.Error("Failed to list overdue candidates", "error", err)
			return result, err
		}

		fresh := 0
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			fresh++
			result.Candidates++

			if err := ctx.Err(); err != nil {
				return result, err
			}
			changed, err := s.markOverdue(ctx, id, asOf)
			if err != nil {
				result.Failed++
				log.Warn("Failed to mark bill overdue", "billID", id, "error", err)
				continue
			}
			if changed {
				result.Transitioned++
			}
		}
		if fresh == 0 || len(ids) < limit {
			break
		}
	}

	if s.applyLateFees {
		if err := s.sweepLateFees(ctx, asOf, result, log); err != nil {
			return result, err
		}
	}

	s.metrics.BillsMarkedOverdue(result.Transitioned)
	s.metrics.ObserveSweep(time.Since(started))
	log.Info("Overdue sweep finished", "candidates", result.Candidates, "transitioned", result.Transitioned,
		"lateFeesApplied", result.LateFeesApplied, "failed", result.Failed, "duration", time.Since(started))
	return result, nil
}

func (s *overdueSweeper) markOverdue(ctx context.Context, id int64, asOf time.Time) (bool, error) {
	var bill *domain.Bill
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		changed, err := repos.Bills.MarkOverdue(ctx, id, asOf)
		if err != nil || !changed {
			return err
		}
		bill, err = repos.Bills.GetByID(ctx, id)
		return err
	})
	if err != nil || bill == nil {
		return false, err
	}

	publish(ctx, s.publisher, s.metrics, events.NewBillEvent(events.BillOverdue, bill, s.clock.now()))
	logger.Debug("Bill marked overdue", "billNumber", bill.BillNumber, "dueDate", bill.DueDate.Format(time.DateOnly))
	return true, nil
}

func (s *overdueSweeper) sweepLateFees(ctx context.Context, asOf time.Time, result *SweepResult, log *slog.Logger) error {
	ids, err := s.store.Repos().Bills.ListOverdueWithBalance(ctx, lateFeeSweepLimit)
	if err != nil {
		log.Error("Failed to list overdue bills for late fees", "error", err)
		return err
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, changed, err := s.billing.ApplyLateFee(ctx, id, asOf)
		if err != nil {
			result.Failed++
			log.Warn("Failed to apply late fee", "billID", id, "error", err)
			continue
		}
		if changed {
			result.LateFeesApplied++
		}
	}
	return nil
}
