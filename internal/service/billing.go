package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"utilbill-backend/internal/config"
	"utilbill-backend/internal/domain"
	"utilbill-backend/internal/events"
	"utilbill-backend/internal/logger"
	"utilbill-backend/internal/metrics"
	"utilbill-backend/internal/pricing"
	"utilbill-backend/internal/repository"
)

type billingService struct {
	store     repository.Store
	cfg       config.BillingConfig
	lateFees  *pricing.LateFeeCalculator
	publisher events.Publisher
	metrics   *metrics.Metrics
	clock     Clock
	billable  map[domain.ReadingType]bool
}

func NewBillingService(
	store repository.Store,
	cfg config.BillingConfig,
	lateFees *pricing.LateFeeCalculator,
	publisher events.Publisher,
	m *metrics.Metrics,
	clock Clock,
) BillingService {
	billable := map[domain.ReadingType]bool{domain.ReadingTypeActual: true}
	for _, t := range cfg.BillableReadingTypes {
		billable[domain.ReadingType(strings.ToUpper(t))] = true
	}
	if cfg.DefaultDueDays <= 0 {
		cfg.DefaultDueDays = 30
	}
	if cfg.BillNumberPrefix == "" {
		cfg.BillNumberPrefix = "BILL"
	}
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = 1
	}
	if cfg.PendingBatchSize <= 0 {
		cfg.PendingBatchSize = 500
	}
	if lateFees == nil {
		lateFees = pricing.NewLateFeeCalculator(nil, 0)
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	return &billingService{
		store:     store,
		cfg:       cfg,
		lateFees:  lateFees,
		publisher: publisher,
		metrics:   m,
		clock:     clock,
		billable:  billable,
	}
}

func (s *billingService) GenerateBill(ctx context.Context, req GenerateBillRequest) (*domain.Bill, error) {
	logger.EnterMethod("billingService.GenerateBill", "readingID", req.ReadingID)

	if req.ReadingID <= 0 {
		err := fmt.Errorf("%w: reading id %d", domain.ErrReadingNotFound, req.ReadingID)
		s.rejectGeneration(err, req.ReadingID)
		return nil, err
	}
	if req.DueDate != nil && req.DueDate.IsZero() {
		err := fmt.Errorf("%w: due date is empty", domain.ErrInvalidDueDate)
		s.rejectGeneration(err, req.ReadingID)
		return nil, err
	}

	now := s.clock.now()
	var bill *domain.Bill
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		var err error
		bill, err = s.generateInTx(ctx, repos, req, now)
		return err
	})
	if err != nil {
		if isRejection(err) {
			s.rejectGeneration(err, req.ReadingID)
		} else {
			s.metrics.BillGenerated(metrics.ResultError)
			logger.ExitMethodWithError("billingService.GenerateBill", err, "readingID", req.ReadingID)
		}
		return nil, err
	}

	s.metrics.BillGenerated(metrics.ResultOK)
	publish(ctx, s.publisher, s.metrics, events.NewBillEvent(events.BillGenerated, bill, now))

	logger.Info("Bill generated", "billNumber", bill.BillNumber, "readingID", bill.ReadingID,
		"total", bill.TotalAmount.StringFixed(2), "dueDate", bill.DueDate.Format(time.DateOnly))
	logger.ExitMethod("billingService.GenerateBill", "billID", bill.ID)
	return bill, nil
}

func (s *billingService) rejectGeneration(err error, readingID int64) {
	s.metrics.BillGenerated(metrics.ResultRejected)
	logger.ExitMethodRejected("billingService.GenerateBill", err, "readingID", readingID)
}

func (s *billingService) generateInTx(ctx context.Context, repos repository.Repositories, req GenerateBillRequest, now time.Time) (*domain.Bill, error) {
	bc, err := repos.Readings.GetBillingContext(ctx, req.ReadingID)
	if err != nil {
		return nil, err
	}
	reading := bc.Reading

	if !s.billable[reading.ReadingType] {
		return nil, fmt.Errorf("%w: reading %d is %s", domain.ErrReadingNotBillable, reading.ID, reading.ReadingType)
	}
	if bc.ConnectionStatus != domain.ConnectionStatusActive {
		return nil, fmt.Errorf("%w: connection %d is %s", domain.ErrConnectionNotActive, bc.ConnectionID, bc.ConnectionStatus)
	}

	exists, err := repos.Bills.ExistsForReading(ctx, reading.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: reading %d", domain.ErrBillAlreadyExists, reading.ID)
	}

	consumption, err := reading.Consumption()
	if err != nil {
		return nil, err
	}

	readingDate := domain.DateOf(reading.ReadingDate)
	tariff, err := NewTariffResolver(repos.Tariffs).Resolve(ctx, bc.UtilityType, bc.CustomerClass, readingDate)
	if err != nil {
		return nil, err
	}

	dueDate := readingDate.AddDate(0, 0, s.cfg.DefaultDueDays)
	if req.DueDate != nil {
		dueDate = domain.DateOf(*req.DueDate)
		if dueDate.Before(readingDate) {
			return nil, fmt.Errorf("%w: %s is before reading date %s", domain.ErrInvalidDueDate,
				dueDate.Format(time.DateOnly), readingDate.Format(time.DateOnly))
		}
	}

	periodStart := readingDate.AddDate(0, -1, 0)
	if bc.PreviousReadingDate != nil {
		periodStart = domain.DateOf(*bc.PreviousReadingDate)
	}

	billDate := domain.DateOf(now)
	seq, err := repos.Sequences.Next(ctx, domain.SequenceKindBill, billDate.Year())
	if err != nil {
		return nil, fmt.Errorf("failed to allocate bill number: %w", err)
	}

	charges := pricing.CalculateCharges(consumption, tariff)
	bill := &domain.Bill{
		BillNumber:         domain.FormatBillNumber(s.cfg.BillNumberPrefix, billDate.Year(), seq),
		ReadingID:          reading.ID,
		ConnectionID:       bc.ConnectionID,
		CustomerID:         bc.CustomerID,
		TariffID:           tariff.ID,
		BillDate:           billDate,
		DueDate:            dueDate,
		PeriodStart:        periodStart,
		PeriodEnd:          readingDate,
		Consumption:        charges.Consumption,
		RatePerUnit:        charges.RatePerUnit,
		FixedCharge:        charges.FixedCharge,
		ConsumptionCharge:  charges.ConsumptionCharge,
		LateFee:            decimal.Zero,
		TotalAmount:        charges.Total,
		Status:             domain.BillStatusUnpaid,
	}
	// A bill with nothing to pay is issued PAID.
	bill.ApplyLedgerTotal(decimal.Zero)

	if err := repos.Bills.Create(ctx, bill); err != nil {
		return nil, err
	}
	return bill, nil
}

// GenerateBills generates one bill per reading, each in its own transaction.
// A failure is recorded against its reading and never stops the others.
func (s *billingService) GenerateBills(ctx context.Context, readingIDs []int64) []GenerationResult {
	logger.EnterMethod("billingService.GenerateBills", "count", len(readingIDs))

	results := make([]GenerationResult, len(readingIDs))
	var g errgroup.Group
	g.SetLimit(s.cfg.BulkConcurrency)

	for i, id := range readingIDs {
		g.Go(func() error {
			res := GenerationResult{ReadingID: id}
			if err := ctx.Err(); err != nil {
				res.Err = err
			} else {
				res.Bill, res.Err = s.GenerateBill(ctx, GenerateBillRequest{ReadingID: id})
			}
			if res.Err != nil {
				res.Error = res.Err.Error()
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	logger.ExitMethod("billingService.GenerateBills", "count", len(results))
	return results
}

// GeneratePendingBills bills every billable reading that has no bill yet, up
// to the configured batch size.
func (s *billingService) GeneratePendingBills(ctx context.Context) (*BulkGenerationSummary, error) {
	logger.EnterMethod("billingService.GeneratePendingBills")

	types := make([]domain.ReadingType, 0, len(s.billable))
	for t := range s.billable {
		types = append(types, t)
	}

	ids, err := s.store.Repos().Readings.ListUnbilled(ctx, types, s.cfg.PendingBatchSize)
	if err != nil {
		logger.ExitMethodWithError("billingService.GeneratePendingBills", err)
		return nil, fmt.Errorf("failed to list unbilled readings: %w", err)
	}

	summary := &BulkGenerationSummary{Attempted: len(ids), Results: s.GenerateBills(ctx, ids)}
	for _, res := range summary.Results {
		switch {
		case res.Err == nil:
			summary.Generated++
		case errors.Is(res.Err, domain.ErrBillAlreadyExists):
			summary.Skipped++
		default:
			summary.Failed++
			logger.Warn("Bill generation failed", "readingID", res.ReadingID, "error", res.Err)
		}
	}

	logger.ExitMethod("billingService.GeneratePendingBills", "attempted", summary.Attempted,
		"generated", summary.Generated, "skipped", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}

func (s *billingService) GetBill(ctx context.Context, billID int64) (*domain.Bill, error) {
	return s.store.Repos().Bills.GetByID(ctx, billID)
}

func (s *billingService) ListPayments(ctx context.Context, billID int64) ([]domain.Payment, error) {
	repos := s.store.Repos()
	if _, err := repos.Bills.GetByID(ctx, billID); err != nil {
		return nil, err
	}
	return repos.Payments.ListByBill(ctx, billID)
}

// PreviewLateFee computes the fee owed on asOf without changing the bill.
func (s *billingService) PreviewLateFee(ctx context.Context, billID int64, asOf time.Time) (decimal.Decimal, error) {
	if asOf.IsZero() {
		asOf = s.clock.now()
	}
	bill, err := s.store.Repos().Bills.GetByID(ctx, billID)
	if err != nil {
		return decimal.Zero, err
	}
	return s.lateFees.LateFee(bill, asOf), nil
}

// ApplyLateFee raises the bill's late fee to the amount owed on asOf. Fees
// are never lowered, so applying twice on the same day changes nothing.
func (s *billingService) ApplyLateFee(ctx context.Context, billID int64, asOf time.Time) (*domain.Bill, bool, error) {
	logger.EnterMethod("billingService.ApplyLateFee", "billID", billID, "asOf", asOf)

	if asOf.IsZero() {
		asOf = s.clock.now()
	}

	var bill *domain.Bill
	var changed bool
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		var err error
		bill, err = repos.Bills.GetByIDForUpdate(ctx, billID)
		if err != nil {
			return err
		}

		fee := s.lateFees.LateFee(bill, asOf)
		if !fee.GreaterThan(bill.LateFee) {
			return nil
		}

		paid, err := repos.Payments.SumCompleted(ctx, bill.ID)
		if err != nil {
			return err
		}
		bill.SetLateFee(fee)
		bill.RecomputeBalance(paid)
		if err := repos.Bills.UpdateBalance(ctx, bill); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("billingService.ApplyLateFee", err, "billID", billID)
		return nil, false, err
	}

	if changed {
		s.metrics.LateFeeApplied()
		publish(ctx, s.publisher, s.metrics, events.NewBillEvent(events.BillLateFeeApplied, bill, s.clock.now()))
		logger.Info("Late fee applied", "billNumber", bill.BillNumber, "lateFee", bill.LateFee.StringFixed(2),
			"outstanding", bill.OutstandingBalance.StringFixed(2))
	}

	logger.ExitMethod("billingService.ApplyLateFee", "billID", billID, "changed", changed)
	return bill, changed, nil
}

func isRejection(err error) bool {
	return domain.IsInputError(err) || domain.IsConflict(err) || domain.IsConsistencyError(err)
}

// publish delivers an event after commit. Failures are logged and counted only.
func publish(ctx context.Context, p events.Publisher, m *metrics.Metrics, event events.Event) {
	if err := p.Publish(ctx, event); err != nil {
		m.EventPublishFailed(string(event.Type))
		logger.Warn("Failed to publish billing event", "type", event.Type, "billNumber", event.BillNumber, "error", err)
	}
}
