package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"utilbill-backend/internal/config"
	"utilbill-backend/internal/domain"
	"utilbill-backend/internal/events"
	"utilbill-backend/internal/logger"
	"utilbill-backend/internal/metrics"
	"utilbill-backend/internal/pricing"
	"utilbill-backend/internal/repository"
)

type paymentService struct {
	store     repository.Store
	prefix    string
	publisher events.Publisher
	metrics   *metrics.Metrics
	clock     Clock
}

func NewPaymentService(
	store repository.Store,
	cfg config.BillingConfig,
	publisher events.Publisher,
	m *metrics.Metrics,
	clock Clock,
) PaymentService {
	prefix := cfg.PaymentNumberPrefix
	if prefix == "" {
		prefix = "PAY"
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &paymentService{
		store:     store,
		prefix:    prefix,
		publisher: publisher,
		metrics:   m,
		clock:     clock,
	}
}

func (s *paymentService) ApplyPayment(ctx context.Context, req ApplyPaymentRequest) (*domain.Payment, *domain.Bill, error) {
	logger.EnterMethod("paymentService.ApplyPayment", "billID", req.BillID, "amount", req.Amount, "method", req.Method)

	if err := validatePayment(req); err != nil {
		s.reject("paymentService.ApplyPayment", err, req.BillID)
		return nil, nil, err
	}

	now := s.clock.now()
	var payment *domain.Payment
	var bill *domain.Bill
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		var err error
		bill, err = repos.Bills.GetByIDForUpdate(ctx, req.BillID)
		if err != nil {
			return err
		}
		if bill.IsSettled() {
			return fmt.Errorf("%w: %s is %s", domain.ErrBillAlreadySettled, bill.BillNumber, bill.Status)
		}
		if req.Amount.GreaterThan(bill.OutstandingBalance) {
			return fmt.Errorf("%w: %s exceeds %s outstanding on %s", domain.ErrOverpayment,
				req.Amount.StringFixed(2), bill.OutstandingBalance.StringFixed(2), bill.BillNumber)
		}

		payment, err = s.appendEntry(ctx, repos, &domain.Payment{
			BillID:               bill.ID,
			CustomerID:           bill.CustomerID,
			Amount:               req.Amount,
			Method:               req.Method,
			ReceivedBy:           strings.TrimSpace(req.ReceivedBy),
			TransactionReference: req.Reference,
			Status:               domain.PaymentStatusCompleted,
			PaymentDate:          now,
		}, now)
		if err != nil {
			return err
		}
		return recomputeFromLedger(ctx, repos, bill, true)
	})
	if err != nil {
		if domain.IsInputError(err) || domain.IsConflict(err) {
			s.reject("paymentService.ApplyPayment", err, req.BillID)
		} else {
			logger.ExitMethodWithError("paymentService.ApplyPayment", err, "billID", req.BillID)
		}
		return nil, nil, err
	}

	s.metrics.PaymentApplied(payment.Amount)
	publish(ctx, s.publisher, s.metrics, events.NewBillEvent(events.PaymentApplied, bill, now).WithPayment(payment))

	logger.Info("Payment applied", "paymentNumber", payment.PaymentNumber, "billNumber", bill.BillNumber,
		"amount", payment.Amount.StringFixed(2), "outstanding", bill.OutstandingBalance.StringFixed(2), "status", bill.Status)
	logger.ExitMethod("paymentService.ApplyPayment", "paymentID", payment.ID)
	return payment, bill, nil
}

// RefundPayment reverses one completed payment. The original entry becomes
// REFUNDED and a paired REFUNDED entry records who processed it and why.
func (s *paymentService) RefundPayment(ctx context.Context, req RefundPaymentRequest) (*domain.Payment, *domain.Bill, error) {
	logger.EnterMethod("paymentService.RefundPayment", "paymentID", req.PaymentID)

	if strings.TrimSpace(req.ProcessedBy) == "" {
		err := fmt.Errorf("%w: processed by is required", domain.ErrInvalidPayment)
		s.reject("paymentService.RefundPayment", err, 0)
		return nil, nil, err
	}

	now := s.clock.now()
	var refund *domain.Payment
	var bill *domain.Bill
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		original, err := repos.Payments.GetByID(ctx, req.PaymentID)
		if err != nil {
			return err
		}

		// Bill first, then payment: the same order ApplyPayment locks in.
		bill, err = repos.Bills.GetByIDForUpdate(ctx, original.BillID)
		if err != nil {
			return err
		}
		original, err = repos.Payments.GetByIDForUpdate(ctx, req.PaymentID)
		if err != nil {
			return err
		}

		if !original.Refundable() {
			return fmt.Errorf("%w: %s is %s", domain.ErrPaymentNotRefundable, original.PaymentNumber, original.Status)
		}
		if bill.Status == domain.BillStatusCancelled {
			return fmt.Errorf("%w: %s is cancelled", domain.ErrBillAlreadySettled, bill.BillNumber)
		}

		if err := repos.Payments.UpdateStatus(ctx, original.ID, domain.PaymentStatusRefunded); err != nil {
			return err
		}

		originalID := original.ID
		refund, err = s.appendEntry(ctx, repos, &domain.Payment{
			BillID:               bill.ID,
			CustomerID:           bill.CustomerID,
			Amount:               original.Amount,
			Method:               original.Method,
			ReceivedBy:           strings.TrimSpace(req.ProcessedBy),
			TransactionReference: original.TransactionReference,
			Status:               domain.PaymentStatusRefunded,
			RefundOfPaymentID:    &originalID,
			Notes:                strings.TrimSpace(req.Reason),
			PaymentDate:          now,
		}, now)
		if err != nil {
			return err
		}
		return recomputeFromLedger(ctx, repos, bill, false)
	})
	if err != nil {
		if domain.IsInputError(err) || domain.IsConflict(err) {
			s.reject("paymentService.RefundPayment", err, req.PaymentID)
		} else {
			logger.ExitMethodWithError("paymentService.RefundPayment", err, "paymentID", req.PaymentID)
		}
		return nil, nil, err
	}

	s.metrics.PaymentRefunded()
	publish(ctx, s.publisher, s.metrics, events.NewBillEvent(events.PaymentRefunded, bill, now).WithPayment(refund))

	logger.Info("Payment refunded", "paymentID", req.PaymentID, "refundNumber", refund.PaymentNumber,
		"billNumber", bill.BillNumber, "outstanding", bill.OutstandingBalance.StringFixed(2), "status", bill.Status)
	logger.ExitMethod("paymentService.RefundPayment", "refundID", refund.ID)
	return refund, bill, nil
}

func (s *paymentService) appendEntry(ctx context.Context, repos repository.Repositories, p *domain.Payment, now time.Time) (*domain.Payment, error) {
	seq, err := repos.Sequences.Next(ctx, domain.SequenceKindPayment, now.Year())
	if err != nil {
		return nil, fmt.Errorf("failed to allocate payment number: %w", err)
	}
	p.PaymentNumber = domain.FormatPaymentNumber(s.prefix, now.Year(), seq)
	if err := repos.Payments.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *paymentService) reject(method string, err error, id int64) {
	s.metrics.PaymentRejected(rejectionReason(err))
	logger.ExitMethodRejected(method, err, "id", id)
}

// recomputeFromLedger derives amount paid, outstanding balance and status
// from the bill's completed ledger entries and persists them. Only a payment
// moves a bill out of OVERDUE.
func recomputeFromLedger(ctx context.Context, repos repository.Repositories, bill *domain.Bill, payment bool) error {
	paid, err := repos.Payments.SumCompleted(ctx, bill.ID)
	if err != nil {
		return err
	}
	if payment {
		bill.ApplyLedgerTotal(paid)
	} else {
		bill.RecomputeBalance(paid)
	}
	return repos.Bills.UpdateBalance(ctx, bill)
}

func validatePayment(req ApplyPaymentRequest) error {
	if !req.Amount.IsPositive() {
		return fmt.Errorf("%w: got %s", domain.ErrInvalidAmount, req.Amount)
	}
	if !req.Amount.Equal(pricing.RoundMoney(req.Amount)) {
		return fmt.Errorf("%w: %s has more than %d decimal places", domain.ErrInvalidAmount, req.Amount, pricing.MoneyPlaces)
	}
	if !req.Method.Valid() {
		return fmt.Errorf("%w: unknown method %q", domain.ErrInvalidPayment, req.Method)
	}
	if strings.TrimSpace(req.ReceivedBy) == "" {
		return fmt.Errorf("%w: received by is required", domain.ErrInvalidPayment)
	}
	return nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, domain.ErrInvalidPayment):
		return "invalid_payment"
	case errors.Is(err, domain.ErrBillNotFound):
		return "bill_not_found"
	case errors.Is(err, domain.ErrPaymentNotFound):
		return "payment_not_found"
	case errors.Is(err, domain.ErrBillAlreadySettled):
		return "bill_settled"
	case errors.Is(err, domain.ErrOverpayment):
		return "overpayment"
	case errors.Is(err, domain.ErrPaymentNotRefundable):
		return "not_refundable"
	case errors.Is(err, domain.ErrConcurrentUpdate):
		return "concurrent_update"
	default:
		return "other"
	}
}
