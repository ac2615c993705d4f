package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"utilbill-backend/internal/domain"
)

// GenerateBillRequest asks for the bill of one reading. A nil DueDate means
// reading date plus the configured default term.
type GenerateBillRequest struct {
	ReadingID int64
	DueDate   *time.Time
}

type ApplyPaymentRequest struct {
	BillID     int64
	Amount     decimal.Decimal
	Method     domain.PaymentMethod
	ReceivedBy string
	Reference  *string
}

type RefundPaymentRequest struct {
	PaymentID   int64
	ProcessedBy string
	Reason      string
}

// RecordReadingRequest submits a meter reading. A nil PreviousValue is filled
// from the meter's latest reading (zero for the first one).
type RecordReadingRequest struct {
	MeterID       int64
	ReadingDate   time.Time
	Type          domain.ReadingType
	PreviousValue *decimal.Decimal
	CurrentValue  decimal.Decimal
	RecordedBy    string
}

// GenerationResult is the outcome of one reading in a bulk run.
type GenerationResult struct {
	ReadingID int64        `json:"reading_id"`
	Bill      *domain.Bill `json:"bill,omitempty"`
	Err       error        `json:"-"`
	Error     string       `json:"error,omitempty"`
}

type BulkGenerationSummary struct {
	Attempted int                `json:"attempted"`
	Generated int                `json:"generated"`
	Skipped   int                `json:"skipped"`
	Failed    int                `json:"failed"`
	Results   []GenerationResult `json:"results"`
}

type SweepResult struct {
	RunID           string `json:"run_id"`
	Candidates      int    `json:"candidates"`
	Transitioned    int    `json:"transitioned"`
	LateFeesApplied int    `json:"late_fees_applied"`
	Failed          int    `json:"failed"`
}

type TariffResolver interface {
	Resolve(ctx context.Context, utility domain.UtilityType, class domain.CustomerClass, asOf time.Time) (*domain.TariffPlan, error)
}

type ReadingService interface {
	RecordReading(ctx context.Context, req RecordReadingRequest) (*domain.MeterReading, error)
}

type BillingService interface {
	GenerateBill(ctx context.Context, req GenerateBillRequest) (*domain.Bill, error)
	GenerateBills(ctx context.Context, readingIDs []int64) []GenerationResult
	GeneratePendingBills(ctx context.Context) (*BulkGenerationSummary, error)
	GetBill(ctx context.Context, billID int64) (*domain.Bill, error)
	ListPayments(ctx context.Context, billID int64) ([]domain.Payment, error)
	PreviewLateFee(ctx context.Context, billID int64, asOf time.Time) (decimal.Decimal, error)
	ApplyLateFee(ctx context.Context, billID int64, asOf time.Time) (*domain.Bill, bool, error)
}

type PaymentService interface {
	ApplyPayment(ctx context.Context, req ApplyPaymentRequest) (*domain.Payment, *domain.Bill, error)
	RefundPayment(ctx context.Context, req RefundPaymentRequest) (*domain.Payment, *domain.Bill, error)
}

type OverdueSweeper interface {
	// Sweep moves every qualifying bill to OVERDUE. A zero asOf means now.
	Sweep(ctx context.Context, asOf time.Time) (*SweepResult, error)
}

// Clock returns the current time. A nil Clock means time.Now.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
