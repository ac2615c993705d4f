package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"utilbill-backend/internal/domain"
)

type ReadingRepository interface {
	// Create fails with domain.ErrDuplicateReading when the meter already has a reading on that date.
	Create(ctx context.Context, reading *domain.MeterReading) error
	GetByID(ctx context.Context, id int64) (*domain.MeterReading, error)
	// GetLatestForMeter returns the newest reading strictly before the given date, or nil.
	GetLatestForMeter(ctx context.Context, meterID int64, before time.Time) (*domain.MeterReading, error)
	GetBillingContext(ctx context.Context, readingID int64) (*domain.BillingContext, error)
	ListUnbilled(ctx context.Context, types []domain.ReadingType, limit int) ([]int64, error)
}

type MeterRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Meter, error)
}

type TariffRepository interface {
	// ListApplicable returns at most limit active plans in force on the given date.
	ListApplicable(ctx context.Context, utility domain.UtilityType, class domain.CustomerClass, asOf time.Time, limit int) ([]domain.TariffPlan, error)
}

type BillRepository interface {
	// Create fails with domain.ErrBillAlreadyExists when the reading is already billed.
	Create(ctx context.Context, bill *domain.Bill) error
	GetByID(ctx context.Context, id int64) (*domain.Bill, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*domain.Bill, error)
	ExistsForReading(ctx context.Context, readingID int64) (bool, error)
	// UpdateBalance persists late fee, total, amount paid, outstanding balance and status.
	UpdateBalance(ctx context.Context, bill *domain.Bill) error
	ListOverdueCandidates(ctx context.Context, asOf time.Time, limit int) ([]int64, error)
	// MarkOverdue moves one bill to OVERDUE only if it still qualifies. It reports whether a row changed.
	MarkOverdue(ctx context.Context, id int64, asOf time.Time) (bool, error)
	ListOverdueWithBalance(ctx context.Context, limit int) ([]int64, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	GetByID(ctx context.Context, id int64) (*domain.Payment, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*domain.Payment, error)
	UpdateStatus(ctx context.Context, id int64, status domain.PaymentStatus) error
	SumCompleted(ctx context.Context, billID int64) (decimal.Decimal, error)
	ListByBill(ctx context.Context, billID int64) ([]domain.Payment, error)
}

type SequenceRepository interface {
	// Next atomically increments and returns the counter for (kind, year), starting at 1.
	Next(ctx context.Context, kind domain.SequenceKind, year int) (int64, error)
}

// Repositories groups the repositories bound to one connection or transaction.
type Repositories struct {
	Readings  ReadingRepository
	Meters    MeterRepository
	Tariffs   TariffRepository
	Bills     BillRepository
	Payments  PaymentRepository
	Sequences SequenceRepository
}

// Store hands out repositories and runs units of work atomically.
type Store interface {
	// Repos returns repositories that run outside any transaction.
	Repos() Repositories
	// WithinTx runs fn in a single transaction, committing when fn returns nil
	// and rolling back otherwise.
	WithinTx(ctx context.Context, fn func(Repositories) error) error
}
