package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"utilbill-backend/internal/domain"
	"utilbill-backend/internal/logger"
	"utilbill-backend/internal/repository"
)

type billRepository struct {
	db DBTX
}

func NewBillRepository(db DBTX) repository.BillRepository {
	return &billRepository{db: db}
}

const billColumns = `
	id, bill_number, reading_id, connection_id, customer_id, tariff_id,
	bill_date, due_date, period_start, period_end,
	consumption, rate_per_unit, fixed_charge, consumption_charge, late_fee,
	total_amount, amount_paid, outstanding_balance, status, created_at, updated_at`

func scanBill(row rowScanner) (*domain.Bill, error) {
	b := &domain.Bill{}
	err := row.Scan(
		&b.ID, &b.BillNumber, &b.ReadingID, &b.ConnectionID, &b.CustomerID, &b.TariffID,
		&b.BillDate, &b.DueDate, &b.PeriodStart, &b.PeriodEnd,
		&b.Consumption, &b.RatePerUnit, &b.FixedCharge, &b.ConsumptionCharge, &b.LateFee,
		&b.TotalAmount, &b.AmountPaid, &b.OutstandingBalance, &b.Status, &b.CreatedAt, &b.UpdatedAt,
	)
	return b, err
}

func openStatuses() any {
	strs := make([]string, len(domain.OpenBillStatuses))
	for i, s := range domain.OpenBillStatuses {
		strs[i] = string(s)
	}
	return pq.Array(strs)
}

func (r *billRepository) Create(ctx context.Context, bill *domain.Bill) error {
	logger.EnterMethod("billRepository.Create", "readingID", bill.ReadingID, "billNumber", bill.BillNumber)

	// A concurrent generation for the same reading inserts nothing and
	// returns no row rather than aborting the transaction.
	query := `
		INSERT INTO bills (
			bill_number, reading_id, connection_id, customer_id, tariff_id,
			bill_date, due_date, period_start, period_end,
			consumption, rate_per_unit, fixed_charge, consumption_charge, late_fee,
			total_amount, amount_paid, outstanding_balance, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (reading_id) DO NOTHING
		RETURNING id, created_at, updated_at
	`
	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		bill.BillNumber, bill.ReadingID, bill.ConnectionID, bill.CustomerID, bill.TariffID,
		bill.BillDate, bill.DueDate, bill.PeriodStart, bill.PeriodEnd,
		bill.Consumption, bill.RatePerUnit, bill.FixedCharge, bill.ConsumptionCharge, bill.LateFee,
		bill.TotalAmount, bill.AmountPaid, bill.OutstandingBalance, bill.Status, now, now,
	).Scan(&bill.ID, &bill.CreatedAt, &bill.UpdatedAt)

	if err != nil {
		logger.ExitMethodWithError("billRepository.Create", err, "readingID", bill.ReadingID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: reading %d", domain.ErrBillAlreadyExists, bill.ReadingID)
		}
		return mapError(err)
	}

	logger.ExitMethod("billRepository.Create", "billID", bill.ID)
	return nil
}

func (r *billRepository) GetByID(ctx context.Context, id int64) (*domain.Bill, error) {
	return r.get(ctx, `SELECT`+billColumns+` FROM bills WHERE id = $1`, id)
}

func (r *billRepository) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Bill, error) {
	return r.get(ctx, `SELECT`+billColumns+` FROM bills WHERE id = $1 FOR UPDATE`, id)
}

func (r *billRepository) get(ctx context.Context, query string, id int64) (*domain.Bill, error) {
	logger.EnterMethod("billRepository.GetByID", "billID", id)

	bill, err := scanBill(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		logger.ExitMethodWithError("billRepository.GetByID", err, "billID", id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", domain.ErrBillNotFound, id)
		}
		return nil, mapError(err)
	}

	logger.ExitMethod("billRepository.GetByID", "billID", id, "status", bill.Status)
	return bill, nil
}

func (r *billRepository) ExistsForReading(ctx context.Context, readingID int64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM bills WHERE reading_id = $1)`
	if err := r.db.QueryRowContext(ctx, query, readingID).Scan(&exists); err != nil {
		return false, mapError(err)
	}
	return exists, nil
}

func (r *billRepository) UpdateBalance(ctx context.Context, bill *domain.Bill) error {
	logger.EnterMethod("billRepository.UpdateBalance", "billID", bill.ID, "status", bill.Status)

	query := `
		UPDATE bills SET
			late_fee = $1,
			total_amount = $2,
			amount_paid = $3,
			outstanding_balance = $4,
			status = $5,
			updated_at = $6
		WHERE id = $7
	`
	now := time.Now()
	res, err := r.db.ExecContext(ctx, query,
		bill.LateFee, bill.TotalAmount, bill.AmountPaid, bill.OutstandingBalance, bill.Status, now, bill.ID,
	)
	if err != nil {
		logger.ExitMethodWithError("billRepository.UpdateBalance", err, "billID", bill.ID)
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", domain.ErrBillNotFound, bill.ID)
	}
	bill.UpdatedAt = now

	logger.ExitMethod("billRepository.UpdateBalance", "billID", bill.ID)
	return nil
}

func (r *billRepository) ListOverdueCandidates(ctx context.Context, asOf time.Time, limit int) ([]int64, error) {
	query := `
		SELECT id FROM bills
		WHERE status = ANY($1) AND due_date < $2 AND outstanding_balance > 0
		ORDER BY due_date, id
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, openStatuses(), domain.DateOf(asOf), limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

func (r *billRepository) MarkOverdue(ctx context.Context, id int64, asOf time.Time) (bool, error) {
	logger.DatabaseCall("MarkOverdue", "UPDATE bills SET status = OVERDUE", "billID", id)

	// The full predicate is re-checked here; a payment that landed after the
	// candidate scan leaves the row untouched.
	query := `
		UPDATE bills SET status = 'OVERDUE', updated_at = $4
		WHERE id = $1 AND status = ANY($3) AND due_date < $2 AND outstanding_balance > 0
	`
	res, err := r.db.ExecContext(ctx, query, id, domain.DateOf(asOf), openStatuses(), time.Now())
	if err != nil {
		logger.DatabaseResult("MarkOverdue", 0, err, "billID", id)
		return false, mapError(err)
	}

	n, err := res.RowsAffected()
	logger.DatabaseResult("MarkOverdue", n, err, "billID", id)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *billRepository) ListOverdueWithBalance(ctx context.Context, limit int) ([]int64, error) {
	query := `
		SELECT id FROM bills
		WHERE status = 'OVERDUE' AND outstanding_balance > 0
		ORDER BY due_date, id
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	return scanIDs(rows)
}
