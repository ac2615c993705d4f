package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"utilbill-backend/internal/domain"
	"utilbill-backend/internal/logger"
	"utilbill-backend/internal/repository"
)

type paymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) repository.PaymentRepository {
	return &paymentRepository{db: db}
}

const paymentColumns = `
	id, payment_number, bill_id, customer_id, amount, method, received_by,
	transaction_reference, status, refund_of_payment_id, COALESCE(notes, ''),
	payment_date, created_at, updated_at`

func scanPayment(row rowScanner) (*domain.Payment, error) {
	p := &domain.Payment{}
	var reference sql.NullString
	var refundOf sql.NullInt64
	err := row.Scan(
		&p.ID, &p.PaymentNumber, &p.BillID, &p.CustomerID, &p.Amount, &p.Method, &p.ReceivedBy,
		&reference, &p.Status, &refundOf, &p.Notes,
		&p.PaymentDate, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if reference.Valid {
		p.TransactionReference = &reference.String
	}
	if refundOf.Valid {
		p.RefundOfPaymentID = &refundOf.Int64
	}
	return p, nil
}

func (r *paymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	logger.EnterMethod("paymentRepository.Create", "billID", payment.BillID, "amount", payment.Amount)

	query := `
		INSERT INTO payments (
			payment_number, bill_id, customer_id, amount, method, received_by,
			transaction_reference, status, refund_of_payment_id, notes,
			payment_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`
	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		payment.PaymentNumber, payment.BillID, payment.CustomerID, payment.Amount, payment.Method, payment.ReceivedBy,
		payment.TransactionReference, payment.Status, payment.RefundOfPaymentID, payment.Notes,
		payment.PaymentDate, now, now,
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)

	if err != nil {
		logger.ExitMethodWithError("paymentRepository.Create", err, "billID", payment.BillID)
		if isUniqueViolation(err) && payment.RefundOfPaymentID != nil {
			return fmt.Errorf("%w: payment %d already refunded", domain.ErrPaymentNotRefundable, *payment.RefundOfPaymentID)
		}
		return mapError(err)
	}

	logger.ExitMethod("paymentRepository.Create", "paymentID", payment.ID, "paymentNumber", payment.PaymentNumber)
	return nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id int64) (*domain.Payment, error) {
	return r.get(ctx, `SELECT`+paymentColumns+` FROM payments WHERE id = $1`, id)
}

func (r *paymentRepository) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Payment, error) {
	return r.get(ctx, `SELECT`+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id)
}

func (r *paymentRepository) get(ctx context.Context, query string, id int64) (*domain.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", domain.ErrPaymentNotFound, id)
		}
		return nil, mapError(err)
	}
	return p, nil
}

func (r *paymentRepository) UpdateStatus(ctx context.Context, id int64, status domain.PaymentStatus) error {
	query := `UPDATE payments SET status = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", domain.ErrPaymentNotFound, id)
	}
	return nil
}

func (r *paymentRepository) SumCompleted(ctx context.Context, billID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	query := `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE bill_id = $1 AND status = 'COMPLETED'`
	if err := r.db.QueryRowContext(ctx, query, billID).Scan(&total); err != nil {
		return decimal.Zero, mapError(err)
	}
	return total, nil
}

func (r *paymentRepository) ListByBill(ctx context.Context, billID int64) ([]domain.Payment, error) {
	query := `SELECT` + paymentColumns + ` FROM payments WHERE bill_id = $1 ORDER BY payment_date, id`
	rows, err := r.db.QueryContext(ctx, query, billID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}
