package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"utilbill-backend/internal/domain"
	"utilbill-backend/internal/repository/postgres"
)

func TestPaymentRepository_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewPaymentRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		now := time.Now()
		p := &domain.Payment{
			PaymentNumber: "PAY-2026-000001",
			BillID:        11,
			CustomerID:    2,
			Amount:        decimal.RequireFromString("800.00"),
			Method:        domain.PaymentMethodCash,
			ReceivedBy:    "cashier-1",
			Status:        domain.PaymentStatusCompleted,
			PaymentDate:   now,
		}

		mock.ExpectQuery("INSERT INTO payments").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(21), now, now))

		require.NoError(t, repo.Create(ctx, p))
		assert.Equal(t, int64(21), p.ID)
	})

	t.Run("Second refund of the same payment", func(t *testing.T) {
		original := int64(21)
		refund := &domain.Payment{
			PaymentNumber:     "PAY-2026-000002",
			BillID:            11,
			Amount:            decimal.RequireFromString("800.00"),
			Method:            domain.PaymentMethodCash,
			ReceivedBy:        "supervisor",
			Status:            domain.PaymentStatusRefunded,
			RefundOfPaymentID: &original,
		}

		mock.ExpectQuery("INSERT INTO payments").
			WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})

		err := repo.Create(ctx, refund)
		assert.ErrorIs(t, err, domain.ErrPaymentNotRefundable)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_SumCompleted(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewPaymentRepository(db)

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount\\), 0\\) FROM payments WHERE bill_id = \\$1 AND status = 'COMPLETED'").
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("2000.00"))

	total, err := repo.SumCompleted(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, "2000.00", total.StringFixed(2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_ListByBill(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewPaymentRepository(db)
	now := time.Now()

	cols := []string{
		"id", "payment_number", "bill_id", "customer_id", "amount", "method", "received_by",
		"transaction_reference", "status", "refund_of_payment_id", "notes",
		"payment_date", "created_at", "updated_at",
	}
	mock.ExpectQuery("FROM payments WHERE bill_id = \\$1 ORDER BY payment_date, id").
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(21), "PAY-2026-000001", int64(11), int64(2), "800.00", "CARD", "cashier-1",
				"TXN-9", "REFUNDED", nil, "", now, now, now).
			AddRow(int64(22), "PAY-2026-000002", int64(11), int64(2), "800.00", "CARD", "supervisor",
				nil, "REFUNDED", int64(21), "duplicate charge", now, now, now))

	payments, err := repo.ListByBill(context.Background(), 11)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	require.NotNil(t, payments[0].TransactionReference)
	assert.Equal(t, "TXN-9", *payments[0].TransactionReference)
	assert.Nil(t, payments[0].RefundOfPaymentID)
	require.NotNil(t, payments[1].RefundOfPaymentID)
	assert.Equal(t, int64(21), *payments[1].RefundOfPaymentID)
	assert.Equal(t, "duplicate charge", payments[1].Notes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_UpdateStatus(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewPaymentRepository(db)

	mock.ExpectExec("UPDATE payments SET status = \\$1").
		WithArgs(domain.PaymentStatusRefunded, sqlmock.AnyArg(), int64(21)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), 21, domain.PaymentStatusRefunded)
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
