package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"utilbill-backend/internal/logger"
)

// schemaStatements create the billing schema. customers, service_connections,
// meters and tariffs are owned by upstream registries and created here only so
// a fresh database is usable.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		id            BIGSERIAL PRIMARY KEY,
		name          TEXT NOT NULL,
		customer_type TEXT NOT NULL CHECK (customer_type IN ('RESIDENTIAL', 'COMMERCIAL', 'INDUSTRIAL', 'GOVERNMENT'))
	)`,
	`CREATE TABLE IF NOT EXISTS service_connections (
		id           BIGSERIAL PRIMARY KEY,
		customer_id  BIGINT NOT NULL REFERENCES customers(id),
		utility_type TEXT NOT NULL CHECK (utility_type IN ('ELECTRICITY', 'WATER', 'GAS')),
		status       TEXT NOT NULL CHECK (status IN ('ACTIVE', 'INACTIVE', 'SUSPENDED', 'DISCONNECTED'))
	)`,
	`CREATE TABLE IF NOT EXISTS meters (
		id            BIGSERIAL PRIMARY KEY,
		connection_id BIGINT NOT NULL REFERENCES service_connections(id),
		serial_number TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS tariffs (
		id             BIGSERIAL PRIMARY KEY,
		utility_type   TEXT NOT NULL,
		customer_type  TEXT NOT NULL,
		rate_per_unit  NUMERIC(12,4) NOT NULL CHECK (rate_per_unit >= 0),
		fixed_charge   NUMERIC(14,2) NOT NULL DEFAULT 0 CHECK (fixed_charge >= 0),
		effective_from DATE NOT NULL,
		effective_to   DATE,
		is_active      BOOLEAN NOT NULL DEFAULT TRUE,
		CHECK (effective_to IS NULL OR effective_to >= effective_from)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tariffs_lookup ON tariffs (utility_type, customer_type, effective_from) WHERE is_active`,
	`CREATE TABLE IF NOT EXISTS meter_readings (
		id             BIGSERIAL PRIMARY KEY,
		meter_id       BIGINT NOT NULL REFERENCES meters(id),
		reading_date   DATE NOT NULL,
		reading_type   TEXT NOT NULL CHECK (reading_type IN ('ACTUAL', 'ESTIMATED', 'CUSTOMER_SUBMITTED')),
		previous_value NUMERIC(14,3) NOT NULL,
		current_value  NUMERIC(14,3) NOT NULL,
		recorded_by    TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (current_value >= previous_value),
		UNIQUE (meter_id, reading_date)
	)`,
	`CREATE TABLE IF NOT EXISTS bills (
		id                  BIGSERIAL PRIMARY KEY,
		bill_number         TEXT NOT NULL UNIQUE,
		reading_id          BIGINT NOT NULL UNIQUE REFERENCES meter_readings(id),
		connection_id       BIGINT NOT NULL REFERENCES service_connections(id),
		customer_id         BIGINT NOT NULL REFERENCES customers(id),
		tariff_id           BIGINT NOT NULL REFERENCES tariffs(id),
		bill_date           DATE NOT NULL,
		due_date            DATE NOT NULL,
		period_start        DATE NOT NULL,
		period_end          DATE NOT NULL,
		consumption         NUMERIC(14,3) NOT NULL CHECK (consumption >= 0),
		rate_per_unit       NUMERIC(12,4) NOT NULL,
		fixed_charge        NUMERIC(14,2) NOT NULL,
		consumption_charge  NUMERIC(14,2) NOT NULL,
		late_fee            NUMERIC(14,2) NOT NULL DEFAULT 0 CHECK (late_fee >= 0),
		total_amount        NUMERIC(14,2) NOT NULL,
		amount_paid         NUMERIC(14,2) NOT NULL DEFAULT 0 CHECK (amount_paid >= 0),
		outstanding_balance NUMERIC(14,2) NOT NULL,
		status              TEXT NOT NULL CHECK (status IN ('UNPAID', 'PARTIALLY_PAID', 'PAID', 'OVERDUE', 'CANCELLED')),
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (due_date >= period_end),
		CHECK (outstanding_balance = total_amount - amount_paid)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bills_overdue_scan ON bills (due_date) WHERE status IN ('UNPAID', 'PARTIALLY_PAID')`,
	`CREATE INDEX IF NOT EXISTS idx_bills_customer ON bills (customer_id)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id                    BIGSERIAL PRIMARY KEY,
		payment_number        TEXT NOT NULL UNIQUE,
		bill_id               BIGINT NOT NULL REFERENCES bills(id),
		customer_id           BIGINT NOT NULL REFERENCES customers(id),
		amount                NUMERIC(14,2) NOT NULL CHECK (amount > 0),
		method                TEXT NOT NULL CHECK (method IN ('CASH', 'CARD', 'BANK_TRANSFER', 'ONLINE', 'CHEQUE')),
		received_by           TEXT NOT NULL,
		transaction_reference TEXT,
		status                TEXT NOT NULL CHECK (status IN ('PENDING', 'COMPLETED', 'FAILED', 'REFUNDED')),
		refund_of_payment_id  BIGINT REFERENCES payments(id),
		notes                 TEXT,
		payment_date          TIMESTAMPTZ NOT NULL,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_bill ON payments (bill_id, status)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_single_refund ON payments (refund_of_payment_id) WHERE refund_of_payment_id IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS document_sequences (
		kind       TEXT NOT NULL,
		year       INT NOT NULL,
		last_value BIGINT NOT NULL,
		PRIMARY KEY (kind, year)
	)`,
}

// Migrate creates every table and index that does not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	logger.Info("Applying database schema", "statements", len(schemaStatements))

	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d failed: %w", i+1, err)
		}
	}
	return nil
}
