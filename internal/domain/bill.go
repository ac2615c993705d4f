package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type BillStatus string

const (
	BillStatusUnpaid        BillStatus = "UNPAID"
	BillStatusPartiallyPaid BillStatus = "PARTIALLY_PAID"
	BillStatusPaid          BillStatus = "PAID"
	BillStatusOverdue       BillStatus = "OVERDUE"
	BillStatusCancelled     BillStatus = "CANCELLED"
)

// OpenBillStatuses are the statuses the overdue sweep may move to OVERDUE.
var OpenBillStatuses = []BillStatus{BillStatusUnpaid, BillStatusPartiallyPaid}

type Bill struct {
	ID                 int64           `json:"id"`
	BillNumber         string          `json:"bill_number"`
	ReadingID          int64           `json:"reading_id"`
	ConnectionID       int64           `json:"connection_id"`
	CustomerID         int64           `json:"customer_id"`
	TariffID           int64           `json:"tariff_id"`
	BillDate           time.Time       `json:"bill_date"`
	DueDate            time.Time       `json:"due_date"`
	PeriodStart        time.Time       `json:"period_start"`
	PeriodEnd          time.Time       `json:"period_end"`
	Consumption        decimal.Decimal `json:"consumption"`
	// Tariff snapshot captured at generation time. Later tariff changes never
	// alter an issued bill.
	RatePerUnit        decimal.Decimal `json:"rate_per_unit"`
	FixedCharge        decimal.Decimal `json:"fixed_charge"`
	ConsumptionCharge  decimal.Decimal `json:"consumption_charge"`
	LateFee            decimal.Decimal `json:"late_fee"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	AmountPaid         decimal.Decimal `json:"amount_paid"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	Status             BillStatus      `json:"status"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// IsSettled reports whether the bill is in a terminal state.
func (b *Bill) IsSettled() bool {
	return b.Status == BillStatusPaid || b.Status == BillStatusCancelled
}

// PrincipalOutstanding is the unpaid part of the bill excluding any late fee
// already applied.
func (b *Bill) PrincipalOutstanding() decimal.Decimal {
	p := b.OutstandingBalance.Sub(b.LateFee)
	if p.IsNegative() {
		return decimal.Zero
	}
	return p
}

// SetLateFee replaces the applied late fee and recomputes the total.
// Callers must follow with RecomputeBalance to refresh balance and status.
func (b *Bill) SetLateFee(fee decimal.Decimal) {
	b.LateFee = fee
	b.TotalAmount = b.ConsumptionCharge.Add(b.FixedCharge).Add(fee)
}

// ApplyLedgerTotal sets the amount paid to the sum of completed ledger entries
// after a payment and derives the outstanding balance and status from it.
// A payment is the only way a bill leaves OVERDUE.
func (b *Bill) ApplyLedgerTotal(paid decimal.Decimal) {
	b.setPaid(paid)
	b.Status = b.statusFor(paid, false)
}

// RecomputeBalance refreshes amount paid and outstanding balance after a
// change that is not a payment (a late fee or a refund). An OVERDUE bill
// stays OVERDUE unless nothing is left to pay.
func (b *Bill) RecomputeBalance(paid decimal.Decimal) {
	b.setPaid(paid)
	b.Status = b.statusFor(paid, b.Status == BillStatusOverdue)
}

func (b *Bill) setPaid(paid decimal.Decimal) {
	b.AmountPaid = paid
	b.OutstandingBalance = b.TotalAmount.Sub(paid)
}

func (b *Bill) statusFor(paid decimal.Decimal, keepOverdue bool) BillStatus {
	switch {
	case b.Status == BillStatusCancelled:
		return BillStatusCancelled
	case !b.OutstandingBalance.IsPositive():
		return BillStatusPaid
	case keepOverdue:
		return BillStatusOverdue
	case paid.IsPositive():
		return BillStatusPartiallyPaid
	case b.Status == BillStatusOverdue:
		return BillStatusOverdue
	default:
		// Nothing paid (or every payment refunded).
		return BillStatusUnpaid
	}
}

// FormatBillNumber renders the externally visible bill number, e.g. BILL-2026-0042.
func FormatBillNumber(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, year, seq)
}
