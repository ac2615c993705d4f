package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodCard         PaymentMethod = "CARD"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodOnline       PaymentMethod = "ONLINE"
	PaymentMethodCheque       PaymentMethod = "CHEQUE"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodOnline, PaymentMethodCheque:
		return true
	}
	return false
}

// Payment is one entry of a bill's append-only ledger. The only mutation ever
// made to a stored entry is COMPLETED -> REFUNDED.
type Payment struct {
	ID                   int64           `json:"id"`
	PaymentNumber        string          `json:"payment_number"`
	BillID               int64           `json:"bill_id"`
	CustomerID           int64           `json:"customer_id"`
	Amount               decimal.Decimal `json:"amount"`
	Method               PaymentMethod   `json:"method"`
	ReceivedBy           string          `json:"received_by"`
	TransactionReference *string         `json:"transaction_reference,omitempty"`
	Status               PaymentStatus   `json:"status"`
	RefundOfPaymentID    *int64          `json:"refund_of_payment_id,omitempty"`
	Notes                string          `json:"notes,omitempty"`
	PaymentDate          time.Time       `json:"payment_date"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Refundable reports whether this entry is a completed payment that has not
// been reversed yet.
func (p *Payment) Refundable() bool {
	return p.Status == PaymentStatusCompleted && p.RefundOfPaymentID == nil
}

// SumCompleted totals the COMPLETED entries of a ledger.
func SumCompleted(ledger []Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range ledger {
		if p.Status == PaymentStatusCompleted {
			total = total.Add(p.Amount)
		}
	}
	return total
}

// FormatPaymentNumber renders the externally visible payment number, e.g. PAY-2026-000017.
func FormatPaymentNumber(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%06d", prefix, year, seq)
}

type SequenceKind string

const (
	SequenceKindBill    SequenceKind = "BILL"
	SequenceKindPayment SequenceKind = "PAYMENT"
)
