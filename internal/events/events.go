package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"utilbill-backend/internal/domain"
)

type EventType string

const (
	BillGenerated      EventType = "bill.generated"
	PaymentApplied     EventType = "payment.applied"
	PaymentRefunded    EventType = "payment.refunded"
	BillOverdue        EventType = "bill.overdue"
	BillLateFeeApplied EventType = "bill.late_fee_applied"
)

// Event is the JSON payload published after a billing transaction commits.
type Event struct {
	ID                 string            `json:"id"`
	Type               EventType         `json:"type"`
	OccurredAt         time.Time         `json:"occurred_at"`
	BillID             int64             `json:"bill_id"`
	BillNumber         string            `json:"bill_number"`
	CustomerID         int64             `json:"customer_id"`
	BillStatus         domain.BillStatus `json:"bill_status"`
	TotalAmount        decimal.Decimal   `json:"total_amount"`
	AmountPaid         decimal.Decimal   `json:"amount_paid"`
	OutstandingBalance decimal.Decimal   `json:"outstanding_balance"`
	LateFee            decimal.Decimal   `json:"late_fee"`
	PaymentID          int64             `json:"payment_id,omitempty"`
	PaymentNumber      string            `json:"payment_number,omitempty"`
	PaymentAmount      *decimal.Decimal  `json:"payment_amount,omitempty"`
}

// NewBillEvent snapshots the bill's balances into an event of the given type.
func NewBillEvent(eventType EventType, bill *domain.Bill, at time.Time) Event {
	return Event{
		ID:                 uuid.NewString(),
		Type:               eventType,
		OccurredAt:         at,
		BillID:             bill.ID,
		BillNumber:         bill.BillNumber,
		CustomerID:         bill.CustomerID,
		BillStatus:         bill.Status,
		TotalAmount:        bill.TotalAmount,
		AmountPaid:         bill.AmountPaid,
		OutstandingBalance: bill.OutstandingBalance,
		LateFee:            bill.LateFee,
	}
}

// WithPayment attaches the ledger entry that caused the event.
func (e Event) WithPayment(p *domain.Payment) Event {
	amount := p.Amount
	e.PaymentID = p.ID
	e.PaymentNumber = p.PaymentNumber
	e.PaymentAmount = &amount
	return e
}

// Publisher delivers events downstream. Publish is only called after the
// owning transaction committed, so a failure never undoes billing state.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher drops every event. It is used when events are disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
