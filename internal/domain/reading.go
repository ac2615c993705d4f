package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type ReadingType string

const (
	ReadingTypeActual            ReadingType = "ACTUAL"
	ReadingTypeEstimated         ReadingType = "ESTIMATED"
	ReadingTypeCustomerSubmitted ReadingType = "CUSTOMER_SUBMITTED"
)

func (t ReadingType) Valid() bool {
	switch t {
	case ReadingTypeActual, ReadingTypeEstimated, ReadingTypeCustomerSubmitted:
		return true
	}
	return false
}

type MeterReading struct {
	ID            int64           `json:"id"`
	MeterID       int64           `json:"meter_id"`
	ReadingDate   time.Time       `json:"reading_date"`
	ReadingType   ReadingType     `json:"reading_type"`
	PreviousValue decimal.Decimal `json:"previous_value"`
	CurrentValue  decimal.Decimal `json:"current_value"`
	RecordedBy    string          `json:"recorded_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Consumption returns current - previous, failing when the meter went backwards.
func (r *MeterReading) Consumption() (decimal.Decimal, error) {
	c := r.CurrentValue.Sub(r.PreviousValue)
	if c.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: reading %d has current %s below previous %s",
			ErrNegativeConsumption, r.ID, r.CurrentValue, r.PreviousValue)
	}
	return c, nil
}
