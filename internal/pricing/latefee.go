package pricing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"utilbill-backend/internal/config"
	"utilbill-backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// LateFeePolicy turns an overdue principal and a day count into a surcharge.
// Implementations must be pure.
type LateFeePolicy interface {
	Fee(principal decimal.Decimal, daysOverdue int) decimal.Decimal
}

// NoLateFee never charges.
type NoLateFee struct{}

func (NoLateFee) Fee(decimal.Decimal, int) decimal.Decimal { return decimal.Zero }

// FlatLateFee charges a fixed amount once the bill is overdue.
type FlatLateFee struct {
	Amount decimal.Decimal
}

func (p FlatLateFee) Fee(_ decimal.Decimal, daysOverdue int) decimal.Decimal {
	if daysOverdue <= 0 {
		return decimal.Zero
	}
	return p.Amount
}

// PercentageLateFee charges a percentage of the principal outstanding.
type PercentageLateFee struct {
	Percent decimal.Decimal
}

func (p PercentageLateFee) Fee(principal decimal.Decimal, daysOverdue int) decimal.Decimal {
	if daysOverdue <= 0 {
		return decimal.Zero
	}
	return principal.Mul(p.Percent).Div(hundred)
}

// DailyLateFee accrues a fixed amount per whole day past due.
type DailyLateFee struct {
	PerDay decimal.Decimal
}

func (p DailyLateFee) Fee(_ decimal.Decimal, daysOverdue int) decimal.Decimal {
	if daysOverdue <= 0 {
		return decimal.Zero
	}
	return p.PerDay.Mul(decimal.NewFromInt(int64(daysOverdue)))
}

// CappedLateFee limits another policy to Max.
type CappedLateFee struct {
	Policy LateFeePolicy
	Max    decimal.Decimal
}

func (p CappedLateFee) Fee(principal decimal.Decimal, daysOverdue int) decimal.Decimal {
	return decimal.Min(p.Policy.Fee(principal, daysOverdue), p.Max)
}

// PolicyFromConfig builds the configured late fee policy
func PolicyFromConfig(cfg config.LateFeeConfig) (LateFeePolicy, error) {
	parse := func(name, v string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid late fee %s %q: %w", name, v, err)
		}
		return d, nil
	}

	var policy LateFeePolicy
	switch cfg.Strategy {
	case "", "none":
		return NoLateFee{}, nil
	case "flat":
		amount, err := parse("flat_amount", cfg.FlatAmount)
		if err != nil {
			return nil, err
		}
		policy = FlatLateFee{Amount: amount}
	case "percentage":
		pct, err := parse("percentage", cfg.Percentage)
		if err != nil {
			return nil, err
		}
		policy = PercentageLateFee{Percent: pct}
	case "daily":
		perDay, err := parse("daily_amount", cfg.DailyAmount)
		if err != nil {
			return nil, err
		}
		policy = DailyLateFee{PerDay: perDay}
	default:
		return nil, fmt.Errorf("unknown late fee strategy: %s", cfg.Strategy)
	}

	if cfg.MaxAmount != "" {
		max, err := parse("max_amount", cfg.MaxAmount)
		if err != nil {
			return nil, err
		}
		policy = CappedLateFee{Policy: policy, Max: max}
	}
	return policy, nil
}

// LateFeeCalculator evaluates the late fee owed on a bill at a given date.
// It never mutates the bill; callers decide whether to display or apply it.
type LateFeeCalculator struct {
	policy    LateFeePolicy
	graceDays int
}

func NewLateFeeCalculator(policy LateFeePolicy, graceDays int) *LateFeeCalculator {
	if policy == nil {
		policy = NoLateFee{}
	}
	return &LateFeeCalculator{policy: policy, graceDays: graceDays}
}

// DaysOverdue returns the whole days from the due date to the evaluation date, never negative
func DaysOverdue(b *domain.Bill, evaluation time.Time) int {
	return domain.DaysBetween(b.DueDate, evaluation)
}

// LateFee returns the surcharge owed on b at the evaluation date.
// It is zero on or before the due date, inside the grace period, for PAID or
// CANCELLED bills and for bills with nothing outstanding.
func (c *LateFeeCalculator) LateFee(b *domain.Bill, evaluation time.Time) decimal.Decimal {
	if b.IsSettled() || !b.OutstandingBalance.IsPositive() {
		return decimal.Zero
	}

	days := DaysOverdue(b, evaluation)
	if days <= c.graceDays {
		return decimal.Zero
	}

	fee := RoundMoney(c.policy.Fee(b.PrincipalOutstanding(), days))
	if fee.IsNegative() {
		return decimal.Zero
	}
	return fee
}
