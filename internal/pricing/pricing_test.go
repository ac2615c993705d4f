package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"utilbill-backend/internal/config"
	"utilbill-backend/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalculateCharges(t *testing.T) {
	t.Run("consumption times rate plus fixed charge", func(t *testing.T) {
		tariff := &domain.TariffPlan{RatePerUnit: dec("15.00"), FixedCharge: dec("500.00")}
		b := CalculateCharges(dec("100"), tariff)
		assert.True(t, dec("1500.00").Equal(b.ConsumptionCharge))
		assert.True(t, dec("500.00").Equal(b.FixedCharge))
		assert.True(t, dec("2000.00").Equal(b.Total))
	})

	t.Run("Zero consumption bills the fixed charge", func(t *testing.T) {
		tariff := &domain.TariffPlan{RatePerUnit: dec("15.00"), FixedCharge: dec("500.00")}
		b := CalculateCharges(decimal.Zero, tariff)
		assert.True(t, decimal.Zero.Equal(b.ConsumptionCharge))
		assert.True(t, dec("500.00").Equal(b.Total))
	})

	t.Run("Rounds half away from zero", func(t *testing.T) {
		tariff := &domain.TariffPlan{RatePerUnit: dec("0.125"), FixedCharge: decimal.Zero}
		b := CalculateCharges(dec("1"), tariff)
		assert.Equal(t, "0.13", b.ConsumptionCharge.StringFixed(2))
	})
}

func overdueBill(due time.Time, outstanding, lateFee string) *domain.Bill {
	return &domain.Bill{
		DueDate:            due,
		Status:             domain.BillStatusOverdue,
		OutstandingBalance: dec(outstanding),
		LateFee:            dec(lateFee),
	}
}

func TestLateFeePolicies(t *testing.T) {
	tests := []struct {
		name     string
		policy   LateFeePolicy
		days     int
		expected string
	}{
		{"none", NoLateFee{}, 10, "0"},
		{"flat", FlatLateFee{Amount: dec("50")}, 1, "50"},
		{"flat not yet overdue", FlatLateFee{Amount: dec("50")}, 0, "0"},
		{"percentage", PercentageLateFee{Percent: dec("2")}, 5, "24"},
		{"daily", DailyLateFee{PerDay: dec("1.5")}, 10, "15"},
		{"capped", CappedLateFee{Policy: DailyLateFee{PerDay: dec("10")}, Max: dec("25")}, 10, "25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee := tt.policy.Fee(dec("1200"), tt.days)
			assert.True(t, dec(tt.expected).Equal(fee), "got %s", fee)
		})
	}
}

func TestLateFeeCalculator(t *testing.T) {
	due := date(2026, 3, 31)
	calc := NewLateFeeCalculator(PercentageLateFee{Percent: dec("2")}, 0)

	t.Run("Zero on the due date", func(t *testing.T) {
		b := overdueBill(due, "1200", "0")
		assert.True(t, calc.LateFee(b, due).IsZero())
	})

	t.Run("Charged the day after", func(t *testing.T) {
		b := overdueBill(due, "1200", "0")
		assert.Equal(t, "24.00", calc.LateFee(b, date(2026, 4, 1)).StringFixed(2))
	})

	t.Run("Excludes a fee already applied", func(t *testing.T) {
		b := overdueBill(due, "1224", "24")
		assert.Equal(t, "24.00", calc.LateFee(b, date(2026, 4, 10)).StringFixed(2))
	})

	t.Run("Zero for paid bills", func(t *testing.T) {
		b := overdueBill(due, "0", "0")
		b.Status = domain.BillStatusPaid
		assert.True(t, calc.LateFee(b, date(2026, 5, 1)).IsZero())
	})

	t.Run("Zero for cancelled bills", func(t *testing.T) {
		b := overdueBill(due, "1200", "0")
		b.Status = domain.BillStatusCancelled
		assert.True(t, calc.LateFee(b, date(2026, 5, 1)).IsZero())
	})

	t.Run("Grace period", func(t *testing.T) {
		graced := NewLateFeeCalculator(FlatLateFee{Amount: dec("50")}, 5)
		b := overdueBill(due, "1200", "0")
		assert.True(t, graced.LateFee(b, date(2026, 4, 5)).IsZero())
		assert.True(t, dec("50").Equal(graced.LateFee(b, date(2026, 4, 6))))
	})

	t.Run("Nil policy charges nothing", func(t *testing.T) {
		b := overdueBill(due, "1200", "0")
		assert.True(t, NewLateFeeCalculator(nil, 0).LateFee(b, date(2026, 5, 1)).IsZero())
	})
}

func TestPolicyFromConfig(t *testing.T) {
	t.Run("Capped percentage", func(t *testing.T) {
		p, err := PolicyFromConfig(config.LateFeeConfig{Strategy: "percentage", Percentage: "2", MaxAmount: "10"})
		require.NoError(t, err)
		assert.True(t, dec("10").Equal(p.Fee(dec("1200"), 3)))
	})

	t.Run("None", func(t *testing.T) {
		p, err := PolicyFromConfig(config.LateFeeConfig{Strategy: "none"})
		require.NoError(t, err)
		assert.IsType(t, NoLateFee{}, p)
	})

	t.Run("Unknown strategy", func(t *testing.T) {
		_, err := PolicyFromConfig(config.LateFeeConfig{Strategy: "compound"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown late fee strategy")
	})

	t.Run("Malformed amount", func(t *testing.T) {
		_, err := PolicyFromConfig(config.LateFeeConfig{Strategy: "flat", FlatAmount: "abc"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid late fee flat_amount")
	})
}
