package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TariffPlan struct {
	ID            int64           `json:"id"`
	UtilityType   UtilityType     `json:"utility_type"`
	CustomerClass CustomerClass   `json:"customer_class"`
	RatePerUnit   decimal.Decimal `json:"rate_per_unit"`
	FixedCharge   decimal.Decimal `json:"fixed_charge"`
	EffectiveFrom time.Time       `json:"effective_from"`
	EffectiveTo   *time.Time      `json:"effective_to,omitempty"`
	IsActive      bool            `json:"is_active"`
}

// AppliesOn reports whether the plan is in force on the given calendar date.
func (t *TariffPlan) AppliesOn(date time.Time) bool {
	if !t.IsActive {
		return false
	}
	d := DateOf(date)
	if DateOf(t.EffectiveFrom).After(d) {
		return false
	}
	return t.EffectiveTo == nil || !DateOf(*t.EffectiveTo).Before(d)
}
