package pricing

import (
	"github.com/shopspring/decimal"

	"utilbill-backend/internal/domain"
)

// MoneyPlaces is the number of decimal places money is rounded to.
const MoneyPlaces = 2

// ChargeBreakdown provides the priced lines of a bill
type ChargeBreakdown struct {
	Consumption       decimal.Decimal
	RatePerUnit       decimal.Decimal
	FixedCharge       decimal.Decimal
	ConsumptionCharge decimal.Decimal
	Total             decimal.Decimal
}

// RoundMoney rounds half away from zero to whole cents
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// CalculateCharges prices a consumption against a tariff snapshot:
// consumption charge = consumption x rate, total = consumption charge + fixed charge
func CalculateCharges(consumption decimal.Decimal, tariff *domain.TariffPlan) ChargeBreakdown {
	charge := RoundMoney(consumption.Mul(tariff.RatePerUnit))
	fixed := RoundMoney(tariff.FixedCharge)

	return ChargeBreakdown{
		Consumption:       consumption,
		RatePerUnit:       tariff.RatePerUnit,
		FixedCharge:       fixed,
		ConsumptionCharge: charge,
		Total:             charge.Add(fixed),
	}
}
