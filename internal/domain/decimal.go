package domain

import "github.com/shopspring/decimal"

const (
	MoneyScale    int32 = 4
	QuantityScale int32 = 3
	RecipeScale   int32 = 6
)

var (
	hundred = decimal.NewFromInt(100)

	// CurrencyTolerance absorbs rounding differences between independently
	// rounded money amounts.
	CurrencyTolerance = decimal.RequireFromString("0.01")
	// RecipeTolerance is the allowed drift when component ratios must sum to one.
	RecipeTolerance = decimal.RequireFromString("0.000001")
)

func Money(v decimal.Decimal) decimal.Decimal {
	return v.Round(MoneyScale)
}

func Quantity(v decimal.Decimal) decimal.Decimal {
	return v.Round(QuantityScale)
}

// MoneyEqual reports whether a and b differ by no more than CurrencyTolerance.
func MoneyEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(CurrencyTolerance)
}

// MarginPercent returns profit/total*100 rounded to two places, or zero for a
// zero total.
func MarginPercent(profit, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return profit.Div(total).Mul(hundred).Round(2)
}
