package production

import (
	"math"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Percent renders a fraction as "NN.NN%". NaN renders as "0%".
func Percent(fraction float64) string {
	if math.IsNaN(fraction) {
		return "0%"
	}
	return decimal.NewFromFloat(fraction).Mul(hundred).StringFixed(2) + "%"
}

// PercentNumber renders a fraction as "NN.NN" without the sign.
func PercentNumber(fraction float64) string {
	if math.IsNaN(fraction) {
		return "0.00"
	}
	return decimal.NewFromFloat(fraction).Mul(hundred).StringFixed(2)
}

// Share renders part/whole as a percentage; a zero whole renders "0%".
func Share(part, whole float64) string {
	if whole == 0 {
		return "0%"
	}
	return decimal.NewFromFloat(part).Div(decimal.NewFromFloat(whole)).Mul(hundred).StringFixed(2) + "%"
}

// Round4 rounds to four decimals for display of raw factors.
func Round4(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(4).Float64()
	return f
}
