package core

import (
	"math"

	"github.com/shopspring/decimal"
)

var (
	hundred   = decimal.NewFromInt(100)
	maxAmount = decimal.NewFromInt(math.MaxInt64)
	minAmount = decimal.NewFromInt(math.MinInt64)
)

// mulAmount returns a*b and false when the product does not fit in int64.
func mulAmount(a int64, b int64) (int64, bool) {
	return fitAmount(decimal.NewFromInt(a).Mul(decimal.NewFromInt(b)))
}

// addAmount returns a+b and false when the sum does not fit in int64.
func addAmount(a int64, b int64) (int64, bool) {
	return fitAmount(decimal.NewFromInt(a).Add(decimal.NewFromInt(b)))
}

func fitAmount(value decimal.Decimal) (int64, bool) {
	if value.GreaterThan(maxAmount) || value.LessThan(minAmount) {
		return 0, false
	}
	return value.IntPart(), true
}

// percentOf returns amount*percentage/100 rounded half away from zero to
// minor units.
func percentOf(amount int64, percentage float64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromFloat(percentage)).
		Div(hundred).
		Round(0).
		IntPart()
}

// scaleBy returns amount*factor rounded half away from zero.
func scaleBy(amount int64, factor float64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromFloat(factor)).
		Round(0).
		IntPart()
}

// ratioOf returns part/whole with four decimal places, or 0 for an empty whole.
func ratioOf(part int64, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	ratio, _ := decimal.NewFromInt(part).
		Div(decimal.NewFromInt(whole)).
		Round(4).
		Float64()
	return ratio
}

func clampAmount(value int64, minValue int64, maxValue int64) int64 {
	if minValue > 0 && value < minValue {
		value = minValue
	}
	if maxValue > 0 && value > maxValue {
		value = maxValue
	}
	return value
}
