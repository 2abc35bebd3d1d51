// Package money holds the venue-neutral decimal rounding helpers the
// trade executor and placement state machine use to quantize prices and
// share counts to the two-decimal precision spec §4.10.5 requires.
//
// Adapted from the teacher's internal/strategy/maker.go clamp/
// roundDownToTick/roundUpToTick helpers (originally float64, tick-size
// based): rewritten on decimal.Decimal and fixed to two decimal places.
package money

import (
	"github.com/shopspring/decimal"
)

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

// RoundDown2 floors v to two decimal places.
func RoundDown2(v decimal.Decimal) decimal.Decimal {
	return v.Truncate(2)
}

// RoundUp2 ceils v to two decimal places.
func RoundUp2(v decimal.Decimal) decimal.Decimal {
	truncated := v.Truncate(2)
	if truncated.Equal(v) {
		return truncated
	}
	return truncated.Add(decimal.New(1, -2))
}
