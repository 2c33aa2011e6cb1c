// Package rounding applies a metric's configured rounding to an aggregated value.
package rounding

import "github.com/shopspring/decimal"

// Function names a rounding behavior configured on a meter.
type Function string

const (
	FunctionNone  Function = "none"
	FunctionRound Function = "round"
	FunctionCeil  Function = "ceil"
	FunctionFloor Function = "floor"
)

// Apply rounds value with fn at precision decimal places. Precision defaults
// to 0 when nil. Unknown functions leave the value untouched.
func Apply(value decimal.Decimal, fn Function, precision *int32) decimal.Decimal {
	places := int32(0)
	if precision != nil && *precision > 0 {
		places = *precision
	}

	switch fn {
	case FunctionRound:
		// Half up: exactly .5 rounds toward positive infinity, negative
		// values included. decimal.Round would take -2.5 to -3.
		half := decimal.New(5, -places-1)
		return value.Add(half).RoundFloor(places)
	case FunctionCeil:
		return value.RoundCeil(places)
	case FunctionFloor:
		return value.RoundFloor(places)
	default:
		return value
	}
}
