// Package money centralizes currency arithmetic. Everything downstream of
// the fee calculator works in integer cents; decimal math happens only here.
package money

import "github.com/shopspring/decimal"

// ToCents converts a decimal amount of whole currency units into cents,
// rounding half away from zero at the cent boundary.
func ToCents(amount decimal.Decimal) int {
	return int(amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart())
}

// FromCents converts integer cents into a decimal amount of whole units.
func FromCents(cents int) decimal.Decimal {
	return decimal.NewFromInt(int64(cents)).Div(decimal.NewFromInt(100))
}

// ApplyBasisPoints computes cents × (bps/10000), rounding half-up.
func ApplyBasisPoints(cents int, bps int) int {
	fee := decimal.NewFromInt(int64(cents)).
		Mul(decimal.NewFromInt(int64(bps))).
		Div(decimal.NewFromInt(10000))
	return int(fee.Round(0).IntPart())
}
