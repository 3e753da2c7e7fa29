// Package core provides money parsing and handling utilities.
//
// Amounts are carried as shopspring decimals so that sums stay exact; rounding
// to cents happens only when a value leaves the system.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a numeric string such as "1,234.50" into a decimal.
//
// Thousands separators are stripped and a trailing dot is tolerated ("500."
// parses as 500). Signs, empty input and anything that is not a plain decimal
// number return ErrInvalidAmount. Zero is accepted here; callers that need a
// positive amount check it themselves.
//
// Examples:
//
//	ParseAmount("1,234.50") -> 1234.5, nil
//	ParseAmount("500.")     -> 500, nil
//	ParseAmount(",")        -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	s = strings.TrimSuffix(s, ".")
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// Round2 rounds half-up to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Float2 rounds half-up to two decimal places and returns a float for JSON output.
func Float2(d decimal.Decimal) float64 {
	return Round2(d).InexactFloat64()
}

// ToCents converts an amount into integer cents, rounding half-up.
func ToCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// FromCents is the inverse of ToCents.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
