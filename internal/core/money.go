// Package core provides money parsing and handling utilities.
//
// Amounts are stored as integer cents (paise). Parsing goes through
// shopspring/decimal so that sheet values like "1,234.50" or "₹ 99" do not
// pick up float rounding on the way in.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseDecimalToCents converts a decimal string to positive cents, rounding
// half-up on the third decimal place. Thousands separators and a leading
// currency symbol are ignored.
//
// Examples:
//
//	ParseDecimalToCents("12.34")     -> 1234, nil
//	ParseDecimalToCents("₹1,200.5")  -> 120050, nil
//	ParseDecimalToCents("12.345")    -> 1235, nil
//	ParseDecimalToCents("-3")        -> 0, ErrInvalidAmount
func ParseDecimalToCents(s string) (int64, error) {
	d, err := parseDecimal(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents := d.Mul(hundred).Round(0)
	if !cents.IsPositive() {
		return 0, ErrInvalidAmount
	}
	return cents.IntPart(), nil
}

// ParseAmount is the lenient form used when reading stored rows: malformed
// values become zero and negative values are taken by magnitude.
func ParseAmount(s string) Money {
	d, err := parseDecimal(s)
	if err != nil {
		return Money{}
	}
	return Money{Cents: d.Abs().Mul(hundred).Round(0).IntPart()}
}

// MoneyFromFloat converts a JSON number to Money, rounding to the nearest cent.
func MoneyFromFloat(f float64) Money {
	return Money{Cents: decimal.NewFromFloat(f).Mul(hundred).Round(0).IntPart()}
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "₹")
	s = strings.TrimPrefix(s, "Rs.")
	s = strings.TrimPrefix(s, "Rs")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	return decimal.NewFromString(s)
}

// Decimal returns the amount in whole currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String renders the amount the way it is written to the ledger ("123.45",
// "500" for whole amounts).
func (m Money) String() string {
	return m.Decimal().String()
}

// Rupees returns the value as a float64 for display and JSON output.
// Use cents for arithmetic.
func (m Money) Rupees() float64 {
	return m.Decimal().InexactFloat64()
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}
