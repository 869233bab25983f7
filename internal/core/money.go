// Package core provides the domain types of the ledger.
//
// Money is stored as integer cents to keep arithmetic exact; decimal values
// only appear at the edges (user input, JSON export) via shopspring/decimal.
package core

import (
	"github.com/shopspring/decimal"
)

// Money is an exact amount in cents.
type Money struct {
	Cents int64
}

// centsScale shifts a decimal amount into cents.
var centsScale = decimal.New(100, 0)

// ParseAmount converts a decimal string such as "12.50" into Money.
// Amounts must be positive and carry at most two fractional digits.
func ParseAmount(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return MoneyFromDecimal(d)
}

// MoneyFromDecimal converts a decimal amount into Money, rejecting
// non-positive values and sub-cent precision.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if d.Sign() <= 0 {
		return Money{}, ErrInvalidAmount
	}
	cents := d.Mul(centsScale)
	if !cents.IsInteger() {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: cents.IntPart()}, nil
}

// Decimal returns the amount as a two-place decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String formats the amount with two fractional digits, e.g. "12.50".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
