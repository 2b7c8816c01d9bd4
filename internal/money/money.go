// Package money centralizes fixed-point monetary arithmetic. All engine
// amounts are decimal.Decimal with two-digit scale; float64 never touches a
// balance.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrNonPositive      = errors.New("amount_not_positive")
	ErrScaleTooFine     = errors.New("amount_scale_exceeds_cents")
	ErrCurrencyMismatch = errors.New("currency_mismatch")
)

// Zero is the canonical zero amount.
func Zero() decimal.Decimal { return decimal.Zero }

// Parse converts a string amount into a decimal, rejecting more than two
// fractional digits.
func Parse(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.Exponent() < -2 {
		return decimal.Zero, ErrScaleTooFine
	}
	return d, nil
}

// RequirePositive validates a transaction or payment amount.
func RequirePositive(d decimal.Decimal) error {
	if d.Exponent() < -2 {
		return ErrScaleTooFine
	}
	if !d.IsPositive() {
		return ErrNonPositive
	}
	return nil
}

// Format renders an amount with exactly two fractional digits, the formatting
// used in ledgers and in every monetary error message.
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Cents returns the amount in minor currency units, used for LEDES totals
// cross-checks and journal balance comparison at the minor unit.
func Cents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// FromCents converts minor units back to a decimal amount.
func FromCents(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}

// Sum adds a slice of amounts.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
