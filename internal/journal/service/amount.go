package service

import (
	"github.com/shopspring/decimal"
)

// parseStoredAmount converts a raw decimal column value scanned as text.
func parseStoredAmount(raw string) (decimal.Decimal, error) {
	return decimal.NewFromString(raw)
}
