package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	d, err := Parse("1500.00")
	require.NoError(t, err)
	assert.Equal(t, "1500.00", Format(d))

	d, err = Parse("0.5")
	require.NoError(t, err)
	assert.Equal(t, "0.50", Format(d))

	_, err = Parse("")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = Parse("12.345")
	assert.ErrorIs(t, err, ErrScaleTooFine)

	_, err = Parse("not-a-number")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestRequirePositive(t *testing.T) {
	assert.NoError(t, RequirePositive(decimal.NewFromInt(1)))
	assert.ErrorIs(t, RequirePositive(decimal.Zero), ErrNonPositive)
	assert.ErrorIs(t, RequirePositive(decimal.NewFromInt(-5)), ErrNonPositive)
}

func TestCentsRoundTrip(t *testing.T) {
	d, err := Parse("1234.56")
	require.NoError(t, err)
	assert.Equal(t, int64(123456), Cents(d))
	assert.True(t, FromCents(123456).Equal(d))
}

func TestSum(t *testing.T) {
	a := decimal.RequireFromString("0.10")
	b := decimal.RequireFromString("0.20")
	c := decimal.RequireFromString("0.70")
	assert.Equal(t, "1.00", Format(Sum(a, b, c)))
}
