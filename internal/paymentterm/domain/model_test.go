package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestComputeDueDate(t *testing.T) {
	issue := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	term := PaymentTerm{NetDays: 14}
	assert.Equal(t, time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC), term.ComputeDueDate(issue))
	assert.Equal(t, issue, PaymentTerm{}.ComputeDueDate(issue))
}

func TestText(t *testing.T) {
	assert.Equal(t, "Payable immediately without deduction", PaymentTerm{}.Text())
	assert.Equal(t, "Payable within 30 days net", PaymentTerm{NetDays: 30}.Text())
	assert.Equal(t, "2% discount if paid within 10 days, otherwise within 30 days net", PaymentTerm{
		NetDays:         30,
		DiscountDays:    10,
		DiscountPercent: decimal.RequireFromString("2.00"),
	}.Text())
	assert.Equal(t, "2.5% discount if paid within 7 days, otherwise within 14 days net", PaymentTerm{
		NetDays:         14,
		DiscountDays:    7,
		DiscountPercent: decimal.RequireFromString("2.5"),
	}.Text())
}

func TestValidate(t *testing.T) {
	assert.NoError(t, PaymentTerm{NetDays: 30, DiscountDays: 10, DiscountPercent: decimal.NewFromInt(2)}.Validate())
	assert.ErrorIs(t, PaymentTerm{NetDays: -1}.Validate(), ErrInvalidNetDays)
	assert.ErrorIs(t, PaymentTerm{NetDays: 10, DiscountDays: 11}.Validate(), ErrInvalidDiscountDays)
	assert.ErrorIs(t, PaymentTerm{NetDays: 10, DiscountPercent: decimal.NewFromInt(101)}.Validate(), ErrInvalidDiscountPercent)
}
