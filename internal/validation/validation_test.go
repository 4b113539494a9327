package validation

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineRequest struct {
	Quantity decimal.Decimal     `json:"quantity" validate:"gte=0"`
	TaxRate  decimal.NullDecimal `json:"tax_rate" validate:"omitempty,gte=0,lte=1"`
	LineType string              `json:"line_type" validate:"required,oneof=NORMAL OPTIONAL ALTERNATIVE"`
}

type documentRequest struct {
	Currency string        `json:"currency" validate:"required,len=3"`
	Lines    []lineRequest `json:"lines" validate:"dive"`
}

func TestStructReportsJSONFieldPaths(t *testing.T) {
	err := Struct(documentRequest{
		Currency: "EURO",
		Lines: []lineRequest{
			{Quantity: decimal.NewFromInt(-1), LineType: "NORMAL"},
			{Quantity: decimal.NewFromInt(1), TaxRate: decimal.NewNullDecimal(decimal.RequireFromString("1.5")), LineType: "BOGUS"},
		},
	})
	require.Error(t, err)

	vErr, ok := As(err)
	require.True(t, ok)

	got := map[string]string{}
	for _, fe := range vErr.Errors {
		got[fe.Field] = fe.Code
	}
	assert.Equal(t, "len", got["currency"])
	assert.Equal(t, "gte", got["lines[0].quantity"])
	assert.Equal(t, "lte", got["lines[1].tax_rate"])
	assert.Equal(t, "oneof", got["lines[1].line_type"])
}

func TestStructAcceptsValidInput(t *testing.T) {
	err := Struct(documentRequest{
		Currency: "EUR",
		Lines:    []lineRequest{{Quantity: decimal.NewFromInt(2), LineType: "OPTIONAL"}},
	})
	assert.NoError(t, err)
}

func TestErrorsErrIsNilWhenEmpty(t *testing.T) {
	var v Errors
	assert.NoError(t, v.Err())

	v.Add("end_date", "before_start_date", "end_date must not be before start_date")
	err := v.Err()
	require.Error(t, err)

	_, ok := As(errors.Join(errors.New("other"), err))
	assert.True(t, ok)
}
