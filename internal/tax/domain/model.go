package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// TaxRate is an org-scoped VAT rate. Rate is a fraction: 0.19 is 19%.
// Lines copy Rate when they are created, so later edits never reach
// existing documents.
type TaxRate struct {
	ID    snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID snowflake.ID `gorm:"column:org_id;not null;uniqueIndex:ux_tax_rates_org_code" json:"org_id"`

	Code     string          `gorm:"type:text;not null;uniqueIndex:ux_tax_rates_org_code" json:"code"`
	Name     string          `gorm:"type:text;not null" json:"name"`
	Rate     decimal.Decimal `gorm:"type:numeric(6,4);not null" json:"rate"`
	IsActive bool            `gorm:"column:is_active;not null" json:"is_active"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (TaxRate) TableName() string { return "tax_rates" }

func (t *TaxRate) Validate() error {
	if t.Code == "" {
		return ErrInvalidTaxCode
	}
	if t.Name == "" {
		return ErrInvalidName
	}
	if t.Rate.IsNegative() || t.Rate.GreaterThan(decimal.NewFromInt(1)) {
		return ErrInvalidTaxRate
	}
	return nil
}

// NullRate is the value copied onto a document or contract line.
func (t TaxRate) NullRate() decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: t.Rate, Valid: true}
}
