package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type DocumentType string

const (
	DocumentTypeInvoice    DocumentType = "INVOICE"
	DocumentTypeQuote      DocumentType = "QUOTE"
	DocumentTypeOrder      DocumentType = "ORDER"
	DocumentTypeCreditNote DocumentType = "CREDIT_NOTE"
)

func (t DocumentType) Valid() bool {
	switch t {
	case DocumentTypeInvoice, DocumentTypeQuote, DocumentTypeOrder, DocumentTypeCreditNote:
		return true
	default:
		return false
	}
}

type DocumentStatus string

const (
	DocumentStatusDraft     DocumentStatus = "DRAFT"
	DocumentStatusIssued    DocumentStatus = "ISSUED"
	DocumentStatusPaid      DocumentStatus = "PAID"
	DocumentStatusCancelled DocumentStatus = "CANCELLED"
)

func (s DocumentStatus) Valid() bool {
	switch s {
	case DocumentStatusDraft, DocumentStatusIssued, DocumentStatusPaid, DocumentStatusCancelled:
		return true
	default:
		return false
	}
}

type LineType string

const (
	LineTypeNormal      LineType = "NORMAL"
	LineTypeOptional    LineType = "OPTIONAL"
	LineTypeAlternative LineType = "ALTERNATIVE"
)

func (t LineType) Valid() bool {
	switch t {
	case LineTypeNormal, LineTypeOptional, LineTypeAlternative:
		return true
	default:
		return false
	}
}

// Document is a sales document header. Stored totals change only through an
// explicit recalculation.
type Document struct {
	ID            snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrgID         snowflake.ID   `gorm:"not null;uniqueIndex:ux_documents_org_type_number,priority:1" json:"org_id"`
	CustomerID    snowflake.ID   `gorm:"not null;index" json:"customer_id"`
	ContractID    *snowflake.ID  `gorm:"index" json:"contract_id,omitempty"`
	PaymentTermID *snowflake.ID  `json:"payment_term_id,omitempty"`
	DocumentType  DocumentType   `gorm:"type:text;not null;uniqueIndex:ux_documents_org_type_number,priority:2" json:"document_type"`
	Status        DocumentStatus `gorm:"type:text;not null" json:"status"`
	Number        int64          `gorm:"not null;uniqueIndex:ux_documents_org_type_number,priority:3" json:"number"`
	Currency      string         `gorm:"type:char(3);not null" json:"currency"`
	IssueDate     time.Time      `gorm:"type:date;not null" json:"issue_date"`
	DueDate       *time.Time     `gorm:"type:date" json:"due_date,omitempty"`

	TotalNet   decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"total_net"`
	TotalTax   decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"total_tax"`
	TotalGross decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"total_gross"`

	Notes     string    `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`

	Lines []DocumentLine `gorm:"-" json:"lines,omitempty"`
}

func (Document) TableName() string { return "documents" }

// Fractional digits stored for line quantities and net unit prices.
const (
	QuantityScale  int32 = 4
	UnitPriceScale int32 = 2
)

// DocumentLine holds value copies of quantity, price and tax rate.
// TaxRate is null only for corrupted data and fails any calculation that
// includes the line.
type DocumentLine struct {
	ID             snowflake.ID        `gorm:"primaryKey" json:"id"`
	OrgID          snowflake.ID        `gorm:"not null;index" json:"org_id"`
	DocumentID     snowflake.ID        `gorm:"not null;index" json:"document_id"`
	Position       int                 `gorm:"not null" json:"position"`
	Description    string              `gorm:"type:text;not null" json:"description"`
	Quantity       decimal.Decimal     `gorm:"type:numeric(15,4);not null" json:"quantity"`
	UnitPriceNet   decimal.Decimal     `gorm:"type:numeric(15,2);not null" json:"unit_price_net"`
	TaxRateID      *snowflake.ID       `json:"tax_rate_id,omitempty"`
	TaxRate        decimal.NullDecimal `gorm:"type:numeric(6,4)" json:"tax_rate"`
	LineType       LineType            `gorm:"type:text;not null" json:"line_type"`
	IsSelected     bool                `gorm:"not null" json:"is_selected"`
	IsDiscountable bool                `gorm:"not null" json:"is_discountable"`
	CreatedAt      time.Time           `gorm:"not null" json:"created_at"`
}

func (DocumentLine) TableName() string { return "document_lines" }

// Totals are the document sums rounded to cents.
type Totals struct {
	Net   decimal.Decimal `json:"total_net"`
	Tax   decimal.Decimal `json:"total_tax"`
	Gross decimal.Decimal `json:"total_gross"`
}

func ZeroTotals() Totals {
	return Totals{Net: decimal.Zero, Tax: decimal.Zero, Gross: decimal.Zero}
}

func (t Totals) Equal(o Totals) bool {
	return t.Net.Equal(o.Net) && t.Tax.Equal(o.Tax) && t.Gross.Equal(o.Gross)
}
