package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/kmanager/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateLineRequest struct {
	Description    string          `json:"description" validate:"required,max=500"`
	Quantity       decimal.Decimal `json:"quantity" validate:"gte=0"`
	UnitPriceNet   decimal.Decimal `json:"unit_price_net" validate:"gte=0"`
	TaxRateID      snowflake.ID    `json:"tax_rate_id" validate:"required"`
	LineType       LineType        `json:"line_type"`
	IsSelected     *bool           `json:"is_selected"`
	IsDiscountable bool            `json:"is_discountable"`
}

type CreateDocumentRequest struct {
	CustomerID    snowflake.ID        `json:"customer_id" validate:"required"`
	PaymentTermID *snowflake.ID       `json:"payment_term_id"`
	DocumentType  DocumentType        `json:"document_type"`
	Currency      string              `json:"currency" validate:"omitempty,len=3"`
	IssueDate     string              `json:"issue_date" validate:"required,datetime=2006-01-02"`
	Notes         string              `json:"notes" validate:"max=2000"`
	Lines         []CreateLineRequest `json:"lines" validate:"dive"`
}

type ListDocumentRequest struct {
	pagination.Pagination
	DocumentType string `form:"document_type"`
	Status       string `form:"status"`
	CustomerID   string `form:"customer_id"`
	ContractID   string `form:"contract_id"`
}

type ListDocumentResponse struct {
	pagination.PageInfo
	Documents []Document `json:"documents"`
}

// Draft is a fully resolved document ready to be written. Lines already
// carry their copied tax rate values.
type Draft struct {
	OrgID         snowflake.ID
	CustomerID    snowflake.ID
	ContractID    *snowflake.ID
	PaymentTermID *snowflake.ID
	DocumentType  DocumentType
	Currency      string
	IssueDate     time.Time
	DueDate       *time.Time
	Notes         string
	Lines         []DraftLine
}

type DraftLine struct {
	Description    string
	Quantity       decimal.Decimal
	UnitPriceNet   decimal.Decimal
	TaxRateID      *snowflake.ID
	TaxRate        decimal.NullDecimal
	LineType       LineType
	IsSelected     bool
	IsDiscountable bool
}

// Rendered is a generated PDF.
type Rendered struct {
	Filename string
	Content  []byte
}

type Service interface {
	Create(ctx context.Context, req CreateDocumentRequest) (Document, error)
	GetByID(ctx context.Context, id snowflake.ID) (Document, error)
	List(ctx context.Context, req ListDocumentRequest) (ListDocumentResponse, error)
	Recalculate(ctx context.Context, orgID, documentID snowflake.ID, persist bool) (Totals, error)
	Render(ctx context.Context, id snowflake.ID) (Rendered, error)
}

// TxWriter writes drafts and totals inside a transaction owned by the caller.
type TxWriter interface {
	CreateDraft(ctx context.Context, tx *gorm.DB, draft Draft) (Document, error)
	RecalculateTx(ctx context.Context, tx *gorm.DB, orgID, documentID snowflake.ID) (Totals, error)
}
