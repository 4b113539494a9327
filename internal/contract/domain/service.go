package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	documentdomain "github.com/smallbiznis/kmanager/internal/document/domain"
	"github.com/smallbiznis/kmanager/pkg/db/pagination"
)

type CreateContractLineRequest struct {
	Description    string          `json:"description" validate:"required,max=500"`
	Quantity       decimal.Decimal `json:"quantity" validate:"gte=0"`
	UnitPriceNet   decimal.Decimal `json:"unit_price_net" validate:"gte=0"`
	TaxRateID      snowflake.ID    `json:"tax_rate_id" validate:"required"`
	IsDiscountable bool            `json:"is_discountable"`
}

type CreateContractRequest struct {
	CustomerID    snowflake.ID                `json:"customer_id" validate:"required"`
	PaymentTermID *snowflake.ID               `json:"payment_term_id"`
	DocumentType  documentdomain.DocumentType `json:"document_type"`
	Name          string                      `json:"name" validate:"required,max=200"`
	Currency      string                      `json:"currency" validate:"omitempty,len=3"`
	Interval      Interval                    `json:"interval"`
	StartDate     string                      `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate       string                      `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	NextRunDate   string                      `json:"next_run_date" validate:"omitempty,datetime=2006-01-02"`
	IsActive      *bool                       `json:"is_active"`
	Notes         string                      `json:"notes" validate:"max=2000"`
	Lines         []CreateContractLineRequest `json:"lines" validate:"dive"`
}

// UpdateContractLineRequest patches a template line. Nil fields are kept.
type UpdateContractLineRequest struct {
	Description    *string          `json:"description" validate:"omitempty,min=1,max=500"`
	Quantity       *decimal.Decimal `json:"quantity" validate:"omitempty,gte=0"`
	UnitPriceNet   *decimal.Decimal `json:"unit_price_net" validate:"omitempty,gte=0"`
	TaxRateID      *snowflake.ID    `json:"tax_rate_id"`
	IsDiscountable *bool            `json:"is_discountable"`
}

type ListContractRequest struct {
	pagination.Pagination
	CustomerID string `form:"customer_id"`
	IsActive   *bool  `form:"is_active"`
}

type ListContractResponse struct {
	pagination.PageInfo
	Contracts []Contract `json:"contracts"`
}

type ListRunsRequest struct {
	pagination.Pagination
	ContractID snowflake.ID `form:"-"`
	Status     string       `form:"status"`
	From       string       `form:"from"`
	To         string       `form:"to"`
}

type ListRunsResponse struct {
	pagination.PageInfo
	Runs []ContractRun `json:"runs"`
}

type Service interface {
	Create(ctx context.Context, req CreateContractRequest) (Contract, error)
	GetByID(ctx context.Context, id snowflake.ID) (Contract, error)
	List(ctx context.Context, req ListContractRequest) (ListContractResponse, error)
	UpdateLine(ctx context.Context, contractID, lineID snowflake.ID, req UpdateContractLineRequest) (ContractLine, error)
	ListRuns(ctx context.Context, req ListRunsRequest) (ListRunsResponse, error)
}

// GenerateDueRequest selects the batch. A zero OrgID covers every company,
// a zero Today means today in the billing time zone, and an empty BatchID
// gets a fresh ULID.
type GenerateDueRequest struct {
	OrgID   snowflake.ID
	Today   time.Time
	DryRun  bool
	BatchID string
}

type BatchResult struct {
	BatchID   string        `json:"batch_id"`
	RunDate   time.Time     `json:"run_date"`
	DryRun    bool          `json:"dry_run"`
	Runs      []ContractRun `json:"runs"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
}

func (r *BatchResult) Add(run ContractRun) {
	r.Runs = append(r.Runs, run)
	switch run.Status {
	case RunStatusSuccess:
		r.Succeeded++
	case RunStatusFailed:
		r.Failed++
	case RunStatusSkipped:
		r.Skipped++
	}
}

type BillingService interface {
	GenerateDue(ctx context.Context, req GenerateDueRequest) (BatchResult, error)
}
