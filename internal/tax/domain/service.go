package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RateResolver loads the rates that new lines copy their values from.
type RateResolver interface {
	ResolveRates(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID) (map[snowflake.ID]TaxRate, error)
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (TaxRate, error)
	List(ctx context.Context, req ListRequest) ([]TaxRate, error)
	GetByID(ctx context.Context, id snowflake.ID) (TaxRate, error)
	Deactivate(ctx context.Context, id snowflake.ID) (TaxRate, error)
}

type ListRequest struct {
	Code     string `form:"code"`
	IsActive *bool  `form:"is_active"`
	SortBy   string `form:"sort_by"`
	OrderBy  string `form:"order_by"`
}

type CreateRequest struct {
	Code     string          `json:"code" validate:"required,max=32"`
	Name     string          `json:"name" validate:"required,max=200"`
	Rate     decimal.Decimal `json:"rate" validate:"gte=0,lte=1"`
	IsActive *bool           `json:"is_active"`
}
