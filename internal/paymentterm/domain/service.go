package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CreateRequest struct {
	Name            string          `json:"name" validate:"required,max=200"`
	NetDays         int             `json:"net_days" validate:"gte=0,lte=3650"`
	DiscountDays    int             `json:"discount_days" validate:"gte=0"`
	DiscountPercent decimal.Decimal `json:"discount_percent" validate:"gte=0,lte=100"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (PaymentTerm, error)
	GetByID(ctx context.Context, orgID, id snowflake.ID) (PaymentTerm, error)
}

var (
	ErrInvalidOrganization    = errors.New("invalid_organization")
	ErrInvalidID              = errors.New("invalid_id")
	ErrNotFound               = errors.New("not_found")
	ErrInvalidNetDays         = errors.New("invalid_net_days")
	ErrInvalidDiscountDays    = errors.New("invalid_discount_days")
	ErrInvalidDiscountPercent = errors.New("invalid_discount_percent")
)
