package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kmanager/internal/orgcontext"
	"github.com/smallbiznis/kmanager/internal/paymentterm/domain"
	"github.com/smallbiznis/kmanager/internal/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		log:   p.Log.Named("paymentterm.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.PaymentTerm, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.PaymentTerm{}, domain.ErrInvalidOrganization
	}

	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req); err != nil {
		return domain.PaymentTerm{}, err
	}

	now := time.Now().UTC()
	term := domain.PaymentTerm{
		ID:              s.genID.Generate(),
		OrgID:           orgID,
		Name:            req.Name,
		NetDays:         req.NetDays,
		DiscountDays:    req.DiscountDays,
		DiscountPercent: req.DiscountPercent.Round(2),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := term.Validate(); err != nil {
		if errors.Is(err, domain.ErrInvalidDiscountDays) {
			return domain.PaymentTerm{}, validation.New("discount_days", "lte_net_days", "discount_days must not exceed net_days")
		}
		return domain.PaymentTerm{}, err
	}

	if err := s.repo.Create(ctx, &term); err != nil {
		return domain.PaymentTerm{}, err
	}
	return term, nil
}

func (s *Service) GetByID(ctx context.Context, orgID, id snowflake.ID) (domain.PaymentTerm, error) {
	if orgID == 0 {
		return domain.PaymentTerm{}, domain.ErrInvalidOrganization
	}
	if id == 0 {
		return domain.PaymentTerm{}, domain.ErrInvalidID
	}
	term, err := s.repo.FindOne(ctx, &domain.PaymentTerm{OrgID: orgID, ID: id})
	if err != nil {
		return domain.PaymentTerm{}, err
	}
	if term == nil {
		return domain.PaymentTerm{}, domain.ErrNotFound
	}
	return *term, nil
}
