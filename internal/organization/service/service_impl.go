package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kmanager/internal/config"
	"github.com/smallbiznis/kmanager/internal/organization/domain"
	"github.com/smallbiznis/kmanager/internal/validation"
	"github.com/smallbiznis/kmanager/pkg/db/option"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Billing *config.BillingConfigHolder `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	billing *config.BillingConfigHolder
}

func NewService(p Params) domain.Service {
	return &Service{
		log:     p.Log.Named("organization.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		billing: p.Billing,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCompanyRequest) (domain.Company, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if err := validation.Struct(req); err != nil {
		return domain.Company{}, err
	}

	currency := req.Currency
	if currency == "" {
		currency = s.defaultCurrency()
	}

	now := time.Now().UTC()
	company := domain.Company{
		ID:        s.genID.Generate(),
		Name:      req.Name,
		Address:   strings.TrimSpace(req.Address),
		Email:     req.Email,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, &company); err != nil {
		return domain.Company{}, err
	}

	s.log.Info("company created", zap.String("org_id", company.ID.String()))
	return company, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Company, error) {
	if id == 0 {
		return domain.Company{}, domain.ErrInvalidID
	}
	company, err := s.repo.FindOne(ctx, &domain.Company{ID: id})
	if err != nil {
		return domain.Company{}, err
	}
	if company == nil {
		return domain.Company{}, domain.ErrNotFound
	}
	return *company, nil
}

// ListIDs returns every tenant id in ascending order.
func (s *Service) ListIDs(ctx context.Context) ([]snowflake.ID, error) {
	companies, err := s.repo.Find(ctx, &domain.Company{}, option.WithSortBy(option.QuerySortBy{OrderBy: "asc"}))
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(companies))
	for _, c := range companies {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func (s *Service) defaultCurrency() string {
	if s.billing == nil {
		return "EUR"
	}
	return s.billing.Get().DefaultCurrency
}
