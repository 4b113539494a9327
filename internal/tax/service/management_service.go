package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kmanager/internal/orgcontext"
	taxdomain "github.com/smallbiznis/kmanager/internal/tax/domain"
	"github.com/smallbiznis/kmanager/internal/validation"
	"github.com/smallbiznis/kmanager/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  taxdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  taxdomain.Repository
}

func NewService(p Params) taxdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("tax.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) List(ctx context.Context, req taxdomain.ListRequest) ([]taxdomain.TaxRate, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, taxdomain.ErrInvalidOrganization
	}

	filter := taxdomain.ListRequest{
		Code:     strings.ToUpper(strings.TrimSpace(req.Code)),
		IsActive: req.IsActive,
		SortBy:   strings.TrimSpace(req.SortBy),
		OrderBy:  strings.TrimSpace(req.OrderBy),
	}
	return s.repo.List(ctx, s.db, orgID, filter)
}

func (s *Service) Create(ctx context.Context, req taxdomain.CreateRequest) (taxdomain.TaxRate, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return taxdomain.TaxRate{}, taxdomain.ErrInvalidOrganization
	}

	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req); err != nil {
		return taxdomain.TaxRate{}, err
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	now := time.Now().UTC()
	record := taxdomain.TaxRate{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		Code:      req.Code,
		Name:      req.Name,
		Rate:      req.Rate,
		IsActive:  isActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := record.Validate(); err != nil {
		return taxdomain.TaxRate{}, err
	}

	if err := s.repo.Create(ctx, s.db, &record); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return taxdomain.TaxRate{}, taxdomain.ErrDuplicateTaxCode
		}
		return taxdomain.TaxRate{}, err
	}

	s.log.Info("tax rate created",
		zap.String("org_id", orgID.String()),
		zap.String("code", record.Code),
		zap.String("rate", record.Rate.String()),
	)
	return record, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (taxdomain.TaxRate, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return taxdomain.TaxRate{}, taxdomain.ErrInvalidOrganization
	}
	if id == 0 {
		return taxdomain.TaxRate{}, taxdomain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return taxdomain.TaxRate{}, err
	}
	if item == nil {
		return taxdomain.TaxRate{}, taxdomain.ErrNotFound
	}
	return *item, nil
}

// Deactivate stops a rate from being used on new lines. Lines that already
// copied it are unaffected.
func (s *Service) Deactivate(ctx context.Context, id snowflake.ID) (taxdomain.TaxRate, error) {
	item, err := s.GetByID(ctx, id)
	if err != nil {
		return taxdomain.TaxRate{}, err
	}

	item.IsActive = false
	item.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, s.db, &item); err != nil {
		return taxdomain.TaxRate{}, err
	}
	return item, nil
}
