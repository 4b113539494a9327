package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	taxdomain "github.com/smallbiznis/kmanager/internal/tax/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type ResolverParams struct {
	fx.In

	Repository taxdomain.Repository
}

type resolver struct {
	repo taxdomain.Repository
}

func NewResolver(p ResolverParams) taxdomain.RateResolver {
	return &resolver{repo: p.Repository}
}

// ResolveRates returns the requested active rates keyed by id. An unknown
// or inactive id is an error.
func (r *resolver) ResolveRates(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID) (map[snowflake.ID]taxdomain.TaxRate, error) {
	unique := make([]snowflake.ID, 0, len(ids))
	seen := make(map[snowflake.ID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == 0 {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	rates, err := r.repo.FindByIDs(ctx, db, orgID, unique)
	if err != nil {
		return nil, err
	}

	out := make(map[snowflake.ID]taxdomain.TaxRate, len(rates))
	for _, rate := range rates {
		out[rate.ID] = rate
	}
	for _, id := range unique {
		rate, ok := out[id]
		if !ok {
			return nil, fmt.Errorf("tax rate %s: %w", id, taxdomain.ErrNotFound)
		}
		if !rate.IsActive {
			return nil, fmt.Errorf("tax rate %s: %w", id, taxdomain.ErrTaxRateInactive)
		}
	}
	return out, nil
}
