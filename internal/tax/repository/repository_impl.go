package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	taxdomain "github.com/smallbiznis/kmanager/internal/tax/domain"
	"github.com/smallbiznis/kmanager/pkg/db/option"
	"gorm.io/gorm"
)

type repository struct{}

func NewRepository() taxdomain.Repository {
	return &repository{}
}

func (r *repository) Create(ctx context.Context, db *gorm.DB, rate *taxdomain.TaxRate) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tax_rates (
			id, org_id, code, name, rate, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rate.ID,
		rate.OrgID,
		rate.Code,
		rate.Name,
		rate.Rate,
		rate.IsActive,
		rate.CreatedAt,
		rate.UpdatedAt,
	).Error
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*taxdomain.TaxRate, error) {
	var rate taxdomain.TaxRate
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, code, name, rate, is_active, created_at, updated_at
		 FROM tax_rates
		 WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&rate).Error
	if err != nil {
		return nil, err
	}
	if rate.ID == 0 {
		return nil, nil
	}
	return &rate, nil
}

func (r *repository) FindByIDs(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID) ([]taxdomain.TaxRate, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rates []taxdomain.TaxRate
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, code, name, rate, is_active, created_at, updated_at
		 FROM tax_rates
		 WHERE org_id = ? AND id IN ?`,
		orgID,
		ids,
	).Scan(&rates).Error
	if err != nil {
		return nil, err
	}
	return rates, nil
}

func (r *repository) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter taxdomain.ListRequest) ([]taxdomain.TaxRate, error) {
	var items []taxdomain.TaxRate
	stmt := db.WithContext(ctx).
		Model(&taxdomain.TaxRate{}).
		Where("org_id = ?", orgID)

	if filter.Code != "" {
		stmt = stmt.Where("code = ?", filter.Code)
	}
	if filter.IsActive != nil {
		stmt = stmt.Where("is_active = ?", *filter.IsActive)
	}

	stmt = option.WithSortBy(option.WithQuerySortBy(filter.SortBy, filter.OrderBy, map[string]bool{
		"created_at": true,
		"code":       true,
		"rate":       true,
	})).Apply(stmt)

	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) Update(ctx context.Context, db *gorm.DB, rate *taxdomain.TaxRate) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tax_rates
		 SET name = ?, rate = ?, is_active = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		rate.Name,
		rate.Rate,
		rate.IsActive,
		rate.UpdatedAt,
		rate.OrgID,
		rate.ID,
	).Error
}
