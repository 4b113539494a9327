package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	contractdomain "github.com/smallbiznis/kmanager/internal/contract/domain"
	"github.com/smallbiznis/kmanager/pkg/db/option"
	"github.com/smallbiznis/kmanager/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() contractdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, c *contractdomain.Contract) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO contracts (
			id, org_id, customer_id, payment_term_id, document_type, name, currency,
			billing_interval, start_date, end_date, next_run_date, last_run_date,
			is_active, notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.OrgID,
		c.CustomerID,
		c.PaymentTermID,
		c.DocumentType,
		c.Name,
		c.Currency,
		c.Interval,
		c.StartDate,
		c.EndDate,
		c.NextRunDate,
		c.LastRunDate,
		c.IsActive,
		c.Notes,
		c.CreatedAt,
		c.UpdatedAt,
	).Error
}

func (r *repo) InsertLines(ctx context.Context, db *gorm.DB, lines []contractdomain.ContractLine) error {
	for _, line := range lines {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO contract_lines (
				id, org_id, contract_id, position, description, quantity, unit_price_net,
				tax_rate_id, tax_rate, is_discountable, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			line.ID,
			line.OrgID,
			line.ContractID,
			line.Position,
			line.Description,
			line.Quantity,
			line.UnitPriceNet,
			line.TaxRateID,
			line.TaxRate,
			line.IsDiscountable,
			line.CreatedAt,
			line.UpdatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*contractdomain.Contract, error) {
	return r.find(db.WithContext(ctx), orgID, id)
}

func (r *repo) LockByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*contractdomain.Contract, error) {
	return r.find(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), orgID, id)
}

func (r *repo) find(stmt *gorm.DB, orgID, id snowflake.ID) (*contractdomain.Contract, error) {
	var c contractdomain.Contract
	if err := stmt.Where("org_id = ? AND id = ?", orgID, id).Take(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	normalizeContract(&c)
	return &c, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter contractdomain.ListFilter, page pagination.Pagination) ([]*contractdomain.Contract, error) {
	stmt := db.WithContext(ctx).
		Model(&contractdomain.Contract{}).
		Where("org_id = ?", orgID)

	options := []option.QueryOption{}
	if filter.CustomerID != 0 {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "customer_id",
			Operator: option.EQ,
			Value:    filter.CustomerID,
		}))
	}
	if filter.IsActive != nil {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "is_active",
			Operator: option.EQ,
			Value:    *filter.IsActive,
		}))
	}
	options = append(options,
		option.ApplyPagination(page),
		option.WithSortBy(option.QuerySortBy{}),
	)
	for _, opt := range options {
		stmt = opt.Apply(stmt)
	}

	var contracts []*contractdomain.Contract
	if err := stmt.Find(&contracts).Error; err != nil {
		return nil, err
	}
	for _, c := range contracts {
		normalizeContract(c)
	}
	return contracts, nil
}

func (r *repo) ListDue(ctx context.Context, db *gorm.DB, orgID snowflake.ID, today time.Time) ([]contractdomain.Contract, error) {
	var contracts []contractdomain.Contract
	err := db.WithContext(ctx).
		Where("org_id = ? AND is_active = ?", orgID, true).
		Where("next_run_date <= ?", today).
		Where("end_date IS NULL OR end_date >= ?", today).
		Order("next_run_date asc, id asc").
		Find(&contracts).Error
	if err != nil {
		return nil, err
	}
	for i := range contracts {
		normalizeContract(&contracts[i])
	}
	return contracts, nil
}

func (r *repo) Advance(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, lastRun, nextRun, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE contracts
		 SET last_run_date = ?, next_run_date = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		lastRun,
		nextRun,
		updatedAt,
		orgID,
		id,
	).Error
}

func (r *repo) ListLines(ctx context.Context, db *gorm.DB, orgID, contractID snowflake.ID) ([]contractdomain.ContractLine, error) {
	var lines []contractdomain.ContractLine
	err := db.WithContext(ctx).
		Where("org_id = ? AND contract_id = ?", orgID, contractID).
		Order("position asc").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repo) FindLine(ctx context.Context, db *gorm.DB, orgID, contractID, lineID snowflake.ID) (*contractdomain.ContractLine, error) {
	var line contractdomain.ContractLine
	err := db.WithContext(ctx).
		Where("org_id = ? AND contract_id = ? AND id = ?", orgID, contractID, lineID).
		Take(&line).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &line, nil
}

func (r *repo) UpdateLine(ctx context.Context, db *gorm.DB, line *contractdomain.ContractLine) error {
	return db.WithContext(ctx).Exec(
		`UPDATE contract_lines
		 SET description = ?, quantity = ?, unit_price_net = ?, tax_rate_id = ?,
		     tax_rate = ?, is_discountable = ?, updated_at = ?
		 WHERE org_id = ? AND contract_id = ? AND id = ?`,
		line.Description,
		line.Quantity,
		line.UnitPriceNet,
		line.TaxRateID,
		line.TaxRate,
		line.IsDiscountable,
		line.UpdatedAt,
		line.OrgID,
		line.ContractID,
		line.ID,
	).Error
}

func (r *repo) FindRun(ctx context.Context, db *gorm.DB, contractID snowflake.ID, runDate time.Time) (*contractdomain.ContractRun, error) {
	var run contractdomain.ContractRun
	err := db.WithContext(ctx).
		Where("contract_id = ? AND run_date = ?", contractID, runDate).
		Take(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	run.RunDate = contractdomain.DateOf(run.RunDate)
	return &run, nil
}

func (r *repo) InsertRun(ctx context.Context, db *gorm.DB, run *contractdomain.ContractRun) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO contract_runs (
			id, org_id, contract_id, run_date, status, message, document_id, batch_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.OrgID,
		run.ContractID,
		run.RunDate,
		run.Status,
		run.Message,
		run.DocumentID,
		run.BatchID,
		run.CreatedAt,
	).Error
}

func (r *repo) ListRuns(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter contractdomain.RunFilter, page pagination.Pagination) ([]*contractdomain.ContractRun, error) {
	stmt := db.WithContext(ctx).
		Model(&contractdomain.ContractRun{}).
		Where("org_id = ?", orgID)

	options := []option.QueryOption{}
	if filter.ContractID != 0 {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "contract_id",
			Operator: option.EQ,
			Value:    filter.ContractID,
		}))
	}
	if filter.Status != "" {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "status",
			Operator: option.EQ,
			Value:    filter.Status,
		}))
	}
	if filter.From != nil {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "run_date",
			Operator: option.GTE,
			Value:    *filter.From,
		}))
	}
	if filter.To != nil {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "run_date",
			Operator: option.LTE,
			Value:    *filter.To,
		}))
	}
	options = append(options,
		option.ApplyPagination(page),
		option.WithSortBy(option.QuerySortBy{}),
	)
	for _, opt := range options {
		stmt = opt.Apply(stmt)
	}

	var runs []*contractdomain.ContractRun
	if err := stmt.Find(&runs).Error; err != nil {
		return nil, err
	}
	for _, run := range runs {
		run.RunDate = contractdomain.DateOf(run.RunDate)
	}
	return runs, nil
}

func normalizeContract(c *contractdomain.Contract) {
	c.StartDate = contractdomain.DateOf(c.StartDate)
	c.NextRunDate = contractdomain.DateOf(c.NextRunDate)
	if c.EndDate != nil {
		end := contractdomain.DateOf(*c.EndDate)
		c.EndDate = &end
	}
	if c.LastRunDate != nil {
		last := contractdomain.DateOf(*c.LastRunDate)
		c.LastRunDate = &last
	}
}
