package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	documentdomain "github.com/smallbiznis/kmanager/internal/document/domain"
	"github.com/smallbiznis/kmanager/pkg/db/option"
	"github.com/smallbiznis/kmanager/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() documentdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, doc *documentdomain.Document) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO documents (
			id, org_id, customer_id, contract_id, payment_term_id, document_type, status,
			number, currency, issue_date, due_date, total_net, total_tax, total_gross,
			notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID,
		doc.OrgID,
		doc.CustomerID,
		doc.ContractID,
		doc.PaymentTermID,
		doc.DocumentType,
		doc.Status,
		doc.Number,
		doc.Currency,
		doc.IssueDate,
		doc.DueDate,
		doc.TotalNet,
		doc.TotalTax,
		doc.TotalGross,
		doc.Notes,
		doc.CreatedAt,
		doc.UpdatedAt,
	).Error
}

func (r *repo) InsertLines(ctx context.Context, db *gorm.DB, lines []documentdomain.DocumentLine) error {
	for _, line := range lines {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO document_lines (
				id, org_id, document_id, position, description, quantity, unit_price_net,
				tax_rate_id, tax_rate, line_type, is_selected, is_discountable, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			line.ID,
			line.OrgID,
			line.DocumentID,
			line.Position,
			line.Description,
			line.Quantity,
			line.UnitPriceNet,
			line.TaxRateID,
			line.TaxRate,
			line.LineType,
			line.IsSelected,
			line.IsDiscountable,
			line.CreatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*documentdomain.Document, error) {
	return r.find(db.WithContext(ctx), orgID, id)
}

func (r *repo) LockByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*documentdomain.Document, error) {
	return r.find(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), orgID, id)
}

func (r *repo) find(stmt *gorm.DB, orgID, id snowflake.ID) (*documentdomain.Document, error) {
	var doc documentdomain.Document
	err := stmt.Where("org_id = ? AND id = ?", orgID, id).Take(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	normalizeDates(&doc)
	return &doc, nil
}

func (r *repo) ListLines(ctx context.Context, db *gorm.DB, orgID, documentID snowflake.ID) ([]documentdomain.DocumentLine, error) {
	var lines []documentdomain.DocumentLine
	err := db.WithContext(ctx).
		Where("org_id = ? AND document_id = ?", orgID, documentID).
		Order("position asc, id asc").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repo) UpdateTotals(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, totals documentdomain.Totals, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE documents
		 SET total_net = ?, total_tax = ?, total_gross = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		totals.Net,
		totals.Tax,
		totals.Gross,
		updatedAt,
		orgID,
		id,
	).Error
}

// NextNumber allocates MAX+1 per (org, type). The unique index rejects a
// concurrent writer that read the same maximum.
func (r *repo) NextNumber(ctx context.Context, db *gorm.DB, orgID snowflake.ID, docType documentdomain.DocumentType) (int64, error) {
	var next int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(number), 0) + 1
		 FROM documents
		 WHERE org_id = ? AND document_type = ?`,
		orgID,
		docType,
	).Scan(&next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter documentdomain.ListFilter, page pagination.Pagination) ([]*documentdomain.Document, error) {
	var docs []*documentdomain.Document
	stmt := db.WithContext(ctx).
		Model(&documentdomain.Document{}).
		Where("org_id = ?", orgID)

	options := []option.QueryOption{}
	if filter.DocumentType != "" {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "document_type",
			Operator: option.EQ,
			Value:    filter.DocumentType,
		}))
	}
	if filter.Status != "" {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "status",
			Operator: option.EQ,
			Value:    filter.Status,
		}))
	}
	if filter.CustomerID != 0 {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "customer_id",
			Operator: option.EQ,
			Value:    filter.CustomerID,
		}))
	}
	if filter.ContractID != 0 {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "contract_id",
			Operator: option.EQ,
			Value:    filter.ContractID,
		}))
	}
	options = append(options,
		option.ApplyPagination(page),
		option.WithSortBy(option.QuerySortBy{}),
	)
	for _, opt := range options {
		stmt = opt.Apply(stmt)
	}

	if err := stmt.Find(&docs).Error; err != nil {
		return nil, err
	}
	for _, doc := range docs {
		normalizeDates(doc)
	}
	return docs, nil
}

func normalizeDates(doc *documentdomain.Document) {
	doc.IssueDate = dateOnly(doc.IssueDate)
	if doc.DueDate != nil {
		due := dateOnly(*doc.DueDate)
		doc.DueDate = &due
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
