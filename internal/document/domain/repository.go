package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kmanager/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	DocumentType DocumentType
	Status       DocumentStatus
	CustomerID   snowflake.ID
	ContractID   snowflake.ID
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, doc *Document) error
	InsertLines(ctx context.Context, db *gorm.DB, lines []DocumentLine) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Document, error)
	// LockByID reads the document with SELECT ... FOR UPDATE.
	LockByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Document, error)
	ListLines(ctx context.Context, db *gorm.DB, orgID, documentID snowflake.ID) ([]DocumentLine, error)
	UpdateTotals(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, totals Totals, updatedAt time.Time) error
	NextNumber(ctx context.Context, db *gorm.DB, orgID snowflake.ID, docType DocumentType) (int64, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter, page pagination.Pagination) ([]*Document, error)
}
