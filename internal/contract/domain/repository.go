package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kmanager/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	CustomerID snowflake.ID
	IsActive   *bool
}

type RunFilter struct {
	ContractID snowflake.ID
	Status     RunStatus
	From       *time.Time
	To         *time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, contract *Contract) error
	InsertLines(ctx context.Context, db *gorm.DB, lines []ContractLine) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Contract, error)
	// LockByID reads the contract with SELECT ... FOR UPDATE.
	LockByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Contract, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter, page pagination.Pagination) ([]*Contract, error)
	// ListDue returns currently active contracts with next_run_date <= today
	// ordered by next_run_date, id.
	ListDue(ctx context.Context, db *gorm.DB, orgID snowflake.ID, today time.Time) ([]Contract, error)
	Advance(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, lastRun, nextRun, updatedAt time.Time) error

	ListLines(ctx context.Context, db *gorm.DB, orgID, contractID snowflake.ID) ([]ContractLine, error)
	FindLine(ctx context.Context, db *gorm.DB, orgID, contractID, lineID snowflake.ID) (*ContractLine, error)
	UpdateLine(ctx context.Context, db *gorm.DB, line *ContractLine) error

	FindRun(ctx context.Context, db *gorm.DB, contractID snowflake.ID, runDate time.Time) (*ContractRun, error)
	InsertRun(ctx context.Context, db *gorm.DB, run *ContractRun) error
	ListRuns(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter RunFilter, page pagination.Pagination) ([]*ContractRun, error)
}
