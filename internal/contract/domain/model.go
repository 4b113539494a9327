package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	documentdomain "github.com/smallbiznis/kmanager/internal/document/domain"
	"github.com/smallbiznis/kmanager/internal/validation"
)

type Interval string

const (
	IntervalMonthly    Interval = "MONTHLY"
	IntervalQuarterly  Interval = "QUARTERLY"
	IntervalSemiAnnual Interval = "SEMI_ANNUAL"
	IntervalAnnual     Interval = "ANNUAL"
)

// Months returns the interval length, or 0 for an unknown interval.
func (i Interval) Months() int {
	switch i {
	case IntervalMonthly:
		return 1
	case IntervalQuarterly:
		return 3
	case IntervalSemiAnnual:
		return 6
	case IntervalAnnual:
		return 12
	default:
		return 0
	}
}

func (i Interval) Valid() bool {
	return i.Months() > 0
}

// AddInterval moves date forward by one interval. The day of month is
// clamped to the last day of the target month, so Jan 31 becomes Feb 28
// (or 29).
func (i Interval) AddInterval(date time.Time) time.Time {
	return AddMonths(date, i.Months())
}

func AddMonths(date time.Time, months int) time.Time {
	y, m, d := date.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

// DateOf truncates t to its calendar date at UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type Contract struct {
	ID            snowflake.ID                `gorm:"primaryKey" json:"id"`
	OrgID         snowflake.ID                `gorm:"not null;index:ix_contracts_org_next_run,priority:1" json:"org_id"`
	CustomerID    snowflake.ID                `gorm:"not null;index" json:"customer_id"`
	PaymentTermID *snowflake.ID               `json:"payment_term_id,omitempty"`
	DocumentType  documentdomain.DocumentType `gorm:"type:text;not null" json:"document_type"`
	Name          string                      `gorm:"type:text;not null" json:"name"`
	Currency      string                      `gorm:"type:char(3);not null" json:"currency"`
	Interval      Interval                    `gorm:"column:billing_interval;type:text;not null" json:"interval"`
	StartDate     time.Time                   `gorm:"type:date;not null" json:"start_date"`
	EndDate       *time.Time                  `gorm:"type:date" json:"end_date,omitempty"`
	NextRunDate   time.Time                   `gorm:"type:date;not null;index:ix_contracts_org_next_run,priority:2" json:"next_run_date"`
	LastRunDate   *time.Time                  `gorm:"type:date" json:"last_run_date,omitempty"`
	IsActive      bool                        `gorm:"not null" json:"is_active"`
	Notes         string                      `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt     time.Time                   `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time                   `gorm:"not null" json:"updated_at"`

	Lines []ContractLine `gorm:"-" json:"lines,omitempty"`
}

func (Contract) TableName() string { return "contracts" }

// IsCurrentlyActive reports whether the contract is enabled and not ended
// on today.
func (c Contract) IsCurrentlyActive(today time.Time) bool {
	if !c.IsActive {
		return false
	}
	return c.EndDate == nil || !DateOf(today).After(DateOf(*c.EndDate))
}

func (c Contract) IsDue(today time.Time) bool {
	return c.IsCurrentlyActive(today) && !DateOf(c.NextRunDate).After(DateOf(today))
}

func (c Contract) Validate() error {
	if !c.Interval.Valid() {
		return ErrInvalidInterval
	}
	if !c.DocumentType.Valid() {
		return documentdomain.ErrInvalidDocumentType
	}
	if c.EndDate != nil && c.EndDate.Before(c.StartDate) {
		return ErrEndBeforeStart
	}
	if c.NextRunDate.Before(c.StartDate) {
		return ErrNextRunBeforeStart
	}
	return nil
}

// ContractLine is a template. Billing copies its values into new document
// lines; editing it never touches documents already generated.
type ContractLine struct {
	ID             snowflake.ID        `gorm:"primaryKey" json:"id"`
	OrgID          snowflake.ID        `gorm:"not null;index" json:"org_id"`
	ContractID     snowflake.ID        `gorm:"not null;uniqueIndex:ux_contract_lines_position,priority:1" json:"contract_id"`
	Position       int                 `gorm:"not null;uniqueIndex:ux_contract_lines_position,priority:2" json:"position"`
	Description    string              `gorm:"type:text;not null" json:"description"`
	Quantity       decimal.Decimal     `gorm:"type:numeric(15,4);not null" json:"quantity"`
	UnitPriceNet   decimal.Decimal     `gorm:"type:numeric(15,2);not null" json:"unit_price_net"`
	TaxRateID      *snowflake.ID       `json:"tax_rate_id,omitempty"`
	TaxRate        decimal.NullDecimal `gorm:"type:numeric(6,4)" json:"tax_rate"`
	IsDiscountable bool                `gorm:"not null" json:"is_discountable"`
	CreatedAt      time.Time           `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time           `gorm:"not null" json:"updated_at"`
}

func (ContractLine) TableName() string { return "contract_lines" }

func (l ContractLine) Validate() error {
	if l.Quantity.IsNegative() || l.UnitPriceNet.IsNegative() {
		return ErrNegativeAmount
	}
	if !validation.FitsScale(l.Quantity, documentdomain.QuantityScale) ||
		!validation.FitsScale(l.UnitPriceNet, documentdomain.UnitPriceScale) {
		return ErrExcessPrecision
	}
	if l.TaxRate.Valid && (l.TaxRate.Decimal.IsNegative() || l.TaxRate.Decimal.GreaterThan(decimal.NewFromInt(1))) {
		return ErrInvalidTaxRate
	}
	return nil
}

type RunStatus string

const (
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusFailed  RunStatus = "FAILED"
	RunStatusSkipped RunStatus = "SKIPPED"
)

// ContractRun records one billing attempt. The unique (contract, run date)
// index makes billing at most once per contract and day.
type ContractRun struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID  `gorm:"not null;index" json:"org_id"`
	ContractID snowflake.ID  `gorm:"not null;uniqueIndex:ux_contract_runs_contract_date,priority:1" json:"contract_id"`
	RunDate    time.Time     `gorm:"type:date;not null;uniqueIndex:ux_contract_runs_contract_date,priority:2" json:"run_date"`
	Status     RunStatus     `gorm:"type:text;not null" json:"status"`
	Message    *string       `gorm:"type:text" json:"message,omitempty"`
	DocumentID *snowflake.ID `json:"document_id,omitempty"`
	BatchID    string        `gorm:"type:char(26);not null;index" json:"batch_id"`
	CreatedAt  time.Time     `gorm:"not null" json:"created_at"`
}

func (ContractRun) TableName() string { return "contract_runs" }
