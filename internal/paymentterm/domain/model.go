package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/kmanager/pkg/repository"
)

// PaymentTerm sets the due date of a document and carries its cash discount.
type PaymentTerm struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID           snowflake.ID    `gorm:"not null;index" json:"org_id"`
	Name            string          `gorm:"type:text;not null" json:"name"`
	NetDays         int             `gorm:"not null" json:"net_days"`
	DiscountDays    int             `gorm:"not null;default:0" json:"discount_days"`
	DiscountPercent decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0" json:"discount_percent"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updated_at"`
}

func (PaymentTerm) TableName() string { return "payment_terms" }

type Repository = repository.Repository[PaymentTerm]

// ComputeDueDate adds NetDays calendar days to issue.
func (p PaymentTerm) ComputeDueDate(issue time.Time) time.Time {
	return issue.AddDate(0, 0, p.NetDays)
}

func (p PaymentTerm) HasDiscount() bool {
	return p.DiscountDays > 0 && p.DiscountPercent.IsPositive()
}

// Text renders the term for printing on a document.
func (p PaymentTerm) Text() string {
	if p.NetDays == 0 {
		return "Payable immediately without deduction"
	}
	if !p.HasDiscount() {
		return fmt.Sprintf("Payable within %d days net", p.NetDays)
	}
	return fmt.Sprintf("%s%% discount if paid within %d days, otherwise within %d days net",
		p.DiscountPercent.String(), p.DiscountDays, p.NetDays)
}

func (p PaymentTerm) Validate() error {
	if p.NetDays < 0 {
		return ErrInvalidNetDays
	}
	if p.DiscountDays < 0 || p.DiscountDays > p.NetDays {
		return ErrInvalidDiscountDays
	}
	if p.DiscountPercent.IsNegative() || p.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
		return ErrInvalidDiscountPercent
	}
	return nil
}
