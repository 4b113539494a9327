package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Company is the tenant. Every other record carries its id as org_id.
type Company struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Address   string       `gorm:"type:text" json:"address,omitempty"`
	Email     string       `gorm:"type:text" json:"email,omitempty"`
	Currency  string       `gorm:"type:char(3);not null" json:"currency"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (Company) TableName() string { return "companies" }
