package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Dealer is a franchise location. OutstandingDebt is what the dealer owes the manufacturer.
type Dealer struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name            string          `gorm:"column:name;not null"`
	Code            string          `gorm:"column:code;not null;uniqueIndex"`
	Region          *string         `gorm:"column:region"`
	OutstandingDebt decimal.Decimal `gorm:"column:outstanding_debt;type:numeric(20,2);not null;default:0"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (d *Dealer) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}
