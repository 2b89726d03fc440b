package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Customer is a buyer registered with a dealer.
type Customer struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	DealerID   uuid.UUID       `gorm:"column:dealer_id;type:uuid;not null;index"`
	FullName   string          `gorm:"column:full_name;not null"`
	Email      *string         `gorm:"column:email"`
	Phone      *string         `gorm:"column:phone"`
	TotalSpent decimal.Decimal `gorm:"column:total_spent;type:numeric(20,2);not null;default:0"`
	TotalDebt  decimal.Decimal `gorm:"column:total_debt;type:numeric(20,2);not null;default:0"`
	IsVIP      bool            `gorm:"column:is_vip;not null;default:false"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Customer) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
