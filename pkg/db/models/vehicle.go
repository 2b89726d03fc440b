package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Vehicle is a catalog row. VIN and engine number are assigned once a physical
// unit is allocated and must be present before the vehicle can be ordered.
type Vehicle struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ModelName    string          `gorm:"column:model_name;not null"`
	Variant      *string         `gorm:"column:variant"`
	Color        *string         `gorm:"column:color"`
	VIN          *string         `gorm:"column:vin;uniqueIndex"`
	EngineNumber *string         `gorm:"column:engine_number"`
	ListPrice    decimal.Decimal `gorm:"column:list_price;type:numeric(20,2);not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *Vehicle) BeforeCreate(*gorm.DB) error {
	ensureID(&v.ID)
	return nil
}

// HasUnitIdentity reports whether both VIN and engine number are assigned.
func (v Vehicle) HasUnitIdentity() bool {
	return v.VIN != nil && strings.TrimSpace(*v.VIN) != "" &&
		v.EngineNumber != nil && strings.TrimSpace(*v.EngineNumber) != ""
}
