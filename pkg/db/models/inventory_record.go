package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/evdms/dealer-backend/pkg/enums"
)

// InventoryRecord tracks stock for one vehicle in one pool. DealerID is nil for the factory pool.
type InventoryRecord struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	VehicleID         uuid.UUID           `gorm:"column:vehicle_id;type:uuid;not null;index"`
	DealerID          *uuid.UUID          `gorm:"column:dealer_id;type:uuid;index"`
	PoolType          enums.InventoryPool `gorm:"column:pool_type;type:varchar(16);not null"`
	AvailableQuantity int                 `gorm:"column:available_quantity;not null;default:0;check:chk_inventory_available_non_negative,available_quantity >= 0"`
	ReservedQuantity  int                 `gorm:"column:reserved_quantity;not null;default:0;check:chk_inventory_reserved_non_negative,reserved_quantity >= 0"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *InventoryRecord) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
