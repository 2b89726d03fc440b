package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/evdms/dealer-backend/pkg/enums"
)

// InventoryMovement is the append-only journal of committed stock changes.
type InventoryMovement struct {
	ID            uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	RecordID      uuid.UUID                   `gorm:"column:record_id;type:uuid;not null;index"`
	VehicleID     uuid.UUID                   `gorm:"column:vehicle_id;type:uuid;not null"`
	DealerID      *uuid.UUID                  `gorm:"column:dealer_id;type:uuid"`
	PoolType      enums.InventoryPool         `gorm:"column:pool_type;type:varchar(16);not null"`
	Kind          enums.InventoryMovementKind `gorm:"column:kind;type:varchar(16);not null"`
	Quantity      int                         `gorm:"column:quantity;not null"`
	ReferenceType *string                     `gorm:"column:reference_type;index:idx_inventory_movements_reference"`
	ReferenceID   *uuid.UUID                  `gorm:"column:reference_id;type:uuid;index:idx_inventory_movements_reference"`
	ReversesID    *uuid.UUID                  `gorm:"column:reverses_movement_id;type:uuid"`
	ReversedAt    *time.Time                  `gorm:"column:reversed_at"`
	ActorID       *uuid.UUID                  `gorm:"column:actor_id;type:uuid"`
	Note          *string                     `gorm:"column:note"`
	CreatedAt     time.Time                   `gorm:"column:created_at;autoCreateTime"`
}

func (m *InventoryMovement) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
