package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/evdms/dealer-backend/pkg/enums"
)

// DebtEntry journals every change applied to a customer or dealer balance.
// AppliedAmount differs from RequestedAmount when a reduction is clamped at zero.
type DebtEntry struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	PartyType       enums.DebtPartyType `gorm:"column:party_type;type:varchar(16);not null;index:idx_debt_entries_party"`
	PartyID         uuid.UUID           `gorm:"column:party_id;type:uuid;not null;index:idx_debt_entries_party"`
	Direction       enums.DebtDirection `gorm:"column:direction;type:varchar(16);not null"`
	RequestedAmount decimal.Decimal     `gorm:"column:requested_amount;type:numeric(20,2);not null"`
	AppliedAmount   decimal.Decimal     `gorm:"column:applied_amount;type:numeric(20,2);not null"`
	BalanceAfter    decimal.Decimal     `gorm:"column:balance_after;type:numeric(20,2);not null"`
	Reason          string              `gorm:"column:reason;not null"`
	ReferenceType   *string             `gorm:"column:reference_type"`
	ReferenceID     *uuid.UUID          `gorm:"column:reference_id;type:uuid"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (e *DebtEntry) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
