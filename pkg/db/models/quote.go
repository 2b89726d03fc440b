package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/evdms/dealer-backend/pkg/enums"
)

// Quote is a priced proposal routed through one approval path before it can become an order.
type Quote struct {
	ID              uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	QuoteNumber     string                    `gorm:"column:quote_number;not null;uniqueIndex"`
	DealerID        uuid.UUID                 `gorm:"column:dealer_id;type:uuid;not null;index"`
	CustomerID      uuid.UUID                 `gorm:"column:customer_id;type:uuid;not null;index"`
	StaffUserID     uuid.UUID                 `gorm:"column:staff_user_id;type:uuid;not null"`
	Status          enums.QuoteStatus         `gorm:"column:status;type:varchar(32);not null;default:'DRAFT'"`
	ApprovalStatus  enums.QuoteApprovalStatus `gorm:"column:approval_status;type:varchar(48);not null;default:'DRAFT'"`
	ApprovalRoute   *enums.ApprovalRoute      `gorm:"column:approval_route;type:varchar(32)"`
	Subtotal        decimal.Decimal           `gorm:"column:subtotal;type:numeric(20,2);not null;default:0"`
	VATAmount       decimal.Decimal           `gorm:"column:vat_amount;type:numeric(20,2);not null;default:0"`
	DiscountAmount  decimal.Decimal           `gorm:"column:discount_amount;type:numeric(20,2);not null;default:0"`
	FinalTotal      decimal.Decimal           `gorm:"column:final_total;type:numeric(20,2);not null;default:0"`
	ValidUntil      time.Time                 `gorm:"column:valid_until;not null"`
	SubmittedAt     *time.Time                `gorm:"column:submitted_at"`
	ApprovedBy      *uuid.UUID                `gorm:"column:approved_by;type:uuid"`
	ApprovedAt      *time.Time                `gorm:"column:approved_at"`
	ApprovalNotes   *string                   `gorm:"column:approval_notes"`
	RejectedBy      *uuid.UUID                `gorm:"column:rejected_by;type:uuid"`
	RejectedAt      *time.Time                `gorm:"column:rejected_at"`
	RejectionReason *string                   `gorm:"column:rejection_reason"`
	DecidedAt       *time.Time                `gorm:"column:decided_at"`
	Notes           *string                   `gorm:"column:notes"`
	Items           []QuoteLineItem           `gorm:"foreignKey:QuoteID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (q *Quote) BeforeCreate(*gorm.DB) error {
	ensureID(&q.ID)
	return nil
}

// Route returns the approval route chosen at submission, or false while the quote is unrouted.
func (q Quote) Route() (enums.ApprovalRoute, bool) {
	if q.ApprovalRoute == nil {
		return "", false
	}
	return *q.ApprovalRoute, true
}

// QuoteLineItem is one vehicle line on a quote.
type QuoteLineItem struct {
	ID                       uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	QuoteID                  uuid.UUID       `gorm:"column:quote_id;type:uuid;not null;index"`
	VehicleID                uuid.UUID       `gorm:"column:vehicle_id;type:uuid;not null"`
	Quantity                 int             `gorm:"column:quantity;not null"`
	UnitPrice                decimal.Decimal `gorm:"column:unit_price;type:numeric(20,2);not null"`
	PromotionDiscountPercent decimal.Decimal `gorm:"column:promotion_discount_percent;type:numeric(5,2);not null;default:0"`
	LineTotal                decimal.Decimal `gorm:"column:line_total;type:numeric(20,2);not null"`
	CreatedAt                time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (i *QuoteLineItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
