package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/evdms/dealer-backend/pkg/enums"
)

// Order is the binding purchase created once from an approved and accepted quote.
type Order struct {
	ID                uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber       string                    `gorm:"column:order_number;not null;uniqueIndex"`
	QuoteID           uuid.UUID                 `gorm:"column:quote_id;type:uuid;not null;index"`
	DealerID          uuid.UUID                 `gorm:"column:dealer_id;type:uuid;not null;index"`
	CustomerID        uuid.UUID                 `gorm:"column:customer_id;type:uuid;not null;index"`
	StaffUserID       uuid.UUID                 `gorm:"column:staff_user_id;type:uuid;not null"`
	ApprovalRoute     enums.ApprovalRoute       `gorm:"column:approval_route;type:varchar(32);not null"`
	Status            enums.OrderStatus         `gorm:"column:status;type:varchar(32);not null;default:'PENDING'"`
	ApprovalStatus    enums.OrderApprovalStatus `gorm:"column:approval_status;type:varchar(32);not null;default:'PENDING_APPROVAL'"`
	PaymentStatus     enums.OrderPaymentStatus  `gorm:"column:payment_status;type:varchar(32);not null;default:'UNPAID'"`
	PaymentPercentage int                       `gorm:"column:payment_percentage;not null;default:0"`
	TotalAmount       decimal.Decimal           `gorm:"column:total_amount;type:numeric(20,2);not null"`
	TotalDiscount     decimal.Decimal           `gorm:"column:total_discount;type:numeric(20,2);not null;default:0"`
	PaidAmount        decimal.Decimal           `gorm:"column:paid_amount;type:numeric(20,2);not null;default:0"`
	RemainingAmount   decimal.Decimal           `gorm:"column:remaining_amount;type:numeric(20,2);not null"`
	ApprovedBy        *uuid.UUID                `gorm:"column:approved_by;type:uuid"`
	ApprovedAt        *time.Time                `gorm:"column:approved_at"`
	ApprovalNotes     *string                   `gorm:"column:approval_notes"`
	RejectedBy        *uuid.UUID                `gorm:"column:rejected_by;type:uuid"`
	RejectedAt        *time.Time                `gorm:"column:rejected_at"`
	RejectionReason   *string                   `gorm:"column:rejection_reason"`
	DeliveredAt       *time.Time                `gorm:"column:delivered_at"`
	DeliveredBy       *uuid.UUID                `gorm:"column:delivered_by;type:uuid"`
	Items             []OrderLineItem           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OrderLineItem carries the physical unit identity assigned to an order line.
type OrderLineItem struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	VehicleID      uuid.UUID       `gorm:"column:vehicle_id;type:uuid;not null"`
	VIN            string          `gorm:"column:vin;not null"`
	EngineNumber   string          `gorm:"column:engine_number;not null"`
	Quantity       int             `gorm:"column:quantity;not null"`
	UnitPrice      decimal.Decimal `gorm:"column:unit_price;type:numeric(20,2);not null"`
	DiscountAmount decimal.Decimal `gorm:"column:discount_amount;type:numeric(20,2);not null;default:0"`
	LineTotal      decimal.Decimal `gorm:"column:line_total;type:numeric(20,2);not null"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderLineItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
