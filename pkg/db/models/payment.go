package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/evdms/dealer-backend/pkg/enums"
)

// Payment is one settlement attempt against an order.
type Payment struct {
	ID                   uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID              uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	CustomerID           uuid.UUID           `gorm:"column:customer_id;type:uuid;not null"`
	DealerID             uuid.UUID           `gorm:"column:dealer_id;type:uuid;not null"`
	Method               enums.PaymentMethod `gorm:"column:payment_method;type:varchar(32);not null"`
	Status               enums.PaymentStatus `gorm:"column:status;type:varchar(16);not null;default:'PENDING'"`
	Amount               decimal.Decimal     `gorm:"column:amount;type:numeric(20,2);not null"`
	Percentage           int                 `gorm:"column:percentage;not null;default:0"`
	TxnRef               *string             `gorm:"column:txn_ref;uniqueIndex"`
	GatewayTransactionNo *string             `gorm:"column:gateway_transaction_no"`
	ResponseCode         *string             `gorm:"column:response_code"`
	BankCode             *string             `gorm:"column:bank_code"`
	CardType             *string             `gorm:"column:card_type"`
	PayDate              *time.Time          `gorm:"column:pay_date"`
	AppliedAt            *time.Time          `gorm:"column:applied_at"`
	CreatedBy            *uuid.UUID          `gorm:"column:created_by;type:uuid"`
	Installments         []Installment       `gorm:"foreignKey:PaymentID;constraint:OnDelete:CASCADE"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// Installment is one dated slice of an installment payment.
type Installment struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	PaymentID         uuid.UUID               `gorm:"column:payment_id;type:uuid;not null;uniqueIndex:ux_installments_payment_number"`
	InstallmentNumber int                     `gorm:"column:installment_number;not null;uniqueIndex:ux_installments_payment_number"`
	Amount            decimal.Decimal         `gorm:"column:amount;type:numeric(20,2);not null"`
	AnnualRate        decimal.Decimal         `gorm:"column:annual_rate;type:numeric(7,4);not null;default:0"`
	DueDate           time.Time               `gorm:"column:due_date;not null"`
	PaidDate          *time.Time              `gorm:"column:paid_date"`
	Status            enums.InstallmentStatus `gorm:"column:status;type:varchar(16);not null;default:'PENDING'"`
	SettlementMethod  *enums.PaymentMethod    `gorm:"column:settlement_method;type:varchar(32)"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *Installment) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
