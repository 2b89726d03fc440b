package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evdms/dealer-backend/pkg/enums"
)

// QuoteEvent is emitted on every quote lifecycle transition.
type QuoteEvent struct {
	QuoteID        uuid.UUID                 `json:"quote_id"`
	DealerID       uuid.UUID                 `json:"dealer_id"`
	CustomerID     uuid.UUID                 `json:"customer_id"`
	Route          *enums.ApprovalRoute      `json:"approval_route,omitempty"`
	Status         enums.QuoteStatus         `json:"status"`
	ApprovalStatus enums.QuoteApprovalStatus `json:"approval_status"`
	FinalTotal     decimal.Decimal           `json:"final_total"`
	Reason         string                    `json:"reason,omitempty"`
}

// Shortage describes one line that could not be covered by the checked pool.
type Shortage struct {
	VehicleID uuid.UUID `json:"vehicle_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// InventoryShortEvent reports the shortages that blocked a quote or order approval.
type InventoryShortEvent struct {
	AggregateID uuid.UUID           `json:"aggregate_id"`
	DealerID    uuid.UUID           `json:"dealer_id"`
	Pool        enums.InventoryPool `json:"pool"`
	Shortages   []Shortage          `json:"shortages"`
}

// OrderEvent is emitted on order creation and every order status change.
type OrderEvent struct {
	OrderID         uuid.UUID                 `json:"order_id"`
	QuoteID         uuid.UUID                 `json:"quote_id"`
	DealerID        uuid.UUID                 `json:"dealer_id"`
	CustomerID      uuid.UUID                 `json:"customer_id"`
	Status          enums.OrderStatus         `json:"status"`
	ApprovalStatus  enums.OrderApprovalStatus `json:"approval_status"`
	PaymentStatus   enums.OrderPaymentStatus  `json:"payment_status"`
	TotalAmount     decimal.Decimal           `json:"total_amount"`
	PaidAmount      decimal.Decimal           `json:"paid_amount"`
	RemainingAmount decimal.Decimal           `json:"remaining_amount"`
	Note            string                    `json:"note,omitempty"`
}

// PaymentEvent tracks payment initiation and settlement.
type PaymentEvent struct {
	PaymentID    uuid.UUID           `json:"payment_id"`
	OrderID      uuid.UUID           `json:"order_id"`
	Method       enums.PaymentMethod `json:"method"`
	Status       enums.PaymentStatus `json:"status"`
	Amount       decimal.Decimal     `json:"amount"`
	TxnRef       string              `json:"txn_ref,omitempty"`
	ResponseCode string              `json:"response_code,omitempty"`
}

// InstallmentEvent covers plan creation and per-installment settlement.
type InstallmentEvent struct {
	PaymentID         uuid.UUID               `json:"payment_id"`
	InstallmentID     *uuid.UUID              `json:"installment_id,omitempty"`
	InstallmentNumber int                     `json:"installment_number,omitempty"`
	Count             int                     `json:"count,omitempty"`
	Amount            decimal.Decimal         `json:"amount"`
	DueDate           *time.Time              `json:"due_date,omitempty"`
	Status            enums.InstallmentStatus `json:"status,omitempty"`
}

// InventoryEvent mirrors one committed inventory movement.
type InventoryEvent struct {
	MovementID    uuid.UUID                   `json:"movement_id"`
	VehicleID     uuid.UUID                   `json:"vehicle_id"`
	DealerID      *uuid.UUID                  `json:"dealer_id,omitempty"`
	Pool          enums.InventoryPool         `json:"pool"`
	Kind          enums.InventoryMovementKind `json:"kind"`
	Quantity      int                         `json:"quantity"`
	ReferenceType string                      `json:"reference_type,omitempty"`
	ReferenceID   *uuid.UUID                  `json:"reference_id,omitempty"`
}

// DebtEvent mirrors one debt journal entry.
type DebtEvent struct {
	EntryID      uuid.UUID           `json:"entry_id"`
	PartyType    enums.DebtPartyType `json:"party_type"`
	PartyID      uuid.UUID           `json:"party_id"`
	Direction    enums.DebtDirection `json:"direction"`
	Requested    decimal.Decimal     `json:"requested"`
	Applied      decimal.Decimal     `json:"applied"`
	BalanceAfter decimal.Decimal     `json:"balance_after"`
	Reason       string              `json:"reason"`
}
