package controllers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evdms/dealer-backend/internal/debt"
	"github.com/evdms/dealer-backend/pkg/db/models"
	"github.com/evdms/dealer-backend/pkg/enums"
	"github.com/evdms/dealer-backend/pkg/outbox/payloads"
)

type QuoteLineDTO struct {
	ID                       uuid.UUID       `json:"id"`
	VehicleID                uuid.UUID       `json:"vehicle_id"`
	Quantity                 int             `json:"quantity"`
	UnitPrice                decimal.Decimal `json:"unit_price"`
	PromotionDiscountPercent decimal.Decimal `json:"promotion_discount_percent"`
	LineTotal                decimal.Decimal `json:"line_total"`
}

type QuoteDTO struct {
	ID              uuid.UUID                 `json:"id"`
	QuoteNumber     string                    `json:"quote_number"`
	DealerID        uuid.UUID                 `json:"dealer_id"`
	CustomerID      uuid.UUID                 `json:"customer_id"`
	StaffUserID     uuid.UUID                 `json:"staff_user_id"`
	Status          enums.QuoteStatus         `json:"status"`
	ApprovalStatus  enums.QuoteApprovalStatus `json:"approval_status"`
	ApprovalRoute   *enums.ApprovalRoute      `json:"approval_route,omitempty"`
	Subtotal        decimal.Decimal           `json:"subtotal"`
	VATAmount       decimal.Decimal           `json:"vat_amount"`
	DiscountAmount  decimal.Decimal           `json:"discount_amount"`
	FinalTotal      decimal.Decimal           `json:"final_total"`
	ValidUntil      time.Time                 `json:"valid_until"`
	SubmittedAt     *time.Time                `json:"submitted_at,omitempty"`
	ApprovedBy      *uuid.UUID                `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time                `json:"approved_at,omitempty"`
	ApprovalNotes   *string                   `json:"approval_notes,omitempty"`
	RejectedBy      *uuid.UUID                `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time                `json:"rejected_at,omitempty"`
	RejectionReason *string                   `json:"rejection_reason,omitempty"`
	DecidedAt       *time.Time                `json:"decided_at,omitempty"`
	Notes           *string                   `json:"notes,omitempty"`
	Items           []QuoteLineDTO            `json:"items"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

func newQuoteDTO(q *models.Quote) QuoteDTO {
	dto := QuoteDTO{
		ID:              q.ID,
		QuoteNumber:     q.QuoteNumber,
		DealerID:        q.DealerID,
		CustomerID:      q.CustomerID,
		StaffUserID:     q.StaffUserID,
		Status:          q.Status,
		ApprovalStatus:  q.ApprovalStatus,
		ApprovalRoute:   q.ApprovalRoute,
		Subtotal:        q.Subtotal,
		VATAmount:       q.VATAmount,
		DiscountAmount:  q.DiscountAmount,
		FinalTotal:      q.FinalTotal,
		ValidUntil:      q.ValidUntil,
		SubmittedAt:     q.SubmittedAt,
		ApprovedBy:      q.ApprovedBy,
		ApprovedAt:      q.ApprovedAt,
		ApprovalNotes:   q.ApprovalNotes,
		RejectedBy:      q.RejectedBy,
		RejectedAt:      q.RejectedAt,
		RejectionReason: q.RejectionReason,
		DecidedAt:       q.DecidedAt,
		Notes:           q.Notes,
		Items:           make([]QuoteLineDTO, 0, len(q.Items)),
		CreatedAt:       q.CreatedAt,
		UpdatedAt:       q.UpdatedAt,
	}
	for _, item := range q.Items {
		dto.Items = append(dto.Items, QuoteLineDTO{
			ID:                       item.ID,
			VehicleID:                item.VehicleID,
			Quantity:                 item.Quantity,
			UnitPrice:                item.UnitPrice,
			PromotionDiscountPercent: item.PromotionDiscountPercent,
			LineTotal:                item.LineTotal,
		})
	}
	return dto
}

type OrderLineDTO struct {
	ID             uuid.UUID       `json:"id"`
	VehicleID      uuid.UUID       `json:"vehicle_id"`
	VIN            string          `json:"vin"`
	EngineNumber   string          `json:"engine_number"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	LineTotal      decimal.Decimal `json:"line_total"`
}

type OrderDTO struct {
	ID                uuid.UUID                 `json:"id"`
	OrderNumber       string                    `json:"order_number"`
	QuoteID           uuid.UUID                 `json:"quote_id"`
	DealerID          uuid.UUID                 `json:"dealer_id"`
	CustomerID        uuid.UUID                 `json:"customer_id"`
	StaffUserID       uuid.UUID                 `json:"staff_user_id"`
	ApprovalRoute     enums.ApprovalRoute       `json:"approval_route"`
	Status            enums.OrderStatus         `json:"status"`
	ApprovalStatus    enums.OrderApprovalStatus `json:"approval_status"`
	PaymentStatus     enums.OrderPaymentStatus  `json:"payment_status"`
	PaymentPercentage int                       `json:"payment_percentage"`
	TotalAmount       decimal.Decimal           `json:"total_amount"`
	TotalDiscount     decimal.Decimal           `json:"total_discount"`
	PaidAmount        decimal.Decimal           `json:"paid_amount"`
	RemainingAmount   decimal.Decimal           `json:"remaining_amount"`
	ApprovedBy        *uuid.UUID                `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time                `json:"approved_at,omitempty"`
	ApprovalNotes     *string                   `json:"approval_notes,omitempty"`
	RejectedBy        *uuid.UUID                `json:"rejected_by,omitempty"`
	RejectedAt        *time.Time                `json:"rejected_at,omitempty"`
	RejectionReason   *string                   `json:"rejection_reason,omitempty"`
	DeliveredAt       *time.Time                `json:"delivered_at,omitempty"`
	Items             []OrderLineDTO            `json:"items"`
	CreatedAt         time.Time                 `json:"created_at"`
	UpdatedAt         time.Time                 `json:"updated_at"`
}

func newOrderDTO(o *models.Order) OrderDTO {
	dto := OrderDTO{
		ID:                o.ID,
		OrderNumber:       o.OrderNumber,
		QuoteID:           o.QuoteID,
		DealerID:          o.DealerID,
		CustomerID:        o.CustomerID,
		StaffUserID:       o.StaffUserID,
		ApprovalRoute:     o.ApprovalRoute,
		Status:            o.Status,
		ApprovalStatus:    o.ApprovalStatus,
		PaymentStatus:     o.PaymentStatus,
		PaymentPercentage: o.PaymentPercentage,
		TotalAmount:       o.TotalAmount,
		TotalDiscount:     o.TotalDiscount,
		PaidAmount:        o.PaidAmount,
		RemainingAmount:   o.RemainingAmount,
		ApprovedBy:        o.ApprovedBy,
		ApprovedAt:        o.ApprovedAt,
		ApprovalNotes:     o.ApprovalNotes,
		RejectedBy:        o.RejectedBy,
		RejectedAt:        o.RejectedAt,
		RejectionReason:   o.RejectionReason,
		DeliveredAt:       o.DeliveredAt,
		Items:             make([]OrderLineDTO, 0, len(o.Items)),
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
	for _, item := range o.Items {
		dto.Items = append(dto.Items, OrderLineDTO{
			ID:             item.ID,
			VehicleID:      item.VehicleID,
			VIN:            item.VIN,
			EngineNumber:   item.EngineNumber,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			DiscountAmount: item.DiscountAmount,
			LineTotal:      item.LineTotal,
		})
	}
	return dto
}

func optionalOrderDTO(o *models.Order) *OrderDTO {
	if o == nil {
		return nil
	}
	dto := newOrderDTO(o)
	return &dto
}

type InstallmentDTO struct {
	ID                uuid.UUID               `json:"id"`
	PaymentID         uuid.UUID               `json:"payment_id"`
	InstallmentNumber int                     `json:"installment_number"`
	Amount            decimal.Decimal         `json:"amount"`
	AnnualRate        decimal.Decimal         `json:"annual_rate"`
	DueDate           time.Time               `json:"due_date"`
	PaidDate          *time.Time              `json:"paid_date,omitempty"`
	Status            enums.InstallmentStatus `json:"status"`
	SettlementMethod  *enums.PaymentMethod    `json:"settlement_method,omitempty"`
}

func newInstallmentDTOs(items []models.Installment) []InstallmentDTO {
	out := make([]InstallmentDTO, 0, len(items))
	for i := range items {
		out = append(out, newInstallmentDTO(&items[i]))
	}
	return out
}

func newInstallmentDTO(i *models.Installment) InstallmentDTO {
	return InstallmentDTO{
		ID:                i.ID,
		PaymentID:         i.PaymentID,
		InstallmentNumber: i.InstallmentNumber,
		Amount:            i.Amount,
		AnnualRate:        i.AnnualRate,
		DueDate:           i.DueDate,
		PaidDate:          i.PaidDate,
		Status:            i.Status,
		SettlementMethod:  i.SettlementMethod,
	}
}

type PaymentDTO struct {
	ID                   uuid.UUID           `json:"id"`
	OrderID              uuid.UUID           `json:"order_id"`
	Method               enums.PaymentMethod `json:"payment_method"`
	Status               enums.PaymentStatus `json:"status"`
	Amount               decimal.Decimal     `json:"amount"`
	Percentage           int                 `json:"percentage"`
	TxnRef               *string             `json:"txn_ref,omitempty"`
	GatewayTransactionNo *string             `json:"gateway_transaction_no,omitempty"`
	ResponseCode         *string             `json:"response_code,omitempty"`
	BankCode             *string             `json:"bank_code,omitempty"`
	CardType             *string             `json:"card_type,omitempty"`
	PayDate              *time.Time          `json:"pay_date,omitempty"`
	AppliedAt            *time.Time          `json:"applied_at,omitempty"`
	Installments         []InstallmentDTO    `json:"installments,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
}

func newPaymentDTO(p *models.Payment) PaymentDTO {
	dto := PaymentDTO{
		ID:                   p.ID,
		OrderID:              p.OrderID,
		Method:               p.Method,
		Status:               p.Status,
		Amount:               p.Amount,
		Percentage:           p.Percentage,
		TxnRef:               p.TxnRef,
		GatewayTransactionNo: p.GatewayTransactionNo,
		ResponseCode:         p.ResponseCode,
		BankCode:             p.BankCode,
		CardType:             p.CardType,
		PayDate:              p.PayDate,
		AppliedAt:            p.AppliedAt,
		CreatedAt:            p.CreatedAt,
	}
	if len(p.Installments) > 0 {
		dto.Installments = newInstallmentDTOs(p.Installments)
	}
	return dto
}

type MovementDTO struct {
	ID            uuid.UUID                   `json:"id"`
	VehicleID     uuid.UUID                   `json:"vehicle_id"`
	DealerID      *uuid.UUID                  `json:"dealer_id,omitempty"`
	Pool          enums.InventoryPool         `json:"pool"`
	Kind          enums.InventoryMovementKind `json:"kind"`
	Quantity      int                         `json:"quantity"`
	ReferenceType *string                     `json:"reference_type,omitempty"`
	ReferenceID   *uuid.UUID                  `json:"reference_id,omitempty"`
	ReversesID    *uuid.UUID                  `json:"reverses_id,omitempty"`
	ReversedAt    *time.Time                  `json:"reversed_at,omitempty"`
	Note          *string                     `json:"note,omitempty"`
	CreatedAt     time.Time                   `json:"created_at"`
}

func newMovementDTO(m *models.InventoryMovement) MovementDTO {
	return MovementDTO{
		ID:            m.ID,
		VehicleID:     m.VehicleID,
		DealerID:      m.DealerID,
		Pool:          m.PoolType,
		Kind:          m.Kind,
		Quantity:      m.Quantity,
		ReferenceType: m.ReferenceType,
		ReferenceID:   m.ReferenceID,
		ReversesID:    m.ReversesID,
		ReversedAt:    m.ReversedAt,
		Note:          m.Note,
		CreatedAt:     m.CreatedAt,
	}
}

type DebtEntryDTO struct {
	ID              uuid.UUID           `json:"id"`
	Direction       enums.DebtDirection `json:"direction"`
	RequestedAmount decimal.Decimal     `json:"requested_amount"`
	AppliedAmount   decimal.Decimal     `json:"applied_amount"`
	BalanceAfter    decimal.Decimal     `json:"balance_after"`
	Reason          string              `json:"reason"`
	ReferenceType   *string             `json:"reference_type,omitempty"`
	ReferenceID     *uuid.UUID          `json:"reference_id,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

func newDebtEntryDTO(e *models.DebtEntry) DebtEntryDTO {
	return DebtEntryDTO{
		ID:              e.ID,
		Direction:       e.Direction,
		RequestedAmount: e.RequestedAmount,
		AppliedAmount:   e.AppliedAmount,
		BalanceAfter:    e.BalanceAfter,
		Reason:          e.Reason,
		ReferenceType:   e.ReferenceType,
		ReferenceID:     e.ReferenceID,
		CreatedAt:       e.CreatedAt,
	}
}

type DebtSummaryDTO struct {
	PartyType  enums.DebtPartyType `json:"party_type"`
	PartyID    uuid.UUID           `json:"party_id"`
	Balance    decimal.Decimal     `json:"balance"`
	Entries    []DebtEntryDTO      `json:"entries"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

func newDebtSummaryDTO(s *debt.Summary) DebtSummaryDTO {
	dto := DebtSummaryDTO{
		PartyType:  s.PartyType,
		PartyID:    s.PartyID,
		Balance:    s.Balance,
		Entries:    make([]DebtEntryDTO, 0, len(s.Entries)),
		NextCursor: s.NextCursor,
	}
	for i := range s.Entries {
		dto.Entries = append(dto.Entries, newDebtEntryDTO(&s.Entries[i]))
	}
	return dto
}

type ReconciliationDTO struct {
	CustomerID uuid.UUID       `json:"customer_id"`
	Recorded   decimal.Decimal `json:"recorded"`
	Expected   decimal.Decimal `json:"expected"`
	Drift      decimal.Decimal `json:"drift"`
	Adjusted   bool            `json:"adjusted"`
}

// ShortageDTO is reused by quote inventory checks and order approvals.
type ShortageDTO = payloads.Shortage
