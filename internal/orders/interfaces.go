package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/evdms/dealer-backend/internal/debt"
	"github.com/evdms/dealer-backend/internal/inventory"
	"github.com/evdms/dealer-backend/pkg/db/models"
	"github.com/evdms/dealer-backend/pkg/enums"
	"github.com/evdms/dealer-backend/pkg/outbox/payloads"
)

// Repository defines persistence operations for orders and the rows they touch.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindQuoteForUpdate(ctx context.Context, id uuid.UUID) (*models.Quote, error)
	HasActiveOrderForQuote(ctx context.Context, quoteID uuid.UUID) (bool, error)
	FindVehicles(ctx context.Context, ids []uuid.UUID) ([]models.Vehicle, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	CreatePayment(ctx context.Context, payment *models.Payment) error
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error
	FindCustomerForUpdate(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	UpdateCustomerSpend(ctx context.Context, id uuid.UUID, totalSpent decimal.Decimal, isVIP bool) error
	MarkPaymentApplied(ctx context.Context, paymentID uuid.UUID, at time.Time) (bool, error)
}

// Inventory is the slice of the inventory ledger the order workflow needs.
type Inventory interface {
	Shortages(ctx context.Context, tx *gorm.DB, pool enums.InventoryPool, dealerID *uuid.UUID, lines []inventory.Line) ([]payloads.Shortage, error)
	Deduct(ctx context.Context, req inventory.DeductRequest) (*models.InventoryMovement, error)
	Reverse(ctx context.Context, req inventory.ReverseRequest) (*models.InventoryMovement, error)
}

// DebtLedger books customer receivables inside the order transaction.
type DebtLedger interface {
	AddCustomerDebt(ctx context.Context, tx *gorm.DB, change debt.Change) (*models.DebtEntry, error)
	ReduceCustomerDebt(ctx context.Context, tx *gorm.DB, change debt.Change) (*models.DebtEntry, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
