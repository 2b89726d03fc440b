package payments

import (
	"context"
	"net/url"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/evdms/dealer-backend/pkg/db/models"
	"github.com/evdms/dealer-backend/pkg/vnpay"
)

// Repository defines persistence operations for payments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error
	FindPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindPaymentByTxnRef(ctx context.Context, txnRef string) (*models.Payment, error)
	FindPaymentByTxnRefForUpdate(ctx context.Context, txnRef string) (*models.Payment, error)
	UpdatePayment(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
	PendingTotal(ctx context.Context, orderID uuid.UUID) (decimal.Decimal, error)
}

// OrderApplier credits completed payments to their order.
type OrderApplier interface {
	ApplyPayment(ctx context.Context, tx *gorm.DB, payment *models.Payment) (*models.Order, error)
}

// Gateway signs redirects and verifies callbacks.
type Gateway interface {
	BuildPaymentURL(req vnpay.PaymentRequest) (string, error)
	VerifyCallback(values url.Values) (*vnpay.CallbackResult, error)
}

// Deduplicator remembers callbacks that were already handled.
type Deduplicator interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, deliveryID string) (bool, error)
	Delete(ctx context.Context, consumer, deliveryID string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

var _ Gateway = (*vnpay.Client)(nil)
