package quotes

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/evdms/dealer-backend/internal/inventory"
	"github.com/evdms/dealer-backend/pkg/db/models"
	"github.com/evdms/dealer-backend/pkg/enums"
	"github.com/evdms/dealer-backend/pkg/outbox/payloads"
)

// Repository defines persistence operations for quotes and the rows they read.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateQuote(ctx context.Context, quote *models.Quote) error
	FindQuote(ctx context.Context, id uuid.UUID) (*models.Quote, error)
	FindQuoteForUpdate(ctx context.Context, id uuid.UUID) (*models.Quote, error)
	UpdateQuote(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ExpireQuote(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]models.Quote, error)
	FindCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	FindCustomerForUpdate(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	PromoteVIP(ctx context.Context, customerID uuid.UUID) error
	FindVehicles(ctx context.Context, ids []uuid.UUID) ([]models.Vehicle, error)
}

// InventoryChecker reports the lines a pool cannot cover. It is a read and never deducts.
type InventoryChecker interface {
	Shortages(ctx context.Context, tx *gorm.DB, pool enums.InventoryPool, dealerID *uuid.UUID, lines []inventory.Line) ([]payloads.Shortage, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
