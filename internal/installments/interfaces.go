package installments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/evdms/dealer-backend/pkg/db/models"
)

// Repository defines persistence operations for installment plans.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindPaymentForUpdate(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	UpdatePayment(ctx context.Context, id uuid.UUID, updates map[string]any) error
	CountByPayment(ctx context.Context, paymentID uuid.UUID) (int64, error)
	CountUnpaid(ctx context.Context, paymentID uuid.UUID) (int64, error)
	CreateInstallments(ctx context.Context, rows []models.Installment) error
	FindInstallmentForUpdate(ctx context.Context, id uuid.UUID) (*models.Installment, error)
	UpdateInstallment(ctx context.Context, id uuid.UUID, updates map[string]any) error
	MarkOverdueIfPending(ctx context.Context, id uuid.UUID) (bool, error)
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]models.Installment, error)
	ListPastDue(ctx context.Context, now time.Time, limit int) ([]models.Installment, error)
}

// OrderApplier credits a fully settled installment payment to its order.
type OrderApplier interface {
	ApplyPayment(ctx context.Context, tx *gorm.DB, payment *models.Payment) (*models.Order, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
