package installments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/evdms/dealer-backend/pkg/db/models"
	"github.com/evdms/dealer-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an installments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindPaymentForUpdate(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) UpdatePayment(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.Payment{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repository) CountByPayment(ctx context.Context, paymentID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Installment{}).Where("payment_id = ?", paymentID).Count(&n).Error
	return n, err
}

func (r *repository) CountUnpaid(ctx context.Context, paymentID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Installment{}).
		Where("payment_id = ? AND status <> ?", paymentID, enums.InstallmentStatusPaid).
		Count(&n).Error
	return n, err
}

func (r *repository) CreateInstallments(ctx context.Context, rows []models.Installment) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *repository) FindInstallmentForUpdate(ctx context.Context, id uuid.UUID) (*models.Installment, error) {
	var row models.Installment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) UpdateInstallment(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.Installment{}).Where("id = ?", id).Updates(updates).Error
}

// MarkOverdueIfPending flips one installment to OVERDUE; false means it was settled meanwhile.
func (r *repository) MarkOverdueIfPending(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Installment{}).
		Where("id = ? AND status = ?", id, enums.InstallmentStatusPending).
		Update("status", enums.InstallmentStatusOverdue)
	return res.RowsAffected == 1, res.Error
}

func (r *repository) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]models.Installment, error) {
	var rows []models.Installment
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("installment_number ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListPastDue(ctx context.Context, now time.Time, limit int) ([]models.Installment, error) {
	var rows []models.Installment
	err := r.db.WithContext(ctx).
		Where("status = ? AND due_date < ?", enums.InstallmentStatusPending, now).
		Order("due_date ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
