package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/evdms/dealer-backend/pkg/db"
	"github.com/evdms/dealer-backend/pkg/db/models"
	"github.com/evdms/dealer-backend/pkg/enums"
)

// Repository reads and mutates inventory records and their movement journal.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func poolScope(pool enums.InventoryPool, vehicleID uuid.UUID, dealerID *uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		q = q.Where("vehicle_id = ? AND pool_type = ?", vehicleID, pool)
		if dealerID == nil {
			return q.Where("dealer_id IS NULL")
		}
		return q.Where("dealer_id = ?", *dealerID)
	}
}

// FindRecord returns the record for the pool, or gorm.ErrRecordNotFound.
func (r *Repository) FindRecord(ctx context.Context, pool enums.InventoryPool, vehicleID uuid.UUID, dealerID *uuid.UUID) (*models.InventoryRecord, error) {
	var record models.InventoryRecord
	err := r.db.WithContext(ctx).
		Scopes(poolScope(pool, vehicleID, dealerID)).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindOrCreateRecord returns the pool record, creating an empty one when absent.
func (r *Repository) FindOrCreateRecord(ctx context.Context, pool enums.InventoryPool, vehicleID uuid.UUID, dealerID *uuid.UUID) (*models.InventoryRecord, error) {
	record, err := r.FindRecord(ctx, pool, vehicleID, dealerID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	record = &models.InventoryRecord{
		VehicleID: vehicleID,
		DealerID:  dealerID,
		PoolType:  pool,
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return r.FindRecord(ctx, pool, vehicleID, dealerID)
		}
		return nil, err
	}
	return record, nil
}

// Decrement subtracts qty only while enough stock is available and reports whether a row changed.
func (r *Repository) Decrement(ctx context.Context, recordID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryRecord{}).
		Where("id = ? AND available_quantity >= ?", recordID, qty).
		Updates(map[string]any{
			"available_quantity": gorm.Expr("available_quantity - ?", qty),
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Increment adds qty to the record's available stock.
func (r *Repository) Increment(ctx context.Context, recordID uuid.UUID, qty int) error {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]any{
			"available_quantity": gorm.Expr("available_quantity + ?", qty),
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *Repository) CreateMovement(ctx context.Context, movement *models.InventoryMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

// FindMovementForUpdate loads a movement with a row lock.
func (r *Repository) FindMovementForUpdate(ctx context.Context, id uuid.UUID) (*models.InventoryMovement, error) {
	var movement models.InventoryMovement
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&movement).Error
	if err != nil {
		return nil, err
	}
	return &movement, nil
}

// MarkReversed stamps reversed_at once; false means another reversal already won.
func (r *Repository) MarkReversed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryMovement{}).
		Where("id = ? AND reversed_at IS NULL", id).
		Update("reversed_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListMovements returns the movements written on behalf of one workflow reference, oldest first.
func (r *Repository) ListMovements(ctx context.Context, referenceType string, referenceID uuid.UUID) ([]models.InventoryMovement, error) {
	var movements []models.InventoryMovement
	err := r.db.WithContext(ctx).
		Where("reference_type = ? AND reference_id = ?", referenceType, referenceID).
		Order("created_at ASC").
		Find(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}
