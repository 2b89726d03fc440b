package quotes

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/evdms/dealer-backend/pkg/db/models"
	"github.com/evdms/dealer-backend/pkg/enums"
)

var expirableStatuses = []enums.QuoteStatus{enums.QuoteStatusDraft, enums.QuoteStatusSent}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a quotes repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateQuote(ctx context.Context, quote *models.Quote) error {
	return r.db.WithContext(ctx).Create(quote).Error
}

func (r *repository) FindQuote(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	var quote models.Quote
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC").Order("id ASC") }).
		Where("id = ?", id).
		First(&quote).Error
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *repository) FindQuoteForUpdate(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	var quote models.Quote
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&quote).Error
	if err != nil {
		return nil, err
	}
	var items []models.QuoteLineItem
	err = r.db.WithContext(ctx).
		Where("quote_id = ?", id).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	quote.Items = items
	return &quote, nil
}

func (r *repository) UpdateQuote(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.Quote{}).Where("id = ?", id).Updates(updates).Error
}

// ExpireQuote flips a still-open quote to EXPIRED. It reports false when another writer got there first.
func (r *repository) ExpireQuote(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Quote{}).
		Where("id = ? AND status IN ? AND valid_until < ?", id, expirableStatuses, now).
		Updates(map[string]any{
			"status":     enums.QuoteStatusExpired,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]models.Quote, error) {
	var quotes []models.Quote
	q := r.db.WithContext(ctx).
		Where("status IN ? AND valid_until < ?", expirableStatuses, now).
		Order("valid_until ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&quotes).Error; err != nil {
		return nil, err
	}
	return quotes, nil
}

func (r *repository) FindCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *repository) FindCustomerForUpdate(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&customer).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *repository) PromoteVIP(ctx context.Context, customerID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.Customer{}).
		Where("id = ?", customerID).
		Update("is_vip", true).Error
}

func (r *repository) FindVehicles(ctx context.Context, ids []uuid.UUID) ([]models.Vehicle, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var vehicles []models.Vehicle
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&vehicles).Error; err != nil {
		return nil, err
	}
	return vehicles, nil
}
