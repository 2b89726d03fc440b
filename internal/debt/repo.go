package debt

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/evdms/dealer-backend/pkg/db/models"
	"github.com/evdms/dealer-backend/pkg/enums"
	"github.com/evdms/dealer-backend/pkg/pagination"
)

// Repository manages balances and the debt journal.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	FindCustomerForUpdate(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	FindDealerForUpdate(ctx context.Context, id uuid.UUID) (*models.Dealer, error)
	UpdateCustomerDebt(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error
	UpdateDealerDebt(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error
	CreateEntry(ctx context.Context, entry *models.DebtEntry) error
	ListEntries(ctx context.Context, partyType enums.DebtPartyType, partyID uuid.UUID, limit int, after *pagination.Cursor) ([]models.DebtEntry, error)
	OpenOrderRemaining(ctx context.Context, customerID uuid.UUID) ([]decimal.Decimal, error)
	ListReconcileCandidates(ctx context.Context, limit int) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a debt repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
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

func (r *repository) FindDealerForUpdate(ctx context.Context, id uuid.UUID) (*models.Dealer, error) {
	var dealer models.Dealer
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&dealer).Error
	if err != nil {
		return nil, err
	}
	return &dealer, nil
}

func (r *repository) UpdateCustomerDebt(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("id = ?", id).
		Update("total_debt", balance).Error
}

func (r *repository) UpdateDealerDebt(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Dealer{}).
		Where("id = ?", id).
		Update("outstanding_debt", balance).Error
}

func (r *repository) CreateEntry(ctx context.Context, entry *models.DebtEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListEntries returns journal entries newest first, starting strictly after the cursor row.
func (r *repository) ListEntries(ctx context.Context, partyType enums.DebtPartyType, partyID uuid.UUID, limit int, after *pagination.Cursor) ([]models.DebtEntry, error) {
	var entries []models.DebtEntry
	q := r.db.WithContext(ctx).
		Where("party_type = ? AND party_id = ?", partyType, partyID)
	if after != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", after.CreatedAt, after.CreatedAt, after.ID)
	}
	q = q.Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// OpenOrderRemaining returns the remaining amount of every non-cancelled order of the customer.
func (r *repository) OpenOrderRemaining(ctx context.Context, customerID uuid.UUID) ([]decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("customer_id = ? AND status <> ?", customerID, enums.OrderStatusCancelled).
		Pluck("remaining_amount", &amounts).Error
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

// ListReconcileCandidates returns customers that either carry a balance or have open orders with an
// unpaid remainder.
func (r *repository) ListReconcileCandidates(ctx context.Context, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = -1
	}
	var withDebt []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("total_debt <> 0").
		Order("id").
		Limit(limit).
		Pluck("id", &withDebt).Error; err != nil {
		return nil, err
	}

	var withOrders []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Distinct("customer_id").
		Where("status <> ? AND remaining_amount > 0", enums.OrderStatusCancelled).
		Order("customer_id").
		Limit(limit).
		Pluck("customer_id", &withOrders).Error; err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]struct{}, len(withDebt)+len(withOrders))
	ids := make([]uuid.UUID, 0, len(withDebt)+len(withOrders))
	for _, id := range append(withDebt, withOrders...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}
