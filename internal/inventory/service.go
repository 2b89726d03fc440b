// Package inventory keeps the factory and dealer stock pools. Every deduction is its own committed
// unit guarded by a conditional decrement, and is journaled so it can be found and reversed later.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/evdms/dealer-backend/internal/debt"
	"github.com/evdms/dealer-backend/pkg/db/models"
	"github.com/evdms/dealer-backend/pkg/enums"
	pkgerrors "github.com/evdms/dealer-backend/pkg/errors"
	"github.com/evdms/dealer-backend/pkg/logger"
	"github.com/evdms/dealer-backend/pkg/metrics"
	"github.com/evdms/dealer-backend/pkg/outbox"
	"github.com/evdms/dealer-backend/pkg/outbox/payloads"
	"github.com/evdms/dealer-backend/pkg/redis"
)

const ReferenceTransfer = "inventory_transfer"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Locker serializes mutations of one pool record across processes.
type Locker interface {
	Obtain(ctx context.Context, parts ...string) (redis.ReleaseFunc, error)
}

// DealerDebtRecorder books the cost of stock allocated to a dealer.
type DealerDebtRecorder interface {
	AddDealerDebt(ctx context.Context, tx *gorm.DB, change debt.Change) (*models.DebtEntry, error)
}

// Reference ties a movement to the workflow entity that caused it.
type Reference struct {
	Type string
	ID   uuid.UUID
}

func (r Reference) columns() (*string, *uuid.UUID) {
	if r.Type == "" || r.ID == uuid.Nil {
		return nil, nil
	}
	refType, refID := r.Type, r.ID
	return &refType, &refID
}

type CheckRequest struct {
	Pool      enums.InventoryPool
	VehicleID uuid.UUID
	DealerID  *uuid.UUID
	Quantity  int
}

type DeductRequest struct {
	Pool      enums.InventoryPool
	VehicleID uuid.UUID
	DealerID  *uuid.UUID
	Quantity  int
	Reference Reference
	ActorID   *uuid.UUID
	Note      string
}

type TransferRequest struct {
	VehicleID  uuid.UUID
	ToDealerID uuid.UUID
	Quantity   int
	UnitCost   decimal.Decimal
	Reference  Reference
	ActorID    *uuid.UUID
	Note       string
}

type TransferResult struct {
	Out       models.InventoryMovement
	In        models.InventoryMovement
	DebtEntry *models.DebtEntry
}

type ReverseRequest struct {
	MovementID uuid.UUID
	Reason     string
	ActorID    *uuid.UUID
}

type RestockRequest struct {
	Pool      enums.InventoryPool
	VehicleID uuid.UUID
	DealerID  *uuid.UUID
	Quantity  int
	Reference Reference
	ActorID   *uuid.UUID
	Note      string
}

// Line is one requested vehicle quantity used for bulk shortage checks.
type Line struct {
	VehicleID uuid.UUID
	Quantity  int
}

type Service struct {
	tx      txRunner
	repo    *Repository
	outbox  outbox.Emitter
	logg    *logger.Logger
	locker  Locker
	debt    DealerDebtRecorder
	metrics *metrics.WorkflowMetrics
	now     func() time.Time
}

type Option func(*Service)

// WithLocker enables per-record distributed locks around mutations.
func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithDealerDebt books dealer debt for transfers carrying a unit cost.
func WithDealerDebt(d DealerDebtRecorder) Option {
	return func(s *Service) { s.debt = d }
}

func WithMetrics(m *metrics.WorkflowMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(tx txRunner, repo *Repository, emitter outbox.Emitter, logg *logger.Logger, opts ...Option) (*Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	s := &Service{
		tx:     tx,
		repo:   repo,
		outbox: emitter,
		logg:   logg,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Check reports whether the pool can cover the quantity. It never mutates.
func (s *Service) Check(ctx context.Context, req CheckRequest) (bool, error) {
	return s.CheckTx(ctx, nil, req)
}

// CheckTx is Check inside the caller's transaction.
func (s *Service) CheckTx(ctx context.Context, tx *gorm.DB, req CheckRequest) (bool, error) {
	if err := validatePool(req.Pool, req.DealerID); err != nil {
		return false, err
	}
	if req.Quantity <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	available, err := s.available(ctx, tx, req.Pool, req.VehicleID, req.DealerID)
	if err != nil {
		return false, err
	}
	return available >= req.Quantity, nil
}

// Shortages checks every line against one pool. Lines for the same vehicle are summed.
func (s *Service) Shortages(ctx context.Context, tx *gorm.DB, pool enums.InventoryPool, dealerID *uuid.UUID, lines []Line) ([]payloads.Shortage, error) {
	if err := validatePool(pool, dealerID); err != nil {
		return nil, err
	}
	order := make([]uuid.UUID, 0, len(lines))
	requested := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		if _, seen := requested[line.VehicleID]; !seen {
			order = append(order, line.VehicleID)
		}
		requested[line.VehicleID] += line.Quantity
	}

	var shortages []payloads.Shortage
	for _, vehicleID := range order {
		available, err := s.available(ctx, tx, pool, vehicleID, dealerID)
		if err != nil {
			return nil, err
		}
		if available < requested[vehicleID] {
			shortages = append(shortages, payloads.Shortage{
				VehicleID: vehicleID,
				Requested: requested[vehicleID],
				Available: available,
			})
		}
	}
	return shortages, nil
}

func (s *Service) available(ctx context.Context, tx *gorm.DB, pool enums.InventoryPool, vehicleID uuid.UUID, dealerID *uuid.UUID) (int, error) {
	record, err := s.repo.WithTx(tx).FindRecord(ctx, pool, vehicleID, dealerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory record")
	}
	return record.AvailableQuantity, nil
}

// Deduct removes stock in its own transaction. The availability check and the decrement are a
// single conditional update, so concurrent callers cannot overdraw the record.
func (s *Service) Deduct(ctx context.Context, req DeductRequest) (*models.InventoryMovement, error) {
	if err := validatePool(req.Pool, req.DealerID); err != nil {
		return nil, err
	}
	if req.VehicleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vehicle id required")
	}
	if req.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	release, err := s.lock(ctx, req.Pool, req.VehicleID, req.DealerID)
	if err != nil {
		return nil, err
	}
	defer release()

	var movement *models.InventoryMovement
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := repo.FindRecord(ctx, req.Pool, req.VehicleID, req.DealerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return insufficient(req.Pool, req.VehicleID, req.Quantity, 0)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory record")
		}
		ok, err := repo.Decrement(ctx, record.ID, req.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement inventory")
		}
		if !ok {
			current, _ := s.available(ctx, tx, req.Pool, req.VehicleID, req.DealerID)
			return insufficient(req.Pool, req.VehicleID, req.Quantity, current)
		}

		movement = s.newMovement(record, enums.InventoryMovementKindDeduct, req.Quantity, req.Reference, req.ActorID, req.Note)
		if err := repo.CreateMovement(ctx, movement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record inventory movement")
		}
		return s.emit(ctx, tx, enums.EventInventoryDeducted, movement, req.Reference)
	})
	if err != nil {
		return nil, err
	}

	s.observe(ctx, movement, "inventory deducted")
	return movement, nil
}

// Transfer moves factory stock into a dealer pool as one unit, creating the dealer record if needed.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if req.VehicleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vehicle id required")
	}
	if req.ToDealerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "destination dealer required")
	}
	if req.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if req.UnitCost.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit cost must not be negative")
	}
	dealerID := req.ToDealerID

	// factory before dealer, always, so two transfers never wait on each other in reverse
	releaseFactory, err := s.lock(ctx, enums.InventoryPoolFactory, req.VehicleID, nil)
	if err != nil {
		return nil, err
	}
	defer releaseFactory()
	releaseDealer, err := s.lock(ctx, enums.InventoryPoolDealer, req.VehicleID, &dealerID)
	if err != nil {
		return nil, err
	}
	defer releaseDealer()

	result := &TransferResult{}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		factory, err := repo.FindRecord(ctx, enums.InventoryPoolFactory, req.VehicleID, nil)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return insufficient(enums.InventoryPoolFactory, req.VehicleID, req.Quantity, 0)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load factory record")
		}
		ok, err := repo.Decrement(ctx, factory.ID, req.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement factory inventory")
		}
		if !ok {
			return insufficient(enums.InventoryPoolFactory, req.VehicleID, req.Quantity, factory.AvailableQuantity)
		}

		dealer, err := repo.FindOrCreateRecord(ctx, enums.InventoryPoolDealer, req.VehicleID, &dealerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dealer record")
		}
		if err := repo.Increment(ctx, dealer.ID, req.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit dealer inventory")
		}

		ref := req.Reference
		out := s.newMovement(factory, enums.InventoryMovementKindTransferOut, req.Quantity, ref, req.ActorID, req.Note)
		if ref.Type == "" {
			// the pair is correlated through the outbound movement id
			ref = Reference{Type: ReferenceTransfer, ID: out.ID}
			out.ReferenceType, out.ReferenceID = ref.columns()
		}
		in := s.newMovement(dealer, enums.InventoryMovementKindTransferIn, req.Quantity, ref, req.ActorID, req.Note)
		for _, m := range []*models.InventoryMovement{out, in} {
			if err := repo.CreateMovement(ctx, m); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record inventory movement")
			}
		}
		result.Out, result.In = *out, *in

		if s.debt != nil && req.UnitCost.IsPositive() {
			amount := req.UnitCost.Mul(decimal.NewFromInt(int64(req.Quantity))).Round(2)
			entry, err := s.debt.AddDealerDebt(ctx, tx, debt.Change{
				PartyID:       dealerID,
				Amount:        amount,
				Reason:        "factory allocation",
				ReferenceType: ReferenceTransfer,
				ReferenceID:   &out.ID,
			})
			if err != nil {
				return err
			}
			result.DebtEntry = entry
		}

		return s.emit(ctx, tx, enums.EventInventoryTransferred, in, ref)
	})
	if err != nil {
		return nil, err
	}

	s.observe(ctx, &result.Out, "factory stock transferred")
	s.observe(ctx, &result.In, "dealer stock received")
	return result, nil
}

// Reverse credits back a committed deduction exactly once.
func (s *Service) Reverse(ctx context.Context, req ReverseRequest) (*models.InventoryMovement, error) {
	if req.MovementID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "movement id required")
	}

	var reversal *models.InventoryMovement
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		original, err := repo.FindMovementForUpdate(ctx, req.MovementID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "inventory movement not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory movement")
		}
		if original.Kind != enums.InventoryMovementKindDeduct {
			return pkgerrors.New(pkgerrors.CodeValidation, "only deductions can be reversed")
		}
		if original.ReversedAt != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "movement already reversed")
		}
		now := s.now()
		won, err := repo.MarkReversed(ctx, original.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark movement reversed")
		}
		if !won {
			return pkgerrors.New(pkgerrors.CodeConflict, "movement already reversed")
		}
		if err := repo.Increment(ctx, original.RecordID, original.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit inventory")
		}

		note := req.Reason
		if note == "" {
			note = "compensating reversal"
		}
		record := &models.InventoryRecord{ID: original.RecordID, VehicleID: original.VehicleID, DealerID: original.DealerID, PoolType: original.PoolType}
		reversal = s.newMovement(record, enums.InventoryMovementKindReversal, original.Quantity, Reference{}, req.ActorID, note)
		reversal.ReferenceType, reversal.ReferenceID = original.ReferenceType, original.ReferenceID
		reversal.ReversesID = &original.ID
		if err := repo.CreateMovement(ctx, reversal); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record reversal movement")
		}
		return s.emit(ctx, tx, enums.EventInventoryReversed, reversal, Reference{})
	})
	if err != nil {
		return nil, err
	}

	s.observe(ctx, reversal, "inventory deduction reversed")
	return reversal, nil
}

// Restock credits a pool, creating its record when absent.
func (s *Service) Restock(ctx context.Context, req RestockRequest) (*models.InventoryMovement, error) {
	if err := validatePool(req.Pool, req.DealerID); err != nil {
		return nil, err
	}
	if req.VehicleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vehicle id required")
	}
	if req.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	release, err := s.lock(ctx, req.Pool, req.VehicleID, req.DealerID)
	if err != nil {
		return nil, err
	}
	defer release()

	var movement *models.InventoryMovement
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := repo.FindOrCreateRecord(ctx, req.Pool, req.VehicleID, req.DealerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory record")
		}
		if err := repo.Increment(ctx, record.ID, req.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit inventory")
		}
		movement = s.newMovement(record, enums.InventoryMovementKindCredit, req.Quantity, req.Reference, req.ActorID, req.Note)
		if err := repo.CreateMovement(ctx, movement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record inventory movement")
		}
		return s.emit(ctx, tx, enums.EventInventoryRestocked, movement, req.Reference)
	})
	if err != nil {
		return nil, err
	}

	s.observe(ctx, movement, "inventory restocked")
	return movement, nil
}

// ListMovements returns the committed movements for a workflow entity.
func (s *Service) ListMovements(ctx context.Context, referenceType string, referenceID uuid.UUID) ([]models.InventoryMovement, error) {
	if referenceType == "" || referenceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference required")
	}
	movements, err := s.repo.ListMovements(ctx, referenceType, referenceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list inventory movements")
	}
	return movements, nil
}

func (s *Service) lock(ctx context.Context, pool enums.InventoryPool, vehicleID uuid.UUID, dealerID *uuid.UUID) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	owner := "factory"
	if dealerID != nil {
		owner = dealerID.String()
	}
	release, err := s.locker.Obtain(ctx, "inventory", pool.String(), vehicleID.String(), owner)
	if err != nil {
		if errors.Is(err, redis.ErrLockNotObtained) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "inventory record busy, retry")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "obtain inventory lock")
	}
	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "release inventory lock failed")
		}
	}, nil
}

func (s *Service) newMovement(record *models.InventoryRecord, kind enums.InventoryMovementKind, qty int, ref Reference, actorID *uuid.UUID, note string) *models.InventoryMovement {
	refType, refID := ref.columns()
	m := &models.InventoryMovement{
		ID:            uuid.New(),
		RecordID:      record.ID,
		VehicleID:     record.VehicleID,
		DealerID:      record.DealerID,
		PoolType:      record.PoolType,
		Kind:          kind,
		Quantity:      qty,
		ReferenceType: refType,
		ReferenceID:   refID,
		ActorID:       actorID,
	}
	if note != "" {
		m.Note = &note
	}
	return m
}

func (s *Service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, m *models.InventoryMovement, ref Reference) error {
	data := payloads.InventoryEvent{
		MovementID:  m.ID,
		VehicleID:   m.VehicleID,
		DealerID:    m.DealerID,
		Pool:        m.PoolType,
		Kind:        m.Kind,
		Quantity:    m.Quantity,
		ReferenceID: m.ReferenceID,
	}
	if m.ReferenceType != nil {
		data.ReferenceType = *m.ReferenceType
	}
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateInventoryRecord,
		AggregateID:   m.RecordID,
		Data:          data,
	}
	if m.ActorID != nil {
		event.Actor = &outbox.ActorRef{UserID: *m.ActorID}
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit inventory event")
	}
	return nil
}

func (s *Service) observe(ctx context.Context, m *models.InventoryMovement, msg string) {
	s.metrics.InventoryMovement(m.PoolType.String(), m.Kind.String())
	fields := map[string]any{
		"movement_id": m.ID.String(),
		"record_id":   m.RecordID.String(),
		"vehicle_id":  m.VehicleID.String(),
		"pool":        m.PoolType,
		"kind":        m.Kind,
		"quantity":    m.Quantity,
	}
	if m.DealerID != nil {
		fields["dealer_id"] = m.DealerID.String()
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), msg)
}

func validatePool(pool enums.InventoryPool, dealerID *uuid.UUID) error {
	switch pool {
	case enums.InventoryPoolFactory:
		if dealerID != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "factory pool has no dealer")
		}
	case enums.InventoryPoolDealer:
		if dealerID == nil || *dealerID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "dealer pool requires dealer id")
		}
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown inventory pool")
	}
	return nil
}

func insufficient(pool enums.InventoryPool, vehicleID uuid.UUID, requested, available int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientInventory,
		fmt.Sprintf("%s stock for vehicle %s: requested %d, available %d", pool, vehicleID, requested, available)).
		WithDetails([]payloads.Shortage{{VehicleID: vehicleID, Requested: requested, Available: available}})
}
