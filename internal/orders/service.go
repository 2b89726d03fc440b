// Package orders turns accepted quotes into binding orders and owns their approval, delivery and
// payment attribution.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/evdms/dealer-backend/internal/audit"
	"github.com/evdms/dealer-backend/internal/debt"
	"github.com/evdms/dealer-backend/internal/inventory"
	"github.com/evdms/dealer-backend/internal/quotes"
	"github.com/evdms/dealer-backend/internal/workflow"
	"github.com/evdms/dealer-backend/pkg/db/models"
	"github.com/evdms/dealer-backend/pkg/enums"
	pkgerrors "github.com/evdms/dealer-backend/pkg/errors"
	"github.com/evdms/dealer-backend/pkg/logger"
	"github.com/evdms/dealer-backend/pkg/metrics"
	"github.com/evdms/dealer-backend/pkg/outbox"
	"github.com/evdms/dealer-backend/pkg/outbox/payloads"
)

// ReferenceDelivery tags the dealer stock movements written when an order is handed over.
const ReferenceDelivery = "order_delivery"

var hundred = decimal.NewFromInt(100)

// ErrOverpayment marks an ApplyPayment failure caused by a payment larger than what the order
// still owes. Callers that already captured the money settle the payment unapplied.
var ErrOverpayment = errors.New("payment exceeds remaining amount")

// AllowedPercentages are the deposit and payment slices an order accepts.
var AllowedPercentages = []int{0, 30, 50, 70, 100}

// Service defines the order lifecycle.
type Service interface {
	CreateFromApprovedQuote(ctx context.Context, input CreateInput) (*models.Order, error)
	Approve(ctx context.Context, input ApproveInput) (*ApproveResult, error)
	Reject(ctx context.Context, input RejectInput) (*models.Order, error)
	ConfirmDelivery(ctx context.Context, input DeliveryInput) (*models.Order, error)
	ApplyPayment(ctx context.Context, tx *gorm.DB, payment *models.Payment) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

// CreateInput converts a quote. A non-zero PaymentPercentage records a completed deposit paid
// with PaymentMethod, cash when unset.
type CreateInput struct {
	QuoteID           uuid.UUID
	Actor             workflow.Actor
	PaymentPercentage int
	PaymentMethod     enums.PaymentMethod
}

type ApproveInput struct {
	OrderID uuid.UUID
	Actor   workflow.Actor
	Notes   string
}

// ApproveResult flags a shortage instead of failing, so the caller can retry after restocking.
type ApproveResult struct {
	Order                 *models.Order
	InsufficientInventory bool
	Shortages             []payloads.Shortage
}

type RejectInput struct {
	OrderID uuid.UUID
	Actor   workflow.Actor
	Reason  string
}

type DeliveryInput struct {
	OrderID uuid.UUID
	Actor   workflow.Actor
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outbox.Emitter
	inventory Inventory
	debt      DebtLedger
	policy    quotes.Policy
	audit     audit.Emitter
	metrics   *metrics.WorkflowMetrics
	logg      *logger.Logger
	now       func() time.Time
}

type Option func(*service)

func WithAudit(e audit.Emitter) Option {
	return func(s *service) { s.audit = e }
}

func WithMetrics(m *metrics.WorkflowMetrics) Option {
	return func(s *service) { s.metrics = m }
}

// WithPolicy sets the VIP rule used when a purchase raises the customer's spend.
func WithPolicy(p quotes.Policy) Option {
	return func(s *service) { s.policy = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService wires the order workflow.
func NewService(repo Repository, tx txRunner, emitter outbox.Emitter, inv Inventory, ledger DebtLedger, logg *logger.Logger, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("debt ledger required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	s := &service{
		repo:      repo,
		tx:        tx,
		outbox:    emitter,
		inventory: inv,
		debt:      ledger,
		policy:    quotes.DefaultPolicy(),
		audit:     audit.Nop{},
		logg:      logg,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *service) CreateFromApprovedQuote(ctx context.Context, input CreateInput) (*models.Order, error) {
	if input.QuoteID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quote id required")
	}
	if !ValidPercentage(input.PaymentPercentage) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment percentage must be one of 0, 30, 50, 70, 100")
	}
	method := input.PaymentMethod
	if method == "" {
		method = enums.PaymentMethodCash
	}
	if input.PaymentPercentage > 0 && method != enums.PaymentMethodCash && method != enums.PaymentMethodBankTransfer {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deposit must be paid by cash or bank transfer")
	}
	if err := input.Actor.Validate(); err != nil {
		return nil, err
	}

	var (
		order   *models.Order
		deposit *models.Payment
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		quote, err := repo.FindQuoteForUpdate(ctx, input.QuoteID)
		if err != nil {
			return notFoundOr(err, "quote")
		}
		exists, err := repo.HasActiveOrderForQuote(ctx, quote.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing order")
		}
		if exists {
			return pkgerrors.New(pkgerrors.CodeConflict, "an order already exists for this quote")
		}
		if quote.ApprovalStatus != enums.QuoteApprovalStatusApproved || quote.Status != enums.QuoteStatusAccepted {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition,
				fmt.Sprintf("quote must be approved and accepted, is %s/%s", quote.Status, quote.ApprovalStatus))
		}
		route, ok := quote.Route()
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "quote has no approval route")
		}
		if !input.Actor.BelongsTo(quote.DealerID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "quote belongs to another dealer")
		}
		if err := input.Actor.RequireDealerStaff(quote.DealerID); err != nil {
			return err
		}
		if route == enums.ApprovalRouteDealerManager && quote.StaffUserID != input.Actor.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the quote author can place the order")
		}

		items, err := s.lineItems(ctx, repo, quote.Items)
		if err != nil {
			return err
		}

		now := s.now()
		order = &models.Order{
			ID:                uuid.New(),
			OrderNumber:       newOrderNumber(now),
			QuoteID:           quote.ID,
			DealerID:          quote.DealerID,
			CustomerID:        quote.CustomerID,
			StaffUserID:       input.Actor.UserID,
			ApprovalRoute:     route,
			Status:            enums.OrderStatusPending,
			ApprovalStatus:    enums.OrderApprovalStatusPendingApproval,
			PaymentPercentage: input.PaymentPercentage,
			TotalDiscount:     decimal.Zero,
			TotalAmount:       decimal.Zero,
		}
		for i := range items {
			items[i].OrderID = order.ID
			order.TotalAmount = order.TotalAmount.Add(items[i].LineTotal)
			order.TotalDiscount = order.TotalDiscount.Add(items[i].DiscountAmount)
		}
		order.Items = items
		order.PaidAmount = Portion(order.TotalAmount, input.PaymentPercentage)
		order.RemainingAmount = order.TotalAmount.Sub(order.PaidAmount)
		order.PaymentStatus = PaymentStatusFor(order.PaidAmount, order.TotalAmount)

		if err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if order.PaidAmount.IsPositive() {
			deposit = &models.Payment{
				OrderID:    order.ID,
				CustomerID: order.CustomerID,
				DealerID:   order.DealerID,
				Method:     method,
				Status:     enums.PaymentStatusCompleted,
				Amount:     order.PaidAmount,
				Percentage: input.PaymentPercentage,
				AppliedAt:  &now,
				CreatedBy:  &input.Actor.UserID,
			}
			if err := repo.CreatePayment(ctx, deposit); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record deposit")
			}
		}

		customer, err := repo.FindCustomerForUpdate(ctx, order.CustomerID)
		if err != nil {
			return notFoundOr(err, "customer")
		}
		spent := customer.TotalSpent.Add(order.TotalAmount)
		vip := s.policy.IsVIP(quotes.CustomerSnapshot{IsVIP: customer.IsVIP, TotalSpent: spent})
		if err := repo.UpdateCustomerSpend(ctx, customer.ID, spent, vip); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update customer spend")
		}
		_, err = s.debt.AddCustomerDebt(ctx, tx, debt.Change{
			PartyID:       order.CustomerID,
			Amount:        order.RemainingAmount,
			Reason:        "order " + order.OrderNumber + " created",
			ReferenceType: debt.ReferenceOrder,
			ReferenceID:   &order.ID,
		})
		if err != nil {
			return err
		}

		if err := s.emit(ctx, tx, enums.EventOrderCreated, order, input.Actor, ""); err != nil {
			return err
		}
		if deposit != nil {
			return s.emitPayment(ctx, tx, deposit, input.Actor)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.observe(ctx, order, input.Actor, "order.created", "", "order created")
	return order, nil
}

// Approve re-checks the factory pool for every line. A shortage is recorded on the order and
// reported in the result rather than as an error.
func (s *service) Approve(ctx context.Context, input ApproveInput) (*ApproveResult, error) {
	result := &ApproveResult{}
	var from enums.OrderStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			return notFoundOr(err, "order")
		}
		result.Order = order
		from = order.Status
		if order.Status != enums.OrderStatusPending ||
			(order.ApprovalStatus != enums.OrderApprovalStatusPendingApproval && order.ApprovalStatus != enums.OrderApprovalStatusInsufficientInventory) {
			return invalidTransition(order, "approve")
		}
		if err := input.Actor.RequireApprover(order.ApprovalRoute, order.DealerID); err != nil {
			return err
		}

		shortages, err := s.inventory.Shortages(ctx, tx, enums.InventoryPoolFactory, nil, lines(order.Items))
		if err != nil {
			return err
		}
		now := s.now()
		if len(shortages) > 0 {
			note := shortageNote(shortages)
			order.ApprovalStatus = enums.OrderApprovalStatusInsufficientInventory
			order.ApprovalNotes = &note
			err := repo.UpdateOrder(ctx, order.ID, map[string]any{
				"approval_status": order.ApprovalStatus,
				"approval_notes":  note,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order short")
			}
			result.InsufficientInventory = true
			result.Shortages = shortages
			return s.outboxEmit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderInventoryShort,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         input.Actor.Ref(),
				Data: payloads.InventoryShortEvent{
					AggregateID: order.ID,
					DealerID:    order.DealerID,
					Pool:        enums.InventoryPoolFactory,
					Shortages:   shortages,
				},
			})
		}

		order.ApprovalStatus = enums.OrderApprovalStatusApproved
		order.Status = enums.OrderStatusApproved
		if order.PaymentStatus == enums.OrderPaymentStatusPaid {
			order.Status = enums.OrderStatusCompleted
		}
		order.ApprovedBy = &input.Actor.UserID
		order.ApprovedAt = &now
		updates := map[string]any{
			"approval_status": order.ApprovalStatus,
			"status":          order.Status,
			"approved_by":     input.Actor.UserID,
			"approved_at":     now,
			"approval_notes":  nil,
		}
		if notes := strings.TrimSpace(input.Notes); notes != "" {
			order.ApprovalNotes = &notes
			updates["approval_notes"] = notes
		} else {
			order.ApprovalNotes = nil
		}
		if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve order")
		}
		if err := s.emit(ctx, tx, enums.EventOrderApproved, order, input.Actor, input.Notes); err != nil {
			return err
		}
		if order.Status == enums.OrderStatusCompleted {
			return s.emit(ctx, tx, enums.EventOrderCompleted, order, input.Actor, "fully paid")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.InsufficientInventory {
		s.observe(ctx, result.Order, input.Actor, "order.inventory_short", from, "order approval blocked by factory inventory")
	} else {
		s.observe(ctx, result.Order, input.Actor, "order.approved", from, "order approved")
	}
	return result, nil
}

// Reject cancels the order and unwinds what its creation booked against the customer.
func (s *service) Reject(ctx context.Context, input RejectInput) (*models.Order, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason required")
	}

	var (
		order *models.Order
		from  enums.OrderStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = repo.FindOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			return notFoundOr(err, "order")
		}
		from = order.Status
		switch order.Status {
		case enums.OrderStatusCancelled, enums.OrderStatusDelivered, enums.OrderStatusDeliveredApproved:
			return invalidTransition(order, "reject")
		}
		if err := input.Actor.RequireApprover(order.ApprovalRoute, order.DealerID); err != nil {
			return err
		}

		now := s.now()
		order.ApprovalStatus = enums.OrderApprovalStatusRejected
		order.Status = enums.OrderStatusCancelled
		order.RejectedBy = &input.Actor.UserID
		order.RejectedAt = &now
		order.RejectionReason = &reason
		err = repo.UpdateOrder(ctx, order.ID, map[string]any{
			"approval_status":  order.ApprovalStatus,
			"status":           order.Status,
			"rejected_by":      input.Actor.UserID,
			"rejected_at":      now,
			"rejection_reason": reason,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject order")
		}

		customer, err := repo.FindCustomerForUpdate(ctx, order.CustomerID)
		if err != nil {
			return notFoundOr(err, "customer")
		}
		spent := customer.TotalSpent.Sub(order.TotalAmount)
		if spent.IsNegative() {
			spent = decimal.Zero
		}
		if err := repo.UpdateCustomerSpend(ctx, customer.ID, spent, customer.IsVIP); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revert customer spend")
		}
		_, err = s.debt.ReduceCustomerDebt(ctx, tx, debt.Change{
			PartyID:       order.CustomerID,
			Amount:        order.RemainingAmount,
			Reason:        "order " + order.OrderNumber + " rejected",
			ReferenceType: debt.ReferenceOrder,
			ReferenceID:   &order.ID,
		})
		if err != nil {
			return err
		}
		return s.emit(ctx, tx, enums.EventOrderRejected, order, input.Actor, reason)
	})
	if err != nil {
		return nil, err
	}

	s.observe(ctx, order, input.Actor, "order.rejected", from, "order rejected")
	return order, nil
}

// ConfirmDelivery deducts dealer stock line by line, each deduction committing on its own. When a
// later step fails the deductions already made are reversed before the error is returned.
func (s *service) ConfirmDelivery(ctx context.Context, input DeliveryInput) (*models.Order, error) {
	current, err := s.repo.FindOrder(ctx, input.OrderID)
	if err != nil {
		return nil, notFoundOr(err, "order")
	}
	if err := input.Actor.RequireDealerStaff(current.DealerID); err != nil {
		return nil, err
	}
	if _, err := deliveredStatus(current); err != nil {
		return nil, err
	}
	for _, item := range current.Items {
		if strings.TrimSpace(item.VIN) == "" || strings.TrimSpace(item.EngineNumber) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line for vehicle %s lacks VIN or engine number", item.VehicleID))
		}
	}
	dealerID := current.DealerID
	shortages, err := s.inventory.Shortages(ctx, nil, enums.InventoryPoolDealer, &dealerID, lines(current.Items))
	if err != nil {
		return nil, err
	}
	if len(shortages) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientInventory, "dealer stock cannot cover delivery: "+shortageNote(shortages)).
			WithDetails(shortages)
	}

	var deducted []models.InventoryMovement
	for _, item := range current.Items {
		movement, err := s.inventory.Deduct(ctx, inventory.DeductRequest{
			Pool:      enums.InventoryPoolDealer,
			VehicleID: item.VehicleID,
			DealerID:  &dealerID,
			Quantity:  item.Quantity,
			Reference: inventory.Reference{Type: ReferenceDelivery, ID: current.ID},
			ActorID:   &input.Actor.UserID,
			Note:      "delivery of " + current.OrderNumber,
		})
		if err != nil {
			s.compensate(ctx, deducted, input.Actor)
			return nil, err
		}
		deducted = append(deducted, *movement)
	}

	var (
		order *models.Order
		from  enums.OrderStatus
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = repo.FindOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			return notFoundOr(err, "order")
		}
		from = order.Status
		next, err := deliveredStatus(order)
		if err != nil {
			return err
		}
		now := s.now()
		order.Status = next
		order.DeliveredAt = &now
		order.DeliveredBy = &input.Actor.UserID
		err = repo.UpdateOrder(ctx, order.ID, map[string]any{
			"status":       next,
			"delivered_at": now,
			"delivered_by": input.Actor.UserID,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order delivered")
		}
		return s.emit(ctx, tx, enums.EventOrderDelivered, order, input.Actor, "")
	})
	if err != nil {
		s.compensate(ctx, deducted, input.Actor)
		return nil, err
	}

	s.observe(ctx, order, input.Actor, "order.delivered", from, "order delivered")
	return order, nil
}

// ApplyPayment adds a completed payment to the order exactly once. A nil tx runs in its own
// transaction; otherwise the work runs in a savepoint on tx, so a refused payment leaves the
// caller's transaction usable. Applying an already applied payment returns the order unchanged.
func (s *service) ApplyPayment(ctx context.Context, tx *gorm.DB, payment *models.Payment) (*models.Order, error) {
	if payment == nil || payment.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment required")
	}
	if payment.Status != enums.PaymentStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only completed payments can be applied")
	}
	if !payment.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}
	var order *models.Order
	apply := func(inner *gorm.DB) error {
		var err error
		order, err = s.applyPayment(ctx, inner, payment)
		return err
	}
	var err error
	if tx == nil {
		err = s.tx.WithTx(ctx, apply)
	} else {
		err = tx.Transaction(apply)
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// PaymentRefused reports whether an ApplyPayment error means the order cannot take the payment
// (cancelled or overpaid) rather than a failure worth retrying.
func PaymentRefused(err error) bool {
	return errors.Is(err, ErrOverpayment) || pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition)
}

func (s *service) applyPayment(ctx context.Context, tx *gorm.DB, payment *models.Payment) (*models.Order, error) {
	repo := s.repo.WithTx(tx)
	order, err := repo.FindOrderForUpdate(ctx, payment.OrderID)
	if err != nil {
		return nil, notFoundOr(err, "order")
	}
	if order.Status == enums.OrderStatusCancelled {
		return nil, invalidTransition(order, "apply payment to")
	}

	now := s.now()
	first, err := repo.MarkPaymentApplied(ctx, payment.ID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment applied")
	}
	if !first {
		return order, nil
	}
	paid := order.PaidAmount.Add(payment.Amount)
	if paid.GreaterThan(order.TotalAmount) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrOverpayment,
			fmt.Sprintf("payment %s exceeds remaining amount %s", payment.Amount, order.RemainingAmount))
	}
	payment.AppliedAt = &now

	order.PaidAmount = paid
	order.RemainingAmount = order.TotalAmount.Sub(paid)
	order.PaymentStatus = PaymentStatusFor(order.PaidAmount, order.TotalAmount)
	updates := map[string]any{
		"paid_amount":      order.PaidAmount,
		"remaining_amount": order.RemainingAmount,
		"payment_status":   order.PaymentStatus,
	}
	completed := order.Status == enums.OrderStatusApproved && order.PaymentStatus == enums.OrderPaymentStatusPaid
	if completed {
		order.Status = enums.OrderStatusCompleted
		updates["status"] = order.Status
	}
	if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply payment")
	}

	_, err = s.debt.ReduceCustomerDebt(ctx, tx, debt.Change{
		PartyID:       order.CustomerID,
		Amount:        payment.Amount,
		Reason:        "payment applied to order " + order.OrderNumber,
		ReferenceType: debt.ReferencePayment,
		ReferenceID:   &payment.ID,
	})
	if err != nil {
		return nil, err
	}
	if completed {
		if err := s.emit(ctx, tx, enums.EventOrderCompleted, order, workflow.Actor{}, "fully paid"); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "order")
	}
	return order, nil
}

func (s *service) lineItems(ctx context.Context, repo Repository, quoteItems []models.QuoteLineItem) ([]models.OrderLineItem, error) {
	if len(quoteItems) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quote has no line items")
	}
	ids := make([]uuid.UUID, 0, len(quoteItems))
	for _, item := range quoteItems {
		ids = append(ids, item.VehicleID)
	}
	vehicles, err := repo.FindVehicles(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vehicles")
	}
	byID := make(map[uuid.UUID]models.Vehicle, len(vehicles))
	for _, v := range vehicles {
		byID[v.ID] = v
	}

	items := make([]models.OrderLineItem, 0, len(quoteItems))
	for _, qi := range quoteItems {
		vehicle, ok := byID[qi.VehicleID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("vehicle %s not found", qi.VehicleID))
		}
		if !vehicle.HasUnitIdentity() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("vehicle %s has no VIN or engine number assigned", vehicle.ID))
		}
		gross := qi.UnitPrice.Mul(decimal.NewFromInt(int64(qi.Quantity)))
		discount := gross.Mul(qi.PromotionDiscountPercent).Div(hundred).Round(2)
		items = append(items, models.OrderLineItem{
			VehicleID:      vehicle.ID,
			VIN:            *vehicle.VIN,
			EngineNumber:   *vehicle.EngineNumber,
			Quantity:       qi.Quantity,
			UnitPrice:      qi.UnitPrice,
			DiscountAmount: discount,
			LineTotal:      gross.Sub(discount),
		})
	}
	return items, nil
}

func (s *service) compensate(ctx context.Context, movements []models.InventoryMovement, actor workflow.Actor) {
	for i := len(movements) - 1; i >= 0; i-- {
		m := movements[i]
		_, err := s.inventory.Reverse(context.WithoutCancel(ctx), inventory.ReverseRequest{
			MovementID: m.ID,
			Reason:     "delivery failed",
			ActorID:    &actor.UserID,
		})
		if err != nil {
			s.logg.Error(s.logg.WithFields(ctx, map[string]any{
				"movement_id": m.ID.String(),
				"vehicle_id":  m.VehicleID.String(),
				"quantity":    m.Quantity,
			}), "compensating inventory reversal failed", err)
		}
	}
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, order *models.Order, actor workflow.Actor, note string) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderEvent{
			OrderID:         order.ID,
			QuoteID:         order.QuoteID,
			DealerID:        order.DealerID,
			CustomerID:      order.CustomerID,
			Status:          order.Status,
			ApprovalStatus:  order.ApprovalStatus,
			PaymentStatus:   order.PaymentStatus,
			TotalAmount:     order.TotalAmount,
			PaidAmount:      order.PaidAmount,
			RemainingAmount: order.RemainingAmount,
			Note:            note,
		},
	}
	if actor.UserID != uuid.Nil {
		event.Actor = actor.Ref()
	}
	return s.outboxEmit(ctx, tx, event)
}

func (s *service) emitPayment(ctx context.Context, tx *gorm.DB, payment *models.Payment, actor workflow.Actor) error {
	return s.outboxEmit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentCompleted,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Actor:         actor.Ref(),
		Data: payloads.PaymentEvent{
			PaymentID: payment.ID,
			OrderID:   payment.OrderID,
			Method:    payment.Method,
			Status:    payment.Status,
			Amount:    payment.Amount,
		},
	})
}

func (s *service) outboxEmit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit "+event.EventType.String())
	}
	return nil
}

func (s *service) observe(ctx context.Context, order *models.Order, actor workflow.Actor, action string, from enums.OrderStatus, msg string) {
	s.metrics.OrderTransition(order.Status.String())
	s.audit.Emit(ctx, audit.New(actor, action, "order", order.ID).
		Transition(from.String(), order.Status.String()).
		With("approval_status", order.ApprovalStatus.String()).
		With("payment_status", order.PaymentStatus.String()))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":        order.ID.String(),
		"dealer_id":       order.DealerID.String(),
		"status":          order.Status,
		"approval_status": order.ApprovalStatus,
		"payment_status":  order.PaymentStatus,
		"actor_id":        actor.UserID.String(),
	}), msg)
}

// ValidPercentage reports whether pct is an accepted payment slice.
func ValidPercentage(pct int) bool {
	for _, allowed := range AllowedPercentages {
		if pct == allowed {
			return true
		}
	}
	return false
}

// Portion is total x pct / 100 rounded to cents.
func Portion(total decimal.Decimal, pct int) decimal.Decimal {
	return total.Mul(decimal.NewFromInt(int64(pct))).Div(hundred).Round(2)
}

// PaymentStatusFor derives the order payment status from the paid amount.
func PaymentStatusFor(paid, total decimal.Decimal) enums.OrderPaymentStatus {
	switch {
	case paid.IsZero():
		return enums.OrderPaymentStatusUnpaid
	case paid.GreaterThanOrEqual(total):
		return enums.OrderPaymentStatusPaid
	default:
		return enums.OrderPaymentStatusPartiallyPaid
	}
}

func deliveredStatus(order *models.Order) (enums.OrderStatus, error) {
	switch order.Status {
	case enums.OrderStatusCompleted:
		return enums.OrderStatusDelivered, nil
	case enums.OrderStatusApproved:
		return enums.OrderStatusDeliveredApproved, nil
	}
	return "", invalidTransition(order, "deliver")
}

func lines(items []models.OrderLineItem) []inventory.Line {
	out := make([]inventory.Line, 0, len(items))
	for _, item := range items {
		out = append(out, inventory.Line{VehicleID: item.VehicleID, Quantity: item.Quantity})
	}
	return out
}

func shortageNote(shortages []payloads.Shortage) string {
	parts := make([]string, 0, len(shortages))
	for _, sh := range shortages {
		parts = append(parts, fmt.Sprintf("vehicle %s needs %d, %d available", sh.VehicleID, sh.Requested, sh.Available))
	}
	return strings.Join(parts, "; ")
}

func invalidTransition(order *models.Order, action string) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition,
		fmt.Sprintf("cannot %s order in status %s/%s", action, order.Status, order.ApprovalStatus)).
		WithDetails(map[string]any{"status": order.Status, "approval_status": order.ApprovalStatus})
}

func notFoundOr(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, entity+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+entity)
}

func newOrderNumber(now time.Time) string {
	return fmt.Sprintf("O-%s-%s", now.Format("20060102"), strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8]))
}
