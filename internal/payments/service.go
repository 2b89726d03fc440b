// Package payments records order payments and settles VNPay redirects through signed callbacks.
package payments

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/evdms/dealer-backend/internal/audit"
	"github.com/evdms/dealer-backend/internal/orders"
	"github.com/evdms/dealer-backend/internal/workflow"
	"github.com/evdms/dealer-backend/pkg/db/models"
	"github.com/evdms/dealer-backend/pkg/enums"
	pkgerrors "github.com/evdms/dealer-backend/pkg/errors"
	"github.com/evdms/dealer-backend/pkg/logger"
	"github.com/evdms/dealer-backend/pkg/metrics"
	"github.com/evdms/dealer-backend/pkg/outbox"
	"github.com/evdms/dealer-backend/pkg/outbox/payloads"
	"github.com/evdms/dealer-backend/pkg/vnpay"
)

// CallbackConsumer scopes the idempotency markers written for gateway callbacks.
const CallbackConsumer = "vnpay-callback"

// Callback outcomes, also used as the metrics label.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeDuplicate = "duplicate"
)

// Service defines payment intake and gateway settlement.
type Service interface {
	Process(ctx context.Context, input ProcessInput) (*ProcessResult, error)
	HandleCallback(ctx context.Context, values url.Values) (*CallbackOutcome, error)
	Get(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
}

// ProcessInput requests a payment of Percentage of the order total.
type ProcessInput struct {
	OrderID    uuid.UUID
	Percentage int
	Method     enums.PaymentMethod
	Actor      workflow.Actor
	ClientIP   string
	BankCode   string
	Locale     string
}

// ProcessResult carries the redirect URL for gateway payments. Order is set when the payment was
// applied immediately.
type ProcessResult struct {
	Payment    *models.Payment
	Order      *models.Order
	PaymentURL string
}

// CallbackOutcome reports what a verified callback did.
type CallbackOutcome struct {
	Payment   *models.Payment
	Order     *models.Order
	Outcome   string
	Duplicate bool
	Applied   bool
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outbox.Emitter
	orders  OrderApplier
	gateway Gateway
	dedup   Deduplicator
	audit   audit.Emitter
	metrics *metrics.WorkflowMetrics
	logg    *logger.Logger
	now     func() time.Time
}

type Option func(*service)

// WithDeduplicator guards callbacks with a shared processed-marker store.
func WithDeduplicator(d Deduplicator) Option {
	return func(s *service) { s.dedup = d }
}

func WithAudit(e audit.Emitter) Option {
	return func(s *service) { s.audit = e }
}

func WithMetrics(m *metrics.WorkflowMetrics) Option {
	return func(s *service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService wires the payment workflow.
func NewService(repo Repository, tx txRunner, emitter outbox.Emitter, applier OrderApplier, gateway Gateway, logg *logger.Logger, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if applier == nil {
		return nil, fmt.Errorf("order applier required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	s := &service{
		repo:    repo,
		tx:      tx,
		outbox:  emitter,
		orders:  applier,
		gateway: gateway,
		audit:   audit.Nop{},
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *service) Process(ctx context.Context, input ProcessInput) (*ProcessResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.Percentage == 0 || !orders.ValidPercentage(input.Percentage) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "percentage must be one of 30, 50, 70, 100")
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown payment method %q", input.Method))
	}
	if input.Method == enums.PaymentMethodVNPay && strings.TrimSpace(input.ClientIP) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client ip required for gateway payments")
	}
	if err := input.Actor.Validate(); err != nil {
		return nil, err
	}

	result := &ProcessResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			return notFoundOr(err, "order")
		}
		if err := input.Actor.RequireDealerStaff(order.DealerID); err != nil {
			return err
		}
		if order.Status == enums.OrderStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "cancelled orders cannot take payments")
		}
		// Pending gateway and installment payments hold their share of the balance until settled.
		pending, err := repo.PendingTotal(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum pending payments")
		}
		available := order.RemainingAmount.Sub(pending)
		amount := orders.Portion(order.TotalAmount, input.Percentage)
		if amount.GreaterThan(available) {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("amount %s exceeds available %s", amount, available)).
				WithDetails(map[string]any{
					"amount":           amount,
					"remaining_amount": order.RemainingAmount,
					"pending_amount":   pending,
				})
		}

		now := s.now()
		payment := &models.Payment{
			ID:         uuid.New(),
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			DealerID:   order.DealerID,
			Method:     input.Method,
			Status:     enums.PaymentStatusPending,
			Amount:     amount,
			Percentage: input.Percentage,
			CreatedBy:  &input.Actor.UserID,
		}
		result.Payment = payment

		switch input.Method {
		case enums.PaymentMethodCash, enums.PaymentMethodBankTransfer:
			payment.Status = enums.PaymentStatusCompleted
			payment.PayDate = &now
			if err := repo.CreatePayment(ctx, payment); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
			}
			result.Order, err = s.orders.ApplyPayment(ctx, tx, payment)
			if err != nil {
				return err
			}
			return s.emit(ctx, tx, enums.EventPaymentCompleted, payment, input.Actor)

		case enums.PaymentMethodVNPay:
			ref := newTxnRef(now)
			payment.TxnRef = &ref
			if err := repo.CreatePayment(ctx, payment); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
			}
			result.PaymentURL, err = s.gateway.BuildPaymentURL(vnpay.PaymentRequest{
				TxnRef:    ref,
				Amount:    amount,
				OrderInfo: "Thanh toan don hang " + order.OrderNumber,
				Locale:    input.Locale,
				IPAddr:    input.ClientIP,
				BankCode:  input.BankCode,
				CreatedAt: now,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "build payment url")
			}
			return s.emit(ctx, tx, enums.EventPaymentInitiated, payment, input.Actor)

		default:
			if err := repo.CreatePayment(ctx, payment); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
			}
			return s.emit(ctx, tx, enums.EventPaymentInitiated, payment, input.Actor)
		}
	})
	if err != nil {
		return nil, err
	}

	s.audit.Emit(ctx, audit.New(input.Actor, "payment.created", "payment", result.Payment.ID).
		With("order_id", result.Payment.OrderID.String()).
		With("method", result.Payment.Method.String()).
		With("amount", result.Payment.Amount.String()))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"payment_id": result.Payment.ID.String(),
		"order_id":   result.Payment.OrderID.String(),
		"method":     result.Payment.Method,
		"status":     result.Payment.Status,
		"amount":     result.Payment.Amount.String(),
	}), "payment recorded")
	return result, nil
}

// HandleCallback settles a pending gateway payment from a signed return or IPN request. The
// payment row lock and the PENDING-only transition make replays no-ops even without the
// deduplicator.
func (s *service) HandleCallback(ctx context.Context, values url.Values) (*CallbackOutcome, error) {
	cb, err := s.gateway.VerifyCallback(values)
	if err != nil {
		if errors.Is(err, vnpay.ErrInvalidSignature) {
			s.metrics.PaymentCallback("invalid_signature")
			return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidSignature, err, "callback signature mismatch")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed callback")
	}

	deliveryID := cb.TxnRef + ":" + cb.ResponseCode
	if s.dedup != nil {
		seen, err := s.dedup.CheckAndMarkProcessed(ctx, CallbackConsumer, deliveryID)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "txn_ref", cb.TxnRef), "callback idempotency check unavailable: "+err.Error())
		} else if seen {
			payment, err := s.repo.FindPaymentByTxnRef(ctx, cb.TxnRef)
			if err != nil {
				return nil, notFoundOr(err, "payment")
			}
			s.metrics.PaymentCallback(OutcomeDuplicate)
			return &CallbackOutcome{Payment: payment, Outcome: OutcomeDuplicate, Duplicate: true}, nil
		}
	}

	outcome, err := s.settle(ctx, cb)
	if err != nil {
		if s.dedup != nil {
			if derr := s.dedup.Delete(context.WithoutCancel(ctx), CallbackConsumer, deliveryID); derr != nil {
				s.logg.Error(s.logg.WithField(ctx, "txn_ref", cb.TxnRef), "failed to clear callback marker", derr)
			}
		}
		return nil, err
	}

	s.metrics.PaymentCallback(outcome.Outcome)
	if !outcome.Duplicate {
		s.audit.Emit(ctx, audit.New(workflow.Actor{}, "payment.callback", "payment", outcome.Payment.ID).
			Transition(enums.PaymentStatusPending.String(), outcome.Payment.Status.String()).
			With("txn_ref", cb.TxnRef).
			With("response_code", cb.ResponseCode))
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"payment_id":    outcome.Payment.ID.String(),
		"txn_ref":       cb.TxnRef,
		"response_code": cb.ResponseCode,
		"outcome":       outcome.Outcome,
		"applied":       outcome.Applied,
	}), "gateway callback handled")
	return outcome, nil
}

func (s *service) settle(ctx context.Context, cb *vnpay.CallbackResult) (*CallbackOutcome, error) {
	outcome := &CallbackOutcome{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := repo.FindPaymentByTxnRefForUpdate(ctx, cb.TxnRef)
		if err != nil {
			return notFoundOr(err, "payment")
		}
		outcome.Payment = payment
		if !payment.Amount.Equal(cb.Amount) {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("callback amount %s does not match payment amount %s", cb.Amount, payment.Amount)).
				WithDetails(map[string]any{"expected": payment.Amount, "received": cb.Amount})
		}
		if payment.Status != enums.PaymentStatusPending {
			outcome.Outcome = OutcomeDuplicate
			outcome.Duplicate = true
			return nil
		}

		status := enums.PaymentStatusFailed
		outcome.Outcome = OutcomeFailed
		if cb.Success() {
			status = enums.PaymentStatusCompleted
			outcome.Outcome = OutcomeCompleted
		}
		updates := map[string]any{
			"status":        status,
			"response_code": cb.ResponseCode,
		}
		payment.Status = status
		payment.ResponseCode = optional(cb.ResponseCode)
		if cb.TransactionNo != "" {
			updates["gateway_transaction_no"] = cb.TransactionNo
			payment.GatewayTransactionNo = optional(cb.TransactionNo)
		}
		if cb.BankCode != "" {
			updates["bank_code"] = cb.BankCode
			payment.BankCode = optional(cb.BankCode)
		}
		if cb.CardType != "" {
			updates["card_type"] = cb.CardType
			payment.CardType = optional(cb.CardType)
		}
		if cb.PayDate != nil {
			updates["pay_date"] = *cb.PayDate
			payment.PayDate = cb.PayDate
		}
		if err := repo.UpdatePayment(ctx, payment.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
		}

		if status != enums.PaymentStatusCompleted {
			return s.emitCallback(ctx, tx, enums.EventPaymentFailed, payment)
		}
		// The gateway already captured the money, so the payment completes even when the
		// order can no longer take it.
		order, err := s.orders.ApplyPayment(ctx, tx, payment)
		switch {
		case err == nil:
			outcome.Order = order
			outcome.Applied = true
		case orders.PaymentRefused(err):
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"payment_id": payment.ID.String(),
				"order_id":   payment.OrderID.String(),
			}), "settled payment left unapplied: "+err.Error())
		default:
			return err
		}
		return s.emitCallback(ctx, tx, enums.EventPaymentCompleted, payment)
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (s *service) Get(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	if paymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	payment, err := s.repo.FindPayment(ctx, paymentID)
	if err != nil {
		return nil, notFoundOr(err, "payment")
	}
	return payment, nil
}

func (s *service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	payments, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	return payments, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, payment *models.Payment, actor workflow.Actor) error {
	return s.publish(ctx, tx, eventType, payment, actor.Ref())
}

func (s *service) emitCallback(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, payment *models.Payment) error {
	return s.publish(ctx, tx, eventType, payment, nil)
}

func (s *service) publish(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, payment *models.Payment, actor *outbox.ActorRef) error {
	data := payloads.PaymentEvent{
		PaymentID: payment.ID,
		OrderID:   payment.OrderID,
		Method:    payment.Method,
		Status:    payment.Status,
		Amount:    payment.Amount,
	}
	if payment.TxnRef != nil {
		data.TxnRef = *payment.TxnRef
	}
	if payment.ResponseCode != nil {
		data.ResponseCode = *payment.ResponseCode
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Actor:         actor,
		Data:          data,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit "+eventType.String())
	}
	return nil
}

// IPNResponse maps a callback result onto the acknowledgement the gateway expects.
func IPNResponse(outcome *CallbackOutcome, err error) vnpay.IPNResponse {
	switch {
	case err == nil && outcome != nil && outcome.Duplicate:
		return vnpay.NewIPNResponse(vnpay.IPNAlreadyConfirmed)
	case err == nil:
		return vnpay.NewIPNResponse(vnpay.IPNConfirmed)
	case pkgerrors.HasCode(err, pkgerrors.CodeInvalidSignature):
		return vnpay.NewIPNResponse(vnpay.IPNInvalidSignature)
	case pkgerrors.HasCode(err, pkgerrors.CodeNotFound):
		return vnpay.NewIPNResponse(vnpay.IPNOrderNotFound)
	case pkgerrors.HasCode(err, pkgerrors.CodeValidation):
		return vnpay.NewIPNResponse(vnpay.IPNInvalidAmount)
	default:
		return vnpay.NewIPNResponse(vnpay.IPNUnknownError)
	}
}

func notFoundOr(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, entity+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+entity)
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// newTxnRef builds a gateway reference unique per attempt.
func newTxnRef(now time.Time) string {
	return now.Format("20060102150405") + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

