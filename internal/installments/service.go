// Package installments splits installment payments into dated monthly slices and settles the
// payment once every slice is paid.
package installments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/evdms/dealer-backend/internal/audit"
	"github.com/evdms/dealer-backend/internal/orders"
	"github.com/evdms/dealer-backend/internal/workflow"
	"github.com/evdms/dealer-backend/pkg/db/models"
	"github.com/evdms/dealer-backend/pkg/enums"
	pkgerrors "github.com/evdms/dealer-backend/pkg/errors"
	"github.com/evdms/dealer-backend/pkg/logger"
	"github.com/evdms/dealer-backend/pkg/outbox"
	"github.com/evdms/dealer-backend/pkg/outbox/payloads"
)

const overdueBatchSize = 500

// Service defines the installment plan lifecycle.
type Service interface {
	CreatePlan(ctx context.Context, input PlanInput) (*Plan, error)
	MarkAsPaid(ctx context.Context, input MarkPaidInput) (*MarkPaidResult, error)
	MarkOverdue(ctx context.Context, now time.Time) (int, error)
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]models.Installment, error)
}

// PlanInput schedules a pending installment payment. Total defaults to the payment amount and
// FirstDueDate to one month from now.
type PlanInput struct {
	PaymentID    uuid.UUID
	Actor        workflow.Actor
	Total        *decimal.Decimal
	Months       int
	AnnualRate   *decimal.Decimal
	FirstDueDate *time.Time
}

type Plan struct {
	Payment      *models.Payment
	Installments []models.Installment
}

// MarkPaidInput settles one installment. Method defaults to cash.
type MarkPaidInput struct {
	InstallmentID uuid.UUID
	Actor         workflow.Actor
	Method        enums.PaymentMethod
}

// MarkPaidResult reports whether the payment was completed by this settlement.
type MarkPaidResult struct {
	Installment   *models.Installment
	Payment       *models.Payment
	Order         *models.Order
	PlanCompleted bool
}

type service struct {
	repo        Repository
	tx          txRunner
	outbox      outbox.Emitter
	orders      OrderApplier
	audit       audit.Emitter
	logg        *logger.Logger
	maxMonths   int
	defaultRate decimal.Decimal
	now         func() time.Time
}

type Option func(*service)

func WithAudit(e audit.Emitter) Option {
	return func(s *service) { s.audit = e }
}

// WithLimits sets the longest accepted plan and the rate used when a request carries none.
func WithLimits(maxMonths int, defaultRate decimal.Decimal) Option {
	return func(s *service) {
		if maxMonths > 0 {
			s.maxMonths = maxMonths
		}
		s.defaultRate = defaultRate
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService wires the installment scheduler.
func NewService(repo Repository, tx txRunner, emitter outbox.Emitter, applier OrderApplier, logg *logger.Logger, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("installments repository required")
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
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	s := &service{
		repo:        repo,
		tx:          tx,
		outbox:      emitter,
		orders:      applier,
		audit:       audit.Nop{},
		logg:        logg,
		maxMonths:   DefaultMaxMonths,
		defaultRate: decimal.Zero,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *service) CreatePlan(ctx context.Context, input PlanInput) (*Plan, error) {
	if input.PaymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	if input.Months <= 0 || input.Months > s.maxMonths {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("months must be between 1 and %d", s.maxMonths))
	}
	rate := s.defaultRate
	if input.AnnualRate != nil {
		rate = *input.AnnualRate
	}
	if err := input.Actor.Validate(); err != nil {
		return nil, err
	}

	plan := &Plan{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := repo.FindPaymentForUpdate(ctx, input.PaymentID)
		if err != nil {
			return notFoundOr(err, "payment")
		}
		plan.Payment = payment
		if err := input.Actor.RequireDealerStaff(payment.DealerID); err != nil {
			return err
		}
		if payment.Method != enums.PaymentMethodInstallment {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment is not an installment payment")
		}
		if payment.Status != enums.PaymentStatusPending {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("payment is %s", payment.Status))
		}
		existing, err := repo.CountByPayment(ctx, payment.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count installments")
		}
		if existing > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "payment already has an installment plan")
		}

		total := payment.Amount
		if input.Total != nil {
			if !input.Total.Equal(payment.Amount) {
				return pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("plan total %s must equal payment amount %s", input.Total, payment.Amount))
			}
			total = *input.Total
		}
		firstDue := s.now().AddDate(0, 1, 0)
		if input.FirstDueDate != nil {
			firstDue = input.FirstDueDate.UTC()
		}
		slices, err := Schedule(total, input.Months, rate, firstDue)
		if err != nil {
			return err
		}

		rows := make([]models.Installment, 0, len(slices))
		for _, sl := range slices {
			rows = append(rows, models.Installment{
				ID:                uuid.New(),
				PaymentID:         payment.ID,
				InstallmentNumber: sl.Number,
				Amount:            sl.Amount,
				AnnualRate:        rate,
				DueDate:           sl.DueDate,
				Status:            enums.InstallmentStatusPending,
			})
		}
		if err := repo.CreateInstallments(ctx, rows); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create installments")
		}
		plan.Installments = rows

		first := rows[0].DueDate
		return s.emit(ctx, tx, enums.EventInstallmentPlanCreated, input.Actor.Ref(), payloads.InstallmentEvent{
			PaymentID: payment.ID,
			Count:     len(rows),
			Amount:    rows[0].Amount,
			DueDate:   &first,
			Status:    enums.InstallmentStatusPending,
		})
	})
	if err != nil {
		return nil, err
	}

	s.audit.Emit(ctx, audit.New(input.Actor, "installment.plan_created", "payment", plan.Payment.ID).
		With("months", input.Months).
		With("annual_rate", rate.String()).
		With("installment_amount", plan.Installments[0].Amount.String()))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"payment_id":  plan.Payment.ID.String(),
		"months":      input.Months,
		"annual_rate": rate.String(),
		"amount":      plan.Installments[0].Amount.String(),
	}), "installment plan created")
	return plan, nil
}

func (s *service) MarkAsPaid(ctx context.Context, input MarkPaidInput) (*MarkPaidResult, error) {
	if input.InstallmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "installment id required")
	}
	method := input.Method
	if method == "" {
		method = enums.PaymentMethodCash
	}
	if method != enums.PaymentMethodCash && method != enums.PaymentMethodBankTransfer {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "installments are settled by cash or bank transfer")
	}
	if err := input.Actor.Validate(); err != nil {
		return nil, err
	}

	result := &MarkPaidResult{}
	var from enums.InstallmentStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := repo.FindInstallmentForUpdate(ctx, input.InstallmentID)
		if err != nil {
			return notFoundOr(err, "installment")
		}
		payment, err := repo.FindPaymentForUpdate(ctx, row.PaymentID)
		if err != nil {
			return notFoundOr(err, "payment")
		}
		if err := input.Actor.RequireDealerStaff(payment.DealerID); err != nil {
			return err
		}
		from = row.Status
		if row.Status == enums.InstallmentStatusPaid {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("installment %d is already paid", row.InstallmentNumber))
		}

		now := s.now()
		row.Status = enums.InstallmentStatusPaid
		row.PaidDate = &now
		row.SettlementMethod = &method
		err = repo.UpdateInstallment(ctx, row.ID, map[string]any{
			"status":            row.Status,
			"paid_date":         now,
			"settlement_method": method,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark installment paid")
		}
		result.Installment = row
		result.Payment = payment
		err = s.emit(ctx, tx, enums.EventInstallmentPaid, input.Actor.Ref(), payloads.InstallmentEvent{
			PaymentID:         payment.ID,
			InstallmentID:     &row.ID,
			InstallmentNumber: row.InstallmentNumber,
			Amount:            row.Amount,
			DueDate:           &row.DueDate,
			Status:            row.Status,
		})
		if err != nil {
			return err
		}

		unpaid, err := repo.CountUnpaid(ctx, payment.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count unpaid installments")
		}
		if unpaid > 0 || payment.Status != enums.PaymentStatusPending {
			return nil
		}

		payment.Status = enums.PaymentStatusCompleted
		payment.PayDate = &now
		err = repo.UpdatePayment(ctx, payment.ID, map[string]any{
			"status":   payment.Status,
			"pay_date": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete installment payment")
		}
		result.PlanCompleted = true

		order, err := s.orders.ApplyPayment(ctx, tx, payment)
		switch {
		case err == nil:
			result.Order = order
		case orders.PaymentRefused(err):
			s.logg.Warn(s.logg.WithField(ctx, "payment_id", payment.ID.String()), "completed installment payment left unapplied: "+err.Error())
		default:
			return err
		}
		return s.outboxEmit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentCompleted,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Actor:         input.Actor.Ref(),
			Data: payloads.PaymentEvent{
				PaymentID: payment.ID,
				OrderID:   payment.OrderID,
				Method:    payment.Method,
				Status:    payment.Status,
				Amount:    payment.Amount,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.audit.Emit(ctx, audit.New(input.Actor, "installment.paid", "installment", result.Installment.ID).
		Transition(from.String(), result.Installment.Status.String()).
		With("payment_id", result.Payment.ID.String()).
		With("plan_completed", result.PlanCompleted))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"installment_id": result.Installment.ID.String(),
		"payment_id":     result.Payment.ID.String(),
		"number":         result.Installment.InstallmentNumber,
		"plan_completed": result.PlanCompleted,
	}), "installment paid")
	return result, nil
}

// MarkOverdue flags pending installments whose due date has passed. It processes at most one
// batch per call and returns how many rows changed.
func (s *service) MarkOverdue(ctx context.Context, now time.Time) (int, error) {
	candidates, err := s.repo.ListPastDue(ctx, now.UTC(), overdueBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list past due installments")
	}
	marked := 0
	for i := range candidates {
		row := candidates[i]
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			changed, err := s.repo.WithTx(tx).MarkOverdueIfPending(ctx, row.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark installment overdue")
			}
			if !changed {
				return nil
			}
			marked++
			return s.emit(ctx, tx, enums.EventInstallmentOverdue, nil, payloads.InstallmentEvent{
				PaymentID:         row.PaymentID,
				InstallmentID:     &row.ID,
				InstallmentNumber: row.InstallmentNumber,
				Amount:            row.Amount,
				DueDate:           &row.DueDate,
				Status:            enums.InstallmentStatusOverdue,
			})
		})
		if err != nil {
			return marked, err
		}
	}
	if marked > 0 {
		s.logg.Info(s.logg.WithField(ctx, "count", marked), "installments marked overdue")
	}
	return marked, nil
}

func (s *service) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]models.Installment, error) {
	if paymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	rows, err := s.repo.ListByPayment(ctx, paymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list installments")
	}
	return rows, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, actor *outbox.ActorRef, data payloads.InstallmentEvent) error {
	return s.outboxEmit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayment,
		AggregateID:   data.PaymentID,
		Actor:         actor,
		Data:          data,
	})
}

func (s *service) outboxEmit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit "+event.EventType.String())
	}
	return nil
}

func notFoundOr(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, entity+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+entity)
}
