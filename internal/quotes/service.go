// Package quotes prices sales quotes and routes them through exactly one approval path, dealer
// manager or manufacturer, chosen when the quote is submitted.
package quotes

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
	"github.com/evdms/dealer-backend/internal/inventory"
	"github.com/evdms/dealer-backend/internal/workflow"
	"github.com/evdms/dealer-backend/pkg/db/models"
	"github.com/evdms/dealer-backend/pkg/enums"
	pkgerrors "github.com/evdms/dealer-backend/pkg/errors"
	"github.com/evdms/dealer-backend/pkg/logger"
	"github.com/evdms/dealer-backend/pkg/metrics"
	"github.com/evdms/dealer-backend/pkg/outbox"
	"github.com/evdms/dealer-backend/pkg/outbox/payloads"
)

const expireBatchSize = 500

// Service defines the quote lifecycle.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Quote, error)
	Submit(ctx context.Context, input SubmitInput) (*models.Quote, error)
	Approve(ctx context.Context, input ApproveInput) (*models.Quote, error)
	Reject(ctx context.Context, input RejectInput) (*models.Quote, error)
	CheckInventory(ctx context.Context, quoteID uuid.UUID) (bool, error)
	Accept(ctx context.Context, input AcceptInput) (*models.Quote, error)
	Decline(ctx context.Context, input DeclineInput) (*models.Quote, error)
	ExpireStale(ctx context.Context, now time.Time) (int, error)
	Get(ctx context.Context, quoteID uuid.UUID) (*models.Quote, error)
}

// CreateLine requests one vehicle line. A nil UnitPrice uses the vehicle list price.
type CreateLine struct {
	VehicleID                uuid.UUID
	Quantity                 int
	UnitPrice                *decimal.Decimal
	PromotionDiscountPercent decimal.Decimal
}

type CreateInput struct {
	Actor      workflow.Actor
	CustomerID uuid.UUID
	Lines      []CreateLine
	ValidUntil *time.Time
	Notes      string
}

// SubmitInput routes a draft. An empty Route means the dealer manager path.
type SubmitInput struct {
	QuoteID uuid.UUID
	Actor   workflow.Actor
	Route   enums.ApprovalRoute
}

type ApproveInput struct {
	QuoteID uuid.UUID
	Actor   workflow.Actor
	Notes   string
}

type RejectInput struct {
	QuoteID uuid.UUID
	Actor   workflow.Actor
	Reason  string
}

type AcceptInput struct {
	QuoteID uuid.UUID
	Actor   workflow.Actor
}

type DeclineInput struct {
	QuoteID uuid.UUID
	Actor   workflow.Actor
	Reason  string
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outbox.Emitter
	inventory InventoryChecker
	policy    Policy
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

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService wires the quote workflow.
func NewService(repo Repository, tx txRunner, emitter outbox.Emitter, checker InventoryChecker, policy Policy, logg *logger.Logger, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("quotes repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if checker == nil {
		return nil, fmt.Errorf("inventory checker required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	s := &service{
		repo:      repo,
		tx:        tx,
		outbox:    emitter,
		inventory: checker,
		policy:    policy,
		audit:     audit.Nop{},
		logg:      logg,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Quote, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quote requires at least one line")
	}
	for _, line := range input.Lines {
		if line.VehicleID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "vehicle id required")
		}
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		if line.PromotionDiscountPercent.IsNegative() || line.PromotionDiscountPercent.GreaterThan(hundred) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "promotion discount must be between 0 and 100")
		}
		if line.UnitPrice != nil && line.UnitPrice.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit price must not be negative")
		}
	}

	now := s.now()
	validUntil := now.AddDate(0, 0, s.policy.ValidityDays)
	if input.ValidUntil != nil {
		if !input.ValidUntil.After(now) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "valid until must be in the future")
		}
		validUntil = input.ValidUntil.UTC()
	}

	customer, err := s.repo.FindCustomer(ctx, input.CustomerID)
	if err != nil {
		return nil, notFoundOr(err, "customer")
	}
	if err := input.Actor.RequireDealerStaff(customer.DealerID); err != nil {
		return nil, err
	}

	vehicles, err := s.vehicles(ctx, input.Lines)
	if err != nil {
		return nil, err
	}

	priced := make([]LineInput, len(input.Lines))
	for i, line := range input.Lines {
		price := vehicles[line.VehicleID].ListPrice
		if line.UnitPrice != nil {
			price = *line.UnitPrice
		}
		priced[i] = LineInput{
			VehicleID:                line.VehicleID,
			Quantity:                 line.Quantity,
			UnitPrice:                price,
			PromotionDiscountPercent: line.PromotionDiscountPercent,
		}
	}
	totals := Calculate(priced, snapshot(customer), s.policy)

	quote := &models.Quote{
		ID:             uuid.New(),
		QuoteNumber:    newNumber("Q", now),
		DealerID:       customer.DealerID,
		CustomerID:     customer.ID,
		StaffUserID:    input.Actor.UserID,
		Status:         enums.QuoteStatusDraft,
		ApprovalStatus: enums.QuoteApprovalStatusDraft,
		Subtotal:       totals.Subtotal,
		VATAmount:      totals.VAT,
		DiscountAmount: totals.Discount,
		FinalTotal:     totals.FinalTotal,
		ValidUntil:     validUntil,
		Notes:          optional(input.Notes),
	}
	for i, line := range priced {
		quote.Items = append(quote.Items, models.QuoteLineItem{
			QuoteID:                  quote.ID,
			VehicleID:                line.VehicleID,
			Quantity:                 line.Quantity,
			UnitPrice:                line.UnitPrice,
			PromotionDiscountPercent: line.PromotionDiscountPercent,
			LineTotal:                totals.LineTotals[i],
		})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateQuote(ctx, quote); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create quote")
		}
		return s.emit(ctx, tx, enums.EventQuoteCreated, quote, input.Actor, "")
	})
	if err != nil {
		return nil, err
	}

	s.observe(ctx, quote, input.Actor, "quote.created", "", "quote created")
	return quote, nil
}

func (s *service) Submit(ctx context.Context, input SubmitInput) (*models.Quote, error) {
	route := input.Route
	if route == "" {
		route = enums.ApprovalRouteDealerManager
	}
	if !route.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown approval route")
	}

	var (
		quote *models.Quote
		from  enums.QuoteApprovalStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		quote, err = repo.FindQuoteForUpdate(ctx, input.QuoteID)
		if err != nil {
			return notFoundOr(err, "quote")
		}
		if err := input.Actor.RequireDealerStaff(quote.DealerID); err != nil {
			return err
		}
		from = quote.ApprovalStatus
		if quote.ApprovalStatus != enums.QuoteApprovalStatusDraft || quote.Status != enums.QuoteStatusDraft {
			return invalidTransition(quote, "submit")
		}
		if !quote.ValidUntil.After(s.now()) {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "quote validity has lapsed")
		}

		now := s.now()
		quote.ApprovalRoute = &route
		quote.ApprovalStatus = pendingFor(route)
		quote.SubmittedAt = &now
		err = repo.UpdateQuote(ctx, quote.ID, map[string]any{
			"approval_route":  route,
			"approval_status": quote.ApprovalStatus,
			"submitted_at":    now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "submit quote")
		}
		return s.emit(ctx, tx, enums.EventQuoteSubmitted, quote, input.Actor, "")
	})
	if err != nil {
		return nil, err
	}

	s.observe(ctx, quote, input.Actor, "quote.submitted", from, "quote submitted")
	return quote, nil
}

// Approve gates the quote on the pool its route consumes. A shortage is committed as
// INSUFFICIENT_INVENTORY before the error is returned.
func (s *service) Approve(ctx context.Context, input ApproveInput) (*models.Quote, error) {
	var (
		quote    *models.Quote
		shortErr error
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		quote, err = repo.FindQuoteForUpdate(ctx, input.QuoteID)
		if err != nil {
			return notFoundOr(err, "quote")
		}
		route, err := s.requirePending(quote, "approve")
		if err != nil {
			return err
		}
		if err := input.Actor.RequireApprover(route, quote.DealerID); err != nil {
			return err
		}

		shortages, err := s.shortages(ctx, tx, quote, route)
		if err != nil {
			return err
		}
		if len(shortages) > 0 {
			quote.ApprovalStatus = enums.QuoteApprovalStatusInsufficientInventory
			if err := repo.UpdateQuote(ctx, quote.ID, map[string]any{"approval_status": quote.ApprovalStatus}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark quote short")
			}
			if err := s.emitShort(ctx, tx, quote, route, shortages, input.Actor); err != nil {
				return err
			}
			shortErr = shortageError(workflow.PoolFor(route), shortages)
			return nil
		}

		customer, err := repo.FindCustomerForUpdate(ctx, quote.CustomerID)
		if err != nil {
			return notFoundOr(err, "customer")
		}
		totals := Calculate(lineInputs(quote.Items), snapshot(customer), s.policy)

		now := s.now()
		quote.Subtotal = totals.Subtotal
		quote.VATAmount = totals.VAT
		quote.DiscountAmount = totals.Discount
		quote.FinalTotal = totals.FinalTotal
		quote.ApprovalStatus = enums.QuoteApprovalStatusApproved
		quote.Status = enums.QuoteStatusSent
		quote.ApprovedBy = &input.Actor.UserID
		quote.ApprovedAt = &now
		quote.ApprovalNotes = optional(input.Notes)
		err = repo.UpdateQuote(ctx, quote.ID, map[string]any{
			"subtotal":        quote.Subtotal,
			"vat_amount":      quote.VATAmount,
			"discount_amount": quote.DiscountAmount,
			"final_total":     quote.FinalTotal,
			"approval_status": quote.ApprovalStatus,
			"status":          quote.Status,
			"approved_by":     input.Actor.UserID,
			"approved_at":     now,
			"approval_notes":  quote.ApprovalNotes,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve quote")
		}
		if !customer.IsVIP && s.policy.VIPThreshold.IsPositive() && totals.Subtotal.GreaterThanOrEqual(s.policy.VIPThreshold) {
			if err := repo.PromoteVIP(ctx, customer.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "promote customer")
			}
		}
		return s.emit(ctx, tx, enums.EventQuoteApproved, quote, input.Actor, input.Notes)
	})
	if err != nil {
		return nil, err
	}

	from := pendingFor(*quote.ApprovalRoute)
	if shortErr != nil {
		s.observe(ctx, quote, input.Actor, "quote.inventory_short", from, "quote approval blocked by inventory")
		return quote, shortErr
	}
	s.observe(ctx, quote, input.Actor, "quote.approved", from, "quote approved")
	return quote, nil
}

func (s *service) Reject(ctx context.Context, input RejectInput) (*models.Quote, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason required")
	}

	var quote *models.Quote
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		quote, err = repo.FindQuoteForUpdate(ctx, input.QuoteID)
		if err != nil {
			return notFoundOr(err, "quote")
		}
		route, err := s.requirePending(quote, "reject")
		if err != nil {
			return err
		}
		if err := input.Actor.RequireApprover(route, quote.DealerID); err != nil {
			return err
		}

		now := s.now()
		quote.ApprovalStatus = enums.QuoteApprovalStatusRejected
		quote.Status = enums.QuoteStatusRejected
		quote.RejectedBy = &input.Actor.UserID
		quote.RejectedAt = &now
		quote.RejectionReason = &reason
		err = repo.UpdateQuote(ctx, quote.ID, map[string]any{
			"approval_status":  quote.ApprovalStatus,
			"status":           quote.Status,
			"rejected_by":      input.Actor.UserID,
			"rejected_at":      now,
			"rejection_reason": reason,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject quote")
		}
		return s.emit(ctx, tx, enums.EventQuoteRejected, quote, input.Actor, reason)
	})
	if err != nil {
		return nil, err
	}

	s.observe(ctx, quote, input.Actor, "quote.rejected", pendingFor(*quote.ApprovalRoute), "quote rejected")
	return quote, nil
}

// CheckInventory checks the route's pool, or the dealer pool for an unrouted quote.
func (s *service) CheckInventory(ctx context.Context, quoteID uuid.UUID) (bool, error) {
	quote, err := s.repo.FindQuote(ctx, quoteID)
	if err != nil {
		return false, notFoundOr(err, "quote")
	}
	route, ok := quote.Route()
	if !ok {
		route = enums.ApprovalRouteDealerManager
	}
	shortages, err := s.shortages(ctx, nil, quote, route)
	if err != nil {
		return false, err
	}
	if len(shortages) > 0 {
		return false, shortageError(workflow.PoolFor(route), shortages)
	}
	return true, nil
}

// Accept records the customer's acceptance. A lapsed quote is expired and the call fails.
func (s *service) Accept(ctx context.Context, input AcceptInput) (*models.Quote, error) {
	var (
		quote   *models.Quote
		expired bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		quote, err = repo.FindQuoteForUpdate(ctx, input.QuoteID)
		if err != nil {
			return notFoundOr(err, "quote")
		}
		if err := input.Actor.RequireDealerStaff(quote.DealerID); err != nil {
			return err
		}
		if quote.ApprovalStatus != enums.QuoteApprovalStatusApproved || quote.Status != enums.QuoteStatusSent {
			return invalidTransition(quote, "accept")
		}

		now := s.now()
		if now.After(quote.ValidUntil) {
			quote.Status = enums.QuoteStatusExpired
			if err := repo.UpdateQuote(ctx, quote.ID, map[string]any{"status": quote.Status}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire quote")
			}
			expired = true
			return s.emit(ctx, tx, enums.EventQuoteExpired, quote, input.Actor, "accepted after validity")
		}

		quote.Status = enums.QuoteStatusAccepted
		quote.DecidedAt = &now
		if err := repo.UpdateQuote(ctx, quote.ID, map[string]any{"status": quote.Status, "decided_at": now}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "accept quote")
		}
		return s.emit(ctx, tx, enums.EventQuoteAccepted, quote, input.Actor, "")
	})
	if err != nil {
		return nil, err
	}

	if expired {
		s.observe(ctx, quote, input.Actor, "quote.expired", enums.QuoteApprovalStatusApproved, "quote expired on acceptance")
		return quote, pkgerrors.New(pkgerrors.CodeInvalidTransition, "quote has expired")
	}
	s.observe(ctx, quote, input.Actor, "quote.accepted", enums.QuoteApprovalStatusApproved, "quote accepted")
	return quote, nil
}

func (s *service) Decline(ctx context.Context, input DeclineInput) (*models.Quote, error) {
	var quote *models.Quote
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		quote, err = repo.FindQuoteForUpdate(ctx, input.QuoteID)
		if err != nil {
			return notFoundOr(err, "quote")
		}
		if err := input.Actor.RequireDealerStaff(quote.DealerID); err != nil {
			return err
		}
		if quote.ApprovalStatus != enums.QuoteApprovalStatusApproved || quote.Status != enums.QuoteStatusSent {
			return invalidTransition(quote, "decline")
		}

		now := s.now()
		quote.Status = enums.QuoteStatusRejected
		quote.DecidedAt = &now
		updates := map[string]any{"status": quote.Status, "decided_at": now}
		if reason := strings.TrimSpace(input.Reason); reason != "" {
			quote.RejectionReason = &reason
			updates["rejection_reason"] = reason
		}
		if err := repo.UpdateQuote(ctx, quote.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decline quote")
		}
		return s.emit(ctx, tx, enums.EventQuoteDeclined, quote, input.Actor, input.Reason)
	})
	if err != nil {
		return nil, err
	}

	s.observe(ctx, quote, input.Actor, "quote.declined", enums.QuoteApprovalStatusApproved, "quote declined")
	return quote, nil
}

// ExpireStale expires open quotes whose validity ended before now and returns how many it changed.
func (s *service) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()
	candidates, err := s.repo.ListExpirable(ctx, now, expireBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expirable quotes")
	}

	expired := 0
	for i := range candidates {
		quote := candidates[i]
		changed := false
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			ok, err := s.repo.WithTx(tx).ExpireQuote(ctx, quote.ID, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire quote")
			}
			if !ok {
				return nil
			}
			changed = true
			quote.Status = enums.QuoteStatusExpired
			return s.emit(ctx, tx, enums.EventQuoteExpired, &quote, workflow.Actor{}, "validity lapsed")
		})
		if err != nil {
			return expired, err
		}
		if changed {
			expired++
			s.metrics.QuoteTransition(enums.QuoteStatusExpired.String())
		}
	}
	if expired > 0 {
		s.logg.Info(s.logg.WithField(ctx, "expired", expired), "stale quotes expired")
	}
	return expired, nil
}

func (s *service) Get(ctx context.Context, quoteID uuid.UUID) (*models.Quote, error) {
	if quoteID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quote id required")
	}
	quote, err := s.repo.FindQuote(ctx, quoteID)
	if err != nil {
		return nil, notFoundOr(err, "quote")
	}
	return quote, nil
}

func (s *service) requirePending(quote *models.Quote, action string) (enums.ApprovalRoute, error) {
	route, ok := quote.Route()
	if !ok || quote.ApprovalStatus != pendingFor(route) {
		return "", invalidTransition(quote, action)
	}
	return route, nil
}

func (s *service) shortages(ctx context.Context, tx *gorm.DB, quote *models.Quote, route enums.ApprovalRoute) ([]payloads.Shortage, error) {
	pool := workflow.PoolFor(route)
	var dealerID *uuid.UUID
	if pool == enums.InventoryPoolDealer {
		id := quote.DealerID
		dealerID = &id
	}
	lines := make([]inventory.Line, 0, len(quote.Items))
	for _, item := range quote.Items {
		lines = append(lines, inventory.Line{VehicleID: item.VehicleID, Quantity: item.Quantity})
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quote has no line items")
	}
	return s.inventory.Shortages(ctx, tx, pool, dealerID, lines)
}

func (s *service) vehicles(ctx context.Context, lines []CreateLine) (map[uuid.UUID]models.Vehicle, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.VehicleID)
	}
	rows, err := s.repo.FindVehicles(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vehicles")
	}
	byID := make(map[uuid.UUID]models.Vehicle, len(rows))
	for _, v := range rows {
		byID[v.ID] = v
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("vehicle %s not found", id))
		}
	}
	return byID, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, quote *models.Quote, actor workflow.Actor, reason string) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateQuote,
		AggregateID:   quote.ID,
		Data: payloads.QuoteEvent{
			QuoteID:        quote.ID,
			DealerID:       quote.DealerID,
			CustomerID:     quote.CustomerID,
			Route:          quote.ApprovalRoute,
			Status:         quote.Status,
			ApprovalStatus: quote.ApprovalStatus,
			FinalTotal:     quote.FinalTotal,
			Reason:         reason,
		},
	}
	if actor.UserID != uuid.Nil {
		event.Actor = actor.Ref()
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit quote event")
	}
	return nil
}

func (s *service) emitShort(ctx context.Context, tx *gorm.DB, quote *models.Quote, route enums.ApprovalRoute, shortages []payloads.Shortage, actor workflow.Actor) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventQuoteInventoryShort,
		AggregateType: enums.AggregateQuote,
		AggregateID:   quote.ID,
		Actor:         actor.Ref(),
		Data: payloads.InventoryShortEvent{
			AggregateID: quote.ID,
			DealerID:    quote.DealerID,
			Pool:        workflow.PoolFor(route),
			Shortages:   shortages,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit quote shortage")
	}
	return nil
}

func (s *service) observe(ctx context.Context, quote *models.Quote, actor workflow.Actor, action string, from enums.QuoteApprovalStatus, msg string) {
	s.metrics.QuoteTransition(quote.ApprovalStatus.String())
	s.audit.Emit(ctx, audit.New(actor, action, "quote", quote.ID).
		Transition(from.String(), quote.ApprovalStatus.String()).
		With("status", quote.Status.String()))
	fields := map[string]any{
		"quote_id":        quote.ID.String(),
		"dealer_id":       quote.DealerID.String(),
		"status":          quote.Status,
		"approval_status": quote.ApprovalStatus,
		"actor_id":        actor.UserID.String(),
	}
	if quote.ApprovalRoute != nil {
		fields["approval_route"] = *quote.ApprovalRoute
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), msg)
}

func pendingFor(route enums.ApprovalRoute) enums.QuoteApprovalStatus {
	if route == enums.ApprovalRouteManufacturer {
		return enums.QuoteApprovalStatusPendingEVM
	}
	return enums.QuoteApprovalStatusPendingDealerManager
}

func lineInputs(items []models.QuoteLineItem) []LineInput {
	lines := make([]LineInput, len(items))
	for i, item := range items {
		lines[i] = LineInput{
			VehicleID:                item.VehicleID,
			Quantity:                 item.Quantity,
			UnitPrice:                item.UnitPrice,
			PromotionDiscountPercent: item.PromotionDiscountPercent,
		}
	}
	return lines
}

func snapshot(c *models.Customer) CustomerSnapshot {
	return CustomerSnapshot{IsVIP: c.IsVIP, TotalSpent: c.TotalSpent}
}

func shortageError(pool enums.InventoryPool, shortages []payloads.Shortage) error {
	parts := make([]string, 0, len(shortages))
	for _, sh := range shortages {
		parts = append(parts, fmt.Sprintf("vehicle %s requested %d available %d", sh.VehicleID, sh.Requested, sh.Available))
	}
	msg := fmt.Sprintf("insufficient %s inventory: %s", strings.ToLower(pool.String()), strings.Join(parts, "; "))
	return pkgerrors.New(pkgerrors.CodeInsufficientInventory, msg).WithDetails(shortages)
}

func invalidTransition(quote *models.Quote, action string) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition,
		fmt.Sprintf("cannot %s quote in status %s/%s", action, quote.Status, quote.ApprovalStatus)).
		WithDetails(map[string]any{"status": quote.Status, "approval_status": quote.ApprovalStatus})
}

func notFoundOr(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, entity+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+entity)
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

// newNumber builds a human readable document number such as Q-20260301-9F2C41AB.
func newNumber(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s", prefix, now.Format("20060102"), strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8]))
}
