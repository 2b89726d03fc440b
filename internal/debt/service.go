// Package debt keeps the customer receivable and dealer payable balances. Every mutation locks the
// party row, clamps reductions at zero and appends a journal entry in the same transaction.
package debt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/evdms/dealer-backend/pkg/db/models"
	"github.com/evdms/dealer-backend/pkg/enums"
	pkgerrors "github.com/evdms/dealer-backend/pkg/errors"
	"github.com/evdms/dealer-backend/pkg/logger"
	"github.com/evdms/dealer-backend/pkg/outbox"
	"github.com/evdms/dealer-backend/pkg/outbox/payloads"
	"github.com/evdms/dealer-backend/pkg/pagination"
)

const (
	ReferenceOrder      = "order"
	ReferencePayment    = "payment"
	ReferenceSettlement = "dealer_settlement"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Change is one requested balance mutation.
type Change struct {
	PartyID       uuid.UUID
	Amount        decimal.Decimal
	Reason        string
	ReferenceType string
	ReferenceID   *uuid.UUID
}

// Reconciliation reports the outcome of comparing a customer's balance with their open orders.
type Reconciliation struct {
	CustomerID uuid.UUID
	Recorded   decimal.Decimal
	Expected   decimal.Decimal
	Drift      decimal.Decimal
	Entry      *models.DebtEntry
}

// Summary is a party's balance together with one page of its journal, newest first.
type Summary struct {
	PartyType  enums.DebtPartyType
	PartyID    uuid.UUID
	Balance    decimal.Decimal
	Entries    []models.DebtEntry
	NextCursor string
}

type Service struct {
	tx     txRunner
	repo   Repository
	outbox outbox.Emitter
	logg   *logger.Logger
}

func NewService(tx txRunner, repo Repository, emitter outbox.Emitter, logg *logger.Logger) (*Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("debt repository required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{tx: tx, repo: repo, outbox: emitter, logg: logg}, nil
}

// AddCustomerDebt increases what the customer owes. A nil tx runs in its own transaction.
func (s *Service) AddCustomerDebt(ctx context.Context, tx *gorm.DB, change Change) (*models.DebtEntry, error) {
	return s.mutate(ctx, tx, enums.DebtPartyTypeCustomer, enums.DebtDirectionIncrease, change)
}

// ReduceCustomerDebt lowers what the customer owes, never below zero.
func (s *Service) ReduceCustomerDebt(ctx context.Context, tx *gorm.DB, change Change) (*models.DebtEntry, error) {
	return s.mutate(ctx, tx, enums.DebtPartyTypeCustomer, enums.DebtDirectionDecrease, change)
}

// AddDealerDebt increases what the dealer owes the manufacturer.
func (s *Service) AddDealerDebt(ctx context.Context, tx *gorm.DB, change Change) (*models.DebtEntry, error) {
	return s.mutate(ctx, tx, enums.DebtPartyTypeDealer, enums.DebtDirectionIncrease, change)
}

// ReduceDealerDebt records a dealer settlement, never below zero.
func (s *Service) ReduceDealerDebt(ctx context.Context, tx *gorm.DB, change Change) (*models.DebtEntry, error) {
	return s.mutate(ctx, tx, enums.DebtPartyTypeDealer, enums.DebtDirectionDecrease, change)
}

func (s *Service) mutate(ctx context.Context, tx *gorm.DB, party enums.DebtPartyType, direction enums.DebtDirection, change Change) (*models.DebtEntry, error) {
	if change.PartyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "party id required")
	}
	if change.Amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "debt amount must not be negative")
	}
	if change.Amount.IsZero() {
		return nil, nil
	}
	if strings.TrimSpace(change.Reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "debt reason required")
	}

	var entry *models.DebtEntry
	run := func(tx *gorm.DB) error {
		var err error
		entry, err = s.apply(ctx, tx, party, direction, change)
		return err
	}
	var err error
	if tx != nil {
		err = run(tx)
	} else {
		err = s.tx.WithTx(ctx, run)
	}
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"party_type":    party,
		"party_id":      change.PartyID.String(),
		"direction":     direction,
		"requested":     entry.RequestedAmount.String(),
		"applied":       entry.AppliedAmount.String(),
		"balance_after": entry.BalanceAfter.String(),
	}), "debt balance adjusted")
	return entry, nil
}

func (s *Service) apply(ctx context.Context, tx *gorm.DB, party enums.DebtPartyType, direction enums.DebtDirection, change Change) (*models.DebtEntry, error) {
	repo := s.repo.WithTx(tx)
	balance, err := s.lockBalance(ctx, repo, party, change.PartyID)
	if err != nil {
		return nil, err
	}

	applied := change.Amount.Round(2)
	var after decimal.Decimal
	switch direction {
	case enums.DebtDirectionIncrease:
		after = balance.Add(applied)
	case enums.DebtDirectionDecrease:
		if applied.GreaterThan(balance) {
			applied = balance
		}
		after = balance.Sub(applied)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported debt direction")
	}

	return s.write(ctx, tx, repo, party, direction, change, change.Amount.Round(2), applied, after)
}

func (s *Service) lockBalance(ctx context.Context, repo Repository, party enums.DebtPartyType, id uuid.UUID) (decimal.Decimal, error) {
	switch party {
	case enums.DebtPartyTypeCustomer:
		customer, err := repo.FindCustomerForUpdate(ctx, id)
		if err != nil {
			return decimal.Zero, notFoundOr(err, "customer")
		}
		return customer.TotalDebt, nil
	case enums.DebtPartyTypeDealer:
		dealer, err := repo.FindDealerForUpdate(ctx, id)
		if err != nil {
			return decimal.Zero, notFoundOr(err, "dealer")
		}
		return dealer.OutstandingDebt, nil
	}
	return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "unknown debt party")
}

func (s *Service) write(ctx context.Context, tx *gorm.DB, repo Repository, party enums.DebtPartyType, direction enums.DebtDirection, change Change, requested, applied, after decimal.Decimal) (*models.DebtEntry, error) {
	var err error
	if party == enums.DebtPartyTypeCustomer {
		err = repo.UpdateCustomerDebt(ctx, change.PartyID, after)
	} else {
		err = repo.UpdateDealerDebt(ctx, change.PartyID, after)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update debt balance")
	}

	entry := &models.DebtEntry{
		PartyType:       party,
		PartyID:         change.PartyID,
		Direction:       direction,
		RequestedAmount: requested,
		AppliedAmount:   applied,
		BalanceAfter:    after,
		Reason:          change.Reason,
		ReferenceID:     change.ReferenceID,
	}
	if change.ReferenceType != "" {
		refType := change.ReferenceType
		entry.ReferenceType = &refType
	}
	if err := repo.CreateEntry(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append debt entry")
	}

	eventType, aggregate := enums.EventCustomerDebtAdjusted, enums.AggregateCustomer
	if party == enums.DebtPartyTypeDealer {
		eventType, aggregate = enums.EventDealerDebtAdjusted, enums.AggregateDealer
	}
	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   change.PartyID,
		Data: payloads.DebtEvent{
			EntryID:      entry.ID,
			PartyType:    party,
			PartyID:      change.PartyID,
			Direction:    direction,
			Requested:    requested,
			Applied:      applied,
			BalanceAfter: after,
			Reason:       change.Reason,
		},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit debt event")
	}
	return entry, nil
}

// ReconcileCustomer compares the recorded balance with the remaining amounts of the customer's
// non-cancelled orders and books an ADJUSTMENT entry when they drifted apart.
func (s *Service) ReconcileCustomer(ctx context.Context, customerID uuid.UUID) (*Reconciliation, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}

	result := &Reconciliation{CustomerID: customerID}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		customer, err := repo.FindCustomerForUpdate(ctx, customerID)
		if err != nil {
			return notFoundOr(err, "customer")
		}
		amounts, err := repo.OpenOrderRemaining(ctx, customerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum open orders")
		}
		expected := decimal.Zero
		for _, amount := range amounts {
			expected = expected.Add(amount)
		}

		result.Recorded = customer.TotalDebt
		result.Expected = expected.Round(2)
		result.Drift = result.Expected.Sub(result.Recorded)
		if result.Drift.IsZero() {
			return nil
		}

		change := Change{PartyID: customerID, Reason: "reconciled against open orders"}
		result.Entry, err = s.write(ctx, tx, repo, enums.DebtPartyTypeCustomer, enums.DebtDirectionAdjustment, change, result.Drift, result.Drift, result.Expected)
		return err
	})
	if err != nil {
		return nil, err
	}

	if !result.Drift.IsZero() {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"customer_id": customerID.String(),
			"recorded":    result.Recorded.String(),
			"expected":    result.Expected.String(),
			"drift":       result.Drift.String(),
		}), "customer debt drift corrected")
	}
	return result, nil
}

// ReconcileCandidates lists customers the reconciliation job should visit.
func (s *Service) ReconcileCandidates(ctx context.Context, limit int) ([]uuid.UUID, error) {
	ids, err := s.repo.ListReconcileCandidates(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reconcile candidates")
	}
	return ids, nil
}

// CustomerDealer returns the dealer a customer belongs to, for access checks.
func (s *Service) CustomerDealer(ctx context.Context, customerID uuid.UUID) (uuid.UUID, error) {
	customer, err := s.repo.FindCustomer(ctx, customerID)
	if err != nil {
		return uuid.Nil, notFoundOr(err, "customer")
	}
	return customer.DealerID, nil
}

// CustomerSummary returns the customer's balance and one page of journal entries.
func (s *Service) CustomerSummary(ctx context.Context, customerID uuid.UUID, page pagination.Params) (*Summary, error) {
	return s.summary(ctx, enums.DebtPartyTypeCustomer, customerID, page)
}

// DealerSummary returns the dealer's balance and one page of journal entries.
func (s *Service) DealerSummary(ctx context.Context, dealerID uuid.UUID, page pagination.Params) (*Summary, error) {
	return s.summary(ctx, enums.DebtPartyTypeDealer, dealerID, page)
}

func (s *Service) summary(ctx context.Context, party enums.DebtPartyType, id uuid.UUID, page pagination.Params) (*Summary, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "party id required")
	}
	after, err := pagination.ParseCursor(page.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	balance, err := s.lockBalance(ctx, s.repo, party, id)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListEntries(ctx, party, id, pagination.LimitWithBuffer(page.Limit), after)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list debt entries")
	}
	entries, next := pagination.NextPage(rows, page.Limit, func(e models.DebtEntry) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	})
	return &Summary{PartyType: party, PartyID: id, Balance: balance, Entries: entries, NextCursor: next}, nil
}

func notFoundOr(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, entity+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+entity)
}
