package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/evdms/dealer-backend/api/responses"
	"github.com/evdms/dealer-backend/api/validators"
	"github.com/evdms/dealer-backend/internal/debt"
	"github.com/evdms/dealer-backend/internal/workflow"
	"github.com/evdms/dealer-backend/pkg/db/models"
	"github.com/evdms/dealer-backend/pkg/enums"
	"github.com/evdms/dealer-backend/pkg/logger"
	"github.com/evdms/dealer-backend/pkg/pagination"
)

// DebtService is the ledger surface exposed over HTTP.
type DebtService interface {
	CustomerDealer(ctx context.Context, customerID uuid.UUID) (uuid.UUID, error)
	CustomerSummary(ctx context.Context, customerID uuid.UUID, page pagination.Params) (*debt.Summary, error)
	DealerSummary(ctx context.Context, dealerID uuid.UUID, page pagination.Params) (*debt.Summary, error)
	ReconcileCustomer(ctx context.Context, customerID uuid.UUID) (*debt.Reconciliation, error)
	ReduceDealerDebt(ctx context.Context, tx *gorm.DB, change debt.Change) (*models.DebtEntry, error)
}

type settlementRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	Reason      string          `json:"reason" validate:"max=1000"`
	ReferenceID *uuid.UUID      `json:"reference_id,omitempty"`
}

func CustomerDebt(svc DebtService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, customerID, err := actorAndID(r, "customerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dealerID, err := svc.CustomerDealer(r.Context(), customerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := canView(actor, dealerID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.CustomerSummary(r.Context(), customerID, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newDebtSummaryDTO(summary))
	}
}

// CustomerDebtReconcile recomputes a customer's balance from their open orders.
func CustomerDebtReconcile(svc DebtService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, customerID, err := actorAndID(r, "customerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dealerID, err := svc.CustomerDealer(r.Context(), customerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := requireManagerOrManufacturer(actor, dealerID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rec, err := svc.ReconcileCustomer(r.Context(), customerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ReconciliationDTO{
			CustomerID: rec.CustomerID,
			Recorded:   rec.Recorded,
			Expected:   rec.Expected,
			Drift:      rec.Drift,
			Adjusted:   rec.Entry != nil,
		})
	}
}

func DealerDebt(svc DebtService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, dealerID, err := actorAndID(r, "dealerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := canView(actor, dealerID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.DealerSummary(r.Context(), dealerID, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newDebtSummaryDTO(summary))
	}
}

// DealerDebtSettlement books a dealer's payment towards what it owes the manufacturer. The
// ledger clamps the reduction at the outstanding balance.
func DealerDebtSettlement(svc DebtService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, dealerID, err := actorAndID(r, "dealerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req settlementRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := requireManagerOrManufacturer(actor, dealerID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reason := validators.SanitizeString(req.Reason, maxNoteLength)
		if reason == "" {
			reason = "dealer settlement"
		}
		change := debt.Change{PartyID: dealerID, Amount: req.Amount, Reason: reason, ReferenceID: req.ReferenceID}
		if req.ReferenceID != nil {
			change.ReferenceType = debt.ReferenceSettlement
		}
		entry, err := svc.ReduceDealerDebt(r.Context(), nil, change)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, newDebtEntryDTO(entry))
	}
}

func requireManagerOrManufacturer(actor workflow.Actor, dealerID uuid.UUID) error {
	if actor.Has(enums.CapabilityManufacturerApprover) {
		return actor.RequireManufacturer()
	}
	return actor.RequireDealerManager(dealerID)
}

func pageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Limit: limit, Cursor: r.URL.Query().Get("cursor")}, nil
}
