package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evdms/dealer-backend/api/responses"
	"github.com/evdms/dealer-backend/api/validators"
	"github.com/evdms/dealer-backend/internal/quotes"
	"github.com/evdms/dealer-backend/internal/workflow"
	"github.com/evdms/dealer-backend/pkg/db/models"
	"github.com/evdms/dealer-backend/pkg/enums"
	pkgerrors "github.com/evdms/dealer-backend/pkg/errors"
	"github.com/evdms/dealer-backend/pkg/logger"
)

const maxNoteLength = 1000

type quoteLineRequest struct {
	VehicleID                uuid.UUID        `json:"vehicle_id" validate:"required"`
	Quantity                 int              `json:"quantity" validate:"required,min=1"`
	UnitPrice                *decimal.Decimal `json:"unit_price,omitempty"`
	PromotionDiscountPercent decimal.Decimal  `json:"promotion_discount_percent" validate:"gte=0,max=100"`
}

type createQuoteRequest struct {
	CustomerID uuid.UUID          `json:"customer_id" validate:"required"`
	Lines      []quoteLineRequest `json:"lines" validate:"required,min=1,dive"`
	ValidUntil *time.Time         `json:"valid_until,omitempty"`
	Notes      string             `json:"notes" validate:"max=1000"`
}

type submitQuoteRequest struct {
	Route enums.ApprovalRoute `json:"route" validate:"omitempty,oneof=DEALER_MANAGER MANUFACTURER"`
}

type decisionRequest struct {
	Notes string `json:"notes" validate:"max=1000"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

type optionalReasonRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// QuoteCreate drafts a quote for one of the dealer's customers.
func QuoteCreate(svc quotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req createQuoteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lines := make([]quotes.CreateLine, 0, len(req.Lines))
		for _, line := range req.Lines {
			lines = append(lines, quotes.CreateLine{
				VehicleID:                line.VehicleID,
				Quantity:                 line.Quantity,
				UnitPrice:                line.UnitPrice,
				PromotionDiscountPercent: line.PromotionDiscountPercent,
			})
		}
		quote, err := svc.Create(r.Context(), quotes.CreateInput{
			Actor:      actor,
			CustomerID: req.CustomerID,
			Lines:      lines,
			ValidUntil: req.ValidUntil,
			Notes:      validators.SanitizeString(req.Notes, maxNoteLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, newQuoteDTO(quote))
	}
}

// QuoteDetail returns a quote visible to the caller's dealer or to manufacturer approvers.
func QuoteDetail(svc quotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, quoteID, err := actorAndID(r, "quoteId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quote, err := svc.Get(r.Context(), quoteID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := canView(actor, quote.DealerID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newQuoteDTO(quote))
	}
}

// QuoteSubmit routes a draft to the dealer manager or the manufacturer.
func QuoteSubmit(svc quotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, quoteID, err := actorAndID(r, "quoteId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req submitQuoteRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quote, err := svc.Submit(r.Context(), quotes.SubmitInput{QuoteID: quoteID, Actor: actor, Route: req.Route})
		writeQuote(w, r, logg, quote, err)
	}
}

func QuoteApprove(svc quotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, quoteID, err := actorAndID(r, "quoteId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req decisionRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quote, err := svc.Approve(r.Context(), quotes.ApproveInput{
			QuoteID: quoteID,
			Actor:   actor,
			Notes:   validators.SanitizeString(req.Notes, maxNoteLength),
		})
		writeQuote(w, r, logg, quote, err)
	}
}

func QuoteReject(svc quotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, quoteID, err := actorAndID(r, "quoteId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req reasonRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quote, err := svc.Reject(r.Context(), quotes.RejectInput{
			QuoteID: quoteID,
			Actor:   actor,
			Reason:  validators.SanitizeString(req.Reason, maxNoteLength),
		})
		writeQuote(w, r, logg, quote, err)
	}
}

// QuoteInventoryCheck reports whether the quote's pool can cover every line. Shortages come back
// as a 409 with the per-vehicle details.
func QuoteInventoryCheck(svc quotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, quoteID, err := actorAndID(r, "quoteId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quote, err := svc.Get(r.Context(), quoteID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := canView(actor, quote.DealerID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ok, err := svc.CheckInventory(r.Context(), quoteID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"quote_id": quoteID, "sufficient": ok})
	}
}

func QuoteAccept(svc quotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, quoteID, err := actorAndID(r, "quoteId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quote, err := svc.Accept(r.Context(), quotes.AcceptInput{QuoteID: quoteID, Actor: actor})
		writeQuote(w, r, logg, quote, err)
	}
}

func QuoteDecline(svc quotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, quoteID, err := actorAndID(r, "quoteId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req optionalReasonRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quote, err := svc.Decline(r.Context(), quotes.DeclineInput{
			QuoteID: quoteID,
			Actor:   actor,
			Reason:  validators.SanitizeString(req.Reason, maxNoteLength),
		})
		writeQuote(w, r, logg, quote, err)
	}
}

func writeQuote(w http.ResponseWriter, r *http.Request, logg *logger.Logger, quote *models.Quote, err error) {
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, newQuoteDTO(quote))
}

func actorAndID(r *http.Request, param string) (workflow.Actor, uuid.UUID, error) {
	actor, err := actorFrom(r)
	if err != nil {
		return workflow.Actor{}, uuid.Nil, err
	}
	id, err := validators.ParseUUIDParam(r, param)
	if err != nil {
		return workflow.Actor{}, uuid.Nil, err
	}
	return actor, id, nil
}

// canView admits the owning dealer's users and manufacturer approvers.
func canView(actor workflow.Actor, dealerID uuid.UUID) error {
	if actor.BelongsTo(dealerID) || actor.Has(enums.CapabilityManufacturerApprover) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "resource belongs to another dealer")
}
