package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evdms/dealer-backend/api/responses"
	"github.com/evdms/dealer-backend/api/validators"
	"github.com/evdms/dealer-backend/internal/inventory"
	"github.com/evdms/dealer-backend/pkg/db/models"
	"github.com/evdms/dealer-backend/pkg/enums"
	pkgerrors "github.com/evdms/dealer-backend/pkg/errors"
	"github.com/evdms/dealer-backend/pkg/logger"
)

const maxReferenceTypeLength = 64

// InventoryService is the ledger surface exposed over HTTP.
type InventoryService interface {
	Restock(ctx context.Context, req inventory.RestockRequest) (*models.InventoryMovement, error)
	Transfer(ctx context.Context, req inventory.TransferRequest) (*inventory.TransferResult, error)
	Reverse(ctx context.Context, req inventory.ReverseRequest) (*models.InventoryMovement, error)
	ListMovements(ctx context.Context, referenceType string, referenceID uuid.UUID) ([]models.InventoryMovement, error)
}

type restockRequest struct {
	Pool      enums.InventoryPool `json:"pool" validate:"required,oneof=FACTORY DEALER"`
	VehicleID uuid.UUID           `json:"vehicle_id" validate:"required"`
	DealerID  *uuid.UUID          `json:"dealer_id,omitempty"`
	Quantity  int                 `json:"quantity" validate:"required,min=1"`
	Note      string              `json:"note" validate:"max=1000"`
}

type transferRequest struct {
	VehicleID  uuid.UUID       `json:"vehicle_id" validate:"required"`
	ToDealerID uuid.UUID       `json:"to_dealer_id" validate:"required"`
	Quantity   int             `json:"quantity" validate:"required,min=1"`
	UnitCost   decimal.Decimal `json:"unit_cost" validate:"gte=0"`
	Note       string          `json:"note" validate:"max=1000"`
}

type transferResponse struct {
	Out       MovementDTO   `json:"out"`
	In        MovementDTO   `json:"in"`
	DebtEntry *DebtEntryDTO `json:"debt_entry,omitempty"`
}

// InventoryRestock credits the factory pool (manufacturer only) or a dealer pool (that dealer's
// manager or the manufacturer).
func InventoryRestock(svc InventoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req restockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		switch {
		case req.Pool == enums.InventoryPoolDealer && req.DealerID != nil && !actor.Has(enums.CapabilityManufacturerApprover):
			err = actor.RequireDealerManager(*req.DealerID)
		default:
			err = actor.RequireManufacturer()
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		movement, err := svc.Restock(r.Context(), inventory.RestockRequest{
			Pool:      req.Pool,
			VehicleID: req.VehicleID,
			DealerID:  req.DealerID,
			Quantity:  req.Quantity,
			ActorID:   &actor.UserID,
			Note:      validators.SanitizeString(req.Note, maxNoteLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, newMovementDTO(movement))
	}
}

// InventoryTransfer ships factory stock to a dealer and bills the dealer for it.
func InventoryTransfer(svc InventoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req transferRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := actor.RequireManufacturer(); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Transfer(r.Context(), inventory.TransferRequest{
			VehicleID:  req.VehicleID,
			ToDealerID: req.ToDealerID,
			Quantity:   req.Quantity,
			UnitCost:   req.UnitCost,
			ActorID:    &actor.UserID,
			Note:       validators.SanitizeString(req.Note, maxNoteLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := transferResponse{Out: newMovementDTO(&result.Out), In: newMovementDTO(&result.In)}
		if result.DebtEntry != nil {
			entry := newDebtEntryDTO(result.DebtEntry)
			resp.DebtEntry = &entry
		}
		responses.WriteCreated(w, resp)
	}
}

func InventoryReverse(svc InventoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, movementID, err := actorAndID(r, "movementId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req optionalReasonRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := actor.RequireManufacturer(); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reversal, err := svc.Reverse(r.Context(), inventory.ReverseRequest{
			MovementID: movementID,
			Reason:     validators.SanitizeString(req.Reason, maxNoteLength),
			ActorID:    &actor.UserID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, newMovementDTO(reversal))
	}
}

// InventoryMovements lists the committed stock movements written for one workflow entity, so a
// manufacturer approver can see what a transfer or delivery actually changed before reversing it.
func InventoryMovements(svc InventoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := actor.RequireManufacturer(); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		referenceType := strings.TrimSpace(r.URL.Query().Get("reference_type"))
		if referenceType == "" || len(referenceType) > maxReferenceTypeLength {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "reference_type is required").
				WithDetails(map[string]any{"field": "reference_type"}))
			return
		}
		referenceID, err := validators.ParseQueryUUID(r, "reference_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		movements, err := svc.ListMovements(r.Context(), referenceType, referenceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]MovementDTO, 0, len(movements))
		for i := range movements {
			out = append(out, newMovementDTO(&movements[i]))
		}
		responses.WriteSuccess(w, out)
	}
}
