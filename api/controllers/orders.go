package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/evdms/dealer-backend/api/responses"
	"github.com/evdms/dealer-backend/api/validators"
	"github.com/evdms/dealer-backend/internal/orders"
	"github.com/evdms/dealer-backend/internal/payments"
	"github.com/evdms/dealer-backend/pkg/db/models"
	"github.com/evdms/dealer-backend/pkg/enums"
	"github.com/evdms/dealer-backend/pkg/logger"
)

type createOrderRequest struct {
	QuoteID           uuid.UUID           `json:"quote_id" validate:"required"`
	PaymentPercentage int                 `json:"payment_percentage" validate:"oneof=0 30 50 70 100"`
	PaymentMethod     enums.PaymentMethod `json:"payment_method" validate:"omitempty,oneof=CASH BANK_TRANSFER"`
}

type approveOrderResponse struct {
	Order                 OrderDTO      `json:"order"`
	InsufficientInventory bool          `json:"insufficient_inventory"`
	Shortages             []ShortageDTO `json:"shortages,omitempty"`
}

type orderDetailResponse struct {
	OrderDTO
	Payments []PaymentDTO `json:"payments"`
}

// OrderCreate converts an accepted quote into an order, optionally recording a deposit.
func OrderCreate(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.CreateFromApprovedQuote(r.Context(), orders.CreateInput{
			QuoteID:           req.QuoteID,
			Actor:             actor,
			PaymentPercentage: req.PaymentPercentage,
			PaymentMethod:     req.PaymentMethod,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, newOrderDTO(order))
	}
}

// OrderDetail returns the order with its payment history.
func OrderDetail(svc orders.Service, paymentSvc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, err := actorAndID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := canView(actor, order.DealerID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := paymentSvc.ListByOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := orderDetailResponse{OrderDTO: newOrderDTO(order), Payments: make([]PaymentDTO, 0, len(list))}
		for i := range list {
			resp.Payments = append(resp.Payments, newPaymentDTO(&list[i]))
		}
		responses.WriteSuccess(w, resp)
	}
}

// OrderApprove approves a pending order. A factory shortage is reported in the body with 200, and
// the order can be approved again once stock arrives.
func OrderApprove(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, err := actorAndID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req decisionRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Approve(r.Context(), orders.ApproveInput{
			OrderID: orderID,
			Actor:   actor,
			Notes:   validators.SanitizeString(req.Notes, maxNoteLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, approveOrderResponse{
			Order:                 newOrderDTO(result.Order),
			InsufficientInventory: result.InsufficientInventory,
			Shortages:             result.Shortages,
		})
	}
}

func OrderReject(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, err := actorAndID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req reasonRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Reject(r.Context(), orders.RejectInput{
			OrderID: orderID,
			Actor:   actor,
			Reason:  validators.SanitizeString(req.Reason, maxNoteLength),
		})
		writeOrder(w, r, logg, order, err)
	}
}

// OrderDeliver hands the vehicles over, drawing the dealer's stock.
func OrderDeliver(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, err := actorAndID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.ConfirmDelivery(r.Context(), orders.DeliveryInput{OrderID: orderID, Actor: actor})
		writeOrder(w, r, logg, order, err)
	}
}

func writeOrder(w http.ResponseWriter, r *http.Request, logg *logger.Logger, order *models.Order, err error) {
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, newOrderDTO(order))
}
