package controllers

import (
	"net/http"

	"github.com/evdms/dealer-backend/api/middleware"
	"github.com/evdms/dealer-backend/api/responses"
	"github.com/evdms/dealer-backend/api/validators"
	"github.com/evdms/dealer-backend/internal/payments"
	"github.com/evdms/dealer-backend/pkg/enums"
	"github.com/evdms/dealer-backend/pkg/logger"
)

type processPaymentRequest struct {
	Percentage int                 `json:"percentage" validate:"required,oneof=30 50 70 100"`
	Method     enums.PaymentMethod `json:"method" validate:"required,oneof=CASH BANK_TRANSFER VNPAY INSTALLMENT"`
	BankCode   string              `json:"bank_code" validate:"max=20"`
	Locale     string              `json:"locale" validate:"omitempty,oneof=vn en"`
}

type processPaymentResponse struct {
	Payment    PaymentDTO `json:"payment"`
	Order      *OrderDTO  `json:"order,omitempty"`
	PaymentURL string     `json:"payment_url,omitempty"`
}

type callbackResponse struct {
	Payment   PaymentDTO `json:"payment"`
	Order     *OrderDTO  `json:"order,omitempty"`
	Outcome   string     `json:"outcome"`
	Duplicate bool       `json:"duplicate"`
	Applied   bool       `json:"applied"`
}

// OrderPayment records a payment against an order. Gateway payments return the signed redirect URL.
func OrderPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, err := actorAndID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req processPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Process(r.Context(), payments.ProcessInput{
			OrderID:    orderID,
			Percentage: req.Percentage,
			Method:     req.Method,
			Actor:      actor,
			ClientIP:   middleware.ClientIP(r),
			BankCode:   req.BankCode,
			Locale:     req.Locale,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, processPaymentResponse{
			Payment:    newPaymentDTO(result.Payment),
			Order:      optionalOrderDTO(result.Order),
			PaymentURL: result.PaymentURL,
		})
	}
}

func PaymentDetail(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, paymentID, err := actorAndID(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payment, err := svc.Get(r.Context(), paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := canView(actor, payment.DealerID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentDTO(payment))
	}
}

// VNPayReturn handles the browser redirect after checkout. The signature is the only credential.
func VNPayReturn(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		outcome, err := svc.HandleCallback(r.Context(), r.URL.Query())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, callbackResponse{
			Payment:   newPaymentDTO(outcome.Payment),
			Order:     optionalOrderDTO(outcome.Order),
			Outcome:   outcome.Outcome,
			Duplicate: outcome.Duplicate,
			Applied:   outcome.Applied,
		})
	}
}

// VNPayIPN acknowledges server-to-server notifications in the gateway's own format. It always
// answers 200; the RspCode tells the gateway whether to retry.
func VNPayIPN(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		outcome, err := svc.HandleCallback(r.Context(), r.URL.Query())
		ack := payments.IPNResponse(outcome, err)
		if err != nil {
			ctx := logg.WithFields(r.Context(), map[string]any{"rsp_code": ack.RspCode})
			logg.Error(ctx, "vnpay ipn rejected", err)
		}
		responses.WriteRaw(w, http.StatusOK, ack)
	}
}
