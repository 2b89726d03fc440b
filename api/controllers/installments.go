package controllers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/evdms/dealer-backend/api/responses"
	"github.com/evdms/dealer-backend/api/validators"
	"github.com/evdms/dealer-backend/internal/installments"
	"github.com/evdms/dealer-backend/internal/payments"
	"github.com/evdms/dealer-backend/pkg/enums"
	"github.com/evdms/dealer-backend/pkg/logger"
)

type createPlanRequest struct {
	Months       int              `json:"months" validate:"required,min=1"`
	Total        *decimal.Decimal `json:"total,omitempty" validate:"omitempty,gt=0"`
	AnnualRate   *decimal.Decimal `json:"annual_rate,omitempty" validate:"omitempty,gte=0,max=100"`
	FirstDueDate *time.Time       `json:"first_due_date,omitempty"`
}

type payInstallmentRequest struct {
	Method enums.PaymentMethod `json:"method" validate:"omitempty,oneof=CASH BANK_TRANSFER VNPAY"`
}

type planResponse struct {
	Payment      PaymentDTO       `json:"payment"`
	Installments []InstallmentDTO `json:"installments"`
}

type payInstallmentResponse struct {
	Installment   InstallmentDTO `json:"installment"`
	Payment       PaymentDTO     `json:"payment"`
	Order         *OrderDTO      `json:"order,omitempty"`
	PlanCompleted bool           `json:"plan_completed"`
}

// InstallmentPlanCreate splits a pending installment payment into monthly dues.
func InstallmentPlanCreate(svc installments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, paymentID, err := actorAndID(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req createPlanRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		plan, err := svc.CreatePlan(r.Context(), installments.PlanInput{
			PaymentID:    paymentID,
			Actor:        actor,
			Total:        req.Total,
			Months:       req.Months,
			AnnualRate:   req.AnnualRate,
			FirstDueDate: req.FirstDueDate,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, planResponse{
			Payment:      newPaymentDTO(plan.Payment),
			Installments: newInstallmentDTOs(plan.Installments),
		})
	}
}

func InstallmentList(svc installments.Service, paymentSvc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, paymentID, err := actorAndID(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payment, err := paymentSvc.Get(r.Context(), paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := canView(actor, payment.DealerID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, err := svc.ListByPayment(r.Context(), paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, planResponse{
			Payment:      newPaymentDTO(payment),
			Installments: newInstallmentDTOs(items),
		})
	}
}

// InstallmentPay settles one due. Completing the last due applies the whole payment to the order.
func InstallmentPay(svc installments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, installmentID, err := actorAndID(r, "installmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req payInstallmentRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.MarkAsPaid(r.Context(), installments.MarkPaidInput{
			InstallmentID: installmentID,
			Actor:         actor,
			Method:        req.Method,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payInstallmentResponse{
			Installment:   newInstallmentDTO(result.Installment),
			Payment:       newPaymentDTO(result.Payment),
			Order:         optionalOrderDTO(result.Order),
			PlanCompleted: result.PlanCompleted,
		})
	}
}
