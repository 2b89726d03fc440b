package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evdms/dealer-backend/internal/orders"
	"github.com/evdms/dealer-backend/internal/payments"
	"github.com/evdms/dealer-backend/pkg/db/models"
	"github.com/evdms/dealer-backend/pkg/enums"
	pkgerrors "github.com/evdms/dealer-backend/pkg/errors"
	"github.com/evdms/dealer-backend/pkg/outbox/payloads"
	"github.com/evdms/dealer-backend/pkg/vnpay"
)

type stubOrderService struct {
	orders.Service
	createFn  func(ctx context.Context, input orders.CreateInput) (*models.Order, error)
	approveFn func(ctx context.Context, input orders.ApproveInput) (*orders.ApproveResult, error)
	getFn     func(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

func (s stubOrderService) CreateFromApprovedQuote(ctx context.Context, input orders.CreateInput) (*models.Order, error) {
	return s.createFn(ctx, input)
}

func (s stubOrderService) Approve(ctx context.Context, input orders.ApproveInput) (*orders.ApproveResult, error) {
	return s.approveFn(ctx, input)
}

func (s stubOrderService) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.getFn(ctx, id)
}

type stubPaymentService struct {
	payments.Service
	processFn  func(ctx context.Context, input payments.ProcessInput) (*payments.ProcessResult, error)
	callbackFn func(ctx context.Context, values url.Values) (*payments.CallbackOutcome, error)
	listFn     func(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
}

func (s stubPaymentService) Process(ctx context.Context, input payments.ProcessInput) (*payments.ProcessResult, error) {
	return s.processFn(ctx, input)
}

func (s stubPaymentService) HandleCallback(ctx context.Context, values url.Values) (*payments.CallbackOutcome, error) {
	return s.callbackFn(ctx, values)
}

func (s stubPaymentService) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	return s.listFn(ctx, orderID)
}

func TestOrderCreate_PaymentPercentage(t *testing.T) {
	actor := staffActor(uuid.New())
	quoteID := uuid.New()
	svc := stubOrderService{
		createFn: func(_ context.Context, input orders.CreateInput) (*models.Order, error) {
			if input.QuoteID != quoteID || input.PaymentPercentage != 30 || input.PaymentMethod != enums.PaymentMethodBankTransfer {
				t.Fatalf("unexpected input %+v", input)
			}
			return &models.Order{ID: uuid.New(), QuoteID: quoteID, PaymentPercentage: 30}, nil
		},
	}

	body := map[string]any{"quote_id": quoteID, "payment_percentage": 30, "payment_method": "BANK_TRANSFER"}
	resp := serve(OrderCreate(svc, testLogger()), newRequest(t, http.MethodPost, "/", body, &actor, nil))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}

	body["payment_percentage"] = 40
	resp = serve(OrderCreate(svc, testLogger()), newRequest(t, http.MethodPost, "/", body, &actor, nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for 40%%, got %d", resp.Code)
	}
}

func TestOrderApprove_ReportsShortage(t *testing.T) {
	actor := manufacturerActor()
	orderID, vehicleID := uuid.New(), uuid.New()
	svc := stubOrderService{
		approveFn: func(_ context.Context, input orders.ApproveInput) (*orders.ApproveResult, error) {
			return &orders.ApproveResult{
				Order:                 &models.Order{ID: input.OrderID, ApprovalStatus: enums.OrderApprovalStatusPendingApproval},
				InsufficientInventory: true,
				Shortages:             []payloads.Shortage{{VehicleID: vehicleID, Requested: 3, Available: 1}},
			}, nil
		},
	}

	resp := serve(OrderApprove(svc, testLogger()), newRequest(t, http.MethodPost, "/", nil, &actor, map[string]string{"orderId": orderID.String()}))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var out approveOrderResponse
	decodeData(t, resp, &out)
	if !out.InsufficientInventory || len(out.Shortages) != 1 || out.Shortages[0].Available != 1 {
		t.Fatalf("unexpected approval payload %+v", out)
	}
	if out.Order.ID != orderID {
		t.Fatalf("unexpected order id %s", out.Order.ID)
	}
}

func TestOrderDetail_IncludesPayments(t *testing.T) {
	dealerID, orderID := uuid.New(), uuid.New()
	actor := staffActor(dealerID)
	orderSvc := stubOrderService{
		getFn: func(context.Context, uuid.UUID) (*models.Order, error) {
			return &models.Order{ID: orderID, DealerID: dealerID}, nil
		},
	}
	paymentSvc := stubPaymentService{
		listFn: func(context.Context, uuid.UUID) ([]models.Payment, error) {
			return []models.Payment{{ID: uuid.New(), OrderID: orderID, Amount: decimal.NewFromInt(100)}}, nil
		},
	}

	resp := serve(OrderDetail(orderSvc, paymentSvc, testLogger()), newRequest(t, http.MethodGet, "/", nil, &actor, map[string]string{"orderId": orderID.String()}))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var out orderDetailResponse
	decodeData(t, resp, &out)
	if len(out.Payments) != 1 {
		t.Fatalf("expected one payment, got %d", len(out.Payments))
	}
}

func TestOrderPayment_ForwardsClientIP(t *testing.T) {
	actor := staffActor(uuid.New())
	orderID := uuid.New()
	svc := stubPaymentService{
		processFn: func(_ context.Context, input payments.ProcessInput) (*payments.ProcessResult, error) {
			if input.ClientIP != "203.0.113.9" {
				t.Fatalf("unexpected client ip %q", input.ClientIP)
			}
			if input.Method != enums.PaymentMethodVNPay || input.Percentage != 50 {
				t.Fatalf("unexpected input %+v", input)
			}
			return &payments.ProcessResult{
				Payment:    &models.Payment{ID: uuid.New(), OrderID: orderID, Method: enums.PaymentMethodVNPay},
				PaymentURL: "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html?vnp_TxnRef=x",
			}, nil
		},
	}

	req := newRequest(t, http.MethodPost, "/", map[string]any{"percentage": 50, "method": "VNPAY"}, &actor, map[string]string{"orderId": orderID.String()})
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	resp := serve(OrderPayment(svc, testLogger()), req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	var out processPaymentResponse
	decodeData(t, resp, &out)
	if out.PaymentURL == "" || out.Order != nil {
		t.Fatalf("unexpected payment payload %+v", out)
	}
}

func TestOrderPayment_RejectsUnsupportedPercentage(t *testing.T) {
	actor := staffActor(uuid.New())
	svc := stubPaymentService{
		processFn: func(context.Context, payments.ProcessInput) (*payments.ProcessResult, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	}
	req := newRequest(t, http.MethodPost, "/", map[string]any{"percentage": 20, "method": "CASH"}, &actor, map[string]string{"orderId": uuid.NewString()})
	if resp := serve(OrderPayment(svc, testLogger()), req); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestVNPayIPN_AcknowledgementCodes(t *testing.T) {
	cases := []struct {
		name    string
		outcome *payments.CallbackOutcome
		err     error
		code    string
	}{
		{name: "applied", outcome: &payments.CallbackOutcome{Payment: &models.Payment{}, Applied: true}, code: vnpay.IPNConfirmed},
		{name: "duplicate", outcome: &payments.CallbackOutcome{Payment: &models.Payment{}, Duplicate: true}, code: vnpay.IPNAlreadyConfirmed},
		{name: "bad signature", err: pkgerrors.New(pkgerrors.CodeInvalidSignature, "signature mismatch"), code: vnpay.IPNInvalidSignature},
		{name: "unknown txn", err: pkgerrors.New(pkgerrors.CodeNotFound, "payment not found"), code: vnpay.IPNOrderNotFound},
		{name: "amount mismatch", err: pkgerrors.New(pkgerrors.CodeValidation, "amount mismatch"), code: vnpay.IPNInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := stubPaymentService{
				callbackFn: func(_ context.Context, values url.Values) (*payments.CallbackOutcome, error) {
					if values.Get("vnp_TxnRef") != "20261017101500abcd1234" {
						t.Fatalf("query not forwarded: %v", values)
					}
					return tc.outcome, tc.err
				},
			}
			req := newRequest(t, http.MethodGet, "/?vnp_TxnRef=20261017101500abcd1234", nil, nil, nil)
			resp := serve(VNPayIPN(svc, testLogger()), req)
			if resp.Code != http.StatusOK {
				t.Fatalf("expected 200 got %d", resp.Code)
			}
			var ack vnpay.IPNResponse
			if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
				t.Fatalf("decode ack: %v", err)
			}
			if ack.RspCode != tc.code {
				t.Fatalf("expected RspCode %s got %s", tc.code, ack.RspCode)
			}
		})
	}
}

func TestVNPayReturn(t *testing.T) {
	svc := stubPaymentService{
		callbackFn: func(context.Context, url.Values) (*payments.CallbackOutcome, error) {
			return &payments.CallbackOutcome{
				Payment: &models.Payment{ID: uuid.New(), Status: enums.PaymentStatusCompleted},
				Order:   &models.Order{ID: uuid.New()},
				Outcome: "success",
				Applied: true,
			}, nil
		},
	}
	resp := serve(VNPayReturn(svc, testLogger()), newRequest(t, http.MethodGet, "/?vnp_ResponseCode=00", nil, nil, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var out callbackResponse
	decodeData(t, resp, &out)
	if !out.Applied || out.Order == nil || out.Outcome != "success" {
		t.Fatalf("unexpected callback payload %+v", out)
	}

	svc.callbackFn = func(context.Context, url.Values) (*payments.CallbackOutcome, error) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidSignature, "signature mismatch")
	}
	resp = serve(VNPayReturn(svc, testLogger()), newRequest(t, http.MethodGet, "/", nil, nil, nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
