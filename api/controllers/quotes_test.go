package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evdms/dealer-backend/internal/quotes"
	"github.com/evdms/dealer-backend/pkg/db/models"
	"github.com/evdms/dealer-backend/pkg/enums"
	pkgerrors "github.com/evdms/dealer-backend/pkg/errors"
)

type stubQuoteService struct {
	quotes.Service
	createFn  func(ctx context.Context, input quotes.CreateInput) (*models.Quote, error)
	submitFn  func(ctx context.Context, input quotes.SubmitInput) (*models.Quote, error)
	rejectFn  func(ctx context.Context, input quotes.RejectInput) (*models.Quote, error)
	getFn     func(ctx context.Context, id uuid.UUID) (*models.Quote, error)
	checkFn   func(ctx context.Context, id uuid.UUID) (bool, error)
	declineFn func(ctx context.Context, input quotes.DeclineInput) (*models.Quote, error)
}

func (s stubQuoteService) Create(ctx context.Context, input quotes.CreateInput) (*models.Quote, error) {
	return s.createFn(ctx, input)
}

func (s stubQuoteService) Submit(ctx context.Context, input quotes.SubmitInput) (*models.Quote, error) {
	return s.submitFn(ctx, input)
}

func (s stubQuoteService) Reject(ctx context.Context, input quotes.RejectInput) (*models.Quote, error) {
	return s.rejectFn(ctx, input)
}

func (s stubQuoteService) Get(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	return s.getFn(ctx, id)
}

func (s stubQuoteService) CheckInventory(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.checkFn(ctx, id)
}

func (s stubQuoteService) Decline(ctx context.Context, input quotes.DeclineInput) (*models.Quote, error) {
	return s.declineFn(ctx, input)
}

func TestQuoteCreate(t *testing.T) {
	dealerID := uuid.New()
	actor := staffActor(dealerID)
	customerID, vehicleID := uuid.New(), uuid.New()

	svc := stubQuoteService{
		createFn: func(_ context.Context, input quotes.CreateInput) (*models.Quote, error) {
			if input.Actor.UserID != actor.UserID {
				t.Fatalf("actor not forwarded")
			}
			if len(input.Lines) != 1 || input.Lines[0].Quantity != 2 || !input.Lines[0].PromotionDiscountPercent.Equal(decimal.NewFromInt(5)) {
				t.Fatalf("unexpected lines %+v", input.Lines)
			}
			return &models.Quote{ID: uuid.New(), DealerID: dealerID, CustomerID: customerID, Status: enums.QuoteStatusDraft}, nil
		},
	}

	body := map[string]any{
		"customer_id": customerID,
		"lines": []map[string]any{{
			"vehicle_id":                 vehicleID,
			"quantity":                   2,
			"promotion_discount_percent": "5",
		}},
	}
	resp := serve(QuoteCreate(svc, testLogger()), newRequest(t, http.MethodPost, "/", body, &actor, nil))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	var dto QuoteDTO
	decodeData(t, resp, &dto)
	if dto.CustomerID != customerID || dto.Status != enums.QuoteStatusDraft {
		t.Fatalf("unexpected quote %+v", dto)
	}
}

func TestQuoteCreate_RejectsBadLines(t *testing.T) {
	actor := staffActor(uuid.New())
	svc := stubQuoteService{
		createFn: func(context.Context, quotes.CreateInput) (*models.Quote, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	}

	cases := map[string]map[string]any{
		"no lines": {"customer_id": uuid.New(), "lines": []any{}},
		"zero qty": {"customer_id": uuid.New(), "lines": []map[string]any{{"vehicle_id": uuid.New(), "quantity": 0}}},
		"discount over 100": {"customer_id": uuid.New(), "lines": []map[string]any{{
			"vehicle_id": uuid.New(), "quantity": 1, "promotion_discount_percent": "101",
		}}},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := serve(QuoteCreate(svc, testLogger()), newRequest(t, http.MethodPost, "/", body, &actor, nil))
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d", resp.Code)
			}
		})
	}
}

func TestQuoteCreate_RequiresActor(t *testing.T) {
	resp := serve(QuoteCreate(stubQuoteService{}, testLogger()), newRequest(t, http.MethodPost, "/", map[string]any{}, nil, nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestQuoteDetail_ForeignDealerForbidden(t *testing.T) {
	quoteID := uuid.New()
	actor := staffActor(uuid.New())
	svc := stubQuoteService{
		getFn: func(context.Context, uuid.UUID) (*models.Quote, error) {
			return &models.Quote{ID: quoteID, DealerID: uuid.New()}, nil
		},
	}

	resp := serve(QuoteDetail(svc, testLogger()), newRequest(t, http.MethodGet, "/", nil, &actor, map[string]string{"quoteId": quoteID.String()}))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestQuoteDetail_ManufacturerSeesAnyDealer(t *testing.T) {
	quoteID := uuid.New()
	actor := manufacturerActor()
	svc := stubQuoteService{
		getFn: func(context.Context, uuid.UUID) (*models.Quote, error) {
			return &models.Quote{ID: quoteID, DealerID: uuid.New()}, nil
		},
	}

	resp := serve(QuoteDetail(svc, testLogger()), newRequest(t, http.MethodGet, "/", nil, &actor, map[string]string{"quoteId": quoteID.String()}))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestQuoteDetail_BadID(t *testing.T) {
	actor := staffActor(uuid.New())
	resp := serve(QuoteDetail(stubQuoteService{}, testLogger()), newRequest(t, http.MethodGet, "/", nil, &actor, map[string]string{"quoteId": "nope"}))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestQuoteSubmit_EmptyBodyAndRoute(t *testing.T) {
	dealerID := uuid.New()
	actor := staffActor(dealerID)
	var got enums.ApprovalRoute
	svc := stubQuoteService{
		submitFn: func(_ context.Context, input quotes.SubmitInput) (*models.Quote, error) {
			got = input.Route
			return &models.Quote{ID: input.QuoteID, DealerID: dealerID}, nil
		},
	}
	params := map[string]string{"quoteId": uuid.NewString()}

	resp := serve(QuoteSubmit(svc, testLogger()), newRequest(t, http.MethodPost, "/", nil, &actor, params))
	if resp.Code != http.StatusOK || got != "" {
		t.Fatalf("expected default route submit, got %d route=%q", resp.Code, got)
	}

	resp = serve(QuoteSubmit(svc, testLogger()), newRequest(t, http.MethodPost, "/", map[string]string{"route": "MANUFACTURER"}, &actor, params))
	if resp.Code != http.StatusOK || got != enums.ApprovalRouteManufacturer {
		t.Fatalf("expected manufacturer route, got %d route=%q", resp.Code, got)
	}

	resp = serve(QuoteSubmit(svc, testLogger()), newRequest(t, http.MethodPost, "/", map[string]string{"route": "CEO"}, &actor, params))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown route, got %d", resp.Code)
	}
}

func TestQuoteReject_RequiresReason(t *testing.T) {
	actor := managerActor(uuid.New())
	svc := stubQuoteService{
		rejectFn: func(context.Context, quotes.RejectInput) (*models.Quote, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	}
	resp := serve(QuoteReject(svc, testLogger()), newRequest(t, http.MethodPost, "/", map[string]string{}, &actor, map[string]string{"quoteId": uuid.NewString()}))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestQuoteReject_PropagatesTransitionError(t *testing.T) {
	actor := managerActor(uuid.New())
	svc := stubQuoteService{
		rejectFn: func(context.Context, quotes.RejectInput) (*models.Quote, error) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "quote is not pending approval")
		},
	}
	resp := serve(QuoteReject(svc, testLogger()), newRequest(t, http.MethodPost, "/", map[string]string{"reason": "price"}, &actor, map[string]string{"quoteId": uuid.NewString()}))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != string(pkgerrors.CodeInvalidTransition) {
		t.Fatalf("unexpected error code %q", code)
	}
}

func TestQuoteInventoryCheck(t *testing.T) {
	dealerID := uuid.New()
	quoteID := uuid.New()
	actor := staffActor(dealerID)
	svc := stubQuoteService{
		getFn: func(context.Context, uuid.UUID) (*models.Quote, error) {
			return &models.Quote{ID: quoteID, DealerID: dealerID}, nil
		},
		checkFn: func(_ context.Context, id uuid.UUID) (bool, error) {
			if id != quoteID {
				t.Fatalf("unexpected id %s", id)
			}
			return true, nil
		},
	}

	resp := serve(QuoteInventoryCheck(svc, testLogger()), newRequest(t, http.MethodGet, "/", nil, &actor, map[string]string{"quoteId": quoteID.String()}))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var out struct {
		Sufficient bool `json:"sufficient"`
	}
	decodeData(t, resp, &out)
	if !out.Sufficient {
		t.Fatal("expected sufficient inventory")
	}
}

func TestQuoteDecline_OptionalReason(t *testing.T) {
	actor := staffActor(uuid.New())
	called := false
	svc := stubQuoteService{
		declineFn: func(_ context.Context, input quotes.DeclineInput) (*models.Quote, error) {
			called = true
			if input.Reason != "" {
				t.Fatalf("expected empty reason, got %q", input.Reason)
			}
			return &models.Quote{ID: input.QuoteID, Status: enums.QuoteStatusRejected}, nil
		},
	}
	resp := serve(QuoteDecline(svc, testLogger()), newRequest(t, http.MethodPost, "/", nil, &actor, map[string]string{"quoteId": uuid.NewString()}))
	if resp.Code != http.StatusOK || !called {
		t.Fatalf("expected decline to succeed, got %d", resp.Code)
	}
}
