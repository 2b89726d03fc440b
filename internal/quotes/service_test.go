package quotes

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/evdms/dealer-backend/internal/inventory"
	"github.com/evdms/dealer-backend/internal/testdb"
	"github.com/evdms/dealer-backend/internal/workflow"
	"github.com/evdms/dealer-backend/pkg/db/models"
	"github.com/evdms/dealer-backend/pkg/enums"
	pkgerrors "github.com/evdms/dealer-backend/pkg/errors"
	"github.com/evdms/dealer-backend/pkg/outbox/payloads"
)

type fixture struct {
	svc      Service
	conn     *gorm.DB
	dealer   models.Dealer
	customer models.Customer
	vehicle  models.Vehicle
	clock    *time.Time
}

func newFixture(t *testing.T, spent decimal.Decimal, policy Policy) *fixture {
	t.Helper()
	conn := testdb.Open(t)
	client := testdb.Client(conn)
	inv, err := inventory.NewService(client, inventory.NewRepository(conn), testdb.Outbox(conn), testdb.Logger())
	if err != nil {
		t.Fatalf("inventory service: %v", err)
	}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f := &fixture{conn: conn, clock: &now}
	f.svc, err = NewService(NewRepository(conn), client, testdb.Outbox(conn), inv, policy, testdb.Logger(),
		WithClock(func() time.Time { return *f.clock }))
	if err != nil {
		t.Fatalf("quote service: %v", err)
	}
	f.dealer = testdb.Dealer(t, conn)
	f.customer = testdb.Customer(t, conn, f.dealer.ID, spent, false)
	f.vehicle = testdb.Vehicle(t, conn, decimal.NewFromInt(500_000_000), true)
	return f
}

func staff(dealerID uuid.UUID) workflow.Actor {
	return workflow.Actor{UserID: uuid.New(), DealerID: &dealerID, Capabilities: []enums.Capability{enums.CapabilityDealerStaff}}
}

func manager(dealerID uuid.UUID) workflow.Actor {
	return workflow.Actor{UserID: uuid.New(), DealerID: &dealerID, Capabilities: []enums.Capability{enums.CapabilityDealerManager}}
}

func evm() workflow.Actor {
	return workflow.Actor{UserID: uuid.New(), Capabilities: []enums.Capability{enums.CapabilityManufacturerApprover}}
}

func (f *fixture) draft(t *testing.T, qty int) *models.Quote {
	t.Helper()
	quote, err := f.svc.Create(context.Background(), CreateInput{
		Actor:      staff(f.dealer.ID),
		CustomerID: f.customer.ID,
		Lines:      []CreateLine{{VehicleID: f.vehicle.ID, Quantity: qty}},
	})
	if err != nil {
		t.Fatalf("create quote: %v", err)
	}
	return quote
}

func (f *fixture) submitted(t *testing.T, qty int, route enums.ApprovalRoute) *models.Quote {
	t.Helper()
	quote := f.draft(t, qty)
	quote, err := f.svc.Submit(context.Background(), SubmitInput{QuoteID: quote.ID, Actor: staff(f.dealer.ID), Route: route})
	if err != nil {
		t.Fatalf("submit quote: %v", err)
	}
	return quote
}

func TestCreateQuotePricesFromListPrice(t *testing.T) {
	f := newFixture(t, decimal.Zero, DefaultPolicy())
	quote := f.draft(t, 2)

	if quote.Status != enums.QuoteStatusDraft || quote.ApprovalStatus != enums.QuoteApprovalStatusDraft {
		t.Fatalf("expected draft quote, got %s/%s", quote.Status, quote.ApprovalStatus)
	}
	if !quote.Subtotal.Equal(decimal.NewFromInt(1_000_000_000)) || !quote.FinalTotal.Equal(decimal.NewFromInt(1_100_000_000)) {
		t.Fatalf("unexpected totals subtotal=%s final=%s", quote.Subtotal, quote.FinalTotal)
	}
	if !quote.ValidUntil.Equal(f.clock.AddDate(0, 0, 30)) {
		t.Fatalf("unexpected validity %v", quote.ValidUntil)
	}
	stored, err := f.svc.Get(context.Background(), quote.ID)
	if err != nil {
		t.Fatalf("get quote: %v", err)
	}
	if len(stored.Items) != 1 || !stored.Items[0].LineTotal.Equal(decimal.NewFromInt(1_000_000_000)) {
		t.Fatalf("unexpected items %+v", stored.Items)
	}
	if n := testdb.CountEvents(t, f.conn, enums.EventQuoteCreated); n != 1 {
		t.Fatalf("expected 1 created event, got %d", n)
	}
}

func TestCreateQuoteValidation(t *testing.T) {
	f := newFixture(t, decimal.Zero, DefaultPolicy())
	ctx := context.Background()
	other := uuid.New()

	tests := []struct {
		name  string
		input CreateInput
		code  pkgerrors.Code
	}{
		{name: "no lines", input: CreateInput{Actor: staff(f.dealer.ID), CustomerID: f.customer.ID}, code: pkgerrors.CodeValidation},
		{name: "zero quantity", input: CreateInput{Actor: staff(f.dealer.ID), CustomerID: f.customer.ID, Lines: []CreateLine{{VehicleID: f.vehicle.ID}}}, code: pkgerrors.CodeValidation},
		{name: "promotion above 100", input: CreateInput{Actor: staff(f.dealer.ID), CustomerID: f.customer.ID, Lines: []CreateLine{{VehicleID: f.vehicle.ID, Quantity: 1, PromotionDiscountPercent: decimal.NewFromInt(101)}}}, code: pkgerrors.CodeValidation},
		{name: "unknown vehicle", input: CreateInput{Actor: staff(f.dealer.ID), CustomerID: f.customer.ID, Lines: []CreateLine{{VehicleID: uuid.New(), Quantity: 1}}}, code: pkgerrors.CodeNotFound},
		{name: "unknown customer", input: CreateInput{Actor: staff(f.dealer.ID), CustomerID: uuid.New(), Lines: []CreateLine{{VehicleID: f.vehicle.ID, Quantity: 1}}}, code: pkgerrors.CodeNotFound},
		{name: "other dealer staff", input: CreateInput{Actor: staff(other), CustomerID: f.customer.ID, Lines: []CreateLine{{VehicleID: f.vehicle.ID, Quantity: 1}}}, code: pkgerrors.CodeForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.input)
			if !pkgerrors.HasCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestSubmitChoosesRouteOnce(t *testing.T) {
	f := newFixture(t, decimal.Zero, DefaultPolicy())
	ctx := context.Background()

	dealerRoute := f.submitted(t, 1, "")
	if dealerRoute.ApprovalStatus != enums.QuoteApprovalStatusPendingDealerManager {
		t.Fatalf("expected dealer manager pending, got %s", dealerRoute.ApprovalStatus)
	}
	if route, ok := dealerRoute.Route(); !ok || route != enums.ApprovalRouteDealerManager {
		t.Fatalf("expected default dealer route, got %v", dealerRoute.ApprovalRoute)
	}

	_, err := f.svc.Submit(ctx, SubmitInput{QuoteID: dealerRoute.ID, Actor: staff(f.dealer.ID), Route: enums.ApprovalRouteManufacturer})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("expected resubmission to fail, got %v", err)
	}

	manufacturerRoute := f.submitted(t, 1, enums.ApprovalRouteManufacturer)
	if manufacturerRoute.ApprovalStatus != enums.QuoteApprovalStatusPendingEVM {
		t.Fatalf("expected EVM pending, got %s", manufacturerRoute.ApprovalStatus)
	}

	// the manufacturer approver cannot act on the dealer route and vice versa
	if _, err := f.svc.Approve(ctx, ApproveInput{QuoteID: dealerRoute.ID, Actor: evm()}); !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden for EVM on dealer route, got %v", err)
	}
	if _, err := f.svc.Approve(ctx, ApproveInput{QuoteID: manufacturerRoute.ID, Actor: manager(f.dealer.ID)}); !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden for dealer manager on manufacturer route, got %v", err)
	}
	if _, err := f.svc.Approve(ctx, ApproveInput{QuoteID: dealerRoute.ID, Actor: manager(uuid.New())}); !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden for another dealer's manager, got %v", err)
	}
}

func TestApproveDealerRouteShortCommitsStatus(t *testing.T) {
	f := newFixture(t, decimal.Zero, DefaultPolicy())
	ctx := context.Background()
	testdb.Stock(t, f.conn, f.vehicle.ID, &f.dealer.ID, 1)
	quote := f.submitted(t, 2, enums.ApprovalRouteDealerManager)

	_, err := f.svc.Approve(ctx, ApproveInput{QuoteID: quote.ID, Actor: manager(f.dealer.ID)})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientInventory) {
		t.Fatalf("expected insufficient inventory, got %v", err)
	}
	shortages, ok := pkgerrors.As(err).Details().([]payloads.Shortage)
	if !ok || len(shortages) != 1 || shortages[0].Requested != 2 || shortages[0].Available != 1 {
		t.Fatalf("unexpected shortage details %+v", pkgerrors.As(err).Details())
	}

	stored, err := f.svc.Get(ctx, quote.ID)
	if err != nil {
		t.Fatalf("get quote: %v", err)
	}
	if stored.ApprovalStatus != enums.QuoteApprovalStatusInsufficientInventory {
		t.Fatalf("expected INSUFFICIENT_INVENTORY persisted, got %s", stored.ApprovalStatus)
	}
	if n := testdb.CountEvents(t, f.conn, enums.EventQuoteInventoryShort); n != 1 {
		t.Fatalf("expected shortage event, got %d", n)
	}
	if got := testdb.Available(t, f.conn, f.vehicle.ID, &f.dealer.ID); got != 1 {
		t.Fatalf("approval must not deduct stock, available=%d", got)
	}

	if _, err := f.svc.Approve(ctx, ApproveInput{QuoteID: quote.ID, Actor: manager(f.dealer.ID)}); !pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("expected short quote to leave the pending state, got %v", err)
	}
}

func TestApproveManufacturerRouteAppliesVIPDiscount(t *testing.T) {
	f := newFixture(t, decimal.NewFromInt(5_000_000_000), DefaultPolicy())
	ctx := context.Background()
	testdb.Stock(t, f.conn, f.vehicle.ID, nil, 5)
	quote := f.submitted(t, 2, enums.ApprovalRouteManufacturer)

	approver := evm()
	approved, err := f.svc.Approve(ctx, ApproveInput{QuoteID: quote.ID, Actor: approver, Notes: "ok"})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.ApprovalStatus != enums.QuoteApprovalStatusApproved || approved.Status != enums.QuoteStatusSent {
		t.Fatalf("expected APPROVED/SENT, got %s/%s", approved.ApprovalStatus, approved.Status)
	}
	if !approved.DiscountAmount.Equal(decimal.NewFromInt(55_000_000)) || !approved.FinalTotal.Equal(decimal.NewFromInt(1_045_000_000)) {
		t.Fatalf("unexpected VIP totals discount=%s final=%s", approved.DiscountAmount, approved.FinalTotal)
	}
	if approved.ApprovedBy == nil || *approved.ApprovedBy != approver.UserID {
		t.Fatalf("approver not recorded")
	}
	if got := testdb.Available(t, f.conn, f.vehicle.ID, nil); got != 5 {
		t.Fatalf("approval must not deduct factory stock, available=%d", got)
	}
}

func TestApprovePromotesCustomerPastThreshold(t *testing.T) {
	policy := DefaultPolicy()
	policy.VIPThreshold = decimal.NewFromInt(900_000_000)
	f := newFixture(t, decimal.Zero, policy)
	testdb.Stock(t, f.conn, f.vehicle.ID, &f.dealer.ID, 2)
	quote := f.submitted(t, 2, enums.ApprovalRouteDealerManager)

	approved, err := f.svc.Approve(context.Background(), ApproveInput{QuoteID: quote.ID, Actor: manager(f.dealer.ID)})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !approved.DiscountAmount.IsZero() {
		t.Fatalf("discount applies from the next quote, got %s", approved.DiscountAmount)
	}
	var customer models.Customer
	if err := f.conn.First(&customer, "id = ?", f.customer.ID).Error; err != nil {
		t.Fatalf("load customer: %v", err)
	}
	if !customer.IsVIP {
		t.Fatalf("expected customer promoted to VIP")
	}
}

func TestRejectIsTerminal(t *testing.T) {
	f := newFixture(t, decimal.Zero, DefaultPolicy())
	ctx := context.Background()
	quote := f.submitted(t, 1, enums.ApprovalRouteDealerManager)

	if _, err := f.svc.Reject(ctx, RejectInput{QuoteID: quote.ID, Actor: manager(f.dealer.ID)}); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected reason required, got %v", err)
	}
	rejected, err := f.svc.Reject(ctx, RejectInput{QuoteID: quote.ID, Actor: manager(f.dealer.ID), Reason: "price too low"})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != enums.QuoteStatusRejected || rejected.ApprovalStatus != enums.QuoteApprovalStatusRejected {
		t.Fatalf("expected REJECTED/REJECTED, got %s/%s", rejected.Status, rejected.ApprovalStatus)
	}
	if rejected.RejectionReason == nil || *rejected.RejectionReason != "price too low" {
		t.Fatalf("reason not recorded")
	}
	if _, err := f.svc.Approve(ctx, ApproveInput{QuoteID: quote.ID, Actor: manager(f.dealer.ID)}); !pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("expected rejected quote to stay rejected, got %v", err)
	}
}

func TestCheckInventoryUsesRoutePool(t *testing.T) {
	f := newFixture(t, decimal.Zero, DefaultPolicy())
	ctx := context.Background()
	testdb.Stock(t, f.conn, f.vehicle.ID, nil, 3)

	draft := f.draft(t, 2)
	ok, err := f.svc.CheckInventory(ctx, draft.ID)
	if ok || !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientInventory) {
		t.Fatalf("unrouted quote checks the dealer pool, ok=%v err=%v", ok, err)
	}

	routed := f.submitted(t, 2, enums.ApprovalRouteManufacturer)
	ok, err = f.svc.CheckInventory(ctx, routed.ID)
	if !ok || err != nil {
		t.Fatalf("manufacturer route checks the factory pool, ok=%v err=%v", ok, err)
	}
}

func TestAcceptAndDecline(t *testing.T) {
	f := newFixture(t, decimal.Zero, DefaultPolicy())
	ctx := context.Background()
	testdb.Stock(t, f.conn, f.vehicle.ID, &f.dealer.ID, 10)

	approve := func() *models.Quote {
		q := f.submitted(t, 1, enums.ApprovalRouteDealerManager)
		q, err := f.svc.Approve(ctx, ApproveInput{QuoteID: q.ID, Actor: manager(f.dealer.ID)})
		if err != nil {
			t.Fatalf("approve: %v", err)
		}
		return q
	}

	accepted, err := f.svc.Accept(ctx, AcceptInput{QuoteID: approve().ID, Actor: staff(f.dealer.ID)})
	if err != nil || accepted.Status != enums.QuoteStatusAccepted {
		t.Fatalf("expected ACCEPTED, got %v err=%v", accepted, err)
	}
	if _, err := f.svc.Accept(ctx, AcceptInput{QuoteID: accepted.ID, Actor: staff(f.dealer.ID)}); !pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("expected second accept to fail, got %v", err)
	}

	declined, err := f.svc.Decline(ctx, DeclineInput{QuoteID: approve().ID, Actor: staff(f.dealer.ID), Reason: "bought elsewhere"})
	if err != nil || declined.Status != enums.QuoteStatusRejected || declined.ApprovalStatus != enums.QuoteApprovalStatusApproved {
		t.Fatalf("expected REJECTED with approval kept, got %v err=%v", declined, err)
	}

	lapsed := approve()
	*f.clock = f.clock.AddDate(0, 0, 31)
	_, err = f.svc.Accept(ctx, AcceptInput{QuoteID: lapsed.ID, Actor: staff(f.dealer.ID)})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("expected lapsed quote to fail, got %v", err)
	}
	stored, _ := f.svc.Get(ctx, lapsed.ID)
	if stored.Status != enums.QuoteStatusExpired {
		t.Fatalf("expected EXPIRED persisted, got %s", stored.Status)
	}
}

func TestExpireStale(t *testing.T) {
	f := newFixture(t, decimal.Zero, DefaultPolicy())
	ctx := context.Background()
	old := f.draft(t, 1)
	*f.clock = f.clock.AddDate(0, 0, 20)
	fresh := f.draft(t, 1)

	expired, err := f.svc.ExpireStale(ctx, f.clock.AddDate(0, 0, 15))
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired quote, got %d", expired)
	}
	if q, _ := f.svc.Get(ctx, old.ID); q.Status != enums.QuoteStatusExpired {
		t.Fatalf("expected old quote expired, got %s", q.Status)
	}
	if q, _ := f.svc.Get(ctx, fresh.ID); q.Status != enums.QuoteStatusDraft {
		t.Fatalf("expected fresh quote untouched, got %s", q.Status)
	}
	again, err := f.svc.ExpireStale(ctx, f.clock.AddDate(0, 0, 15))
	if err != nil || again != 0 {
		t.Fatalf("expected idempotent expiry, got %d err=%v", again, err)
	}
}
