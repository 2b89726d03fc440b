package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/evdms/dealer-backend/internal/debt"
	"github.com/evdms/dealer-backend/internal/inventory"
	"github.com/evdms/dealer-backend/internal/testdb"
	"github.com/evdms/dealer-backend/internal/workflow"
	"github.com/evdms/dealer-backend/pkg/db/models"
	"github.com/evdms/dealer-backend/pkg/enums"
	pkgerrors "github.com/evdms/dealer-backend/pkg/errors"
)

type fixture struct {
	svc      Service
	conn     *gorm.DB
	inv      *inventory.Service
	dealer   models.Dealer
	customer models.Customer
	vehicle  models.Vehicle
	author   workflow.Actor
	now      time.Time
}

func newFixture(t *testing.T, wrap func(Inventory) Inventory) *fixture {
	t.Helper()
	conn := testdb.Open(t)
	client := testdb.Client(conn)
	emitter := testdb.Outbox(conn)
	inv, err := inventory.NewService(client, inventory.NewRepository(conn), emitter, testdb.Logger())
	if err != nil {
		t.Fatalf("inventory service: %v", err)
	}
	ledger, err := debt.NewService(client, debt.NewRepository(conn), emitter, testdb.Logger())
	if err != nil {
		t.Fatalf("debt service: %v", err)
	}
	var orderInv Inventory = inv
	if wrap != nil {
		orderInv = wrap(inv)
	}
	f := &fixture{conn: conn, inv: inv, now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	f.svc, err = NewService(NewRepository(conn), client, emitter, orderInv, ledger, testdb.Logger(),
		WithClock(func() time.Time { return f.now }))
	if err != nil {
		t.Fatalf("order service: %v", err)
	}
	f.dealer = testdb.Dealer(t, conn)
	f.customer = testdb.Customer(t, conn, f.dealer.ID, decimal.Zero, false)
	f.vehicle = testdb.Vehicle(t, conn, decimal.NewFromInt(10_000_000), true)
	f.author = staff(f.dealer.ID)
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

// acceptedQuote seeds a quote that already went through approval and customer acceptance.
func (f *fixture) acceptedQuote(t *testing.T, route enums.ApprovalRoute, lines ...models.QuoteLineItem) models.Quote {
	t.Helper()
	if len(lines) == 0 {
		lines = []models.QuoteLineItem{{VehicleID: f.vehicle.ID, Quantity: 1, UnitPrice: f.vehicle.ListPrice, LineTotal: f.vehicle.ListPrice}}
	}
	quote := models.Quote{
		QuoteNumber:    "Q-" + uuid.NewString()[:8],
		DealerID:       f.dealer.ID,
		CustomerID:     f.customer.ID,
		StaffUserID:    f.author.UserID,
		Status:         enums.QuoteStatusAccepted,
		ApprovalStatus: enums.QuoteApprovalStatusApproved,
		ApprovalRoute:  &route,
		ValidUntil:     f.now.AddDate(0, 0, 30),
		Items:          lines,
	}
	if err := f.conn.Create(&quote).Error; err != nil {
		t.Fatalf("seed quote: %v", err)
	}
	return quote
}

func (f *fixture) order(t *testing.T, pct int) *models.Order {
	t.Helper()
	quote := f.acceptedQuote(t, enums.ApprovalRouteDealerManager)
	order, err := f.svc.CreateFromApprovedQuote(context.Background(), CreateInput{QuoteID: quote.ID, Actor: f.author, PaymentPercentage: pct})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func (f *fixture) reloadCustomer(t *testing.T) models.Customer {
	t.Helper()
	var c models.Customer
	if err := f.conn.First(&c, "id = ?", f.customer.ID).Error; err != nil {
		t.Fatalf("reload customer: %v", err)
	}
	return c
}

func TestCreateOrderWithDeposit(t *testing.T) {
	f := newFixture(t, nil)
	order := f.order(t, 30)

	if !order.TotalAmount.Equal(decimal.NewFromInt(10_000_000)) {
		t.Fatalf("unexpected total %s", order.TotalAmount)
	}
	if !order.PaidAmount.Equal(decimal.NewFromInt(3_000_000)) || !order.RemainingAmount.Equal(decimal.NewFromInt(7_000_000)) {
		t.Fatalf("unexpected split paid=%s remaining=%s", order.PaidAmount, order.RemainingAmount)
	}
	if order.PaymentStatus != enums.OrderPaymentStatusPartiallyPaid {
		t.Fatalf("expected partially paid, got %s", order.PaymentStatus)
	}
	if order.Status != enums.OrderStatusPending || order.ApprovalStatus != enums.OrderApprovalStatusPendingApproval {
		t.Fatalf("unexpected state %s/%s", order.Status, order.ApprovalStatus)
	}
	if len(order.Items) != 1 || order.Items[0].VIN != *f.vehicle.VIN {
		t.Fatalf("line must carry the unit identity, got %+v", order.Items)
	}

	var deposit models.Payment
	if err := f.conn.First(&deposit, "order_id = ?", order.ID).Error; err != nil {
		t.Fatalf("load deposit: %v", err)
	}
	if deposit.Status != enums.PaymentStatusCompleted || deposit.Method != enums.PaymentMethodCash || deposit.AppliedAt == nil {
		t.Fatalf("unexpected deposit %+v", deposit)
	}

	customer := f.reloadCustomer(t)
	if !customer.TotalSpent.Equal(decimal.NewFromInt(10_000_000)) {
		t.Fatalf("total spent should include the order, got %s", customer.TotalSpent)
	}
	if !customer.TotalDebt.Equal(decimal.NewFromInt(7_000_000)) {
		t.Fatalf("debt should equal the remaining amount, got %s", customer.TotalDebt)
	}
	if n := testdb.CountEvents(t, f.conn, enums.EventOrderCreated); n != 1 {
		t.Fatalf("expected 1 order_created event, got %d", n)
	}
	if n := testdb.CountEvents(t, f.conn, enums.EventPaymentCompleted); n != 1 {
		t.Fatalf("expected 1 payment_completed event, got %d", n)
	}
}

func TestCreateOrderWithoutDepositIsUnpaid(t *testing.T) {
	f := newFixture(t, nil)
	order := f.order(t, 0)

	if order.PaymentStatus != enums.OrderPaymentStatusUnpaid || !order.PaidAmount.IsZero() {
		t.Fatalf("expected unpaid order, got %s paid=%s", order.PaymentStatus, order.PaidAmount)
	}
	var payments int64
	f.conn.Model(&models.Payment{}).Where("order_id = ?", order.ID).Count(&payments)
	if payments != 0 {
		t.Fatalf("no deposit expected, got %d payments", payments)
	}
}

func TestCreateOrderAppliesPromotionDiscount(t *testing.T) {
	f := newFixture(t, nil)
	line := models.QuoteLineItem{
		VehicleID:                f.vehicle.ID,
		Quantity:                 2,
		UnitPrice:                f.vehicle.ListPrice,
		PromotionDiscountPercent: decimal.NewFromInt(10),
		LineTotal:                decimal.NewFromInt(18_000_000),
	}
	quote := f.acceptedQuote(t, enums.ApprovalRouteDealerManager, line)
	order, err := f.svc.CreateFromApprovedQuote(context.Background(), CreateInput{QuoteID: quote.ID, Actor: f.author})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if !order.TotalAmount.Equal(decimal.NewFromInt(18_000_000)) || !order.TotalDiscount.Equal(decimal.NewFromInt(2_000_000)) {
		t.Fatalf("unexpected totals total=%s discount=%s", order.TotalAmount, order.TotalDiscount)
	}
}

func TestCreateOrderRejections(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	existing := f.acceptedQuote(t, enums.ApprovalRouteDealerManager)
	if _, err := f.svc.CreateFromApprovedQuote(ctx, CreateInput{QuoteID: existing.ID, Actor: f.author}); err != nil {
		t.Fatalf("first order: %v", err)
	}

	pending := f.acceptedQuote(t, enums.ApprovalRouteDealerManager)
	f.conn.Model(&models.Quote{}).Where("id = ?", pending.ID).Update("status", enums.QuoteStatusSent)

	bare := testdb.Vehicle(t, f.conn, decimal.NewFromInt(10_000_000), false)
	noIdentity := f.acceptedQuote(t, enums.ApprovalRouteDealerManager,
		models.QuoteLineItem{VehicleID: bare.ID, Quantity: 1, UnitPrice: bare.ListPrice, LineTotal: bare.ListPrice})

	fresh := f.acceptedQuote(t, enums.ApprovalRouteDealerManager)
	evmRouted := f.acceptedQuote(t, enums.ApprovalRouteManufacturer)

	tests := []struct {
		name  string
		input CreateInput
		code  pkgerrors.Code
	}{
		{"duplicate order", CreateInput{QuoteID: existing.ID, Actor: f.author}, pkgerrors.CodeConflict},
		{"quote not accepted", CreateInput{QuoteID: pending.ID, Actor: f.author}, pkgerrors.CodeInvalidTransition},
		{"vehicle without identity", CreateInput{QuoteID: noIdentity.ID, Actor: f.author}, pkgerrors.CodeValidation},
		{"bad percentage", CreateInput{QuoteID: fresh.ID, Actor: f.author, PaymentPercentage: 40}, pkgerrors.CodeValidation},
		{"deposit via gateway", CreateInput{QuoteID: fresh.ID, Actor: f.author, PaymentPercentage: 30, PaymentMethod: enums.PaymentMethodVNPay}, pkgerrors.CodeValidation},
		{"other dealer", CreateInput{QuoteID: fresh.ID, Actor: staff(uuid.New())}, pkgerrors.CodeForbidden},
		{"not the author", CreateInput{QuoteID: fresh.ID, Actor: staff(f.dealer.ID)}, pkgerrors.CodeForbidden},
		{"missing quote", CreateInput{QuoteID: uuid.New(), Actor: f.author}, pkgerrors.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.CreateFromApprovedQuote(ctx, tt.input); !pkgerrors.HasCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}

	// Manufacturer-routed quotes can be converted by any staff member of the dealer.
	if _, err := f.svc.CreateFromApprovedQuote(ctx, CreateInput{QuoteID: evmRouted.ID, Actor: staff(f.dealer.ID)}); err != nil {
		t.Fatalf("manufacturer-routed conversion: %v", err)
	}
}

func TestApproveOrderChecksFactoryStock(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := f.order(t, 0)
	approver := manager(f.dealer.ID)

	if _, err := f.svc.Approve(ctx, ApproveInput{OrderID: order.ID, Actor: evm()}); !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("manufacturer cannot approve a dealer-routed order, got %v", err)
	}

	result, err := f.svc.Approve(ctx, ApproveInput{OrderID: order.ID, Actor: approver})
	if err != nil {
		t.Fatalf("approve short: %v", err)
	}
	if !result.InsufficientInventory || len(result.Shortages) != 1 || result.Shortages[0].Available != 0 {
		t.Fatalf("expected factory shortage, got %+v", result)
	}
	if result.Order.ApprovalStatus != enums.OrderApprovalStatusInsufficientInventory || result.Order.Status != enums.OrderStatusPending {
		t.Fatalf("unexpected state %s/%s", result.Order.Status, result.Order.ApprovalStatus)
	}
	if n := testdb.CountEvents(t, f.conn, enums.EventOrderInventoryShort); n != 1 {
		t.Fatalf("expected inventory short event, got %d", n)
	}

	testdb.Stock(t, f.conn, f.vehicle.ID, nil, 5)
	result, err = f.svc.Approve(ctx, ApproveInput{OrderID: order.ID, Actor: approver, Notes: "restocked"})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if result.InsufficientInventory || result.Order.Status != enums.OrderStatusApproved || result.Order.ApprovedBy == nil {
		t.Fatalf("expected approved order, got %+v", result.Order)
	}
	if testdb.Available(t, f.conn, f.vehicle.ID, nil) != 5 {
		t.Fatalf("approval must not move factory stock")
	}

	if _, err := f.svc.Approve(ctx, ApproveInput{OrderID: order.ID, Actor: approver}); !pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("second approval must fail, got %v", err)
	}
}

func TestRejectOrderRevertsCustomerBooking(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := f.order(t, 30)

	if _, err := f.svc.Reject(ctx, RejectInput{OrderID: order.ID, Actor: manager(f.dealer.ID)}); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("reason required, got %v", err)
	}
	rejected, err := f.svc.Reject(ctx, RejectInput{OrderID: order.ID, Actor: manager(f.dealer.ID), Reason: "customer withdrew"})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != enums.OrderStatusCancelled || rejected.ApprovalStatus != enums.OrderApprovalStatusRejected {
		t.Fatalf("unexpected state %s/%s", rejected.Status, rejected.ApprovalStatus)
	}
	customer := f.reloadCustomer(t)
	if !customer.TotalSpent.IsZero() || !customer.TotalDebt.IsZero() {
		t.Fatalf("rejection must revert spend and debt, got spent=%s debt=%s", customer.TotalSpent, customer.TotalDebt)
	}
	if _, err := f.svc.Reject(ctx, RejectInput{OrderID: order.ID, Actor: manager(f.dealer.ID), Reason: "again"}); !pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("cancelled order cannot be rejected again, got %v", err)
	}
	if _, err := f.svc.CreateFromApprovedQuote(ctx, CreateInput{QuoteID: order.QuoteID, Actor: f.author}); err != nil {
		t.Fatalf("a cancelled order must not block a new one: %v", err)
	}
}

func (f *fixture) approved(t *testing.T, pct int) *models.Order {
	t.Helper()
	testdb.Stock(t, f.conn, f.vehicle.ID, nil, 10)
	order := f.order(t, pct)
	result, err := f.svc.Approve(context.Background(), ApproveInput{OrderID: order.ID, Actor: manager(f.dealer.ID)})
	if err != nil || result.InsufficientInventory {
		t.Fatalf("approve order: %v %+v", err, result)
	}
	return result.Order
}

func (f *fixture) payment(t *testing.T, order *models.Order, amount int64) *models.Payment {
	t.Helper()
	payment := &models.Payment{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		DealerID:   order.DealerID,
		Method:     enums.PaymentMethodBankTransfer,
		Status:     enums.PaymentStatusCompleted,
		Amount:     decimal.NewFromInt(amount),
	}
	if err := f.conn.Create(payment).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return payment
}

func TestApplyPaymentCompletesApprovedOrderOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := f.approved(t, 30)
	payment := f.payment(t, order, 7_000_000)

	updated, err := f.svc.ApplyPayment(ctx, nil, payment)
	if err != nil {
		t.Fatalf("apply payment: %v", err)
	}
	if updated.Status != enums.OrderStatusCompleted || updated.PaymentStatus != enums.OrderPaymentStatusPaid {
		t.Fatalf("expected completed paid order, got %s/%s", updated.Status, updated.PaymentStatus)
	}
	if !updated.RemainingAmount.IsZero() {
		t.Fatalf("remaining should be zero, got %s", updated.RemainingAmount)
	}

	again, err := f.svc.ApplyPayment(ctx, nil, payment)
	if err != nil {
		t.Fatalf("replayed apply: %v", err)
	}
	if !again.PaidAmount.Equal(decimal.NewFromInt(10_000_000)) {
		t.Fatalf("payment applied twice, paid=%s", again.PaidAmount)
	}
	if !f.reloadCustomer(t).TotalDebt.IsZero() {
		t.Fatalf("customer debt should be settled")
	}
	if n := testdb.CountEvents(t, f.conn, enums.EventOrderCompleted); n != 1 {
		t.Fatalf("expected 1 order_completed event, got %d", n)
	}
}

func TestApplyPaymentGuards(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	pending := f.order(t, 0)
	partial, err := f.svc.ApplyPayment(ctx, nil, f.payment(t, pending, 5_000_000))
	if err != nil {
		t.Fatalf("apply to pending order: %v", err)
	}
	if partial.Status != enums.OrderStatusPending || partial.PaymentStatus != enums.OrderPaymentStatusPartiallyPaid {
		t.Fatalf("pending order must stay pending, got %s/%s", partial.Status, partial.PaymentStatus)
	}

	overpay := f.payment(t, pending, 6_000_000)
	if _, err := f.svc.ApplyPayment(ctx, nil, overpay); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) || !PaymentRefused(err) {
		t.Fatalf("overpayment must be refused, got %v", err)
	}
	var stored models.Payment
	f.conn.First(&stored, "id = ?", overpay.ID)
	if stored.AppliedAt != nil {
		t.Fatalf("rejected payment must stay unapplied")
	}

	if _, err := f.svc.Reject(ctx, RejectInput{OrderID: pending.ID, Actor: manager(f.dealer.ID), Reason: "cancelled"}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := f.svc.ApplyPayment(ctx, nil, f.payment(t, pending, 1_000)); !pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition) || !PaymentRefused(err) {
		t.Fatalf("cancelled order cannot take payments, got %v", err)
	}
}

func TestApplyPaymentRefusalKeepsCallerTransaction(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := f.order(t, 0)
	overpay := f.payment(t, order, 12_000_000)

	err := f.conn.Transaction(func(tx *gorm.DB) error {
		if _, err := f.svc.ApplyPayment(ctx, tx, overpay); !PaymentRefused(err) {
			t.Fatalf("expected refusal, got %v", err)
		}
		return tx.Model(&models.Payment{}).Where("id = ?", overpay.ID).Update("response_code", "00").Error
	})
	if err != nil {
		t.Fatalf("caller transaction should still commit: %v", err)
	}

	var stored models.Payment
	f.conn.First(&stored, "id = ?", overpay.ID)
	if stored.AppliedAt != nil || stored.ResponseCode == nil || *stored.ResponseCode != "00" {
		t.Fatalf("expected unapplied payment with the caller's write, got applied=%v code=%v", stored.AppliedAt, stored.ResponseCode)
	}
	var reloaded models.Order
	f.conn.First(&reloaded, "id = ?", order.ID)
	if !reloaded.PaidAmount.IsZero() {
		t.Fatalf("refused payment changed the order: paid=%s", reloaded.PaidAmount)
	}
}

func TestApproveFullyPaidOrderCompletes(t *testing.T) {
	f := newFixture(t, nil)
	testdb.Stock(t, f.conn, f.vehicle.ID, nil, 2)
	order := f.order(t, 100)
	if order.PaymentStatus != enums.OrderPaymentStatusPaid {
		t.Fatalf("full deposit should pay the order, got %s", order.PaymentStatus)
	}

	result, err := f.svc.Approve(context.Background(), ApproveInput{OrderID: order.ID, Actor: manager(f.dealer.ID)})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if result.Order.Status != enums.OrderStatusCompleted || result.Order.ApprovalStatus != enums.OrderApprovalStatusApproved {
		t.Fatalf("expected completed/approved, got %s/%s", result.Order.Status, result.Order.ApprovalStatus)
	}
}

func TestConfirmDeliveryDeductsDealerStock(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := f.approved(t, 100)
	dealerID := f.dealer.ID

	if _, err := f.svc.ConfirmDelivery(ctx, DeliveryInput{OrderID: order.ID, Actor: f.author}); !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientInventory) {
		t.Fatalf("delivery without dealer stock must fail, got %v", err)
	}

	testdb.Stock(t, f.conn, f.vehicle.ID, &dealerID, 2)
	delivered, err := f.svc.ConfirmDelivery(ctx, DeliveryInput{OrderID: order.ID, Actor: f.author})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if delivered.Status != enums.OrderStatusDelivered || delivered.DeliveredAt == nil {
		t.Fatalf("completed order should become DELIVERED, got %s", delivered.Status)
	}
	if got := testdb.Available(t, f.conn, f.vehicle.ID, &dealerID); got != 1 {
		t.Fatalf("expected 1 unit left, got %d", got)
	}
	movements, err := f.inv.ListMovements(ctx, ReferenceDelivery, order.ID)
	if err != nil || len(movements) != 1 {
		t.Fatalf("expected one delivery movement, got %d (%v)", len(movements), err)
	}
	if _, err := f.svc.ConfirmDelivery(ctx, DeliveryInput{OrderID: order.ID, Actor: f.author}); !pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("second delivery must fail, got %v", err)
	}
}

func TestConfirmDeliveryOfPendingOrderFails(t *testing.T) {
	f := newFixture(t, nil)
	order := f.order(t, 0)
	if _, err := f.svc.ConfirmDelivery(context.Background(), DeliveryInput{OrderID: order.ID, Actor: f.author}); !pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("pending order cannot be delivered, got %v", err)
	}
}

type failingInventory struct {
	Inventory
	calls  int
	failAt int
}

func (f *failingInventory) Deduct(ctx context.Context, req inventory.DeductRequest) (*models.InventoryMovement, error) {
	f.calls++
	if f.calls == f.failAt {
		return nil, errors.New("stock service unavailable")
	}
	return f.Inventory.Deduct(ctx, req)
}

func TestConfirmDeliveryCompensatesPartialDeduction(t *testing.T) {
	failing := &failingInventory{failAt: 2}
	f := newFixture(t, func(inv Inventory) Inventory {
		failing.Inventory = inv
		return failing
	})
	ctx := context.Background()
	dealerID := f.dealer.ID

	second := testdb.Vehicle(t, f.conn, decimal.NewFromInt(10_000_000), true)
	testdb.Stock(t, f.conn, f.vehicle.ID, nil, 5)
	testdb.Stock(t, f.conn, second.ID, nil, 5)
	testdb.Stock(t, f.conn, f.vehicle.ID, &dealerID, 3)
	testdb.Stock(t, f.conn, second.ID, &dealerID, 3)

	quote := f.acceptedQuote(t, enums.ApprovalRouteDealerManager,
		models.QuoteLineItem{VehicleID: f.vehicle.ID, Quantity: 1, UnitPrice: f.vehicle.ListPrice, LineTotal: f.vehicle.ListPrice},
		models.QuoteLineItem{VehicleID: second.ID, Quantity: 1, UnitPrice: second.ListPrice, LineTotal: second.ListPrice},
	)
	order, err := f.svc.CreateFromApprovedQuote(ctx, CreateInput{QuoteID: quote.ID, Actor: f.author})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := f.svc.Approve(ctx, ApproveInput{OrderID: order.ID, Actor: manager(f.dealer.ID)}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if _, err := f.svc.ConfirmDelivery(ctx, DeliveryInput{OrderID: order.ID, Actor: f.author}); err == nil {
		t.Fatal("expected delivery to fail")
	}
	if got := testdb.Available(t, f.conn, f.vehicle.ID, &dealerID); got != 3 {
		t.Fatalf("first deduction should be reversed, got %d", got)
	}
	if got := testdb.Available(t, f.conn, second.ID, &dealerID); got != 3 {
		t.Fatalf("second line must be untouched, got %d", got)
	}
	stored, err := f.svc.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != enums.OrderStatusApproved {
		t.Fatalf("order must stay approved, got %s", stored.Status)
	}

	delivered, err := f.svc.ConfirmDelivery(ctx, DeliveryInput{OrderID: order.ID, Actor: f.author})
	if err != nil {
		t.Fatalf("retry delivery: %v", err)
	}
	if delivered.Status != enums.OrderStatusDeliveredApproved {
		t.Fatalf("unpaid approved order should become DELIVERED_APPROVED, got %s", delivered.Status)
	}
}

func TestPaymentStatusFor(t *testing.T) {
	total := decimal.NewFromInt(100)
	tests := []struct {
		paid int64
		want enums.OrderPaymentStatus
	}{
		{0, enums.OrderPaymentStatusUnpaid},
		{30, enums.OrderPaymentStatusPartiallyPaid},
		{100, enums.OrderPaymentStatusPaid},
	}
	for _, tt := range tests {
		if got := PaymentStatusFor(decimal.NewFromInt(tt.paid), total); got != tt.want {
			t.Fatalf("paid %d: expected %s, got %s", tt.paid, tt.want, got)
		}
	}
	if !Portion(decimal.RequireFromString("12345678.90"), 70).Equal(decimal.RequireFromString("8641975.23")) {
		t.Fatalf("unexpected portion %s", Portion(decimal.RequireFromString("12345678.90"), 70))
	}
}
