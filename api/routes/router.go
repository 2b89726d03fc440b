package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evdms/dealer-backend/api/controllers"
	"github.com/evdms/dealer-backend/api/middleware"
	"github.com/evdms/dealer-backend/internal/installments"
	"github.com/evdms/dealer-backend/internal/orders"
	"github.com/evdms/dealer-backend/internal/payments"
	"github.com/evdms/dealer-backend/internal/quotes"
	"github.com/evdms/dealer-backend/pkg/config"
	"github.com/evdms/dealer-backend/pkg/enums"
	"github.com/evdms/dealer-backend/pkg/logger"
	pkgredis "github.com/evdms/dealer-backend/pkg/redis"
)

// Store backs idempotency replay and rate limiting.
type Store interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Deps are the services the HTTP surface dispatches to.
type Deps struct {
	DB           controllers.Pinger
	Redis        controllers.Pinger
	Store        Store
	Metrics      prometheus.Gatherer
	Quotes       quotes.Service
	Orders       orders.Service
	Payments     payments.Service
	Installments installments.Service
	Inventory    controllers.InventoryService
	Debt         controllers.DebtService
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	gatewayPolicy := middleware.NewRateLimitPolicy("vnpay", cfg.RateLimit.Window, cfg.RateLimit.GatewayIP, 0)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})
	r.Handle("/metrics", metricsHandler(deps.Metrics))

	r.Route("/api/v1", func(r chi.Router) {
		// The gateway authenticates with the signed query string, not a bearer token.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(gatewayPolicy, deps.Store, logg))
			r.Get("/payments/vnpay/return", controllers.VNPayReturn(deps.Payments, logg))
			r.Get("/payments/vnpay/ipn", controllers.VNPayIPN(deps.Payments, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			authenticatedRoutes(r, cfg, logg, deps)
		})
	})

	return r
}

func authenticatedRoutes(r chi.Router, cfg *config.Config, logg *logger.Logger, deps Deps) {
	paymentPolicy := middleware.NewRateLimitPolicy("payments", cfg.RateLimit.Window, cfg.RateLimit.PaymentIP, cfg.RateLimit.PaymentUser)
	paymentLimit := middleware.RateLimit(paymentPolicy, deps.Store, logg)
	idem := func(ttl time.Duration) func(http.Handler) http.Handler {
		return middleware.Idempotency(deps.Store, ttl, logg)
	}
	standard := idem(middleware.DefaultIdempotencyTTL)
	critical := idem(middleware.CriticalIdempotencyTTL)

	staff := middleware.RequireCapability(logg, enums.CapabilityDealerStaff, enums.CapabilityDealerManager)
	approver := middleware.RequireCapability(logg, enums.CapabilityDealerManager, enums.CapabilityManufacturerApprover)
	manufacturer := middleware.RequireCapability(logg, enums.CapabilityManufacturerApprover)
	anyRole := middleware.RequireCapability(logg, enums.CapabilityDealerStaff, enums.CapabilityDealerManager, enums.CapabilityManufacturerApprover)

	r.Route("/quotes", func(r chi.Router) {
		r.With(staff, standard).Post("/", controllers.QuoteCreate(deps.Quotes, logg))
		r.With(anyRole).Get("/{quoteId}", controllers.QuoteDetail(deps.Quotes, logg))
		r.With(staff, standard).Post("/{quoteId}/submit", controllers.QuoteSubmit(deps.Quotes, logg))
		r.With(approver, standard).Post("/{quoteId}/approve", controllers.QuoteApprove(deps.Quotes, logg))
		r.With(approver, standard).Post("/{quoteId}/reject", controllers.QuoteReject(deps.Quotes, logg))
		r.With(anyRole).Get("/{quoteId}/inventory-check", controllers.QuoteInventoryCheck(deps.Quotes, logg))
		r.With(staff, standard).Post("/{quoteId}/accept", controllers.QuoteAccept(deps.Quotes, logg))
		r.With(staff, standard).Post("/{quoteId}/decline", controllers.QuoteDecline(deps.Quotes, logg))
	})

	r.Route("/orders", func(r chi.Router) {
		r.With(staff, critical).Post("/", controllers.OrderCreate(deps.Orders, logg))
		r.With(anyRole).Get("/{orderId}", controllers.OrderDetail(deps.Orders, deps.Payments, logg))
		r.With(approver, standard).Post("/{orderId}/approve", controllers.OrderApprove(deps.Orders, logg))
		r.With(approver, standard).Post("/{orderId}/reject", controllers.OrderReject(deps.Orders, logg))
		r.With(staff, standard).Post("/{orderId}/deliver", controllers.OrderDeliver(deps.Orders, logg))
		r.With(staff, paymentLimit, critical).Post("/{orderId}/payments", controllers.OrderPayment(deps.Payments, logg))
	})

	r.Route("/payments/{paymentId}", func(r chi.Router) {
		r.With(anyRole).Get("/", controllers.PaymentDetail(deps.Payments, logg))
		r.With(staff, standard).Post("/installments", controllers.InstallmentPlanCreate(deps.Installments, logg))
		r.With(anyRole).Get("/installments", controllers.InstallmentList(deps.Installments, deps.Payments, logg))
	})
	r.With(staff, paymentLimit, critical).Post("/installments/{installmentId}/pay", controllers.InstallmentPay(deps.Installments, logg))

	r.Route("/inventory", func(r chi.Router) {
		r.With(approver, standard).Post("/restock", controllers.InventoryRestock(deps.Inventory, logg))
		r.With(manufacturer, standard).Post("/transfer", controllers.InventoryTransfer(deps.Inventory, logg))
		r.With(manufacturer).Get("/movements", controllers.InventoryMovements(deps.Inventory, logg))
		r.With(manufacturer, standard).Post("/movements/{movementId}/reverse", controllers.InventoryReverse(deps.Inventory, logg))
	})

	r.Route("/customers/{customerId}/debt", func(r chi.Router) {
		r.With(anyRole).Get("/", controllers.CustomerDebt(deps.Debt, logg))
		r.With(approver, standard).Post("/reconcile", controllers.CustomerDebtReconcile(deps.Debt, logg))
	})

	r.Route("/dealers/{dealerId}/debt", func(r chi.Router) {
		r.With(anyRole).Get("/", controllers.DealerDebt(deps.Debt, logg))
		r.With(approver, critical).Post("/settlements", controllers.DealerDebtSettlement(deps.Debt, logg))
	})
}

func metricsHandler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
