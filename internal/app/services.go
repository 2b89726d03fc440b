package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/evdms/dealer-backend/internal/audit"
	"github.com/evdms/dealer-backend/internal/debt"
	"github.com/evdms/dealer-backend/internal/installments"
	"github.com/evdms/dealer-backend/internal/inventory"
	"github.com/evdms/dealer-backend/internal/orders"
	"github.com/evdms/dealer-backend/internal/payments"
	"github.com/evdms/dealer-backend/internal/quotes"
	"github.com/evdms/dealer-backend/pkg/config"
	"github.com/evdms/dealer-backend/pkg/db"
	"github.com/evdms/dealer-backend/pkg/logger"
	"github.com/evdms/dealer-backend/pkg/metrics"
	"github.com/evdms/dealer-backend/pkg/outbox"
	"github.com/evdms/dealer-backend/pkg/outbox/idempotency"
	"github.com/evdms/dealer-backend/pkg/pubsub"
	"github.com/evdms/dealer-backend/pkg/redis"
	"github.com/evdms/dealer-backend/pkg/vnpay"
)

// Infra holds the already-connected clients the services are built on.
type Infra struct {
	DB         *db.Client
	Redis      *redis.Client
	PubSub     *pubsub.Client
	Registerer prometheus.Registerer
}

// Services is the wired workflow graph shared by the api and cron binaries.
type Services struct {
	Outbox       *outbox.Service
	OutboxRepo   *outbox.Repository
	Audit        *audit.Dispatcher
	Metrics      *metrics.WorkflowMetrics
	Debt         *debt.Service
	Inventory    *inventory.Service
	Quotes       quotes.Service
	Orders       orders.Service
	Payments     payments.Service
	Installments installments.Service
}

// Build wires every service. The caller must Close the result to flush audit records.
func Build(cfg *config.Config, logg *logger.Logger, infra Infra) (*Services, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if infra.DB == nil {
		return nil, errors.New("database client is required")
	}
	reg := infra.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	workflowMetrics := metrics.NewWorkflowMetrics(reg)
	dispatcher, err := newAuditDispatcher(cfg, logg, infra.PubSub, workflowMetrics)
	if err != nil {
		return nil, err
	}

	conn := infra.DB.DB()
	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, logg)

	debtSvc, err := debt.NewService(infra.DB, debt.NewRepository(conn), emitter, logg)
	if err != nil {
		return nil, fmt.Errorf("debt service: %w", err)
	}

	invOpts := []inventory.Option{
		inventory.WithDealerDebt(debtSvc),
		inventory.WithMetrics(workflowMetrics),
	}
	if cfg.FeatureFlags.InventoryLocks {
		if infra.Redis == nil {
			return nil, errors.New("inventory locks require a redis client")
		}
		locker, err := redis.NewLocker(infra.Redis, cfg.Inventory.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("inventory locker: %w", err)
		}
		invOpts = append(invOpts, inventory.WithLocker(locker))
	}
	inventorySvc, err := inventory.NewService(infra.DB, inventory.NewRepository(conn), emitter, logg, invOpts...)
	if err != nil {
		return nil, fmt.Errorf("inventory service: %w", err)
	}

	policy := quotes.PolicyFromConfig(cfg.Quote)
	quotesSvc, err := quotes.NewService(quotes.NewRepository(conn), infra.DB, emitter, inventorySvc, policy, logg,
		quotes.WithAudit(dispatcher),
		quotes.WithMetrics(workflowMetrics),
	)
	if err != nil {
		return nil, fmt.Errorf("quote service: %w", err)
	}

	ordersSvc, err := orders.NewService(orders.NewRepository(conn), infra.DB, emitter, inventorySvc, debtSvc, logg,
		orders.WithAudit(dispatcher),
		orders.WithMetrics(workflowMetrics),
		orders.WithPolicy(policy),
	)
	if err != nil {
		return nil, fmt.Errorf("order service: %w", err)
	}

	gateway, err := vnpay.NewClient(cfg.VNPay)
	if err != nil {
		return nil, fmt.Errorf("vnpay client: %w", err)
	}
	payOpts := []payments.Option{
		payments.WithAudit(dispatcher),
		payments.WithMetrics(workflowMetrics),
	}
	if infra.Redis != nil {
		dedup, err := idempotency.NewManager(infra.Redis, cfg.Eventing.CallbackIdempotencyTTL)
		if err != nil {
			return nil, fmt.Errorf("callback deduplicator: %w", err)
		}
		payOpts = append(payOpts, payments.WithDeduplicator(dedup))
	}
	paymentsSvc, err := payments.NewService(payments.NewRepository(conn), infra.DB, emitter, ordersSvc, gateway, logg, payOpts...)
	if err != nil {
		return nil, fmt.Errorf("payment service: %w", err)
	}

	installmentsSvc, err := installments.NewService(installments.NewRepository(conn), infra.DB, emitter, ordersSvc, logg,
		installments.WithAudit(dispatcher),
		installments.WithLimits(cfg.Installment.MaxMonths, cfg.Installment.DefaultAnnualRate),
	)
	if err != nil {
		return nil, fmt.Errorf("installment service: %w", err)
	}

	dispatcher.Start()
	return &Services{
		Outbox:       emitter,
		OutboxRepo:   outboxRepo,
		Audit:        dispatcher,
		Metrics:      workflowMetrics,
		Debt:         debtSvc,
		Inventory:    inventorySvc,
		Quotes:       quotesSvc,
		Orders:       ordersSvc,
		Payments:     paymentsSvc,
		Installments: installmentsSvc,
	}, nil
}

// Close drains the audit dispatcher.
func (s *Services) Close(ctx context.Context) error {
	if s == nil || s.Audit == nil {
		return nil
	}
	return s.Audit.Close(ctx)
}

func newAuditDispatcher(cfg *config.Config, logg *logger.Logger, ps *pubsub.Client, m *metrics.WorkflowMetrics) (*audit.Dispatcher, error) {
	sinks := []audit.Sink{audit.NewLogSink(logg)}
	if cfg.FeatureFlags.PubSubAudit {
		if ps == nil {
			return nil, errors.New("pubsub audit requires a pubsub client")
		}
		sink, err := audit.NewPubSubSink(ps.AuditPublisher())
		if err != nil {
			return nil, fmt.Errorf("audit pubsub sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	dispatcher, err := audit.NewDispatcher(logg, cfg.Audit.BufferSize, m, sinks...)
	if err != nil {
		return nil, fmt.Errorf("audit dispatcher: %w", err)
	}
	return dispatcher, nil
}

// CloseAll closes the infra clients, collecting every failure.
func CloseAll(infra Infra) error {
	var err error
	if infra.PubSub != nil {
		err = multierr.Append(err, infra.PubSub.Close())
	}
	if infra.Redis != nil {
		err = multierr.Append(err, infra.Redis.Close())
	}
	if infra.DB != nil {
		err = multierr.Append(err, infra.DB.Close())
	}
	return err
}
