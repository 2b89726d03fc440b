package metrics

import "github.com/prometheus/client_golang/prometheus"

// WorkflowMetrics counts business transitions across the quote-to-order pipeline.
type WorkflowMetrics struct {
	quoteTransitions   *prometheus.CounterVec
	orderTransitions   *prometheus.CounterVec
	paymentCallbacks   *prometheus.CounterVec
	inventoryMovements *prometheus.CounterVec
	auditDropped       prometheus.Counter
}

// NewWorkflowMetrics registers the workflow counters. A nil registerer yields a no-op value.
func NewWorkflowMetrics(reg prometheus.Registerer) *WorkflowMetrics {
	if reg == nil {
		return &WorkflowMetrics{}
	}
	quotes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quote_transitions_total",
		Help:      "Quote approval status transitions by target status.",
	}, []string{"status"})
	orders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_transitions_total",
		Help:      "Order status transitions by target status.",
	}, []string{"status"})
	callbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_callbacks_total",
		Help:      "Payment gateway callbacks by outcome.",
	}, []string{"outcome"})
	inventory := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inventory_movements_total",
		Help:      "Committed inventory movements by pool and kind.",
	}, []string{"pool", "kind"})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_records_dropped_total",
		Help:      "Audit records dropped because the dispatch buffer was full.",
	})
	reg.MustRegister(quotes, orders, callbacks, inventory, dropped)
	return &WorkflowMetrics{
		quoteTransitions:   quotes,
		orderTransitions:   orders,
		paymentCallbacks:   callbacks,
		inventoryMovements: inventory,
		auditDropped:       dropped,
	}
}

func (m *WorkflowMetrics) QuoteTransition(status string) {
	if m == nil || m.quoteTransitions == nil {
		return
	}
	m.quoteTransitions.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *WorkflowMetrics) OrderTransition(status string) {
	if m == nil || m.orderTransitions == nil {
		return
	}
	m.orderTransitions.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *WorkflowMetrics) PaymentCallback(outcome string) {
	if m == nil || m.paymentCallbacks == nil {
		return
	}
	m.paymentCallbacks.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *WorkflowMetrics) InventoryMovement(pool, kind string) {
	if m == nil || m.inventoryMovements == nil {
		return
	}
	m.inventoryMovements.WithLabelValues(normalizeLabel(pool), normalizeLabel(kind)).Inc()
}

// AuditDropped satisfies the audit dispatcher's drop counter.
func (m *WorkflowMetrics) AuditDropped() {
	if m == nil || m.auditDropped == nil {
		return
	}
	m.auditDropped.Inc()
}
