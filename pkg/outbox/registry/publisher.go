package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/evdms/dealer-backend/pkg/config"
	"github.com/evdms/dealer-backend/pkg/db/models"
	"github.com/evdms/dealer-backend/pkg/enums"
	"github.com/evdms/dealer-backend/pkg/outbox"
	"github.com/evdms/dealer-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry. Every domain event is routed to the domain topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.DomainTopic == "" {
		return nil, fmt.Errorf("domain topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	topic := cfg.DomainTopic

	quoteEvent := func() interface{} { return &payloads.QuoteEvent{} }
	orderEvent := func() interface{} { return &payloads.OrderEvent{} }
	paymentEvent := func() interface{} { return &payloads.PaymentEvent{} }
	installmentEvent := func() interface{} { return &payloads.InstallmentEvent{} }
	inventoryEvent := func() interface{} { return &payloads.InventoryEvent{} }
	debtEvent := func() interface{} { return &payloads.DebtEvent{} }
	shortEvent := func() interface{} { return &payloads.InventoryShortEvent{} }

	for _, eventType := range []enums.OutboxEventType{
		enums.EventQuoteCreated,
		enums.EventQuoteSubmitted,
		enums.EventQuoteApproved,
		enums.EventQuoteRejected,
		enums.EventQuoteAccepted,
		enums.EventQuoteDeclined,
		enums.EventQuoteExpired,
	} {
		reg.register(EventDescriptor{EventType: eventType, AggregateType: enums.AggregateQuote, Topic: topic, PayloadFactory: quoteEvent})
	}
	reg.register(EventDescriptor{EventType: enums.EventQuoteInventoryShort, AggregateType: enums.AggregateQuote, Topic: topic, PayloadFactory: shortEvent})

	for _, eventType := range []enums.OutboxEventType{
		enums.EventOrderCreated,
		enums.EventOrderApproved,
		enums.EventOrderRejected,
		enums.EventOrderDelivered,
		enums.EventOrderCompleted,
	} {
		reg.register(EventDescriptor{EventType: eventType, AggregateType: enums.AggregateOrder, Topic: topic, PayloadFactory: orderEvent})
	}
	reg.register(EventDescriptor{EventType: enums.EventOrderInventoryShort, AggregateType: enums.AggregateOrder, Topic: topic, PayloadFactory: shortEvent})

	for _, eventType := range []enums.OutboxEventType{
		enums.EventPaymentInitiated,
		enums.EventPaymentCompleted,
		enums.EventPaymentFailed,
	} {
		reg.register(EventDescriptor{EventType: eventType, AggregateType: enums.AggregatePayment, Topic: topic, PayloadFactory: paymentEvent})
	}
	for _, eventType := range []enums.OutboxEventType{
		enums.EventInstallmentPlanCreated,
		enums.EventInstallmentPaid,
		enums.EventInstallmentOverdue,
	} {
		reg.register(EventDescriptor{EventType: eventType, AggregateType: enums.AggregatePayment, Topic: topic, PayloadFactory: installmentEvent})
	}
	for _, eventType := range []enums.OutboxEventType{
		enums.EventInventoryDeducted,
		enums.EventInventoryTransferred,
		enums.EventInventoryReversed,
		enums.EventInventoryRestocked,
	} {
		reg.register(EventDescriptor{EventType: eventType, AggregateType: enums.AggregateInventoryRecord, Topic: topic, PayloadFactory: inventoryEvent})
	}
	reg.register(EventDescriptor{EventType: enums.EventCustomerDebtAdjusted, AggregateType: enums.AggregateCustomer, Topic: topic, PayloadFactory: debtEvent})
	reg.register(EventDescriptor{EventType: enums.EventDealerDebtAdjusted, AggregateType: enums.AggregateDealer, Topic: topic, PayloadFactory: debtEvent})

	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if payload == nil {
		return nil, NewNonRetryableError(fmt.Errorf("payload factory not configured for %s", event.EventType))
	}
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
