package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox row belongs to.
type OutboxAggregateType string

const (
	AggregateQuote           OutboxAggregateType = "quote"
	AggregateOrder           OutboxAggregateType = "order"
	AggregatePayment         OutboxAggregateType = "payment"
	AggregateInventoryRecord OutboxAggregateType = "inventory_record"
	AggregateCustomer        OutboxAggregateType = "customer"
	AggregateDealer          OutboxAggregateType = "dealer"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateQuote,
	AggregateOrder,
	AggregatePayment,
	AggregateInventoryRecord,
	AggregateCustomer,
	AggregateDealer,
}

func (a OutboxAggregateType) String() string {
	return string(a)
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType is the event name stored on each outbox row and forwarded as a Pub/Sub attribute.
type OutboxEventType string

const (
	EventQuoteCreated           OutboxEventType = "quote_created"
	EventQuoteSubmitted         OutboxEventType = "quote_submitted"
	EventQuoteApproved          OutboxEventType = "quote_approved"
	EventQuoteRejected          OutboxEventType = "quote_rejected"
	EventQuoteInventoryShort    OutboxEventType = "quote_inventory_short"
	EventQuoteAccepted          OutboxEventType = "quote_accepted"
	EventQuoteDeclined          OutboxEventType = "quote_declined"
	EventQuoteExpired           OutboxEventType = "quote_expired"
	EventOrderCreated           OutboxEventType = "order_created"
	EventOrderApproved          OutboxEventType = "order_approved"
	EventOrderRejected          OutboxEventType = "order_rejected"
	EventOrderInventoryShort    OutboxEventType = "order_inventory_short"
	EventOrderDelivered         OutboxEventType = "order_delivered"
	EventOrderCompleted         OutboxEventType = "order_completed"
	EventPaymentInitiated       OutboxEventType = "payment_initiated"
	EventPaymentCompleted       OutboxEventType = "payment_completed"
	EventPaymentFailed          OutboxEventType = "payment_failed"
	EventInstallmentPlanCreated OutboxEventType = "installment_plan_created"
	EventInstallmentPaid        OutboxEventType = "installment_paid"
	EventInstallmentOverdue     OutboxEventType = "installment_overdue"
	EventInventoryDeducted      OutboxEventType = "inventory_deducted"
	EventInventoryTransferred   OutboxEventType = "inventory_transferred"
	EventInventoryReversed      OutboxEventType = "inventory_reversed"
	EventInventoryRestocked     OutboxEventType = "inventory_restocked"
	EventCustomerDebtAdjusted   OutboxEventType = "customer_debt_adjusted"
	EventDealerDebtAdjusted     OutboxEventType = "dealer_debt_adjusted"
)

var validOutboxEventTypes = []OutboxEventType{
	EventQuoteCreated,
	EventQuoteSubmitted,
	EventQuoteApproved,
	EventQuoteRejected,
	EventQuoteInventoryShort,
	EventQuoteAccepted,
	EventQuoteDeclined,
	EventQuoteExpired,
	EventOrderCreated,
	EventOrderApproved,
	EventOrderRejected,
	EventOrderInventoryShort,
	EventOrderDelivered,
	EventOrderCompleted,
	EventPaymentInitiated,
	EventPaymentCompleted,
	EventPaymentFailed,
	EventInstallmentPlanCreated,
	EventInstallmentPaid,
	EventInstallmentOverdue,
	EventInventoryDeducted,
	EventInventoryTransferred,
	EventInventoryReversed,
	EventInventoryRestocked,
	EventCustomerDebtAdjusted,
	EventDealerDebtAdjusted,
}

func (e OutboxEventType) String() string {
	return string(e)
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
