package enums

import "fmt"

// QuoteApprovalStatus tracks where a quote sits in the approval workflow.
type QuoteApprovalStatus string

const (
	QuoteApprovalStatusDraft                 QuoteApprovalStatus = "DRAFT"
	QuoteApprovalStatusPendingDealerManager  QuoteApprovalStatus = "PENDING_DEALER_MANAGER_APPROVAL"
	QuoteApprovalStatusPendingEVM            QuoteApprovalStatus = "PENDING_EVM_APPROVAL"
	QuoteApprovalStatusApproved              QuoteApprovalStatus = "APPROVED"
	QuoteApprovalStatusRejected              QuoteApprovalStatus = "REJECTED"
	QuoteApprovalStatusInsufficientInventory QuoteApprovalStatus = "INSUFFICIENT_INVENTORY"
)

var validQuoteApprovalStatuses = []QuoteApprovalStatus{
	QuoteApprovalStatusDraft,
	QuoteApprovalStatusPendingDealerManager,
	QuoteApprovalStatusPendingEVM,
	QuoteApprovalStatusApproved,
	QuoteApprovalStatusRejected,
	QuoteApprovalStatusInsufficientInventory,
}

// String implements fmt.Stringer.
func (q QuoteApprovalStatus) String() string {
	return string(q)
}

// IsValid reports whether the value is a known QuoteApprovalStatus.
func (q QuoteApprovalStatus) IsValid() bool {
	for _, candidate := range validQuoteApprovalStatuses {
		if candidate == q {
			return true
		}
	}
	return false
}

// ParseQuoteApprovalStatus converts raw input into a QuoteApprovalStatus.
func ParseQuoteApprovalStatus(value string) (QuoteApprovalStatus, error) {
	for _, candidate := range validQuoteApprovalStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid quote approval status %q", value)
}
