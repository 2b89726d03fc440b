package enums

import "fmt"

type OrderApprovalStatus string

const (
	OrderApprovalStatusPendingApproval       OrderApprovalStatus = "PENDING_APPROVAL"
	OrderApprovalStatusApproved              OrderApprovalStatus = "APPROVED"
	OrderApprovalStatusRejected              OrderApprovalStatus = "REJECTED"
	OrderApprovalStatusInsufficientInventory OrderApprovalStatus = "INSUFFICIENT_INVENTORY"
)

var validOrderApprovalStatuses = []OrderApprovalStatus{
	OrderApprovalStatusPendingApproval,
	OrderApprovalStatusApproved,
	OrderApprovalStatusRejected,
	OrderApprovalStatusInsufficientInventory,
}

// String implements fmt.Stringer.
func (o OrderApprovalStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderApprovalStatus.
func (o OrderApprovalStatus) IsValid() bool {
	for _, candidate := range validOrderApprovalStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderApprovalStatus converts raw input into an OrderApprovalStatus.
func ParseOrderApprovalStatus(value string) (OrderApprovalStatus, error) {
	for _, candidate := range validOrderApprovalStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order approval status %q", value)
}
