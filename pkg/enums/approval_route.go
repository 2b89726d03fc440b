package enums

import "fmt"

// ApprovalRoute selects which approver and which inventory pool gate a quote.
type ApprovalRoute string

const (
	ApprovalRouteDealerManager ApprovalRoute = "DEALER_MANAGER"
	ApprovalRouteManufacturer  ApprovalRoute = "MANUFACTURER"
)

var validApprovalRoutes = []ApprovalRoute{
	ApprovalRouteDealerManager,
	ApprovalRouteManufacturer,
}

// String implements fmt.Stringer.
func (a ApprovalRoute) String() string {
	return string(a)
}

// IsValid reports whether the value is a known ApprovalRoute.
func (a ApprovalRoute) IsValid() bool {
	for _, candidate := range validApprovalRoutes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseApprovalRoute converts raw input into an ApprovalRoute.
func ParseApprovalRoute(value string) (ApprovalRoute, error) {
	for _, candidate := range validApprovalRoutes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid approval route %q", value)
}
