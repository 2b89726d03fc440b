package enums

import "fmt"

// Capability is a workflow permission resolved once per request from the access token.
type Capability string

const (
	CapabilityDealerStaff          Capability = "DEALER_STAFF"
	CapabilityDealerManager        Capability = "DEALER_MANAGER"
	CapabilityManufacturerApprover Capability = "MANUFACTURER_APPROVER"
)

var validCapabilities = []Capability{
	CapabilityDealerStaff,
	CapabilityDealerManager,
	CapabilityManufacturerApprover,
}

// String implements fmt.Stringer.
func (c Capability) String() string {
	return string(c)
}

// IsValid reports whether the value is a known Capability.
func (c Capability) IsValid() bool {
	for _, candidate := range validCapabilities {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCapability converts raw input into a Capability.
func ParseCapability(value string) (Capability, error) {
	for _, candidate := range validCapabilities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid capability %q", value)
}
