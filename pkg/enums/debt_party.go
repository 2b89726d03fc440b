package enums

import "fmt"

// DebtPartyType identifies whose balance a debt entry touches.
type DebtPartyType string

const (
	DebtPartyTypeCustomer DebtPartyType = "CUSTOMER"
	DebtPartyTypeDealer   DebtPartyType = "DEALER"
)

var validDebtPartyTypes = []DebtPartyType{
	DebtPartyTypeCustomer,
	DebtPartyTypeDealer,
}

// String implements fmt.Stringer.
func (d DebtPartyType) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DebtPartyType.
func (d DebtPartyType) IsValid() bool {
	for _, candidate := range validDebtPartyTypes {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDebtPartyType converts raw input into a DebtPartyType.
func ParseDebtPartyType(value string) (DebtPartyType, error) {
	for _, candidate := range validDebtPartyTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid debt party type %q", value)
}
