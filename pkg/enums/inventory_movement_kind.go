package enums

import "fmt"

// InventoryMovementKind labels each committed change to an inventory record.
type InventoryMovementKind string

const (
	InventoryMovementKindDeduct      InventoryMovementKind = "DEDUCT"
	InventoryMovementKindCredit      InventoryMovementKind = "CREDIT"
	InventoryMovementKindTransferOut InventoryMovementKind = "TRANSFER_OUT"
	InventoryMovementKindTransferIn  InventoryMovementKind = "TRANSFER_IN"
	InventoryMovementKindReversal    InventoryMovementKind = "REVERSAL"
)

var validInventoryMovementKinds = []InventoryMovementKind{
	InventoryMovementKindDeduct,
	InventoryMovementKindCredit,
	InventoryMovementKindTransferOut,
	InventoryMovementKindTransferIn,
	InventoryMovementKindReversal,
}

// String implements fmt.Stringer.
func (i InventoryMovementKind) String() string {
	return string(i)
}

// IsValid reports whether the value is a known InventoryMovementKind.
func (i InventoryMovementKind) IsValid() bool {
	for _, candidate := range validInventoryMovementKinds {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseInventoryMovementKind converts raw input into an InventoryMovementKind.
func ParseInventoryMovementKind(value string) (InventoryMovementKind, error) {
	for _, candidate := range validInventoryMovementKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid inventory movement kind %q", value)
}
