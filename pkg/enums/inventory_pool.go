package enums

import "fmt"

// InventoryPool distinguishes the manufacturer-wide stock from per-dealer stock.
type InventoryPool string

const (
	InventoryPoolFactory InventoryPool = "FACTORY"
	InventoryPoolDealer  InventoryPool = "DEALER"
)

var validInventoryPools = []InventoryPool{
	InventoryPoolFactory,
	InventoryPoolDealer,
}

// String implements fmt.Stringer.
func (i InventoryPool) String() string {
	return string(i)
}

// IsValid reports whether the value is a known InventoryPool.
func (i InventoryPool) IsValid() bool {
	for _, candidate := range validInventoryPools {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseInventoryPool converts raw input into an InventoryPool.
func ParseInventoryPool(value string) (InventoryPool, error) {
	for _, candidate := range validInventoryPools {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid inventory pool %q", value)
}
