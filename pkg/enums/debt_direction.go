package enums

import "fmt"

type DebtDirection string

const (
	DebtDirectionIncrease   DebtDirection = "INCREASE"
	DebtDirectionDecrease   DebtDirection = "DECREASE"
	DebtDirectionAdjustment DebtDirection = "ADJUSTMENT"
)

var validDebtDirections = []DebtDirection{
	DebtDirectionIncrease,
	DebtDirectionDecrease,
	DebtDirectionAdjustment,
}

// String implements fmt.Stringer.
func (d DebtDirection) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DebtDirection.
func (d DebtDirection) IsValid() bool {
	for _, candidate := range validDebtDirections {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDebtDirection converts raw input into a DebtDirection.
func ParseDebtDirection(value string) (DebtDirection, error) {
	for _, candidate := range validDebtDirections {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid debt direction %q", value)
}
