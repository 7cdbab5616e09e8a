package enums

import "fmt"

// BalanceOperation is the direction a ledger entry moves a balance.
type BalanceOperation string

const (
	BalanceOperationAdd      BalanceOperation = "add"
	BalanceOperationSubtract BalanceOperation = "subtract"
)

var validBalanceOperations = []BalanceOperation{
	BalanceOperationAdd,
	BalanceOperationSubtract,
}

// String implements fmt.Stringer.
func (o BalanceOperation) String() string {
	return string(o)
}

// IsValid reports whether the value is a known BalanceOperation.
func (o BalanceOperation) IsValid() bool {
	for _, candidate := range validBalanceOperations {
		if candidate == o {
			return true
		}
	}
	return false
}

// Sign returns +1 for add and -1 for subtract.
func (o BalanceOperation) Sign() int64 {
	if o == BalanceOperationSubtract {
		return -1
	}
	return 1
}

// ParseBalanceOperation converts raw input into a BalanceOperation.
func ParseBalanceOperation(value string) (BalanceOperation, error) {
	for _, candidate := range validBalanceOperations {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid balance operation %q", value)
}
