package enums

import "fmt"

// BalanceTransactionType tags entries in the cashback ledger. Earn entries
// carry positive amounts, spend entries carry negative amounts.
type BalanceTransactionType string

const (
	BalanceTransactionTypeCashbackEarn  BalanceTransactionType = "CASHBACK_EARN"
	BalanceTransactionTypeCashbackSpend BalanceTransactionType = "CASHBACK_SPEND"
)

var validBalanceTransactionTypes = []BalanceTransactionType{
	BalanceTransactionTypeCashbackEarn,
	BalanceTransactionTypeCashbackSpend,
}

// IsValid reports whether the value matches a known transaction type.
func (t BalanceTransactionType) IsValid() bool {
	for _, candidate := range validBalanceTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseBalanceTransactionType converts raw input into BalanceTransactionType.
func ParseBalanceTransactionType(value string) (BalanceTransactionType, error) {
	for _, candidate := range validBalanceTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid balance transaction type %q", value)
}
