package enums

import "fmt"

// ReceiptStatus tracks the payment-proof lifecycle on a settlement.
type ReceiptStatus string

const (
	ReceiptStatusNone     ReceiptStatus = "NONE"
	ReceiptStatusPending  ReceiptStatus = "PENDING"
	ReceiptStatusApproved ReceiptStatus = "APPROVED"
	ReceiptStatusRejected ReceiptStatus = "REJECTED"
)

var validReceiptStatuses = []ReceiptStatus{
	ReceiptStatusNone,
	ReceiptStatusPending,
	ReceiptStatusApproved,
	ReceiptStatusRejected,
}

// IsValid reports whether the value matches a known receipt status.
func (s ReceiptStatus) IsValid() bool {
	for _, candidate := range validReceiptStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseReceiptStatus converts raw input into ReceiptStatus.
func ParseReceiptStatus(value string) (ReceiptStatus, error) {
	for _, candidate := range validReceiptStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid receipt status %q", value)
}

// CanTransitionTo reports whether the workflow allows moving from s to next.
// NONE and REJECTED accept a new receipt (PENDING); PENDING resolves to
// APPROVED or REJECTED; APPROVED is terminal.
func (s ReceiptStatus) CanTransitionTo(next ReceiptStatus) bool {
	switch s {
	case ReceiptStatusNone, ReceiptStatusRejected:
		return next == ReceiptStatusPending
	case ReceiptStatusPending:
		return next == ReceiptStatusApproved || next == ReceiptStatusRejected
	default:
		return false
	}
}
