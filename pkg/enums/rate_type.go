package enums

import "fmt"

// RateType selects how a catalog service's commission or cashback value is
// interpreted: a percentage of the base, or a fixed amount.
type RateType string

const (
	RateTypePercent RateType = "percent"
	RateTypeFixed   RateType = "fixed"
)

var validRateTypes = []RateType{RateTypePercent, RateTypeFixed}

// IsValid reports whether the value matches a known rate type.
func (t RateType) IsValid() bool {
	for _, candidate := range validRateTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseRateType converts raw input into RateType.
func ParseRateType(value string) (RateType, error) {
	for _, candidate := range validRateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid rate type %q", value)
}
