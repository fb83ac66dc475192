package enums

import "fmt"

// PartnerType distinguishes the kinds of partner a visit can be recorded at.
// The type selects the pricing mode: service centers always itemize, auto
// shops always use a flat sale amount, car washes itemize only when a service
// list is supplied.
type PartnerType string

const (
	PartnerTypeServiceCenter PartnerType = "SERVICE_CENTER"
	PartnerTypeAutoShop      PartnerType = "AUTO_SHOP"
	PartnerTypeCarWash       PartnerType = "CAR_WASH"
)

var validPartnerTypes = []PartnerType{
	PartnerTypeServiceCenter,
	PartnerTypeAutoShop,
	PartnerTypeCarWash,
}

// IsValid reports whether the value matches a known partner type.
func (t PartnerType) IsValid() bool {
	for _, candidate := range validPartnerTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParsePartnerType converts raw input into PartnerType.
func ParsePartnerType(value string) (PartnerType, error) {
	for _, candidate := range validPartnerTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid partner type %q", value)
}
