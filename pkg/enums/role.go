package enums

import "fmt"

// Role is the actor role carried in access tokens. Tokens are issued by the
// external auth service; this API only verifies and inspects them.
type Role string

const (
	RoleUser           Role = "USER"
	RolePartnerManager Role = "PARTNER_MANAGER"
	RoleAdmin          Role = "ADMIN"
)

var validRoles = []Role{RoleUser, RolePartnerManager, RoleAdmin}

// IsValid reports whether the value matches a known role.
func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRole converts raw input into Role.
func ParseRole(value string) (Role, error) {
	for _, candidate := range validRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}
