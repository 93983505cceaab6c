package enums

import "fmt"

// StaffRole scopes what a signed-in staff token may do.
type StaffRole string

const (
	StaffRoleAdmin StaffRole = "admin"
	StaffRoleDoor  StaffRole = "door"
)

// IsValid reports whether the value is a known StaffRole.
func (r StaffRole) IsValid() bool {
	return r == StaffRoleAdmin || r == StaffRoleDoor
}

// ParseStaffRole converts raw input into a StaffRole.
func ParseStaffRole(value string) (StaffRole, error) {
	role := StaffRole(value)
	if !role.IsValid() {
		return "", fmt.Errorf("invalid staff role %q", value)
	}
	return role, nil
}
