package enums

import "fmt"

// StaffRole maps to the staff_role enum in Postgres.
type StaffRole string

const (
	StaffRoleOwner        StaffRole = "owner"
	StaffRoleAdmin        StaffRole = "admin"
	StaffRolePractitioner StaffRole = "practitioner"
	StaffRoleFrontDesk    StaffRole = "front_desk"
)

var validStaffRoles = []StaffRole{
	StaffRoleOwner,
	StaffRoleAdmin,
	StaffRolePractitioner,
	StaffRoleFrontDesk,
}

// String implements fmt.Stringer.
func (r StaffRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known StaffRole.
func (r StaffRole) IsValid() bool {
	for _, candidate := range validStaffRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseStaffRole converts raw input into a StaffRole.
func ParseStaffRole(value string) (StaffRole, error) {
	for _, candidate := range validStaffRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid staff role %q", value)
}
