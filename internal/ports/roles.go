package ports

import (
	"fmt"
	"strings"
)

// Role is the closed set of caller roles. The zero value is not a valid role.
type Role uint8

const (
	RoleEmployee Role = iota + 1
	RoleManager
	RoleAdmin
)

// Roles lists every valid role, lowest privilege first.
var Roles = []Role{RoleEmployee, RoleManager, RoleAdmin}

func (r Role) String() string {
	switch r {
	case RoleEmployee:
		return "employee"
	case RoleManager:
		return "manager"
	case RoleAdmin:
		return "admin"
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool { return r >= RoleEmployee && r <= RoleAdmin }

// IsApprover reports whether the role can decide approvals.
func (r Role) IsApprover() bool { return r == RoleManager || r == RoleAdmin }

// NormalizeRole maps a stored or submitted role name onto the closed set.
// The legacy name "user" is an employee.
func NormalizeRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "employee", "user":
		return RoleEmployee, nil
	case "manager":
		return RoleManager, nil
	case "admin":
		return RoleAdmin, nil
	}
	return 0, Validation("invalid_role", fmt.Sprintf("unknown role %q", raw))
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	v, err := NormalizeRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
