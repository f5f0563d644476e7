package rbac

import (
	"fmt"
	"strings"
	"time"

	"github.com/taxpilot/taxpilot/internal/shared"
)

// Role is the coarse-grained identity category of a user.
type Role string

// Known roles, lowest rank first.
const (
	RoleClient    Role = "client"
	RoleAgent     Role = "agent"
	RoleTaxOffice Role = "tax_office"
	RoleAdmin     Role = "admin"
)

// legacySuperAdmin is accepted on input and folded into RoleAdmin.
const legacySuperAdmin = "super_admin"

var roleRanks = map[Role]int{
	RoleClient:    1,
	RoleAgent:     2,
	RoleTaxOffice: 3,
	RoleAdmin:     4,
}

// Roles returns every known role ordered by rank.
func Roles() []Role {
	return []Role{RoleClient, RoleAgent, RoleTaxOffice, RoleAdmin}
}

// ParseRole normalises raw input into a known Role.
func ParseRole(raw string) (Role, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == legacySuperAdmin {
		return RoleAdmin, nil
	}
	role := Role(value)
	if !role.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", shared.ErrValidation, raw)
	}
	return role, nil
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// Rank returns the ordinal of r, zero for unknown roles.
func (r Role) Rank() int {
	return roleRanks[r]
}

// HasMinimumRole reports whether role ranks at or above required.
func HasMinimumRole(role, required Role) bool {
	rank := role.Rank()
	return rank > 0 && rank >= required.Rank()
}

// Permission is an entry of the fixed capability catalog.
type Permission struct {
	ID          int64  `json:"id"`
	Slug        string `json:"slug"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Group       string `json:"group"`
	SortOrder   int    `json:"sortOrder"`
}

// RolePermission is a stored (role, permission) grant row.
type RolePermission struct {
	Role      Role
	Slug      string
	Granted   bool
	UpdatedAt time.Time
}

// Matrix is the full role x permission view for administration screens.
type Matrix struct {
	Permissions []Permission             `json:"permissions"`
	Matrix      map[Role]map[string]bool `json:"matrix"`
}
