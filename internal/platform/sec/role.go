// Copyright (c) 2026 Hilla. All rights reserved.

package sec

// # User Roles

// UserRole represents the authorization level granted to an account.
type UserRole string

const (
	// Unrestricted system access
	RoleAdmin UserRole = "admin"

	// Can curate records and manage patron issues
	RoleLibrarian UserRole = "librarian"

	// Default role for registered library patrons
	RolePatron UserRole = "patron"
)

// # Role Hierarchy

// AtLeast checks if the current role meets or exceeds the required target role.
func (r UserRole) AtLeast(target UserRole) bool {
	return r.level() >= target.level()
}

// level maps a role to a numeric hierarchy level for comparison logic.
func (r UserRole) level() int {

	// Linear scale (10-30) allows for future intermediate roles
	switch r {
	case RoleAdmin:
		return 30
	case RoleLibrarian:
		return 20
	case RolePatron:
		return 10
	default:
		return 0
	}
}
