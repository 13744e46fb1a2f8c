package auth

import (
	"slices"
	"strings"
	"time"
)

// Role is a coarse access level.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleStaff   Role = "staff"
	RoleUser    Role = "user"
)

// Roles lists the assignable roles, least privileged first.
var Roles = []Role{RoleUser, RoleStaff, RoleManager, RoleAdmin}

// ParseRole validates a role name.
func ParseRole(raw string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	if slices.Contains(Roles, r) {
		return r, nil
	}
	return "", invalid("Invalid role: " + raw)
}

// Permission keys.
const (
	PermAll              = "all"
	PermRead             = "read"
	PermWrite            = "write"
	PermManageEvents     = "manage_events"
	PermManageMembers    = "manage_members"
	PermViewReports      = "view_reports"
	PermManageFacilities = "manage_facilities"
	PermCreateBookings   = "create_bookings"
	PermViewOwnData      = "view_own_data"
)

// DefaultPermissions returns the permissions granted to role when none are given explicitly.
func DefaultPermissions(role Role) []string {
	switch role {
	case RoleAdmin:
		return []string{PermAll}
	case RoleManager:
		return []string{PermRead, PermWrite, PermManageEvents, PermManageMembers, PermViewReports, PermManageFacilities}
	case RoleStaff:
		return []string{PermRead, PermWrite, PermManageEvents, PermViewReports}
	case RoleUser:
		return []string{PermRead, PermCreateBookings, PermViewOwnData}
	default:
		return []string{PermRead}
	}
}

// HasPermission reports whether granted includes perm; "all" grants everything.
func HasPermission(granted []string, perm string) bool {
	for _, p := range granted {
		if p == PermAll || p == perm {
			return true
		}
	}
	return false
}

// UserRecord is one credential entry, keyed by email in the user store.
type UserRecord struct {
	PasswordHash       string     `json:"password_hash"`
	Role               Role       `json:"role"`
	CreatedAt          time.Time  `json:"created_at"`
	LastLogin          *time.Time `json:"last_login"`
	FailedAttempts     int        `json:"failed_attempts"`
	LockedUntil        *time.Time `json:"locked_until"`
	MustChangePassword bool       `json:"must_change_password"`
	TwoFactorEnabled   bool       `json:"two_factor_enabled"`
	TOTPSecret         string     `json:"totp_secret,omitempty"`
	APIKey             string     `json:"api_key"`
	Permissions        []string   `json:"permissions"`
}

// Locked reports whether the record is locked at now.
func (u *UserRecord) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// UserSummary is the admin listing view of a user.
type UserSummary struct {
	Email            string     `json:"email"`
	Role             Role       `json:"role"`
	CreatedAt        time.Time  `json:"created_at"`
	LastLogin        *time.Time `json:"last_login"`
	Locked           bool       `json:"locked"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
}
