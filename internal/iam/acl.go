package iam

import (
	"errors"
	"fmt"
)

// ErrInvalidRole is returned when a permission lookup names a role outside
// the defined set.
var ErrInvalidRole = errors.New("invalid role")

// Principal is an authenticated caller: a stable id, a role, and a display
// name. The zero value is not a valid principal.
type Principal struct {
	ID   string
	Role Role
	Name string
}

// AccessDeniedError reports a failed permission check. It carries enough to
// audit the denial; the gate itself never writes logs or audit events.
type AccessDeniedError struct {
	PrincipalID string
	Role        Role
	Permission  Permission
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: %s (role %s) lacks permission %s",
		e.PrincipalID, e.Role, e.Permission)
}

// CheckPermission returns nil when the principal's role holds the
// permission, and a typed *AccessDeniedError otherwise. Deterministic and
// side-effect free.
func CheckPermission(p Principal, perm Permission) error {
	if HasPermission(p.Role, perm) {
		return nil
	}
	return &AccessDeniedError{PrincipalID: p.ID, Role: p.Role, Permission: perm}
}

// Can reports whether the principal holds the permission without
// constructing an error.
func Can(p Principal, perm Permission) bool {
	return HasPermission(p.Role, perm)
}

// CanViewEscalations reports whether the principal may see escalations
// belonging to targetUserID. Holders of view_all_escalations see every row;
// holders of view_own_escalations see only their own.
func CanViewEscalations(p Principal, targetUserID string) bool {
	if HasPermission(p.Role, PermViewAllEscalations) {
		return true
	}
	if HasPermission(p.Role, PermViewOwnEscalations) {
		return p.ID == targetUserID
	}
	return false
}

// CanViewCustomerData reports whether the principal may read banking data
// (accounts, transactions) belonging to targetUserID. Self-service rides on
// view_accounts alone; cross-customer reads additionally require the same
// grant that widens escalation visibility, which is what separates support
// roles from customers.
func CanViewCustomerData(p Principal, targetUserID string) bool {
	if !HasPermission(p.Role, PermViewAccounts) {
		return false
	}
	if p.ID == targetUserID {
		return true
	}
	return HasPermission(p.Role, PermViewAllEscalations)
}

// CanResolveEscalations reports whether the principal may resolve tickets.
func CanResolveEscalations(p Principal) bool {
	return HasPermission(p.Role, PermResolveEscalations)
}
