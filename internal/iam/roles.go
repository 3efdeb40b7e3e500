// Package iam holds the role and permission model for the governance core.
// Roles form a closed, unordered enumeration: permission sets are looked up,
// never inferred from any ordering between roles.
package iam

import "fmt"

// Role identifies a class of principal.
type Role string

const (
	RoleUser   Role = "user"
	RoleStaff  Role = "staff"
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system"
)

// Permission is an atomic capability token gating one class of operation.
type Permission string

const (
	// Escalation queue permissions
	PermViewOwnEscalations Permission = "view_own_escalations"
	PermViewAllEscalations Permission = "view_all_escalations"
	PermResolveEscalations Permission = "resolve_escalations"

	// Agent interaction permissions
	PermUseAgent           Permission = "use_agent"
	PermBypassSafetyChecks Permission = "bypass_safety_checks"

	// Banking permissions
	PermViewAccounts     Permission = "view_accounts"
	PermViewTransactions Permission = "view_transactions"

	// Configuration permissions
	PermViewConfig            Permission = "view_config"
	PermModifyConfig          Permission = "modify_config"
	PermModifyComplianceRules Permission = "modify_compliance_rules"

	// System administration
	PermViewLogs    Permission = "view_logs"
	PermManageUsers Permission = "manage_users"
)

// AllPermissions lists every defined permission. SYSTEM's set is built from
// this, so a newly added permission is granted to SYSTEM automatically and
// to nobody else until a mapping below says otherwise.
var AllPermissions = []Permission{
	PermViewOwnEscalations,
	PermViewAllEscalations,
	PermResolveEscalations,
	PermUseAgent,
	PermBypassSafetyChecks,
	PermViewAccounts,
	PermViewTransactions,
	PermViewConfig,
	PermModifyConfig,
	PermModifyComplianceRules,
	PermViewLogs,
	PermManageUsers,
}

// rolePermissions maps each role to its permission set.
//
// STAFF deliberately does not hold resolve_escalations: staff read the queue
// to assist, only ADMIN (and SYSTEM) write resolutions. Widening staff to
// resolve is a policy change, not a code change to make casually here.
var rolePermissions = map[Role]map[Permission]bool{
	RoleUser: {
		PermUseAgent:           true,
		PermViewOwnEscalations: true,
		PermViewAccounts:       true,
		PermViewTransactions:   true,
	},
	RoleStaff: {
		PermUseAgent:           true,
		PermViewOwnEscalations: true,
		PermViewAllEscalations: true,
		PermViewAccounts:       true,
		PermViewTransactions:   true,
		PermViewConfig:         true,
		PermViewLogs:           true,
	},
	RoleAdmin: {
		PermUseAgent:              true,
		PermViewOwnEscalations:    true,
		PermViewAllEscalations:    true,
		PermResolveEscalations:    true,
		PermViewAccounts:          true,
		PermViewTransactions:      true,
		PermViewConfig:            true,
		PermModifyConfig:          true,
		PermModifyComplianceRules: true,
		PermViewLogs:              true,
		PermManageUsers:           true,
	},
	RoleSystem: systemPermissions(),
}

func systemPermissions() map[Permission]bool {
	all := make(map[Permission]bool, len(AllPermissions))
	for _, p := range AllPermissions {
		all[p] = true
	}
	return all
}

// Roles lists every defined role.
var Roles = []Role{RoleUser, RoleStaff, RoleAdmin, RoleSystem}

// Permissions returns the permission set for a role. The returned map is a
// copy; mutating it does not affect the model. Unknown roles are an error,
// never an empty grant.
func Permissions(role Role) (map[Permission]bool, error) {
	set, ok := rolePermissions[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	out := make(map[Permission]bool, len(set))
	for p := range set {
		out[p] = true
	}
	return out, nil
}

// HasPermission reports whether the role holds the permission.
// Unknown roles hold nothing.
func HasPermission(role Role, perm Permission) bool {
	return rolePermissions[role][perm]
}

// ParseRole maps a session/config string to a Role. Unrecognized input falls
// back to RoleUser: least privilege is the deliberate default for anything
// we cannot identify. The second return value is false when the fallback was
// taken, so callers can log the downgrade.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleUser, RoleStaff, RoleAdmin, RoleSystem:
		return Role(s), true
	}
	return RoleUser, false
}

// RoleDescription returns a human-readable summary of what a role can do,
// for user-facing output.
func RoleDescription(role Role) string {
	switch role {
	case RoleUser:
		return "Regular customer, can only access their own data (accounts, transactions, escalations)"
	case RoleStaff:
		return "Bank employee, authorized to view customer data and all escalation tickets for support purposes"
	case RoleAdmin:
		return "Administrator, full access to all systems, can resolve escalations and modify configuration"
	case RoleSystem:
		return "Internal system operations, full access to all functions"
	}
	return "Unknown role"
}
