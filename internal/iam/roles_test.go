package iam

import (
	"errors"
	"testing"
)

func TestPermissionsKnownRoles(t *testing.T) {
	for _, role := range Roles {
		perms, err := Permissions(role)
		if err != nil {
			t.Fatalf("Permissions(%s): %v", role, err)
		}
		if len(perms) == 0 {
			t.Errorf("Permissions(%s) returned empty set", role)
		}
	}
}

func TestPermissionsUnknownRole(t *testing.T) {
	_, err := Permissions(Role("superuser"))
	if !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestPermissionsReturnsCopy(t *testing.T) {
	first, err := Permissions(RoleUser)
	if err != nil {
		t.Fatal(err)
	}
	first[PermManageUsers] = true

	second, err := Permissions(RoleUser)
	if err != nil {
		t.Fatal(err)
	}
	if second[PermManageUsers] {
		t.Error("mutating a returned set leaked into the model")
	}
}

func TestPermissionsDeterministic(t *testing.T) {
	a, _ := Permissions(RoleStaff)
	b, _ := Permissions(RoleStaff)
	if len(a) != len(b) {
		t.Fatalf("set size changed between calls: %d vs %d", len(a), len(b))
	}
	for p := range a {
		if !b[p] {
			t.Errorf("permission %s present in one call, absent in the next", p)
		}
	}
}

func TestSystemHoldsEverything(t *testing.T) {
	for _, p := range AllPermissions {
		if !HasPermission(RoleSystem, p) {
			t.Errorf("system missing %s", p)
		}
	}
}

func TestRoleGrants(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleUser, PermUseAgent, true},
		{RoleUser, PermViewOwnEscalations, true},
		{RoleUser, PermViewAllEscalations, false},
		{RoleUser, PermResolveEscalations, false},
		{RoleUser, PermViewLogs, false},
		{RoleStaff, PermViewAllEscalations, true},
		{RoleStaff, PermResolveEscalations, false},
		{RoleStaff, PermViewLogs, true},
		{RoleStaff, PermModifyConfig, false},
		{RoleAdmin, PermResolveEscalations, true},
		{RoleAdmin, PermModifyConfig, true},
		{RoleAdmin, PermManageUsers, true},
		{RoleAdmin, PermBypassSafetyChecks, false},
		{RoleSystem, PermBypassSafetyChecks, true},
	}
	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.perm); got != tt.want {
			t.Errorf("HasPermission(%s, %s) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}
}

func TestHasPermissionUnknownRole(t *testing.T) {
	if HasPermission(Role("ghost"), PermUseAgent) {
		t.Error("unknown role granted a permission")
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in     string
		want   Role
		wantOK bool
	}{
		{"user", RoleUser, true},
		{"staff", RoleStaff, true},
		{"admin", RoleAdmin, true},
		{"system", RoleSystem, true},
		{"ADMIN", RoleUser, false},
		{"root", RoleUser, false},
		{"", RoleUser, false},
	}
	for _, tt := range tests {
		got, ok := ParseRole(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseRole(%q) = (%s, %v), want (%s, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
