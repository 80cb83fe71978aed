package rbac

import (
	"testing"

	"github.com/playoffchallenge/backend/internal/auth"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role     string
		perm     string
		expected bool
	}{
		{auth.RoleAdmin, PermManageContests, true},
		{auth.RoleAdmin, PermViewPayouts, true},
		{auth.RoleOperator, PermViewContests, true},
		{auth.RoleOperator, PermViewPayouts, true},
		{auth.RoleOperator, PermManageContests, false},
		{"", PermViewContests, false},
		{"player", PermViewContests, false},
	}

	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.perm, func(t *testing.T) {
			if got := HasPermission(tt.role, tt.perm); got != tt.expected {
				t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.perm, got, tt.expected)
			}
		})
	}
}

func TestIsStaff(t *testing.T) {
	if !IsStaff(auth.RoleAdmin) || !IsStaff(auth.RoleOperator) {
		t.Error("admin and operator should be staff")
	}
	if IsStaff("") {
		t.Error("empty role should not be staff")
	}
}
