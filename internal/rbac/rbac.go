package rbac

import "github.com/playoffchallenge/backend/internal/auth"

// Permission constants
const (
	PermViewContests   = "view_contests"
	PermManageContests = "manage_contests"
	PermViewPayouts    = "view_payouts"
)

// RolePermissions defines what each token role can do. Users listed in
// ADMIN_USER_IDS are granted everything regardless of role.
var RolePermissions = map[string][]string{
	auth.RoleAdmin: {
		PermViewContests, PermManageContests, PermViewPayouts,
	},
	auth.RoleOperator: {
		PermViewContests, PermViewPayouts,
		// Operator CANNOT: PermManageContests
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// IsStaff reports whether role carries any permission at all.
func IsStaff(role string) bool {
	return len(RolePermissions[role]) > 0
}
