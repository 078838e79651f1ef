package rbac

const (
	RoleLearner    = "learner"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

const (
	PermCaseView     = "case:view"
	PermSessionPlay  = "session:play"
	PermSessionReset = "session:reset"
	PermSessionAudit = "session:audit"
	PermCaseImport   = "case:import"
)

// RolePermissions is the default policy.
var RolePermissions = map[string][]string{
	RoleLearner: {
		PermCaseView,
		PermSessionPlay,
		PermSessionReset,
	},
	RoleInstructor: {
		"case:*",
		"session:*",
	},
	RoleAdmin: {
		"*",
	},
}

// ValidRole reports whether role is one the default policy knows.
func ValidRole(role string) bool {
	_, ok := RolePermissions[role]
	return ok
}
