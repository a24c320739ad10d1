// internal/models/role.go
package models

// Role is a named permission group. A caller may hold several.
type Role string

const (
	RoleStudent    Role = "student"
	RoleTeacher    Role = "teacher"
	RoleHOD        Role = "hod"
	RolePrincipal  Role = "principal"
	RoleAccountant Role = "accountant"
	RoleAdmin      Role = "admin"
)

var knownRoles = []Role{RoleStudent, RoleTeacher, RoleHOD, RolePrincipal, RoleAccountant, RoleAdmin}

// ParseRole matches role names exactly; "Teacher" is not a role.
func ParseRole(s string) (Role, bool) {
	for _, r := range knownRoles {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// Roles returns every known role.
func Roles() []Role {
	out := make([]Role, len(knownRoles))
	copy(out, knownRoles)
	return out
}

// Principal is an already verified caller identity.
type Principal struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
}

// HasAnyRole reports whether the principal holds at least one of the given roles.
func (p Principal) HasAnyRole(roles ...Role) bool {
	for _, raw := range p.Roles {
		r, ok := ParseRole(raw)
		if !ok {
			continue
		}
		for _, want := range roles {
			if r == want {
				return true
			}
		}
	}
	return false
}
