package model

// Role is the authorization level of a user. It is embedded in access tokens
// as the "role" claim.
type Role string

const (
	RoleUser        Role = "user"
	RoleContributor Role = "contributor"
	RoleAdmin       Role = "admin"
)

// Roles lists every valid role in ascending order of authority.
var Roles = []Role{RoleUser, RoleContributor, RoleAdmin}

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleContributor, RoleAdmin:
		return true
	}
	return false
}

// ParseRole converts a raw string into a Role. Unknown values yield ("", false).
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	if !r.Valid() {
		return "", false
	}
	return r, true
}

// Actor is the identity performing a request, as established by the bearer
// token. A zero Actor is anonymous.
type Actor struct {
	UserID string
	Role   Role
}

// Anonymous reports whether no authenticated identity is attached.
func (a Actor) Anonymous() bool {
	return a.UserID == ""
}
