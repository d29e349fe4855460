package domain

// Role is the caller's registry role carried in the identity token.
type Role string

const (
	RoleProjectOwner Role = "project_owner"
	RoleVerifier     Role = "verifier"
	RoleBuyer        Role = "buyer"
	RoleAdmin        Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleProjectOwner, RoleVerifier, RoleBuyer, RoleAdmin:
		return true
	}
	return false
}
