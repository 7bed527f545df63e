package models

import "time"

// Role is a user's capability class. Each state-machine transition declares
// which roles may invoke it; handlers never branch on raw role strings.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleTeamMember Role = "team_member"
	RoleAdmin      Role = "admin"
	// RoleSystem is used for internal actors such as the assignment manager.
	RoleSystem Role = "system"
)

// Valid reports whether r is a role that may appear in an access token.
// RoleSystem is internal and never accepted from the outside.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleTeamMember, RoleAdmin:
		return true
	}
	return false
}

// User is the identity record consumed by the order and assignment modules.
// Authentication and password handling live outside this service.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Role      Role      `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Actor identifies who is invoking an operation.
type Actor struct {
	ID   string
	Role Role
}

// SystemActor is the internal actor for compound operations triggered by the
// service itself (e.g. the implicit pending->confirmed advance on assignment).
var SystemActor = Actor{ID: "system", Role: RoleSystem}
