package domain

// Role differentiates helpdesk operators from the customers they serve.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleCustomer Role = "CUSTOMER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleCustomer
}

// User is reference data owned by the account subsystem.
type User struct {
	ID    string
	Role  Role
	Name  string
	Email string
}

// IsAdmin reports whether the user may act as an operator.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
