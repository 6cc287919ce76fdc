package domain

// Principal is the authenticated caller of a core operation.
type Principal struct {
	ID   string
	Role Role
	Name string
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

func (p Principal) IsCustomer() bool {
	return p.Role == RoleCustomer
}

// DisplayName falls back to the id when no name was resolved.
func (p Principal) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}
