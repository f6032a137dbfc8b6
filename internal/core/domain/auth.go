package domain

import "time"

// API key roles. Admin keys may manage tenants and purge the audit trail.
const (
	RoleAdmin   = "admin"
	RoleService = "service"
)

// APIKey authenticates the privileged admin surface. Only the sha256 hash of
// the token is ever stored.
type APIKey struct {
	TokenHash string
	Name      string
	Role      string
	Active    bool
	CreatedAt time.Time
}

func (k APIKey) IsAdmin() bool {
	return k.Role == RoleAdmin
}
