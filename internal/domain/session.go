package domain

// Role is the dashboard role carried by the session token.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Session is the identity of the dashboard user on whose behalf this service
// talks to the admin backend. It is supplied by the external auth
// collaborator via a signed token and is only ever used as a lookup key for
// the channel directory, never mutated here.
type Session struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}
