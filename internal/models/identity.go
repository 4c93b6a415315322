package models

import "time"

// Role values stored on an identity. The primary administrator provisions
// jailer (operator) accounts; jailers never provision anyone.
const (
	RoleAdmin  = "Admin"
	RoleJailer = "Jailer"
)

// ValidRole reports whether role is one of the known role values.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleJailer
}

// Identity is a staff account that can sign in to the monitoring console.
// Email is globally unique; (email, role) resolves to exactly one identity.
type Identity struct {
	Name         string     `db:"name" json:"name"`
	Email        string     `db:"email" json:"email"`
	Role         string     `db:"role" json:"role"`
	PasswordHash string     `db:"password_hash" json:"-"`
	IsActive     bool       `db:"is_active" json:"isActive"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`
	LastLogin    *time.Time `db:"last_login" json:"lastLogin,omitempty"`
}

// UserPayload is the public identity projection embedded in token claims
// and returned to the frontend. Never carries the password hash.
type UserPayload struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}
