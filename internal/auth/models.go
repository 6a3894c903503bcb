package auth

import (
	"time"

	id "frametruth/pkg/domain"
)

// Roles. Admins may run integrity verification and exports; regular users
// only touch files they own or were granted.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is an account holder. PasswordHash is a bcrypt hash and never
// leaves the auth package.
type User struct {
	ID           id.UserID
	Username     string
	PasswordHash string `json:"-"`
	Role         string
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// Session is the server-side login record. Access tokens reference a
// session, so dropping the session revokes every token issued against it.
type Session struct {
	ID        id.SessionID
	UserID    id.UserID
	CreatedAt time.Time
	ExpiresAt time.Time
	ClientIP  string
	Device    string
}

// Expired reports whether the session is past its lifetime at the given
// instant.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
