package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type User struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Username  string
	Role      Role
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Access token issued to a user
type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}
