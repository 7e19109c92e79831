package entity

import (
	"database/sql"
	"time"
)

type Member struct {
	ID             uint64
	Email          string
	CanonicalEmail string
	Nickname       string
	// PasswordHash is empty for members created through an OAuth provider.
	PasswordHash string
	LastLoginAt  sql.NullTime
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPassword reports whether the member can sign in with a password.
func (m *Member) HasPassword() bool {
	return m.PasswordHash != ""
}
