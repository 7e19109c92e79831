package entity

import (
	"database/sql"
	"time"
)

// TokenFamily tracks the refresh token chain opened by a single login.
// Sequence is the only refresh sequence that may still be rotated.
type TokenFamily struct {
	ID        string
	MemberID  uint64
	Sequence  uint64
	ExpiresAt time.Time
	RevokedAt sql.NullTime
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (f *TokenFamily) Revoked() bool {
	return f.RevokedAt.Valid
}
