package pasetotoken

import (
	"time"

	"github.com/google/uuid"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the app-facing token payload.
type Claims struct {
	Type TokenType

	UserID    uuid.UUID
	Role      string
	SessionID *uuid.UUID

	Issuer   string
	Audience string

	IssuedAt  time.Time
	ExpiresAt time.Time
	TokenID   string // jti
}

// IsExpired reports whether the token's expiry has passed.
func (c *Claims) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}
