package models

import (
	"time"
)

// Reasons a refresh token may be revoked with
const (
	RevokedByLogin    = "Replaced by new login"
	RevokedByRotation = "Replaced by new token"
	RevokedByLogout   = "Logout"
	RevokedByReuse    = "Reused-after-revocation"
)

type RefreshToken struct {
	ID              int64
	Token           string
	UserID          int64
	CreatedAt       time.Time
	ExpiresAt       time.Time
	RevokedAt       *time.Time // nil if token not revoked
	ReasonRevoked   *string
	ReplacedByToken *string // token that superseded this one on rotation
}

func (t RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

func (t RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Active token is neither revoked nor expired
func (t RefreshToken) IsActive(now time.Time) bool {
	return !t.IsRevoked() && !t.IsExpired(now)
}

// Revocation describes how a refresh token is revoked
type Revocation struct {
	At     time.Time
	Reason string

	// Empty if token revoked without successor
	ReplacedBy string
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issues by TokenManager, AuthService
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// Session is a token pair together with the user it was issued for
type Session struct {
	User   User
	Tokens TokenPair
}
