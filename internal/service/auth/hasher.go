package auth

import (
	"errors"
	"strings"
)

var ErrEmptyPassword = errors.New("password must not be empty")

// Interface to create or verify user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Verify user provided password against known hash
	// Must be protected against timing attacks and never panic on malformed hash
	Verify(password string, hash string) bool

	// Report whether hash was made with outdated algorithm or parameters
	NeedsRehash(hash string) bool
}

// Hasher hashes new passwords with argon2id
// Legacy sha256 digests are still verified but always need rehash
type Hasher struct {
	current Argon2Hasher
	legacy  LegacySHA256Hasher
}

func NewHasher(params Argon2Params) *Hasher {
	return &Hasher{current: Argon2Hasher{Params: params}}
}

var DefaultHasher PasswordHasher = NewHasher(DefaultArgon2Params)

func (h *Hasher) Hash(password string) (string, error) {
	return h.current.Hash(password)
}

func (h *Hasher) Verify(password string, hash string) bool {
	switch {
	case isArgon2Hash(hash):
		return h.current.Verify(password, hash)
	case isLegacyHash(hash):
		return h.legacy.Verify(password, hash)
	default:
		return false
	}
}

func (h *Hasher) NeedsRehash(hash string) bool {
	if isArgon2Hash(hash) {
		return h.current.NeedsRehash(hash)
	}
	return true
}

func isArgon2Hash(hash string) bool {
	return strings.HasPrefix(hash, argon2Prefix)
}

func isLegacyHash(hash string) bool {
	_, ok := decodeLegacyHash(hash)
	return ok
}
