package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// Verifier of unsalted sha256 digests encoded with standard base64
// Accounts imported from the previous system carry such hashes. They are never produced here
// and upgraded to argon2id on the first successful login
type LegacySHA256Hasher struct{}

func (h LegacySHA256Hasher) Verify(password string, hash string) bool {
	stored, ok := decodeLegacyHash(hash)
	if !ok {
		return false
	}

	sum := sha256.Sum256([]byte(password))
	return subtle.ConstantTimeCompare(sum[:], stored) == 1
}

// Legacy hash always needs rehash
func (h LegacySHA256Hasher) NeedsRehash(string) bool {
	return true
}

func decodeLegacyHash(hash string) ([]byte, bool) {
	if len(hash) != base64.StdEncoding.EncodedLen(sha256.Size) {
		return nil, false
	}

	b, err := base64.StdEncoding.DecodeString(hash)
	if err != nil || len(b) != sha256.Size {
		return nil, false
	}
	return b, true
}
