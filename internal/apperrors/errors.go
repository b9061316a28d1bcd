package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Umbrella for every refresh token failure
	// Detailed errors below are wrapped together with it so callers may answer the same way
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenRevoked  = errors.New("refresh token is revoked")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")
	ErrRefreshTokenReused   = errors.New("refresh token reused after revocation")

	ErrInvalidAccessToken = errors.New("invalid access token")

	// Store is not reachable or did not answer in time
	// The only error worth retrying, and only by the caller
	ErrStoreUnavailable = errors.New("store unavailable")
)
