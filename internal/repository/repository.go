package repository

import (
	"context"
	"time"

	"github.com/nkiryanov/noteflix/internal/models"
)

type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo

	// Run fn in transaction: commit if fn returns nil, rollback otherwise
	// Storage passed to fn must be used for all the queries of the transaction
	InTx(ctx context.Context, fn func(Storage) error) error
}

// Fields required to create a new user
type CreateUserParams struct {
	Name         string
	Email        string
	PasswordHash string
	IsPremium    bool
}

// User repository interface
type UserRepo interface {
	// Create user
	// If user with email exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)

	// Get user by it's id or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, id int64) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	// Same as GetUserByID but locks the row until the end of transaction
	// Every transaction issuing refresh tokens for the user has to take this lock first
	GetUserForUpdate(ctx context.Context, id int64) (models.User, error)

	// Save mutable user fields: name, password hash, premium flag and last login time
	// Row stays locked until the end of transaction
	SaveUser(ctx context.Context, user models.User) (models.User, error)

	// Delete user with all it's refresh tokens
	DeleteUser(ctx context.Context, id int64) error
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Create token in repository
	Create(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Return the token even if it revoked or expired
	// If the token not exists, must return error apperrors.ErrRefreshTokenNotFound
	Get(ctx context.Context, token string) (models.RefreshToken, error)

	// Same as Get but locks the row until the end of transaction
	GetForUpdate(ctx context.Context, token string) (models.RefreshToken, error)

	// Return tokens not revoked and not expired at 'now'
	ListActiveByUser(ctx context.Context, userID int64, now time.Time) ([]models.RefreshToken, error)

	// Revoke the token
	// Must not overwrite already revoked token: has to return apperrors.ErrRefreshTokenRevoked instead
	Revoke(ctx context.Context, id int64, revocation models.Revocation) (models.RefreshToken, error)

	// Revoke the token and every token that transitively replaced it
	// Already revoked tokens of the chain stay untouched; only newly revoked are returned
	RevokeChain(ctx context.Context, token string, revocation models.Revocation) ([]models.RefreshToken, error)
}
