package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/noteflix/internal/apperrors"
	"github.com/nkiryanov/noteflix/internal/models"
)

type RefreshTokenRepo struct {
	DB DBTX
}

const refreshTokenColumns = `id, token, user_id, created_at, expires_at, revoked_at, reason_revoked, replaced_by_token`

const createToken = `-- name: CreateRefreshToken
INSERT INTO refresh_tokens (token, user_id, created_at, expires_at)
VALUES ($1, $2, $3, $4)
RETURNING ` + refreshTokenColumns

func (r *RefreshTokenRepo) Create(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, createToken, token.Token, token.UserID, token.CreatedAt, token.ExpiresAt)
	created, err := pgx.CollectOneRow(rows, rowToRefreshToken)
	if err != nil {
		return created, fmt.Errorf("db error: %w", dbError(err))
	}
	return created, nil
}

const getToken = `-- name: GetRefreshToken
SELECT ` + refreshTokenColumns + `
FROM refresh_tokens
WHERE token = $1
`

// Get token
// It should return result even it expired or revoked already
func (r *RefreshTokenRepo) Get(ctx context.Context, token string) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, getToken, token)
	return collectToken(rows)
}

const getTokenForUpdate = getToken + `FOR UPDATE
`

// Get token and lock it till the end of transaction
// Concurrent callers wait here and then observe the committed state
func (r *RefreshTokenRepo) GetForUpdate(ctx context.Context, token string) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, getTokenForUpdate, token)
	return collectToken(rows)
}

const listActiveByUser = `-- name: ListActiveRefreshTokensByUser
SELECT ` + refreshTokenColumns + `
FROM refresh_tokens
WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
ORDER BY id
`

func (r *RefreshTokenRepo) ListActiveByUser(ctx context.Context, userID int64, now time.Time) ([]models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, listActiveByUser, userID, now)
	tokens, err := pgx.CollectRows(rows, rowToRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", dbError(err))
	}
	return tokens, nil
}

const revokeToken = `-- name: RevokeRefreshToken
UPDATE refresh_tokens
SET revoked_at = $2, reason_revoked = $3, replaced_by_token = $4
WHERE id = $1 AND revoked_at IS NULL
RETURNING ` + refreshTokenColumns

// Revoke token
// Already revoked token is never rewritten: apperrors.ErrRefreshTokenRevoked returned instead
func (r *RefreshTokenRepo) Revoke(ctx context.Context, id int64, rv models.Revocation) (models.RefreshToken, error) {
	var replacedBy *string
	if rv.ReplacedBy != "" {
		replacedBy = &rv.ReplacedBy
	}

	rows, _ := r.DB.Query(ctx, revokeToken, id, rv.At, rv.Reason, replacedBy)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenRevoked)
	default:
		return token, fmt.Errorf("db error: %w", dbError(err))
	}
}

const revokeChain = `-- name: RevokeRefreshTokenChain
WITH RECURSIVE chain AS (
	SELECT id, user_id, replaced_by_token
	FROM refresh_tokens
	WHERE token = $1

	UNION ALL

	SELECT rt.id, rt.user_id, rt.replaced_by_token
	FROM refresh_tokens rt
	JOIN chain c ON rt.token = c.replaced_by_token AND rt.user_id = c.user_id
)
UPDATE refresh_tokens
SET revoked_at = $2, reason_revoked = $3
WHERE id IN (SELECT id FROM chain) AND revoked_at IS NULL
RETURNING ` + refreshTokenColumns

func (r *RefreshTokenRepo) RevokeChain(ctx context.Context, token string, rv models.Revocation) ([]models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, revokeChain, token, rv.At, rv.Reason)
	tokens, err := pgx.CollectRows(rows, rowToRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", dbError(err))
	}
	return tokens, nil
}

func collectToken(rows pgx.Rows) (models.RefreshToken, error) {
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	default:
		return token, fmt.Errorf("db error: %w", dbError(err))
	}
}

func rowToRefreshToken(row pgx.CollectableRow) (models.RefreshToken, error) {
	var t models.RefreshToken
	err := row.Scan(&t.ID, &t.Token, &t.UserID, &t.CreatedAt, &t.ExpiresAt, &t.RevokedAt, &t.ReasonRevoked, &t.ReplacedByToken)
	return t, err
}
