package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/noteflix/internal/apperrors"
	"github.com/nkiryanov/noteflix/internal/models"
	"github.com/nkiryanov/noteflix/internal/repository"
)

type UserRepo struct {
	DB DBTX
}

const userColumns = `id, created_at, name, email, password_hash, is_premium, last_login_at`

const createUser = `-- name: CreateUser
INSERT INTO users (name, email, password_hash, is_premium)
VALUES ($1, $2, $3, $4)
RETURNING ` + userColumns

func (r *UserRepo) CreateUser(ctx context.Context, params repository.CreateUserParams) (models.User, error) {
	rows, _ := r.DB.Query(ctx, createUser, params.Name, params.Email, params.PasswordHash, params.IsPremium)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return user, apperrors.ErrUserAlreadyExists
		}

		return user, fmt.Errorf("db error: %w", dbError(err))
	}

	return user, nil
}

const getUserByID = `-- name: GetUserByID
SELECT ` + userColumns + `
FROM users
WHERE id = $1
`

func (r *UserRepo) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByID, id)
	return collectUser(rows)
}

const getUserByEmail = `-- name: GetUserByEmail
SELECT ` + userColumns + `
FROM users
WHERE email = $1
`

func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByEmail, email)
	return collectUser(rows)
}

const getUserForUpdate = `-- name: GetUserForUpdate
SELECT ` + userColumns + `
FROM users
WHERE id = $1
FOR UPDATE
`

func (r *UserRepo) GetUserForUpdate(ctx context.Context, id int64) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserForUpdate, id)
	return collectUser(rows)
}

const saveUser = `-- name: SaveUser
UPDATE users
SET name = $2, password_hash = $3, is_premium = $4, last_login_at = $5
WHERE id = $1
RETURNING ` + userColumns

func (r *UserRepo) SaveUser(ctx context.Context, user models.User) (models.User, error) {
	rows, _ := r.DB.Query(ctx, saveUser, user.ID, user.Name, user.PasswordHash, user.IsPremium, user.LastLoginAt)
	return collectUser(rows)
}

const deleteUser = `-- name: DeleteUser
DELETE FROM users
WHERE id = $1
`

func (r *UserRepo) DeleteUser(ctx context.Context, id int64) error {
	tag, err := r.DB.Exec(ctx, deleteUser, id)
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", dbError(err))
	case tag.RowsAffected() == 0:
		return apperrors.ErrUserNotFound
	default:
		return nil
	}
}

func collectUser(rows pgx.Rows) (models.User, error) {
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", dbError(err))
	}
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.CreatedAt, &u.Name, &u.Email, &u.PasswordHash, &u.IsPremium, &u.LastLoginAt)
	return u, err
}
