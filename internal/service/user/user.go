package user

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nkiryanov/noteflix/internal/apperrors"
	"github.com/nkiryanov/noteflix/internal/logger"
	"github.com/nkiryanov/noteflix/internal/models"
	"github.com/nkiryanov/noteflix/internal/repository"
	"github.com/nkiryanov/noteflix/internal/service/auth"
)

// Password compared against when user not found, so unknown email takes as long as wrong password
const dummyPassword = "dummy-password-never-matches"

type UserService struct {
	hasher  auth.PasswordHasher
	storage repository.Storage
	logger  logger.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewService(hasher auth.PasswordHasher, storage repository.Storage, l logger.Logger) *UserService {
	if hasher == nil {
		hasher = auth.DefaultHasher
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &UserService{
		hasher:  hasher,
		storage: storage,
		logger:  l,
	}
}

func (s *UserService) CreateUser(ctx context.Context, name string, email string, password string, isPremium bool) (models.User, error) {
	var user models.User
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	user, err = s.storage.User().CreateUser(ctx, repository.CreateUserParams{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		IsPremium:    isPremium,
	})
	if err != nil {
		return user, fmt.Errorf("can't create user. Err: %w", err)
	}

	return user, nil
}

// Login finds user by email and verifies password
// Unknown email and wrong password are both reported as apperrors.ErrInvalidCredentials
//
// Hash made with outdated algorithm or parameters is upgraded on successful login.
// Upgrade failure is logged only: user has proven the password already
func (s *UserService) Login(ctx context.Context, email string, password string) (models.User, error) {
	user, err := s.storage.User().GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		s.hasher.Verify(password, s.dummy())
		return models.User{}, apperrors.ErrInvalidCredentials
	case err != nil:
		return models.User{}, err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return models.User{}, apperrors.ErrInvalidCredentials
	}

	if s.hasher.NeedsRehash(user.PasswordHash) {
		user = s.rehash(ctx, user, password)
	}

	return user, nil
}

func (s *UserService) GetUserByID(ctx context.Context, userID int64) (models.User, error) {
	return s.storage.User().GetUserByID(ctx, userID)
}

func (s *UserService) rehash(ctx context.Context, user models.User, password string) models.User {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Error("error while rehashing password", "user_id", user.ID, "error", err)
		return user
	}

	upgraded := user
	upgraded.PasswordHash = hash

	saved, err := s.storage.User().SaveUser(ctx, upgraded)
	if err != nil {
		s.logger.Error("error while saving rehashed password", "user_id", user.ID, "error", err)
		return user
	}

	s.logger.Info("password hash upgraded", "user_id", user.ID)
	return saved
}

func (s *UserService) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			s.logger.Error("error while hashing dummy password", "error", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}
