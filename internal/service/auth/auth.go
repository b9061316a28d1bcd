package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nkiryanov/noteflix/internal/apperrors"
	"github.com/nkiryanov/noteflix/internal/logger"
	"github.com/nkiryanov/noteflix/internal/metrics"
	"github.com/nkiryanov/noteflix/internal/models"
	"github.com/nkiryanov/noteflix/internal/service/auth/accesstoken"
)

const defaultStoreTimeout = 5 * time.Second

type accessCodec interface {
	Parse(token string) (accesstoken.Claims, error)
	ExtractUserID(token string) (int64, error)
}

type tokenManager interface {
	Login(ctx context.Context, user models.User) (models.Session, error)
	Rotate(ctx context.Context, refresh string) (models.Session, error)
	Revoke(ctx context.Context, userID int64, refresh string) (bool, error)
	CheckActive(ctx context.Context, userID int64, refresh string) (bool, error)
}

type userService interface {
	CreateUser(ctx context.Context, name string, email string, password string, isPremium bool) (models.User, error)
	Login(ctx context.Context, email string, password string) (models.User, error)
	GetUserByID(ctx context.Context, userID int64) (models.User, error)
}

type Config struct {
	// Upper bound of storage work of every call
	// If not set than default is used
	StoreTimeout time.Duration

	// NoOp logger and private metrics registry are used if not set
	Logger  logger.Logger
	Metrics *metrics.Metrics
}

type RegisterParams struct {
	Name     string
	Email    string
	Password string
}

// AuthService authenticates users and manages their sessions
type AuthService struct {
	access accessCodec
	tokens tokenManager
	users  userService

	storeTimeout time.Duration

	logger  logger.Logger
	metrics *metrics.Metrics
}

func NewService(cfg Config, access accessCodec, tokens tokenManager, users userService) (*AuthService, error) {
	if access == nil || tokens == nil || users == nil {
		return nil, errors.New("access codec, token manager and user service must not be nil")
	}

	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoOp()
	}

	return &AuthService{
		access:       access,
		tokens:       tokens,
		users:        users,
		storeTimeout: cfg.StoreTimeout,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}, nil
}

// Register new user
// Every new account is premium one
func (s *AuthService) Register(ctx context.Context, params RegisterParams) (models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.users.CreateUser(ctx, params.Name, params.Email, params.Password, true)
	if err != nil {
		return models.User{}, err
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Authenticate user with email and password and start new session
// Every previous session of the user is terminated
func (s *AuthService) Authenticate(ctx context.Context, email string, password string) (models.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.users.Login(ctx, email, password)
	switch {
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		s.metrics.LoginFailed.Inc()
		s.logger.Debug("login rejected")
		return models.Session{}, err
	case err != nil:
		return models.Session{}, fmt.Errorf("error while verifying credentials. Err: %w", err)
	}

	return s.tokens.Login(ctx, user)
}

// Refresh exchanges refresh token to a new token pair
func (s *AuthService) Refresh(ctx context.Context, refresh string) (models.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	return s.tokens.Rotate(ctx, refresh)
}

// Revoke refresh token of the access token owner
// Access token may be expired already: logout has to work anyway.
// Never fails: nothing to revoke or any error is only logged
func (s *AuthService) Revoke(ctx context.Context, access string, refresh string) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	userID, err := s.access.ExtractUserID(access)
	if err != nil {
		s.logger.Debug("logout with invalid access token", "error", err)
		return
	}

	_, err = s.tokens.Revoke(ctx, userID, refresh)
	if err != nil {
		s.logger.Error("error while revoking refresh token", "user_id", userID, "error", err)
	}
}

// Validate access token and, if given, that refresh token is active one of the same user
// Return access token owner id
func (s *AuthService) Validate(ctx context.Context, access string, refresh string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	userID, err := s.userIDFromAccess(access)
	if err != nil {
		return 0, err
	}

	if refresh == "" {
		return userID, nil
	}

	active, err := s.tokens.CheckActive(ctx, userID, refresh)
	switch {
	case err != nil:
		return 0, fmt.Errorf("error while checking refresh token. Err: %w", err)
	case !active:
		return 0, apperrors.ErrInvalidRefreshToken
	}

	return userID, nil
}

// UserFromAccess returns owner of valid access token
func (s *AuthService) UserFromAccess(ctx context.Context, access string) (models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	userID, err := s.userIDFromAccess(access)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.users.GetUserByID(ctx, userID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		// Token outlived its owner
		return models.User{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidAccessToken, err)
	case err != nil:
		return models.User{}, err
	}

	return user, nil
}

func (s *AuthService) userIDFromAccess(access string) (int64, error) {
	claims, err := s.access.Parse(access)
	if err != nil {
		return 0, err
	}

	return claims.UserID()
}
