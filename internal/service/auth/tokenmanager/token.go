package tokenmanager

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/nkiryanov/noteflix/internal/apperrors"
	"github.com/nkiryanov/noteflix/internal/logger"
	"github.com/nkiryanov/noteflix/internal/metrics"
	"github.com/nkiryanov/noteflix/internal/models"
	"github.com/nkiryanov/noteflix/internal/repository"
)

const (
	defaultRefreshTokenTTL = 7 * 24 * time.Hour

	// Refresh token randomness, bytes
	refreshTokenLen = 64
)

type accessIssuer interface {
	Issue(user models.User) (models.IssuedToken, error)
}

// Token manager with sensible default
type Config struct {
	// Refresh token lifetime
	// If not set than default is used
	RefreshTTL time.Duration

	// Time source, time.Now if not set
	Now func() time.Time

	// NoOp logger and private metrics registry are used if not set
	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// TokenManager issues, rotates and revokes refresh tokens
// Every operation runs in a single storage transaction
type TokenManager struct {
	access  accessIssuer
	storage repository.Storage

	refreshTTL time.Duration
	now        func() time.Time

	logger  logger.Logger
	metrics *metrics.Metrics
}

func New(cfg Config, access accessIssuer, storage repository.Storage) (*TokenManager, error) {
	if access == nil {
		return nil, errors.New("access token issuer must not be nil")
	}

	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = defaultRefreshTokenTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoOp()
	}

	return &TokenManager{
		access:     access,
		storage:    storage,
		refreshTTL: cfg.RefreshTTL,
		now:        cfg.Now,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}, nil
}

// Login revokes every active refresh token of the user and issues a new token pair
// Also sets user last login time
func (m *TokenManager) Login(ctx context.Context, user models.User) (models.Session, error) {
	now := m.now()

	var session models.Session
	var revoked int

	err := m.storage.InTx(ctx, func(s repository.Storage) error {
		// Updated user row stays locked, so concurrent logins and rotations of the same user are serialized
		user.LastLoginAt = &now
		saved, err := s.User().SaveUser(ctx, user)
		if err != nil {
			return fmt.Errorf("error while saving user. Err: %w", err)
		}

		active, err := s.Refresh().ListActiveByUser(ctx, saved.ID, now)
		if err != nil {
			return fmt.Errorf("error while listing active refresh tokens. Err: %w", err)
		}

		for _, token := range active {
			_, err := s.Refresh().Revoke(ctx, token.ID, models.Revocation{At: now, Reason: models.RevokedByLogin})
			switch {
			case errors.Is(err, apperrors.ErrRefreshTokenRevoked):
				// Rotated or logged out meanwhile
			case err != nil:
				return fmt.Errorf("error while revoking refresh token. Err: %w", err)
			default:
				revoked++
			}
		}

		session, err = m.issue(ctx, s, saved, now)
		return err
	})
	if err != nil {
		return models.Session{}, err
	}

	m.metrics.TokensIssued.WithLabelValues(metrics.IssuedOnLogin).Inc()
	m.metrics.TokensRevoked.WithLabelValues(models.RevokedByLogin).Add(float64(revoked))
	m.logger.Info("refresh token issued on login", "user_id", session.User.ID, "revoked", revoked)

	return session, nil
}

// Rotate exchanges active refresh token to a new token pair
// Presented token is revoked and points to its successor
//
// Presenting revoked token is treated as token theft: every token issued from it later is revoked too.
// All the failures are reported as apperrors.ErrInvalidRefreshToken wrapping the exact cause
func (m *TokenManager) Rotate(ctx context.Context, refresh string) (models.Session, error) {
	now := m.now()

	var session models.Session
	var current models.RefreshToken
	var rejected error // rejection must not rollback chain revocation, so it is returned after commit
	var chain []models.RefreshToken

	err := m.storage.InTx(ctx, func(s repository.Storage) error {
		// Lock order is owner row first, token row second, the same as Login.
		// Otherwise token issued here may be missed by concurrent login of the owner
		found, err := s.Refresh().Get(ctx, refresh)
		switch {
		case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
			rejected = apperrors.ErrRefreshTokenNotFound
			return nil
		case err != nil:
			return fmt.Errorf("error while getting refresh token. Err: %w", err)
		}

		user, err := s.User().GetUserForUpdate(ctx, found.UserID)
		switch {
		case errors.Is(err, apperrors.ErrUserNotFound):
			// Deleted meanwhile with all the tokens
			rejected = apperrors.ErrRefreshTokenNotFound
			return nil
		case err != nil:
			return fmt.Errorf("error while locking token owner. Err: %w", err)
		}

		// Concurrent rotations of the same token wait for the winner to commit on owner lock
		// Token is re-read since it may be rotated or revoked while waiting
		current, err = s.Refresh().GetForUpdate(ctx, refresh)
		switch {
		case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
			rejected = apperrors.ErrRefreshTokenNotFound
			return nil
		case err != nil:
			return fmt.Errorf("error while getting refresh token. Err: %w", err)
		}

		switch {
		case current.IsRevoked():
			rejected = apperrors.ErrRefreshTokenReused
			chain, err = s.Refresh().RevokeChain(ctx, current.Token, models.Revocation{At: now, Reason: models.RevokedByReuse})
			if err != nil {
				return fmt.Errorf("error while revoking refresh token chain. Err: %w", err)
			}
			return nil
		case current.IsExpired(now):
			rejected = apperrors.ErrRefreshTokenExpired
			return nil
		}

		session, err = m.issue(ctx, s, user, now)
		if err != nil {
			return err
		}

		_, err = s.Refresh().Revoke(ctx, current.ID, models.Revocation{
			At:         now,
			Reason:     models.RevokedByRotation,
			ReplacedBy: session.Tokens.Refresh.Value,
		})
		if err != nil {
			return fmt.Errorf("error while revoking rotated refresh token. Err: %w", err)
		}

		return nil
	})
	if err != nil {
		return models.Session{}, err
	}

	if rejected != nil {
		m.reject(current, rejected, chain)
		return models.Session{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidRefreshToken, rejected)
	}

	m.metrics.TokensIssued.WithLabelValues(metrics.IssuedOnRotation).Inc()
	m.metrics.TokensRevoked.WithLabelValues(models.RevokedByRotation).Inc()
	m.logger.Debug("refresh token rotated", "user_id", session.User.ID, "token_id", current.ID)

	return session, nil
}

// Revoke active refresh token of the user on logout
// Unknown, inactive or other user's token is ignored: nothing to revoke is not an error
func (m *TokenManager) Revoke(ctx context.Context, userID int64, refresh string) (bool, error) {
	now := m.now()
	revoked := false

	err := m.storage.InTx(ctx, func(s repository.Storage) error {
		token, err := s.Refresh().GetForUpdate(ctx, refresh)
		switch {
		case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
			return nil
		case err != nil:
			return fmt.Errorf("error while getting refresh token. Err: %w", err)
		}

		if token.UserID != userID || !token.IsActive(now) {
			return nil
		}

		_, err = s.Refresh().Revoke(ctx, token.ID, models.Revocation{At: now, Reason: models.RevokedByLogout})
		if err != nil {
			return fmt.Errorf("error while revoking refresh token. Err: %w", err)
		}

		revoked = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if revoked {
		m.metrics.TokensRevoked.WithLabelValues(models.RevokedByLogout).Inc()
		m.logger.Info("refresh token revoked on logout", "user_id", userID)
	}

	return revoked, nil
}

// CheckActive reports whether refresh token is active and belongs to the user
func (m *TokenManager) CheckActive(ctx context.Context, userID int64, refresh string) (bool, error) {
	token, err := m.storage.Refresh().Get(ctx, refresh)
	switch {
	case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("error while getting refresh token. Err: %w", err)
	}

	return token.UserID == userID && token.IsActive(m.now()), nil
}

// issue new token pair for the user and persist refresh token
func (m *TokenManager) issue(ctx context.Context, s repository.Storage, user models.User, now time.Time) (models.Session, error) {
	access, err := m.access.Issue(user)
	if err != nil {
		return models.Session{}, fmt.Errorf("error while issuing access token. Err: %w", err)
	}

	value, err := generateRefresh()
	if err != nil {
		return models.Session{}, err
	}

	createdAt := now.Truncate(time.Second)
	token, err := s.Refresh().Create(ctx, models.RefreshToken{
		Token:     value,
		UserID:    user.ID,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(m.refreshTTL),
	})
	if err != nil {
		return models.Session{}, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	return models.Session{
		User: user,
		Tokens: models.TokenPair{
			Access:  access,
			Refresh: models.IssuedToken{Value: token.Token, ExpiresAt: token.ExpiresAt},
		},
	}, nil
}

func (m *TokenManager) reject(token models.RefreshToken, cause error, chain []models.RefreshToken) {
	switch {
	case errors.Is(cause, apperrors.ErrRefreshTokenReused):
		m.metrics.RefreshRejected.WithLabelValues("revoked").Inc()
		m.metrics.ReuseDetected.Inc()
		m.metrics.TokensRevoked.WithLabelValues(models.RevokedByReuse).Add(float64(len(chain)))
		m.logger.Warn("revoked refresh token presented again",
			"user_id", token.UserID,
			"token_id", token.ID,
			"chain_revoked", len(chain),
		)
	case errors.Is(cause, apperrors.ErrRefreshTokenExpired):
		m.metrics.RefreshRejected.WithLabelValues("expired").Inc()
		m.logger.Debug("expired refresh token presented", "user_id", token.UserID, "token_id", token.ID)
	default:
		m.metrics.RefreshRejected.WithLabelValues("not_found").Inc()
		m.logger.Debug("unknown refresh token presented")
	}
}

// Generate opaque refresh token: 64 random bytes encoded with URL safe base64
func generateRefresh() (string, error) {
	b := make([]byte, refreshTokenLen)
	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("error while generate refresh token. Err: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
