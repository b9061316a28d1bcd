package auth_test

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/noteflix/internal/apperrors"
	"github.com/nkiryanov/noteflix/internal/metrics"
	"github.com/nkiryanov/noteflix/internal/models"
	"github.com/nkiryanov/noteflix/internal/repository"
	"github.com/nkiryanov/noteflix/internal/repository/postgres"
	"github.com/nkiryanov/noteflix/internal/service/auth"
	"github.com/nkiryanov/noteflix/internal/service/auth/accesstoken"
	"github.com/nkiryanov/noteflix/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/noteflix/internal/service/user"
	"github.com/nkiryanov/noteflix/internal/testutil"
)

func Test_Auth(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	hasher := auth.NewHasher(auth.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32})
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	type env struct {
		s       *auth.AuthService
		codec   *accesstoken.Codec
		storage repository.Storage
		clock   *testutil.Clock
		metrics *metrics.Metrics
	}

	// Begin new db transaction and create new AuthService
	// Rollback transaction when test stops
	withTx := func(t *testing.T, fn func(e env)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			clock := testutil.NewClock(start)
			mtr := metrics.New(prometheus.NewRegistry())

			codec, err := accesstoken.New(accesstoken.Config{SecretKey: "test-secret-key", TTL: 15 * time.Minute, Now: clock.Now})
			require.NoError(t, err)

			tokens, err := tokenmanager.New(tokenmanager.Config{RefreshTTL: 24 * time.Hour, Now: clock.Now, Metrics: mtr}, codec, storage)
			require.NoError(t, err, "token manager should be created without errors")

			s, err := auth.NewService(auth.Config{Metrics: mtr}, codec, tokens, user.NewService(hasher, storage, nil))
			require.NoError(t, err, "auth service could't be started")

			fn(env{s: s, codec: codec, storage: storage, clock: clock, metrics: mtr})
		})
	}

	register := func(t *testing.T, e env, email string) models.User {
		u, err := e.s.Register(t.Context(), auth.RegisterParams{Name: "Test User", Email: email, Password: "secret1"})
		require.NoError(t, err)
		return u
	}

	t.Run("new without dependencies fail", func(t *testing.T) {
		_, err := auth.NewService(auth.Config{}, nil, nil, nil)

		require.Error(t, err)
	})

	t.Run("Register", func(t *testing.T) {
		t.Run("new user ok", func(t *testing.T) {
			withTx(t, func(e env) {
				u, err := e.s.Register(t.Context(), auth.RegisterParams{Name: "Test User", Email: "a@b.com", Password: "secret1"})

				require.NoError(t, err, "registering new user should be ok")
				assert.NotZero(t, u.ID)
				assert.True(t, u.IsPremium, "new accounts are premium")
				assert.Nil(t, u.LastLoginAt)
			})
		})

		t.Run("fail if user exists", func(t *testing.T) {
			withTx(t, func(e env) {
				register(t, e, "a@b.com")

				_, err := e.s.Register(t.Context(), auth.RegisterParams{Name: "Other", Email: "a@b.com", Password: "other-pwd"})

				require.Error(t, err)
				require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
			})
		})
	})

	t.Run("Authenticate", func(t *testing.T) {
		t.Run("login ok", func(t *testing.T) {
			withTx(t, func(e env) {
				u := register(t, e, "a@b.com")

				session, err := e.s.Authenticate(t.Context(), "a@b.com", "secret1")

				require.NoError(t, err)
				assert.Equal(t, u.ID, session.User.ID)
				require.NotNil(t, session.User.LastLoginAt, "last login has to be set")
				assert.True(t, e.codec.Validate(session.Tokens.Access.Value), "access token has to be valid")
				assert.NotEmpty(t, session.Tokens.Refresh.Value)
			})
		})

		t.Run("wrong password and unknown email look the same", func(t *testing.T) {
			withTx(t, func(e env) {
				register(t, e, "a@b.com")

				_, wrongPassword := e.s.Authenticate(t.Context(), "a@b.com", "wrong")
				_, unknownEmail := e.s.Authenticate(t.Context(), "nobody@b.com", "secret1")

				require.ErrorIs(t, wrongPassword, apperrors.ErrInvalidCredentials)
				require.ErrorIs(t, unknownEmail, apperrors.ErrInvalidCredentials)
				assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
				assert.InDelta(t, 2, promtestutil.ToFloat64(e.metrics.LoginFailed), 0)
			})
		})

		t.Run("failed login keeps sessions", func(t *testing.T) {
			withTx(t, func(e env) {
				register(t, e, "a@b.com")
				session, err := e.s.Authenticate(t.Context(), "a@b.com", "secret1")
				require.NoError(t, err)

				_, err = e.s.Authenticate(t.Context(), "a@b.com", "wrong")
				require.Error(t, err)

				_, err = e.s.Refresh(t.Context(), session.Tokens.Refresh.Value)
				require.NoError(t, err, "refresh token has to remain active")
			})
		})
	})

	t.Run("Refresh", func(t *testing.T) {
		t.Run("refresh ok", func(t *testing.T) {
			withTx(t, func(e env) {
				register(t, e, "a@b.com")
				login, err := e.s.Authenticate(t.Context(), "a@b.com", "secret1")
				require.NoError(t, err)

				session, err := e.s.Refresh(t.Context(), login.Tokens.Refresh.Value)

				require.NoError(t, err)
				assert.NotEqual(t, login.Tokens.Refresh.Value, session.Tokens.Refresh.Value)
				assert.Equal(t, login.User.ID, session.User.ID)
			})
		})

		t.Run("garbage token", func(t *testing.T) {
			withTx(t, func(e env) {
				_, err := e.s.Refresh(t.Context(), "garbage")

				require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
			})
		})
	})

	t.Run("Revoke", func(t *testing.T) {
		t.Run("revoke ok", func(t *testing.T) {
			withTx(t, func(e env) {
				register(t, e, "a@b.com")
				login, err := e.s.Authenticate(t.Context(), "a@b.com", "secret1")
				require.NoError(t, err)

				e.s.Revoke(t.Context(), login.Tokens.Access.Value, login.Tokens.Refresh.Value)

				_, err = e.s.Refresh(t.Context(), login.Tokens.Refresh.Value)
				require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
			})
		})

		t.Run("expired access token accepted", func(t *testing.T) {
			withTx(t, func(e env) {
				register(t, e, "a@b.com")
				login, err := e.s.Authenticate(t.Context(), "a@b.com", "secret1")
				require.NoError(t, err)
				e.clock.Advance(time.Hour)

				e.s.Revoke(t.Context(), login.Tokens.Access.Value, login.Tokens.Refresh.Value)

				stored, err := e.storage.Refresh().Get(t.Context(), login.Tokens.Refresh.Value)
				require.NoError(t, err)
				require.NotNil(t, stored.ReasonRevoked)
				assert.Equal(t, models.RevokedByLogout, *stored.ReasonRevoked)
			})
		})

		t.Run("other user access token ignored", func(t *testing.T) {
			withTx(t, func(e env) {
				register(t, e, "a@b.com")
				register(t, e, "other@b.com")
				victim, err := e.s.Authenticate(t.Context(), "a@b.com", "secret1")
				require.NoError(t, err)
				other, err := e.s.Authenticate(t.Context(), "other@b.com", "secret1")
				require.NoError(t, err)

				e.s.Revoke(t.Context(), other.Tokens.Access.Value, victim.Tokens.Refresh.Value)

				_, err = e.s.Refresh(t.Context(), victim.Tokens.Refresh.Value)
				require.NoError(t, err, "token of other user must not be revoked")
			})
		})

		t.Run("garbage never fails", func(t *testing.T) {
			withTx(t, func(e env) {
				e.s.Revoke(t.Context(), "garbage", "garbage")
			})
		})
	})

	t.Run("Validate", func(t *testing.T) {
		t.Run("access only", func(t *testing.T) {
			withTx(t, func(e env) {
				u := register(t, e, "a@b.com")
				login, err := e.s.Authenticate(t.Context(), "a@b.com", "secret1")
				require.NoError(t, err)

				userID, err := e.s.Validate(t.Context(), login.Tokens.Access.Value, "")

				require.NoError(t, err)
				assert.Equal(t, u.ID, userID)
			})
		})

		t.Run("with active refresh", func(t *testing.T) {
			withTx(t, func(e env) {
				u := register(t, e, "a@b.com")
				login, err := e.s.Authenticate(t.Context(), "a@b.com", "secret1")
				require.NoError(t, err)

				userID, err := e.s.Validate(t.Context(), login.Tokens.Access.Value, login.Tokens.Refresh.Value)

				require.NoError(t, err)
				assert.Equal(t, u.ID, userID)
			})
		})

		t.Run("with revoked refresh", func(t *testing.T) {
			withTx(t, func(e env) {
				register(t, e, "a@b.com")
				login, err := e.s.Authenticate(t.Context(), "a@b.com", "secret1")
				require.NoError(t, err)
				_, err = e.s.Refresh(t.Context(), login.Tokens.Refresh.Value)
				require.NoError(t, err)

				_, err = e.s.Validate(t.Context(), login.Tokens.Access.Value, login.Tokens.Refresh.Value)

				require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
			})
		})

		t.Run("expired access", func(t *testing.T) {
			withTx(t, func(e env) {
				register(t, e, "a@b.com")
				login, err := e.s.Authenticate(t.Context(), "a@b.com", "secret1")
				require.NoError(t, err)
				e.clock.Advance(15 * time.Minute)

				_, err = e.s.Validate(t.Context(), login.Tokens.Access.Value, "")

				require.ErrorIs(t, err, apperrors.ErrInvalidAccessToken)
			})
		})
	})

	t.Run("UserFromAccess", func(t *testing.T) {
		t.Run("ok", func(t *testing.T) {
			withTx(t, func(e env) {
				u := register(t, e, "a@b.com")
				login, err := e.s.Authenticate(t.Context(), "a@b.com", "secret1")
				require.NoError(t, err)

				got, err := e.s.UserFromAccess(t.Context(), login.Tokens.Access.Value)

				require.NoError(t, err)
				assert.Equal(t, u.ID, got.ID)
				assert.Equal(t, "a@b.com", got.Email)
			})
		})

		t.Run("deleted user", func(t *testing.T) {
			withTx(t, func(e env) {
				u := register(t, e, "a@b.com")
				login, err := e.s.Authenticate(t.Context(), "a@b.com", "secret1")
				require.NoError(t, err)
				require.NoError(t, e.storage.User().DeleteUser(t.Context(), u.ID))

				_, err = e.s.UserFromAccess(t.Context(), login.Tokens.Access.Value)

				require.ErrorIs(t, err, apperrors.ErrInvalidAccessToken)
			})
		})
	})

	// Register, login, refresh, reuse, login again
	t.Run("session lifecycle", func(t *testing.T) {
		withTx(t, func(e env) {
			u := register(t, e, "a@b.com")

			first, err := e.s.Authenticate(t.Context(), "a@b.com", "secret1")
			require.NoError(t, err)
			r1 := first.Tokens.Refresh.Value

			second, err := e.s.Authenticate(t.Context(), "a@b.com", "secret1")
			require.NoError(t, err)
			r2 := second.Tokens.Refresh.Value

			_, err = e.s.Refresh(t.Context(), r1)
			require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken, "token revoked by second login")

			refreshed, err := e.s.Refresh(t.Context(), r2)
			require.NoError(t, err)
			r3 := refreshed.Tokens.Refresh.Value
			assert.Equal(t, u.ID, refreshed.User.ID)

			_, err = e.s.Refresh(t.Context(), r2)
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenReused, "r2 was rotated already")

			_, err = e.s.Refresh(t.Context(), r3)
			require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken, "reuse revokes the successor too")

			_, err = e.s.Authenticate(t.Context(), "a@b.com", "secret1")
			require.NoError(t, err, "password login always starts a new session")
		})
	})
}
