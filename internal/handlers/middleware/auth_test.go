package middleware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/noteflix/internal/apperrors"
	"github.com/nkiryanov/noteflix/internal/handlers/userctx"
	"github.com/nkiryanov/noteflix/internal/models"
)

// Allow to use a function as auth service
type authFunc func(ctx context.Context, access string) (models.User, error)

func (f authFunc) UserFromAccess(ctx context.Context, access string) (models.User, error) {
	return f(ctx, access)
}

func TestAuthMiddleware_Auth(t *testing.T) {
	// Simple handler that try to get user from context
	// If ok write it email to response
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Must always be true cause middleware has to set user to response or write error to response
		user, ok := userctx.FromContext(r.Context())
		require.True(t, ok)

		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte(user.Email))
		require.NoError(t, err, "should write email to response")
	})

	do := func(t *testing.T, as authService, header string) (int, string) {
		srv := httptest.NewServer(AuthMiddleware(as)(handler))
		defer srv.Close()

		req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/test", nil)
		require.NoError(t, err)
		if header != "" {
			req.Header.Set("Authorization", header)
		}

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err, "should make request to test server")
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err, "should read response body")
		defer resp.Body.Close() // nolint:errcheck

		return resp.StatusCode, string(body)
	}

	t.Run("auth ok", func(t *testing.T) {
		var got string
		as := authFunc(func(_ context.Context, access string) (models.User, error) {
			got = access
			return models.User{Email: "a@b.com"}, nil
		})

		code, body := do(t, as, "Bearer access-token")

		require.Equalf(t, http.StatusOK, code, "should return status OK. Resp: %s", body)
		require.Equal(t, "a@b.com", body, "should return email in response")
		require.Equal(t, "access-token", got, "token has to be passed without scheme")
	})

	t.Run("auth fail", func(t *testing.T) {
		// Middleware that always fails
		as := authFunc(func(_ context.Context, _ string) (models.User, error) {
			return models.User{}, apperrors.ErrInvalidAccessToken
		})

		code, body := do(t, as, "Bearer access-token")

		require.Equalf(t, http.StatusUnauthorized, code, "should return status Unauthorized. Resp: %s", body)
		require.JSONEq(t,
			`{
				"error": "service_error",
				"message": "Unauthorized"
			}`,
			body,
		)
	})

	t.Run("no token", func(t *testing.T) {
		as := authFunc(func(_ context.Context, _ string) (models.User, error) {
			t.Fatal("auth service must not be called without token")
			return models.User{}, nil
		})

		code, _ := do(t, as, "")

		require.Equal(t, http.StatusUnauthorized, code)
	})

	t.Run("store unavailable", func(t *testing.T) {
		as := authFunc(func(_ context.Context, _ string) (models.User, error) {
			return models.User{}, fmt.Errorf("%w: %w", apperrors.ErrStoreUnavailable, errors.New("timeout"))
		})

		code, _ := do(t, as, "Bearer access-token")

		require.Equal(t, http.StatusServiceUnavailable, code)
	})
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		token  string
		ok     bool
	}{
		{name: "ok", header: "Bearer abc.def.ghi", token: "abc.def.ghi", ok: true},
		{name: "scheme case insensitive", header: "bearer abc", token: "abc", ok: true},
		{name: "no header", header: "", ok: false},
		{name: "other scheme", header: "Basic dXNlcjpwd2Q=", ok: false},
		{name: "no token", header: "Bearer ", ok: false},
		{name: "no separator", header: "Bearerabc", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			token, ok := BearerToken(r)

			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.token, token)
		})
	}
}
