package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/nkiryanov/noteflix/internal/apperrors"
	"github.com/nkiryanov/noteflix/internal/handlers/render"
	"github.com/nkiryanov/noteflix/internal/handlers/userctx"
	"github.com/nkiryanov/noteflix/internal/models"
)

const (
	authHeaderName = "Authorization"
	authScheme     = "Bearer"
)

type authService interface {
	UserFromAccess(ctx context.Context, access string) (models.User, error)
}

// AuthMiddleware requires valid bearer access token and puts its owner to request context
func AuthMiddleware(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access, ok := BearerToken(r)
			if !ok {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			user, err := as.UserFromAccess(r.Context(), access)
			switch {
			case errors.Is(err, apperrors.ErrStoreUnavailable):
				render.ServiceError(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
				return
			case err != nil:
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := userctx.New(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts token from 'Authorization: Bearer <token>' header
// Scheme is case insensitive
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get(authHeaderName), " ")
	if !found || !strings.EqualFold(scheme, authScheme) {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}
