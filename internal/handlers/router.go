package handlers

import (
	"context"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/nkiryanov/noteflix/internal/handlers/middleware"
	"github.com/nkiryanov/noteflix/internal/logger"
	"github.com/nkiryanov/noteflix/internal/models"
	"github.com/nkiryanov/noteflix/internal/service/auth"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type Config struct {
	// Development mode: internal error details are rendered and any CORS origin allowed
	Debug bool

	// Origins allowed to make cross origin requests with credentials
	AllowedOrigins []string
}

func NewRouter(
	cfg Config,
	authService authService,
	logger logger.Logger,
	metrics http.Handler,
) http.Handler {
	withAuth := middleware.AuthMiddleware(authService)

	apiauth := http.NewServeMux()
	apiauth.Handle("POST /register", handleRegister(authService, logger, cfg.Debug))
	apiauth.Handle("POST /login", handleLogin(authService, logger, cfg.Debug))
	apiauth.Handle("POST /refresh-token", handleRefreshToken(authService, logger, cfg.Debug))
	apiauth.Handle("POST /logout", handleLogout(authService))
	apiauth.Handle("GET /validate-token", handleValidateToken(authService, logger, cfg.Debug))

	apiuser := http.NewServeMux()
	apiuser.Handle("GET /profile", withAuth(handleUserProfile()))
	apiuser.Handle("GET /premium-status", withAuth(handlePremiumStatus()))

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", apiauth))
	root.Handle("/api/user/", http.StripPrefix("/api/user", apiuser))
	if metrics != nil {
		root.Handle("GET /metrics", metrics)
	}

	handler := chain(root,
		chimw.RequestID,
		middleware.LoggerMiddleware(logger),
		chimw.Recoverer,
		middleware.CORS(cfg.Debug, cfg.AllowedOrigins),
	)

	return handler
}

type authService interface {
	// Register user
	// Has to return apperrors.ErrUserAlreadyExists if email is taken
	Register(ctx context.Context, params auth.RegisterParams) (models.User, error)

	// Authenticate user with email and password
	// Has to return apperrors.ErrInvalidCredentials if user not found or password is wrong
	Authenticate(ctx context.Context, email string, password string) (models.Session, error)

	// Refresh tokens using refresh token
	// Has to return apperrors.ErrInvalidRefreshToken if token is unknown, revoked or expired
	Refresh(ctx context.Context, refresh string) (models.Session, error)

	// Revoke refresh token of the access token owner, never fails
	Revoke(ctx context.Context, access string, refresh string)

	// Validate access token and optional refresh token, return user id
	Validate(ctx context.Context, access string, refresh string) (int64, error)

	// Get owner of the valid access token
	UserFromAccess(ctx context.Context, access string) (models.User, error)
}
