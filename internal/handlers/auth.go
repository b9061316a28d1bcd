package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nkiryanov/noteflix/internal/apperrors"
	"github.com/nkiryanov/noteflix/internal/handlers/middleware"
	"github.com/nkiryanov/noteflix/internal/handlers/render"
	"github.com/nkiryanov/noteflix/internal/logger"
	"github.com/nkiryanov/noteflix/internal/models"
	"github.com/nkiryanov/noteflix/internal/service/auth"
)

// Response on successful login or refresh
type sessionResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         userResponse `json:"user"`
	ExpiresAt    time.Time    `json:"expiresAt"`
}

func newSessionResponse(s models.Session) sessionResponse {
	return sessionResponse{
		AccessToken:  s.Tokens.Access.Value,
		RefreshToken: s.Tokens.Refresh.Value,
		User:         newUserResponse(s.User),
		ExpiresAt:    s.Tokens.Access.ExpiresAt,
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

func handleRegister(as authService, l logger.Logger, debug bool) http.Handler {
	type request struct {
		Name            string `json:"name" validate:"required,max=100"`
		Email           string `json:"email" validate:"required,email,max=255"`
		Password        string `json:"password" validate:"required,min=6,max=100"`
		PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		_, err = as.Register(r.Context(), auth.RegisterParams{
			Name:     data.Name,
			Email:    data.Email,
			Password: data.Password,
		})
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserAlreadyExists):
				render.ServiceError(w, "User with this email already exists", http.StatusConflict)
			default:
				renderError(w, l, err, debug)
			}
			return
		}

		render.JSON(w, messageResponse{Message: "User registered successfully"})
	})
}

func handleLogin(as authService, l logger.Logger, debug bool) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		session, err := as.Authenticate(r.Context(), data.Email, data.Password)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrInvalidCredentials):
				render.ServiceError(w, "Invalid email or password", http.StatusBadRequest)
			default:
				renderError(w, l, err, debug)
			}
			return
		}

		render.JSON(w, newSessionResponse(session))
	})
}

func handleRefreshToken(as authService, l logger.Logger, debug bool) http.Handler {
	type request struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		session, err := as.Refresh(r.Context(), data.RefreshToken)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrInvalidRefreshToken):
				render.ServiceError(w, "Invalid refresh token", http.StatusBadRequest)
			default:
				renderError(w, l, err, debug)
			}
			return
		}

		render.JSON(w, newSessionResponse(session))
	})
}

// Logout always succeeds: there is nothing client can do about failed revocation
// Refresh token is read from 'refreshToken' query parameter or JSON body
func handleLogout(as authService) http.Handler {
	type request struct {
		RefreshToken string `json:"refreshToken"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh := r.URL.Query().Get("refreshToken")
		if refresh == "" {
			var data request
			// Malformed or empty body means no refresh token: logout still succeeds
			_ = json.NewDecoder(r.Body).Decode(&data)
			refresh = data.RefreshToken
		}

		access, ok := middleware.BearerToken(r)
		if ok && refresh != "" {
			as.Revoke(r.Context(), access, refresh)
		}

		render.JSON(w, messageResponse{Message: "Logged out successfully"})
	})
}

func handleValidateToken(as authService, l logger.Logger, debug bool) http.Handler {
	type response struct {
		Valid  bool  `json:"valid"`
		UserID int64 `json:"userId"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		access, ok := middleware.BearerToken(r)
		if !ok {
			render.ServiceError(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		userID, err := as.Validate(r.Context(), access, r.URL.Query().Get("refreshToken"))
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrInvalidAccessToken), errors.Is(err, apperrors.ErrInvalidRefreshToken):
				render.ServiceError(w, "Invalid token", http.StatusUnauthorized)
			default:
				renderError(w, l, err, debug)
			}
			return
		}

		render.JSON(w, response{Valid: true, UserID: userID})
	})
}

// renderError renders errors no handler knows how to deal with
func renderError(w http.ResponseWriter, l logger.Logger, err error, debug bool) {
	switch {
	case errors.Is(err, apperrors.ErrStoreUnavailable):
		l.Error("store unavailable", "error", err)
		render.ServiceError(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
	default:
		l.Error("unexpected error", "error", err)
		render.InternalError(w, err, debug)
	}
}
