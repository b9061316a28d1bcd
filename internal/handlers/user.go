package handlers

import (
	"net/http"
	"time"

	"github.com/nkiryanov/noteflix/internal/handlers/render"
	"github.com/nkiryanov/noteflix/internal/handlers/userctx"
	"github.com/nkiryanov/noteflix/internal/models"
)

type userResponse struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	IsPremium   bool       `json:"isPremium"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt"`
}

func newUserResponse(u models.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		IsPremium:   u.IsPremium,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

func handleUserProfile() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := userctx.FromContext(r.Context())
		render.JSON(w, newUserResponse(user))
	})
}

func handlePremiumStatus() http.Handler {
	type response struct {
		IsPremium bool `json:"isPremium"`
		// Premium never expires for now
		PremiumExpiresAt *time.Time `json:"premiumExpiresAt"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := userctx.FromContext(r.Context())
		render.JSON(w, response{IsPremium: user.IsPremium})
	})
}
