package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS policy
// Any origin is allowed without credentials if allowAll set, otherwise only listed origins with credentials.
// Cross origin requests are not allowed at all if nothing listed
func CORS(allowAll bool, origins []string) func(http.Handler) http.Handler {
	if !allowAll && len(origins) == 0 {
		// Empty origin list means 'allow all' for cors package
		return func(next http.Handler) http.Handler { return next }
	}

	opts := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}

	switch {
	case allowAll:
		opts.AllowedOrigins = []string{"*"}
	default:
		opts.AllowedOrigins = origins
		opts.AllowCredentials = true
	}

	return cors.Handler(opts)
}
