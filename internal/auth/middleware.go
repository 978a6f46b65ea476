package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rbrooks/watchstats/internal/api"
	"github.com/rbrooks/watchstats/internal/apperrors"
	"github.com/rbrooks/watchstats/internal/config"
)

// RequireAdmin validates admin tokens on the trusted-operator routes.
// When no admin key is configured the surface is disabled outright.
func RequireAdmin(cfg config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.AdminKey == "" {
				api.WriteError(w, r, apperrors.NewForbiddenError("Admin surface is disabled"))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Missing Authorization header"))
				return
			}
			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader || token == "" {
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Invalid Authorization header format"))
				return
			}

			if err := VerifyAdminToken(cfg, token); err != nil {
				if errors.Is(err, ErrTokenExpired) {
					api.WriteError(w, r, apperrors.NewUnauthorizedError("Token has expired", apperrors.ErrorCodeAuthTokenExpired))
					return
				}
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Invalid token", apperrors.ErrorCodeAuthTokenInvalid))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
