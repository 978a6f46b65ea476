package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rbrooks/watchstats/internal/api"
	"github.com/rbrooks/watchstats/internal/apperrors"
	"github.com/rbrooks/watchstats/internal/config"
)

type tokenRequest struct {
	AdminKey string `json:"admin_key"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// RegisterRoutes wires the token exchange endpoint.
func RegisterRoutes(router chi.Router, cfg config.Config) {
	router.Method(http.MethodPost, "/v1/auth/token", api.Handler(issueToken(cfg)))
}

// issueToken exchanges the configured admin key for a signed admin token.
// POST /v1/auth/token
func issueToken(cfg config.Config) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		if cfg.AdminKey == "" {
			return apperrors.NewForbiddenError("Admin surface is disabled")
		}

		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return apperrors.NewValidationError("Invalid request body", nil)
		}

		if subtle.ConstantTimeCompare([]byte(req.AdminKey), []byte(cfg.AdminKey)) != 1 {
			return apperrors.NewUnauthorizedError("Invalid admin key")
		}

		token, err := GenerateAdminToken(cfg)
		if err != nil {
			return apperrors.NewInternalError("Failed to issue token")
		}

		return api.WriteJSON(w, http.StatusOK, tokenResponse{
			AccessToken: token,
			ExpiresIn:   cfg.AdminTokenExpirySec,
		})
	}
}
