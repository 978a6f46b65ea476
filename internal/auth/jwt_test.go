package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbrooks/watchstats/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		AdminKey:            "test-admin-key",
		AdminJWTSecret:      "0123456789abcdef0123456789abcdef",
		AdminTokenExpirySec: 3600,
	}
}

func TestGenerateAndVerifyAdminToken(t *testing.T) {
	cfg := testConfig()

	token, err := GenerateAdminToken(cfg)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	require.NoError(t, VerifyAdminToken(cfg, token))
}

func TestVerifyAdminTokenWrongSecret(t *testing.T) {
	cfg := testConfig()
	token, err := GenerateAdminToken(cfg)
	require.NoError(t, err)

	other := cfg
	other.AdminJWTSecret = "ffffffffffffffffffffffffffffffff"
	require.ErrorIs(t, VerifyAdminToken(other, token), ErrTokenInvalid)
}

func TestVerifyAdminTokenExpired(t *testing.T) {
	cfg := testConfig()
	cfg.AdminTokenExpirySec = -60

	token, err := GenerateAdminToken(cfg)
	require.NoError(t, err)
	require.ErrorIs(t, VerifyAdminToken(cfg, token), ErrTokenExpired)
}

func TestVerifyAdminTokenGarbage(t *testing.T) {
	require.ErrorIs(t, VerifyAdminToken(testConfig(), "not.a.token"), ErrTokenInvalid)
}

// ==========================================================================
// Middleware Tests
// ==========================================================================

func protectedHandler(t *testing.T, cfg config.Config) http.Handler {
	t.Helper()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return RequireAdmin(cfg)(next)
}

func TestRequireAdminAllowsValidToken(t *testing.T) {
	cfg := testConfig()
	token, err := GenerateAdminToken(cfg)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/query", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protectedHandler(t, cfg).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAdminRejectsMissingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/query", nil)
	rec := httptest.NewRecorder()
	protectedHandler(t, testConfig()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAdminRejectsBadToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/query", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec := httptest.NewRecorder()
	protectedHandler(t, testConfig()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAdminDisabledSurface(t *testing.T) {
	cfg := testConfig()
	cfg.AdminKey = ""

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/query", nil)
	rec := httptest.NewRecorder()
	protectedHandler(t, cfg).ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}
