package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbrooks/watchstats/internal/config"
)

func setupTestServer(t *testing.T) (http.Handler, config.Config) {
	t.Helper()
	cfg := config.Config{
		SQLiteDBPath:        filepath.Join(t.TempDir(), "test.db"),
		AdminKey:            "test-admin-key",
		AdminJWTSecret:      "0123456789abcdef0123456789abcdef",
		AdminTokenExpirySec: 3600,
		MaxDataAgeMonths:    -1,
		RetentionSchedule:   "0 0 * * *",
		BackupSchedule:      "0 3 * * 0",
		BackupKeep:          8,
	}

	handler, shutdown, err := NewHandler(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(ctx)
	})

	return handler, cfg
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	handler, _ := setupTestServer(t)

	rec := doJSON(t, handler, http.MethodGet, "/v1/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "healthy", body["status"])
	require.Equal(t, "watchstats", body["service"])
}

func TestRecordAndReportFlow(t *testing.T) {
	handler, _ := setupTestServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/v1/activity", map[string]any{
		"date_created":    "2024-01-02 10:00:00",
		"user_id":         "u1",
		"item_id":         "i1",
		"item_type":       "Movie",
		"item_name":       "Heat",
		"playback_method": "DirectPlay",
		"client_name":     "web",
		"device_name":     "living-room",
		"play_duration":   600,
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/v1/reports/users?days=9999", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Users []map[string]any `json:"users"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Users, 1)
	require.Equal(t, "u1", body.Users[0]["user_id"])
}

func TestRecordEventValidation(t *testing.T) {
	handler, _ := setupTestServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/v1/activity", map[string]any{
		"item_id": "i1",
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBreakdownRejectsUnknownDimension(t *testing.T) {
	handler, _ := setupTestServer(t)

	rec := doJSON(t, handler, http.MethodGet, "/v1/reports/breakdown/bogus", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminQueryRequiresToken(t *testing.T) {
	handler, cfg := setupTestServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/v1/admin/query", map[string]any{
		"query": "SELECT 1",
	}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Exchange the admin key for a token, then retry.
	rec = doJSON(t, handler, http.MethodPost, "/v1/auth/token", map[string]any{
		"admin_key": cfg.AdminKey,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var tokenBody struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokenBody))
	require.NotEmpty(t, tokenBody.AccessToken)

	rec = doJSON(t, handler, http.MethodPost, "/v1/admin/query", map[string]any{
		"query": "SELECT COUNT(1) AS n FROM playback_activity",
	}, tokenBody.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Columns []string   `json:"columns"`
		Rows    [][]string `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, []string{"n"}, result.Columns)
	require.Equal(t, [][]string{{"0"}}, result.Rows)
}

func TestExportImportFlow(t *testing.T) {
	handler, _ := setupTestServer(t)

	raw := "2024-01-02 10:00:00\tu1\ti1\tMovie\tHeat\tDirectPlay\tweb\tliving-room\t600\n"
	req := httptest.NewRequest(http.MethodPost, "/v1/data/import", bytes.NewBufferString(raw))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var imported struct {
		Imported int `json:"imported"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &imported))
	require.Equal(t, 1, imported.Imported)

	rec = doJSON(t, handler, http.MethodGet, "/v1/data/export", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, raw, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	handler, _ := setupTestServer(t)

	rec := doJSON(t, handler, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "watchstats_")
}
