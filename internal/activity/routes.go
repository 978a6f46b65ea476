package activity

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rbrooks/watchstats/internal/api"
	"github.com/rbrooks/watchstats/internal/apperrors"
	"github.com/rbrooks/watchstats/internal/auth"
	"github.com/rbrooks/watchstats/internal/config"
)

// RegisterRoutes wires the activity store and report routes to the router.
// The ad-hoc SQL runner is mounted behind admin auth.
func RegisterRoutes(router chi.Router, service *Service, cfg config.Config) {
	router.Method(http.MethodPost, "/v1/activity", api.Handler(recordEvent(service)))
	router.Method(http.MethodPut, "/v1/activity/duration", api.Handler(updateDuration(service)))
	router.Method(http.MethodDelete, "/v1/activity", api.Handler(deleteEvents(service)))
	router.Method(http.MethodDelete, "/v1/activity/{row_id}", api.Handler(deleteEvent(service)))
	router.Method(http.MethodPost, "/v1/activity/prune-unknown", api.Handler(pruneUnknownUsers(service)))
	router.Method(http.MethodGet, "/v1/activity/types", api.Handler(listItemTypes(service)))
	router.Method(http.MethodGet, "/v1/activity/users", api.Handler(listUserIDs(service)))

	router.Method(http.MethodGet, "/v1/activity/excluded-users", api.Handler(listExcludedUsers(service)))
	router.Method(http.MethodPost, "/v1/activity/excluded-users/{user_id}", api.Handler(setUserExcluded(service, true)))
	router.Method(http.MethodDelete, "/v1/activity/excluded-users/{user_id}", api.Handler(setUserExcluded(service, false)))

	router.Method(http.MethodGet, "/v1/reports/user-usage", api.Handler(userUsage(service)))
	router.Method(http.MethodGet, "/v1/reports/daily-usage", api.Handler(dailyUsage(service)))
	router.Method(http.MethodGet, "/v1/reports/hourly-usage", api.Handler(hourlyUsage(service)))
	router.Method(http.MethodGet, "/v1/reports/breakdown/{dimension}", api.Handler(breakdown(service)))
	router.Method(http.MethodGet, "/v1/reports/duration-histogram", api.Handler(durationHistogram(service)))
	router.Method(http.MethodGet, "/v1/reports/tv-shows", api.Handler(tvShows(service)))
	router.Method(http.MethodGet, "/v1/reports/movies", api.Handler(movies(service)))
	router.Method(http.MethodGet, "/v1/reports/users", api.Handler(userReport(service)))

	router.Method(http.MethodGet, "/v1/data/export", api.Handler(exportData(service)))
	router.Method(http.MethodPost, "/v1/data/import", api.Handler(importData(service)))

	router.Group(func(admin chi.Router) {
		admin.Use(auth.RequireAdmin(cfg))
		admin.Method(http.MethodPost, "/v1/admin/query", api.Handler(customQuery(service)))
	})
}

// ==========================================================================
// Request Types
// ==========================================================================

type recordEventRequest struct {
	DateCreated    string `json:"date_created,omitempty"`
	UserID         string `json:"user_id"`
	ItemID         string `json:"item_id"`
	ItemType       string `json:"item_type"`
	ItemName       string `json:"item_name"`
	PlaybackMethod string `json:"playback_method"`
	ClientName     string `json:"client_name"`
	DeviceName     string `json:"device_name"`
	PlayDuration   int    `json:"play_duration"`
}

type updateDurationRequest struct {
	DateCreated  string `json:"date_created"`
	UserID       string `json:"user_id"`
	ItemID       string `json:"item_id"`
	PlayDuration int    `json:"play_duration"`
}

type pruneUnknownRequest struct {
	KnownIDs []string `json:"known_ids"`
}

type customQueryRequest struct {
	Query string `json:"query"`
}

// ==========================================================================
// Event Handlers
// ==========================================================================

// recordEvent stores one playback event.
// POST /v1/activity
func recordEvent(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var req recordEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return apperrors.NewValidationError("Invalid request body", nil)
		}

		event := PlaybackEvent{
			UserID:         req.UserID,
			ItemID:         req.ItemID,
			ItemType:       req.ItemType,
			ItemName:       req.ItemName,
			PlaybackMethod: req.PlaybackMethod,
			ClientName:     req.ClientName,
			DeviceName:     req.DeviceName,
			PlayDuration:   req.PlayDuration,
		}
		if req.DateCreated != "" {
			created, err := time.ParseInLocation(timeFormat, req.DateCreated, time.Local)
			if err != nil {
				return apperrors.NewValidationError("date_created must use format "+timeFormat, nil)
			}
			event.DateCreated = created
		}

		if err := service.RecordEvent(event); err != nil {
			return storeError(err)
		}
		return api.WriteJSON(w, http.StatusCreated, map[string]any{"status": "recorded"})
	}
}

// updateDuration updates the running duration total of an in-flight session.
// PUT /v1/activity/duration
func updateDuration(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var req updateDurationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return apperrors.NewValidationError("Invalid request body", nil)
		}
		created, err := time.ParseInLocation(timeFormat, req.DateCreated, time.Local)
		if err != nil {
			return apperrors.NewValidationError("date_created must use format "+timeFormat, nil)
		}

		if err := service.UpdateDuration(created, req.UserID, req.ItemID, req.PlayDuration); err != nil {
			return storeError(err)
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "updated"})
	}
}

// deleteEvents removes events older than a cutoff, or everything when no
// cutoff is supplied.
// DELETE /v1/activity?older_than_days=N
func deleteEvents(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var before *time.Time
		if raw := r.URL.Query().Get("older_than_days"); raw != "" {
			days, err := strconv.Atoi(raw)
			if err != nil || days < 0 {
				return apperrors.NewValidationError("older_than_days must be a non-negative integer", nil)
			}
			cutoff := time.Now().AddDate(0, 0, -days)
			before = &cutoff
		}

		deleted, err := service.TrimHistory(before)
		if err != nil {
			return storeError(err)
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
	}
}

// deleteEvent removes a single event by row identifier.
// DELETE /v1/activity/{row_id}
func deleteEvent(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		rowID, err := strconv.ParseInt(chi.URLParam(r, "row_id"), 10, 64)
		if err != nil {
			return apperrors.NewValidationError("row_id must be an integer", nil)
		}
		if err := service.DeleteEvent(rowID); err != nil {
			return storeError(err)
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
	}
}

// pruneUnknownUsers deletes events for users no longer known to the host.
// POST /v1/activity/prune-unknown
func pruneUnknownUsers(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var req pruneUnknownRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return apperrors.NewValidationError("Invalid request body", nil)
		}
		deleted, err := service.PruneUnknownUsers(req.KnownIDs)
		if err != nil {
			return storeError(err)
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
	}
}

// listItemTypes returns the distinct item types for report filter UIs.
// GET /v1/activity/types
func listItemTypes(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		types, err := service.ItemTypes()
		if err != nil {
			return storeError(err)
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{"types": types})
	}
}

// listUserIDs returns the distinct user ids for report filter UIs.
// GET /v1/activity/users
func listUserIDs(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		users, err := service.UserIDs()
		if err != nil {
			return storeError(err)
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{"user_ids": users})
	}
}

// listExcludedUsers returns the exclusion list.
// GET /v1/activity/excluded-users
func listExcludedUsers(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		users, err := service.ExcludedUsers()
		if err != nil {
			return storeError(err)
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{"user_ids": users})
	}
}

// setUserExcluded adds or removes a user on the exclusion list.
// POST|DELETE /v1/activity/excluded-users/{user_id}
func setUserExcluded(service *Service, excluded bool) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		if err := service.SetUserExcluded(chi.URLParam(r, "user_id"), excluded); err != nil {
			return storeError(err)
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{"excluded": excluded})
	}
}

// ==========================================================================
// Report Handlers
// ==========================================================================

// userUsage lists one user's events within one caller-local calendar day.
// GET /v1/reports/user-usage?user_id=...&date=2006-01-02
func userUsage(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			return apperrors.NewValidationError("user_id is required", nil)
		}
		date, err := time.ParseInLocation(dateFormat, r.URL.Query().Get("date"), time.Local)
		if err != nil {
			return apperrors.NewValidationError("date must use format "+dateFormat, nil)
		}

		entries, err := service.UsageForUser(date, userID, queryTypes(r), queryOffset(r))
		if err != nil {
			return storeError(err)
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{"usage": entries})
	}
}

// dailyUsage returns per-user daily counts or durations.
// GET /v1/reports/daily-usage?data_type=count|duration
func dailyUsage(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		days, endDate, err := queryWindow(r)
		if err != nil {
			return err
		}
		dataType := r.URL.Query().Get("data_type")
		if dataType == "" {
			dataType = "duration"
		}
		if dataType != "count" && dataType != "duration" {
			return apperrors.NewValidationError("data_type must be count or duration", nil)
		}

		usage, err := service.UsageForDays(days, endDate, queryTypes(r), dataType, queryOffset(r))
		if err != nil {
			return storeError(err)
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{"usage": usage})
	}
}

// hourlyUsage returns the hour-of-week histogram. Buckets serialize in
// lexicographic key order.
// GET /v1/reports/hourly-usage
func hourlyUsage(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		days, endDate, err := queryWindow(r)
		if err != nil {
			return err
		}
		usage, err := service.HourlyUsage(days, endDate, queryTypes(r), queryOffset(r))
		if err != nil {
			return storeError(err)
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{"usage": usage})
	}
}

// breakdown returns count/duration grouped by an allow-listed dimension.
// GET /v1/reports/breakdown/{dimension}
func breakdown(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		days, endDate, err := queryWindow(r)
		if err != nil {
			return err
		}
		report, err := service.Breakdown(Dimension(chi.URLParam(r, "dimension")), days, endDate, queryOffset(r))
		if err != nil {
			return storeError(err)
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{"breakdown": report})
	}
}

// durationHistogram returns event counts per 300-second duration bucket.
// GET /v1/reports/duration-histogram
func durationHistogram(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		days, endDate, err := queryWindow(r)
		if err != nil {
			return err
		}
		histogram, err := service.DurationHistogram(days, endDate, queryTypes(r))
		if err != nil {
			return storeError(err)
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{"histogram": histogram})
	}
}

// tvShows returns playback grouped by parent series.
// GET /v1/reports/tv-shows
func tvShows(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		days, endDate, err := queryWindow(r)
		if err != nil {
			return err
		}
		report, err := service.TvShowReport(days, endDate, queryOffset(r))
		if err != nil {
			return storeError(err)
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{"shows": report})
	}
}

// movies returns playback grouped by movie name.
// GET /v1/reports/movies
func movies(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		days, endDate, err := queryWindow(r)
		if err != nil {
			return err
		}
		report, err := service.MoviesReport(days, endDate, queryOffset(r))
		if err != nil {
			return storeError(err)
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{"movies": report})
	}
}

// userReport returns the per-user summary with last-seen item and client.
// GET /v1/reports/users
func userReport(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		days, endDate, err := queryWindow(r)
		if err != nil {
			return err
		}
		report, err := service.UserReport(days, endDate, queryOffset(r))
		if err != nil {
			return storeError(err)
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{"users": report})
	}
}

// ==========================================================================
// Transfer & Admin Handlers
// ==========================================================================

// exportData dumps the full event history as tab-delimited text.
// GET /v1/data/export
func exportData(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		data, err := service.Export()
		if err != nil {
			return storeError(err)
		}
		w.Header().Set("Content-Type", "text/tab-separated-values")
		_, err = w.Write([]byte(data))
		return err
	}
}

// importData loads tab-delimited rows from the request body.
// POST /v1/data/import
func importData(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return apperrors.NewValidationError("Failed to read request body", nil)
		}
		count, err := service.Import(string(body))
		if err != nil {
			return storeError(err)
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{"imported": count})
	}
}

// customQuery executes operator-supplied SQL. Admin token required.
// POST /v1/admin/query
func customQuery(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var req customQueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return apperrors.NewValidationError("Invalid request body", nil)
		}
		if strings.TrimSpace(req.Query) == "" {
			return apperrors.NewValidationError("query is required", nil)
		}
		return api.WriteJSON(w, http.StatusOK, service.RunCustomQuery(req.Query))
	}
}

// ==========================================================================
// Helpers
// ==========================================================================

// queryWindow parses the shared days/end_date report parameters.
func queryWindow(r *http.Request) (int, time.Time, error) {
	days := DefaultReportDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return 0, time.Time{}, apperrors.NewValidationError("days must be a positive integer", nil)
		}
		days = parsed
	}

	endDate := time.Now()
	if raw := r.URL.Query().Get("end_date"); raw != "" {
		parsed, err := time.ParseInLocation(dateFormat, raw, time.Local)
		if err != nil {
			return 0, time.Time{}, apperrors.NewValidationError("end_date must use format "+dateFormat, nil)
		}
		endDate = parsed
	}

	return days, endDate, nil
}

// queryTypes parses the CSV item-type filter; empty means every type.
func queryTypes(r *http.Request) []string {
	raw := r.URL.Query().Get("filter")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	types := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			types = append(types, trimmed)
		}
	}
	return types
}

// queryOffset parses the caller's UTC-offset hint in signed hours.
func queryOffset(r *http.Request) float64 {
	raw := r.URL.Query().Get("timezone_offset")
	if raw == "" {
		return 0
	}
	offset, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return offset
}

// storeError maps store errors onto API errors.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, ErrNotInitialized):
		return apperrors.NewStoreUnavailableError()
	case errors.Is(err, ErrInvalidDimension):
		return apperrors.NewAppError(apperrors.ErrorCodeInvalidDimension, "Unknown breakdown dimension", 400, nil)
	default:
		return apperrors.NewInternalError("Activity store operation failed")
	}
}
