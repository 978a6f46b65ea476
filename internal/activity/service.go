package activity

import (
	"log"
	"strings"
	"time"

	"github.com/rbrooks/watchstats/internal/apperrors"
	"github.com/rbrooks/watchstats/internal/config"
	"github.com/rbrooks/watchstats/internal/metrics"
)

// DefaultReportDays is the lookback window applied when a report request
// omits one.
const DefaultReportDays = 28

// Service validates and instruments operations on the activity store.
type Service struct {
	cfg    config.Config
	logger *log.Logger
	repo   *Repository
}

// NewService creates a new activity service around an initialized
// repository.
func NewService(cfg config.Config, repo *Repository, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{cfg: cfg, logger: logger, repo: repo}
}

// RecordEvent validates and stores one playback event. A zero DateCreated
// defaults to the current server wall clock.
func (s *Service) RecordEvent(event PlaybackEvent) error {
	if event.UserID == "" || event.ItemID == "" {
		return apperrors.NewValidationError("user_id and item_id are required", nil)
	}
	if event.PlayDuration < 0 {
		return apperrors.NewValidationError("play_duration must not be negative", nil)
	}
	if event.DateCreated.IsZero() {
		event.DateCreated = time.Now()
	}

	if err := s.repo.AddEvent(event); err != nil {
		return err
	}
	metrics.EventsRecorded.Inc()
	return nil
}

// UpdateDuration sets the running duration of the event matching the
// composite key; no matching row is a silent no-op.
func (s *Service) UpdateDuration(dateCreated time.Time, userID, itemID string, duration int) error {
	if duration < 0 {
		return apperrors.NewValidationError("play_duration must not be negative", nil)
	}
	return s.repo.UpdateEventDuration(dateCreated, userID, itemID, duration)
}

// TrimHistory deletes events older than the cutoff; nil deletes everything.
func (s *Service) TrimHistory(before *time.Time) (int64, error) {
	return s.repo.DeleteEvents(before)
}

// DeleteEvent removes one event by its row identifier.
func (s *Service) DeleteEvent(rowID int64) error {
	return s.repo.DeleteEventByRowID(rowID)
}

// PruneUnknownUsers deletes events for users absent from the allow-list.
func (s *Service) PruneUnknownUsers(knownIDs []string) (int64, error) {
	return s.repo.RemoveUnknownUsers(knownIDs)
}

// SetUserExcluded adds or removes a user on the aggregate-report exclusion
// list.
func (s *Service) SetUserExcluded(userID string, excluded bool) error {
	if strings.TrimSpace(userID) == "" {
		return apperrors.NewValidationError("user_id is required", nil)
	}
	return s.repo.SetUserExcluded(userID, excluded)
}

// ExcludedUsers lists the exclusion list.
func (s *Service) ExcludedUsers() ([]string, error) {
	return s.repo.ExcludedUserIDs()
}

// UserIDs lists the distinct users in the store.
func (s *Service) UserIDs() ([]string, error) {
	return s.repo.UserIDs()
}

// ItemTypes lists the distinct item types in the store.
func (s *Service) ItemTypes() ([]string, error) {
	return s.repo.ItemTypes()
}

// UsageForUser returns one user's events within a single caller-local day.
func (s *Service) UsageForUser(date time.Time, userID string, types []string, timezoneOffset float64) ([]UsageEntry, error) {
	defer s.observe("user_usage", time.Now())
	return s.repo.UsageForUser(date, userID, types, timezoneOffset)
}

// UsageForDays returns per-user daily counts or summed durations.
func (s *Service) UsageForDays(days int, endDate time.Time, types []string, dataType string, timezoneOffset float64) (map[string]map[string]int, error) {
	defer s.observe("daily_usage", time.Now())
	return s.repo.UsageForDays(days, endDate, types, dataType, timezoneOffset)
}

// HourlyUsage returns the hour-of-week usage histogram.
func (s *Service) HourlyUsage(days int, endDate time.Time, types []string, timezoneOffset float64) (map[string]int, error) {
	defer s.observe("hourly_usage", time.Now())
	return s.repo.HourlyUsage(days, endDate, types, timezoneOffset)
}

// Breakdown returns count/duration grouped by an allow-listed dimension.
func (s *Service) Breakdown(dim Dimension, days int, endDate time.Time, timezoneOffset float64) ([]BreakdownRow, error) {
	defer s.observe("breakdown", time.Now())
	return s.repo.Breakdown(dim, days, endDate, timezoneOffset)
}

// DurationHistogram returns event counts per 300-second duration bucket.
func (s *Service) DurationHistogram(days int, endDate time.Time, types []string) (map[int]int, error) {
	defer s.observe("duration_histogram", time.Now())
	return s.repo.DurationHistogram(days, endDate, types)
}

// TvShowReport returns playback grouped by parent series.
func (s *Service) TvShowReport(days int, endDate time.Time, timezoneOffset float64) ([]BreakdownRow, error) {
	defer s.observe("tv_shows", time.Now())
	return s.repo.TvShowReport(days, endDate, timezoneOffset)
}

// MoviesReport returns playback grouped by movie name.
func (s *Service) MoviesReport(days int, endDate time.Time, timezoneOffset float64) ([]BreakdownRow, error) {
	defer s.observe("movies", time.Now())
	return s.repo.MoviesReport(days, endDate, timezoneOffset)
}

// UserReport returns the per-user summary with last-seen item and client.
func (s *Service) UserReport(days int, endDate time.Time, timezoneOffset float64) ([]UserReportRow, error) {
	defer s.observe("users", time.Now())
	return s.repo.UserReport(days, endDate, timezoneOffset)
}

// Import loads tab-delimited rows, skipping duplicates and malformed lines.
func (s *Service) Import(data string) (int, error) {
	count, err := s.repo.ImportRawData(data)
	if count > 0 {
		metrics.RowsImported.Add(float64(count))
	}
	if err != nil {
		return count, err
	}
	s.logger.Printf("Imported %d new playback rows", count)
	return count, nil
}

// Export dumps the full event history as tab-delimited text.
func (s *Service) Export() (string, error) {
	return s.repo.ExportRawData()
}

// RunCustomQuery executes operator-supplied SQL. Trusted-operator-only; the
// route above this sits behind admin auth.
func (s *Service) RunCustomQuery(query string) CustomQueryResult {
	result := s.repo.RunCustomQuery(query)
	status := "ok"
	if strings.HasPrefix(result.Message, "Error") {
		status = "error"
	}
	metrics.CustomQueries.WithLabelValues(status).Inc()
	return result
}

func (s *Service) observe(report string, start time.Time) {
	metrics.ReportsServed.WithLabelValues(report).Inc()
	metrics.ReportDuration.WithLabelValues(report).Observe(time.Since(start).Seconds())
}
