package activity

import (
	"database/sql"
	"errors"
	"time"
)

// ErrInvalidDimension is returned when a breakdown dimension is not on the
// closed allow-list.
var ErrInvalidDimension = errors.New("invalid breakdown dimension")

// reportRange resolves the shared [start, end] bounds in server-local time:
// the caller end date shifted by the timezone delta, extended to the last
// second of its day, minus the lookback window for the start bound.
func reportRange(days int, endDate time.Time, delta time.Duration) (string, string) {
	end := endDate.Add(delta)
	start := end.AddDate(0, 0, -days)
	return start.Format(timeFormat), end.AddDate(0, 0, 1).Add(-time.Second).Format(timeFormat)
}

// typeFilter builds the bound item-type predicate. An empty filter matches
// every type.
func typeFilter(types []string) (string, []any) {
	if len(types) == 0 {
		return "", nil
	}
	args := make([]any, 0, len(types))
	for _, t := range types {
		args = append(args, t)
	}
	return " AND item_type IN (" + placeholders(len(types)) + ")", args
}

// UsageForUser lists one user's events within a single caller-local calendar
// day, ascending, with caller-local times of day and row identifiers for
// point deletion.
func (r *Repository) UsageForUser(date time.Time, userID string, types []string, timezoneOffset float64) ([]UsageEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.ready {
		return nil, ErrNotInitialized
	}

	delta := callerServerDelta(timezoneOffset)
	from := date.Add(delta)
	to := from.Add(23*time.Hour + 59*time.Minute + 59*time.Second)

	clause, filterArgs := typeFilter(types)
	query := `
		SELECT date_created, item_id, item_type, item_name, client_name, playback_method, device_name, play_duration, rowid
		FROM playback_activity
		WHERE date_created >= ? AND date_created <= ?
		AND user_id = ?` + clause + `
		ORDER BY date_created`
	args := append([]any{from.Format(timeFormat), to.Format(timeFormat), userID}, filterArgs...)

	rows, err := r.db.Reader().Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []UsageEntry{}
	for rows.Next() {
		var created time.Time
		var e UsageEntry
		if err := rows.Scan(&created, &e.ItemID, &e.ItemType, &e.ItemName, &e.ClientName, &e.PlaybackMethod, &e.DeviceName, &e.PlayDuration, &e.RowID); err != nil {
			return nil, err
		}
		e.Time = created.Add(-delta).Format("3:04 PM")
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UsageForDays aggregates either play counts or summed durations per (user,
// caller-local calendar day). Multiple rows landing in the same bucket
// accumulate additively; excluded users are omitted.
func (r *Repository) UsageForDays(days int, endDate time.Time, types []string, dataType string, timezoneOffset float64) (map[string]map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.ready {
		return nil, ErrNotInitialized
	}

	agg := "SUM(play_duration)"
	if dataType == "count" {
		agg = "COUNT(1)"
	}

	delta := callerServerDelta(timezoneOffset)
	start, end := reportRange(days, endDate, delta)

	clause, filterArgs := typeFilter(types)
	query := `
		SELECT user_id, date_created, ` + agg + `
		FROM playback_activity
		WHERE date_created >= ? AND date_created <= ?
		AND user_id NOT IN (SELECT user_id FROM excluded_users)` + clause + `
		GROUP BY user_id, date_created
		ORDER BY user_id, date_created ASC`
	args := append([]any{start, end}, filterArgs...)

	rows, err := r.db.Reader().Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	usage := map[string]map[string]int{}
	for rows.Next() {
		var userID string
		var created time.Time
		var value int
		if err := rows.Scan(&userID, &created, &value); err != nil {
			return nil, err
		}

		byDate, ok := usage[userID]
		if !ok {
			byDate = map[string]int{}
			usage[userID] = byDate
		}
		dateKey := created.Add(-delta).Format(dateFormat)
		byDate[dateKey] += value
	}
	return usage, rows.Err()
}

// HourlyUsage distributes each event's duration across the wall-clock
// hour-of-week buckets it occupies, keyed "<weekday>-<HH>" with Sunday as 0.
// An event spanning an hour boundary contributes the seconds left in its
// starting hour to that bucket and the remainder to the following hours.
func (r *Repository) HourlyUsage(days int, endDate time.Time, types []string, timezoneOffset float64) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.ready {
		return nil, ErrNotInitialized
	}

	delta := callerServerDelta(timezoneOffset)
	start, end := reportRange(days, endDate, delta)

	clause, filterArgs := typeFilter(types)
	query := `
		SELECT date_created, play_duration
		FROM playback_activity
		WHERE date_created >= ? AND date_created <= ?
		AND user_id NOT IN (SELECT user_id FROM excluded_users)` + clause
	args := append([]any{start, end}, filterArgs...)

	rows, err := r.db.Reader().Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	buckets := map[string]int{}
	for rows.Next() {
		var created time.Time
		var duration int
		if err := rows.Scan(&created, &duration); err != nil {
			return nil, err
		}

		at := created.Add(-delta)
		secondsLeftInHour := 3600 - (at.Minute()*60 + at.Second())
		for duration > 0 {
			key := hourKey(at)
			if duration > secondsLeftInHour {
				buckets[key] += secondsLeftInHour
			} else {
				buckets[key] += duration
			}
			duration -= secondsLeftInHour
			secondsLeftInHour = 3600
			at = at.Add(time.Hour)
		}
	}
	return buckets, rows.Err()
}

// Breakdown aggregates play count and watched seconds grouped by one of the
// allow-listed dimensions.
func (r *Repository) Breakdown(dim Dimension, days int, endDate time.Time, timezoneOffset float64) ([]BreakdownRow, error) {
	column, ok := dimensionColumns[dim]
	if !ok {
		return nil, ErrInvalidDimension
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.ready {
		return nil, ErrNotInitialized
	}

	delta := callerServerDelta(timezoneOffset)
	start, end := reportRange(days, endDate, delta)

	query := `
		SELECT ` + column + `, COUNT(1) AS play_count, SUM(play_duration) AS seconds
		FROM playback_activity
		WHERE date_created >= ? AND date_created <= ?
		AND user_id NOT IN (SELECT user_id FROM excluded_users)
		GROUP BY ` + column

	return r.queryBreakdown(query, start, end)
}

// DurationHistogram groups raw event durations into fixed 300-second
// buckets, counting events per bucket. Unlike the other reports this one
// applies no timezone adjustment: the date bounds are server-local day
// boundaries.
func (r *Repository) DurationHistogram(days int, endDate time.Time, types []string) (map[int]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.ready {
		return nil, ErrNotInitialized
	}

	start := endDate.AddDate(0, 0, -days)

	clause, filterArgs := typeFilter(types)
	query := `
		SELECT CAST(play_duration / 300 AS int) AS five_min_block, COUNT(1)
		FROM playback_activity
		WHERE date_created >= ? AND date_created <= ?
		AND user_id NOT IN (SELECT user_id FROM excluded_users)` + clause + `
		GROUP BY CAST(play_duration / 300 AS int)
		ORDER BY CAST(play_duration / 300 AS int) ASC`
	args := append([]any{
		start.Format(dateFormat) + " 00:00:00",
		endDate.Format(dateFormat) + " 23:59:59",
	}, filterArgs...)

	rows, err := r.db.Reader().Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	histogram := map[int]int{}
	for rows.Next() {
		var block, count int
		if err := rows.Scan(&block, &count); err != nil {
			return nil, err
		}
		histogram[block] = count
	}
	return histogram, rows.Err()
}

// TvShowReport aggregates episode playback per parent series. The series is
// the item name substring before the first " - " separator.
func (r *Repository) TvShowReport(days int, endDate time.Time, timezoneOffset float64) ([]BreakdownRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.ready {
		return nil, ErrNotInitialized
	}

	delta := callerServerDelta(timezoneOffset)
	start, end := reportRange(days, endDate, delta)

	query := `
		SELECT substr(item_name, 0, instr(item_name, ' - ')) AS name, COUNT(1) AS play_count, SUM(play_duration) AS total_duration
		FROM playback_activity
		WHERE item_type = 'Episode'
		AND date_created >= ? AND date_created <= ?
		AND user_id NOT IN (SELECT user_id FROM excluded_users)
		GROUP BY name`

	return r.queryBreakdown(query, start, end)
}

// MoviesReport aggregates movie playback per item name.
func (r *Repository) MoviesReport(days int, endDate time.Time, timezoneOffset float64) ([]BreakdownRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.ready {
		return nil, ErrNotInitialized
	}

	delta := callerServerDelta(timezoneOffset)
	start, end := reportRange(days, endDate, delta)

	query := `
		SELECT item_name AS name, COUNT(1) AS play_count, SUM(play_duration) AS total_duration
		FROM playback_activity
		WHERE item_type = 'Movie'
		AND date_created >= ? AND date_created <= ?
		AND user_id NOT IN (SELECT user_id FROM excluded_users)
		GROUP BY name`

	return r.queryBreakdown(query, start, end)
}

// UserReport summarizes each user's activity in range plus the item and
// client of their most recent event. When several rows share the same
// most-recent timestamp the one with the highest rowid wins, keeping the
// join deterministic.
func (r *Repository) UserReport(days int, endDate time.Time, timezoneOffset float64) ([]UserReportRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.ready {
		return nil, ErrNotInitialized
	}

	delta := callerServerDelta(timezoneOffset)
	start, end := reportRange(days, endDate, delta)

	query := `
		SELECT x.latest_date, x.user_id, x.play_count, x.total_duration, y.item_name, y.client_name
		FROM (
			SELECT MAX(date_created) AS latest_date, user_id, COUNT(1) AS play_count, SUM(play_duration) AS total_duration
			FROM playback_activity
			WHERE date_created >= ? AND date_created <= ?
			AND user_id NOT IN (SELECT user_id FROM excluded_users)
			GROUP BY user_id
		) AS x
		INNER JOIN playback_activity AS y ON x.latest_date = y.date_created AND x.user_id = y.user_id
		WHERE y.rowid = (
			SELECT MAX(z.rowid) FROM playback_activity AS z
			WHERE z.date_created = x.latest_date AND z.user_id = x.user_id
		)
		ORDER BY x.latest_date DESC`

	rows, err := r.db.Reader().Query(query, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	report := []UserReportRow{}
	for rows.Next() {
		var latest string
		var row UserReportRow
		if err := rows.Scan(&latest, &row.UserID, &row.TotalCount, &row.TotalTime, &row.ItemName, &row.ClientName); err != nil {
			return nil, err
		}
		// MAX() strips the column's datetime declaration, so the driver
		// hands the raw stored text back.
		latestDate, err := time.ParseInLocation(timeFormat, latest, time.Local)
		if err != nil {
			return nil, err
		}
		row.LatestDate = latestDate.Add(-delta)
		report = append(report, row)
	}
	return report, rows.Err()
}

func (r *Repository) queryBreakdown(query, start, end string) ([]BreakdownRow, error) {
	rows, err := r.db.Reader().Query(query, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	report := []BreakdownRow{}
	for rows.Next() {
		var label sql.NullString
		var row BreakdownRow
		if err := rows.Scan(&label, &row.Count, &row.Seconds); err != nil {
			return nil, err
		}
		row.Label = label.String
		report = append(report, row)
	}
	return report, rows.Err()
}

// hourKey formats the hour-of-week bucket key, e.g. "2-23" for Tuesday
// 11pm. Keys sort lexicographically.
func hourKey(t time.Time) string {
	return weekdayDigits[int(t.Weekday())] + "-" + t.Format("15")
}

var weekdayDigits = [...]string{"0", "1", "2", "3", "4", "5", "6"}
