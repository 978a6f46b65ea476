package activity

import "time"

// timeFormat is the canonical second-precision format events are stored in.
// Timestamps are stored as server-local wall-clock text, so range predicates
// compare lexicographically.
const timeFormat = "2006-01-02 15:04:05"

// dateFormat is the calendar-day format used for report bucket keys.
const dateFormat = "2006-01-02"

// PlaybackEvent is one recorded playback session/segment.
// (DateCreated, UserID, ItemID) is the natural dedup key used by import and
// by duration updates.
type PlaybackEvent struct {
	DateCreated    time.Time `json:"date_created"`
	UserID         string    `json:"user_id"`
	ItemID         string    `json:"item_id"`
	ItemType       string    `json:"item_type"`
	ItemName       string    `json:"item_name"`
	PlaybackMethod string    `json:"playback_method"`
	ClientName     string    `json:"client_name"`
	DeviceName     string    `json:"device_name"`
	PlayDuration   int       `json:"play_duration"`
}

// UsageEntry is one row of the per-user detail report. Time is formatted in
// the caller's local clock; RowID backs later point deletion.
type UsageEntry struct {
	Time           string `json:"time"`
	ItemID         string `json:"item_id"`
	ItemType       string `json:"item_type"`
	ItemName       string `json:"item_name"`
	ClientName     string `json:"client_name"`
	PlaybackMethod string `json:"playback_method"`
	DeviceName     string `json:"device_name"`
	PlayDuration   int    `json:"play_duration"`
	RowID          int64  `json:"row_id"`
}

// BreakdownRow aggregates play count and watched seconds under one label.
// Shared by the breakdown, tv-show and movie reports.
type BreakdownRow struct {
	Label   string `json:"label"`
	Count   int    `json:"count"`
	Seconds int    `json:"time"`
}

// UserReportRow summarizes one user's activity in range, carrying the item
// and client of their most recent event for display.
type UserReportRow struct {
	LatestDate time.Time `json:"latest_date"`
	UserID     string    `json:"user_id"`
	TotalCount int       `json:"total_count"`
	TotalTime  int       `json:"total_time"`
	ItemName   string    `json:"item_name"`
	ClientName string    `json:"client_name"`
}

// Dimension selects the grouping column of the breakdown report. Dimensions
// resolve server-side to trusted SQL fragments; caller text is never
// interpolated into a query.
type Dimension string

const (
	DimensionUser           Dimension = "user_id"
	DimensionItemType       Dimension = "item_type"
	DimensionPlaybackMethod Dimension = "playback_method"
	DimensionClientName     Dimension = "client_name"
	DimensionDeviceName     Dimension = "device_name"
)

// dimensionColumns is the closed allow-list mapping dimensions to column
// fragments. Anything not in this map is rejected before query building.
var dimensionColumns = map[Dimension]string{
	DimensionUser:           "user_id",
	DimensionItemType:       "item_type",
	DimensionPlaybackMethod: "playback_method",
	DimensionClientName:     "client_name",
	DimensionDeviceName:     "device_name",
}

// SchemaCheck reports the outcome of the startup schema guard. Recreated is
// true when the live column signature disagreed with the required one and
// the activity table was dropped and rebuilt (losing RowsLost rows).
type SchemaCheck struct {
	Expected  string `json:"expected"`
	Actual    string `json:"actual"`
	Recreated bool   `json:"recreated"`
	RowsLost  int64  `json:"rows_lost"`
}

// CustomQueryResult is the tabular outcome of an ad-hoc SQL statement.
// Message is set instead of Columns/Rows when the statement failed or
// returned no data.
type CustomQueryResult struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
	Message string     `json:"message,omitempty"`
}
