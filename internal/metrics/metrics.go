// Package metrics exposes Prometheus instrumentation for the activity store.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watchstats_events_recorded_total",
			Help: "Total number of playback events recorded",
		},
	)

	RowsImported = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watchstats_rows_imported_total",
			Help: "Total number of rows inserted via raw data import",
		},
	)

	ReportsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchstats_reports_served_total",
			Help: "Total number of report queries served",
		},
		[]string{"report"},
	)

	ReportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watchstats_report_duration_seconds",
			Help:    "Report query execution time",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"report"},
	)

	CustomQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchstats_custom_queries_total",
			Help: "Total number of ad-hoc SQL statements executed",
		},
		[]string{"status"}, // "ok", "error"
	)
)

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
