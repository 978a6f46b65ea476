package server

import (
	"context"
	"log"
	"net/http"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rbrooks/watchstats/internal/activity"
	"github.com/rbrooks/watchstats/internal/api"
	"github.com/rbrooks/watchstats/internal/auth"
	"github.com/rbrooks/watchstats/internal/config"
	"github.com/rbrooks/watchstats/internal/db"
	"github.com/rbrooks/watchstats/internal/metrics"
	"github.com/rbrooks/watchstats/internal/tasks"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// requestLoggerMiddleware logs all incoming HTTP requests
func requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Printf("%s %s %d %s", r.Method, r.URL.Path, wrapped.status, time.Since(start).Round(time.Millisecond))
	})
}

// NewHandler builds the HTTP handler and returns a shutdown function.
// A failed store initialization is logged but not fatal: the server comes up
// and store-backed routes answer 503 until the operator intervenes.
func NewHandler(cfg config.Config) (http.Handler, func(context.Context) error, error) {
	log.Printf("Using database: %s", cfg.SQLiteDBPath)
	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, err
	}

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(requestLoggerMiddleware)
	router.Use(api.RequestIDMiddleware)
	router.Use(api.RecovererMiddleware)

	registerHealthRoutes(router)
	router.Handle("/metrics", metrics.Handler())

	auth.RegisterRoutes(router, cfg)

	repo := activity.NewRepository(dbPair, nil)
	check, err := repo.Initialize()
	if err != nil {
		log.Printf("Activity store initialization failed, store routes unavailable: %v", err)
	} else if check.Recreated {
		log.Printf("Activity table schema mismatch, table recreated (rows lost: %d)", check.RowsLost)
		log.Printf("  expected schema: %s", check.Expected)
		log.Printf("  found schema:    %s", check.Actual)
	}

	activityService := activity.NewService(cfg, repo, nil)
	activity.RegisterRoutes(router, activityService, cfg)

	scheduler, err := tasks.NewScheduler(cfg, activityService, nil)
	if err != nil {
		return nil, nil, err
	}
	scheduler.Start()

	shutdown := func(ctx context.Context) error {
		scheduler.Stop()
		if ctx == nil {
			ctx = context.Background()
		}
		return dbPair.Close()
	}

	return router, shutdown, nil
}

func registerHealthRoutes(router chi.Router) {
	router.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		response := map[string]any{
			"status":    "healthy",
			"service":   "watchstats",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		return api.WriteJSON(w, http.StatusOK, response)
	}))
	router.Method(http.MethodGet, "/v1/health/live", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
	router.Method(http.MethodGet, "/v1/health/ready", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}))
}
