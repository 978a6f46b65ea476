package activity

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// ErrNotInitialized is returned by every store operation after a failed
// Initialize. The store stays unusable for the session; callers treat this
// as fatal for the store instance, not for the host process.
var ErrNotInitialized = errors.New("activity store is not initialized")

// requiredSchema is the exact column signature the activity table must
// carry. Any deviation triggers a drop-and-recreate on startup.
const requiredSchema = "date_created:datetime|user_id:text|item_id:text|item_type:text|item_name:text|" +
	"playback_method:text|client_name:text|device_name:text|play_duration:int"

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Repository is the playback activity store. One instance is shared by all
// callers; a single store-wide reader/writer lock serializes mutations
// against each other while report queries run concurrently.
type Repository struct {
	mu     sync.RWMutex
	db     DBPair
	logger *log.Logger
	ready  bool
}

// NewRepository creates an activity Repository. Initialize must be called
// before any other operation.
func NewRepository(dbPair DBPair, logger *log.Logger) *Repository {
	if logger == nil {
		logger = log.Default()
	}
	return &Repository{db: dbPair, logger: logger}
}

// Initialize runs the schema guard: it inspects the live column signature of
// the activity table and drops and recreates the table when it disagrees
// with the required signature. The exclusion-list table is created if absent
// and never dropped. Failure leaves the store unusable for this session; it
// is not retried and the database file is never deleted.
func (r *Repository) Initialize() (*SchemaCheck, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	check, err := r.initialize()
	if err != nil {
		r.logger.Printf("[ERROR] activity store initialization failed: %v", err)
		return nil, err
	}
	r.ready = true
	return check, nil
}

func (r *Repository) initialize() (*SchemaCheck, error) {
	w := r.db.Writer()
	r.logger.Printf("Initializing playback activity store")

	rows, err := w.Query("PRAGMA table_info('playback_activity')")
	if err != nil {
		return nil, fmt.Errorf("inspect schema: %w", err)
	}
	var cols []string
	for rows.Next() {
		var cid, notNull, pk int
		var name, colType string
		var defaultVal sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			rows.Close()
			return nil, fmt.Errorf("inspect schema: %w", err)
		}
		cols = append(cols, strings.ToLower(name)+":"+strings.ToLower(colType))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inspect schema: %w", err)
	}

	check := &SchemaCheck{
		Expected: requiredSchema,
		Actual:   strings.Join(cols, "|"),
	}

	if len(cols) > 0 && check.Actual != requiredSchema {
		r.logger.Printf("playback_activity schema mismatch, dropping and recreating table")
		r.logger.Printf("Expected : %s", check.Expected)
		r.logger.Printf("Received : %s", check.Actual)

		if err := w.QueryRow("SELECT COUNT(1) FROM playback_activity").Scan(&check.RowsLost); err != nil {
			check.RowsLost = 0
		}
		if _, err := w.Exec("DROP TABLE IF EXISTS playback_activity"); err != nil {
			return nil, fmt.Errorf("drop activity table: %w", err)
		}
		check.Recreated = true
	} else if len(cols) > 0 {
		r.logger.Printf("playback_activity schema OK")
	}

	_, err = w.Exec(`CREATE TABLE IF NOT EXISTS playback_activity (
		date_created DATETIME NOT NULL,
		user_id TEXT,
		item_id TEXT,
		item_type TEXT,
		item_name TEXT,
		playback_method TEXT,
		client_name TEXT,
		device_name TEXT,
		play_duration INT
	)`)
	if err != nil {
		return nil, fmt.Errorf("create activity table: %w", err)
	}

	if _, err := w.Exec("CREATE TABLE IF NOT EXISTS excluded_users (user_id TEXT)"); err != nil {
		return nil, fmt.Errorf("create exclusion table: %w", err)
	}

	return check, nil
}

// AddEvent inserts one playback event. Uniqueness is not enforced here;
// only the import path de-duplicates.
func (r *Repository) AddEvent(event PlaybackEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ready {
		return ErrNotInitialized
	}

	tx, err := r.db.Writer().Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO playback_activity
		(date_created, user_id, item_id, item_type, item_name, playback_method, client_name, device_name, play_duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.DateCreated.Format(timeFormat),
		event.UserID,
		event.ItemID,
		event.ItemType,
		event.ItemName,
		event.PlaybackMethod,
		event.ClientName,
		event.DeviceName,
		event.PlayDuration,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateEventDuration sets the running duration total of the event matching
// the composite key. No rows matching is a silent no-op; long sessions are
// inserted once and then updated in place.
func (r *Repository) UpdateEventDuration(dateCreated time.Time, userID, itemID string, duration int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ready {
		return ErrNotInitialized
	}

	tx, err := r.db.Writer().Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		UPDATE playback_activity SET play_duration = ?
		WHERE date_created = ? AND user_id = ? AND item_id = ?
	`, duration, dateCreated.Format(timeFormat), userID, itemID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteEvents removes events older than the cutoff. A nil cutoff deletes
// everything.
func (r *Repository) DeleteEvents(before *time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ready {
		return 0, ErrNotInitialized
	}

	query := "DELETE FROM playback_activity"
	args := []any{}
	if before != nil {
		query += " WHERE date_created < ?"
		args = append(args, before.Format(timeFormat))
	}
	r.logger.Printf("DeleteEvents : %s", query)

	tx, err := r.db.Writer().Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	result, err := tx.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return deleted, tx.Commit()
}

// DeleteEventByRowID removes a single event by the row-sequence identifier
// surfaced by the per-user detail report.
func (r *Repository) DeleteEventByRowID(rowID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ready {
		return ErrNotInitialized
	}

	tx, err := r.db.Writer().Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM playback_activity WHERE rowid = ?", rowID); err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveUnknownUsers deletes every event whose user is not in the supplied
// allow-list, pruning history for users removed from the host system. An
// empty allow-list removes all events.
func (r *Repository) RemoveUnknownUsers(knownIDs []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ready {
		return 0, ErrNotInitialized
	}

	query := "DELETE FROM playback_activity"
	args := []any{}
	if len(knownIDs) > 0 {
		query += " WHERE user_id NOT IN (" + placeholders(len(knownIDs)) + ")"
		for _, id := range knownIDs {
			args = append(args, id)
		}
	}

	tx, err := r.db.Writer().Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	result, err := tx.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return deleted, tx.Commit()
}

// SetUserExcluded adds or removes a user on the exclusion list. Excluded
// users are omitted from every aggregate report but not from raw export.
func (r *Repository) SetUserExcluded(userID string, excluded bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ready {
		return ErrNotInitialized
	}

	tx, err := r.db.Writer().Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Delete first so repeated adds keep a single row per user.
	if _, err := tx.Exec("DELETE FROM excluded_users WHERE user_id = ?", userID); err != nil {
		return err
	}
	if excluded {
		if _, err := tx.Exec("INSERT INTO excluded_users (user_id) VALUES (?)", userID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ExcludedUserIDs lists the users on the exclusion list.
func (r *Repository) ExcludedUserIDs() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.ready {
		return nil, ErrNotInitialized
	}

	rows, err := r.db.Reader().Query("SELECT user_id FROM excluded_users")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UserIDs lists the distinct users present in the store, used to populate
// report filter UIs.
func (r *Repository) UserIDs() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.ready {
		return nil, ErrNotInitialized
	}

	rows, err := r.db.Reader().Query("SELECT DISTINCT user_id FROM playback_activity")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ItemTypes lists the distinct item types present in the store, used to
// populate report filter UIs.
func (r *Repository) ItemTypes() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.ready {
		return nil, ErrNotInitialized
	}

	rows, err := r.db.Reader().Query("SELECT DISTINCT item_type FROM playback_activity")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// placeholders returns n comma-joined SQL parameter markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
