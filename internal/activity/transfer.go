package activity

import (
	"bufio"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"
)

// importColumns is the fixed field order of the tab-delimited interchange
// format: date, user, item, type, name, method, client, device, duration.
const importColumns = 9

// ImportRawData reads tab-delimited rows and inserts the ones not already
// present, keyed on (date_created, user_id, item_id). Lines with a field
// count other than nine are skipped without error. Returns the number of
// newly inserted rows; importing the same data twice inserts nothing the
// second time.
func (r *Repository) ImportRawData(data string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ready {
		return 0, ErrNotInitialized
	}
	r.logger.Printf("Importing raw playback data")

	tx, err := r.db.Writer().Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	existsStmt, err := tx.Prepare("SELECT rowid FROM playback_activity WHERE date_created = ? AND user_id = ? AND item_id = ?")
	if err != nil {
		return 0, err
	}
	defer existsStmt.Close()

	insertStmt, err := tx.Prepare(`
		INSERT INTO playback_activity
		(date_created, user_id, item_id, item_type, item_name, playback_method, client_name, device_name, play_duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer insertStmt.Close()

	count := 0
	scanner := bufio.NewScanner(strings.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) != importColumns {
			continue
		}

		var rowID int64
		err := existsStmt.QueryRow(fields[0], fields[1], fields[2]).Scan(&rowID)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return count, err
		}

		if _, err := insertStmt.Exec(fields[0], fields[1], fields[2], fields[3], fields[4], fields[5], fields[6], fields[7], fields[8]); err != nil {
			return count, err
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, err
	}

	if err := tx.Commit(); err != nil {
		return count, err
	}
	return count, nil
}

// ExportRawData dumps every stored event ordered by creation time, one
// tab-joined line per row covering all nine columns. Export round-trips
// losslessly through ImportRawData.
func (r *Repository) ExportRawData() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.ready {
		return "", ErrNotInitialized
	}

	rows, err := r.db.Reader().Query(`
		SELECT date_created, user_id, item_id, item_type, item_name, playback_method, client_name, device_name, play_duration
		FROM playback_activity ORDER BY date_created
	`)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var sb strings.Builder
	for rows.Next() {
		var created time.Time
		var userID, itemID, itemType, itemName, method, client, device string
		var duration int
		if err := rows.Scan(&created, &userID, &itemID, &itemType, &itemName, &method, &client, &device, &duration); err != nil {
			return "", err
		}
		sb.WriteString(strings.Join([]string{
			created.Format(timeFormat),
			userID, itemID, itemType, itemName, method, client, device,
			strconv.Itoa(duration),
		}, "\t"))
		sb.WriteByte('\n')
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return sb.String(), nil
}
