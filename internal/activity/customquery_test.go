package activity

import (
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func TestRunCustomQuerySelect(t *testing.T) {
	repo, _ := setupTestRepo(t)
	require.NoError(t, repo.AddEvent(testEvent("2024-01-02 10:00:00", "u1", "i1")))
	require.NoError(t, repo.AddEvent(testEvent("2024-01-02 11:00:00", "u2", "i2")))

	result := repo.RunCustomQuery("SELECT user_id, play_duration FROM playback_activity ORDER BY date_created")
	require.Empty(t, result.Message)
	require.Equal(t, []string{"user_id", "play_duration"}, result.Columns)
	require.Equal(t, [][]string{{"u1", "600"}, {"u2", "600"}}, result.Rows)
}

func TestRunCustomQueryError(t *testing.T) {
	repo, _ := setupTestRepo(t)
	require.NoError(t, repo.AddEvent(testEvent("2024-01-02 10:00:00", "u1", "i1")))

	result := repo.RunCustomQuery("SELECT * FROM no_such_table")
	require.Contains(t, result.Message, "Error running query:")
	require.Empty(t, result.Columns)
	require.Empty(t, result.Rows)

	// A failed statement leaves the store untouched.
	data, err := repo.ExportRawData()
	require.NoError(t, err)
	require.Contains(t, data, "u1")
}

func TestRunCustomQueryNoRows(t *testing.T) {
	repo, _ := setupTestRepo(t)
	require.NoError(t, repo.AddEvent(testEvent("2024-01-02 10:00:00", "u1", "i1")))

	result := repo.RunCustomQuery("DELETE FROM playback_activity WHERE 1 = 0")
	require.Empty(t, result.Columns)
	require.Empty(t, result.Rows)
	require.Equal(t, "Query executed, no data returned. Number of rows affected: 0", result.Message)
}

func TestRunCustomQueryDeleteReportsAffectedRows(t *testing.T) {
	repo, _ := setupTestRepo(t)
	require.NoError(t, repo.AddEvent(testEvent("2024-01-02 10:00:00", "u1", "i1")))
	require.NoError(t, repo.AddEvent(testEvent("2024-01-02 11:00:00", "u1", "i2")))

	result := repo.RunCustomQuery("DELETE FROM playback_activity WHERE user_id = 'u1'")
	require.Equal(t, "Query executed, no data returned. Number of rows affected: 2", result.Message)

	data, err := repo.ExportRawData()
	require.NoError(t, err)
	require.Equal(t, "", data)
}

func TestRunCustomQueryEmptyResultSet(t *testing.T) {
	repo, _ := setupTestRepo(t)

	// A SELECT matching nothing never sees a row, so columns stay unset and
	// the no-data message path fires.
	result := repo.RunCustomQuery("SELECT user_id FROM playback_activity")
	require.Empty(t, result.Columns)
	require.Empty(t, result.Rows)
	require.Contains(t, result.Message, "no data returned")
}
