package tasks

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbrooks/watchstats/internal/config"
)

type fakeStore struct {
	trimCalls  []*time.Time
	trimResult int64
	exportData string
}

func (f *fakeStore) TrimHistory(before *time.Time) (int64, error) {
	f.trimCalls = append(f.trimCalls, before)
	return f.trimResult, nil
}

func (f *fakeStore) Export() (string, error) {
	return f.exportData, nil
}

// ==========================================================================
// Retention Task
// ==========================================================================

func TestRetentionTaskDisabled(t *testing.T) {
	store := &fakeStore{}
	task := NewRetentionTask(config.Config{MaxDataAgeMonths: -1}, store, nil)

	task.Run()
	require.Empty(t, store.trimCalls)
}

func TestRetentionTaskDeleteAll(t *testing.T) {
	store := &fakeStore{trimResult: 42}
	task := NewRetentionTask(config.Config{MaxDataAgeMonths: 0}, store, nil)

	task.Run()
	require.Len(t, store.trimCalls, 1)
	require.Nil(t, store.trimCalls[0])
}

func TestRetentionTaskCutoff(t *testing.T) {
	store := &fakeStore{}
	task := NewRetentionTask(config.Config{MaxDataAgeMonths: 3}, store, nil)

	before := time.Now().AddDate(0, -3, 0)
	task.Run()
	after := time.Now().AddDate(0, -3, 0)

	require.Len(t, store.trimCalls, 1)
	require.NotNil(t, store.trimCalls[0])
	cutoff := *store.trimCalls[0]
	require.False(t, cutoff.Before(before))
	require.False(t, cutoff.After(after))
}

// ==========================================================================
// Backup Task
// ==========================================================================

func TestBackupTaskWritesExport(t *testing.T) {
	dir := t.TempDir()
	store := &fakeStore{exportData: "2024-01-02 10:00:00\tu1\ti1\tMovie\tHeat\tDirectPlay\tweb\tliving-room\t600\n"}
	task := NewBackupTask(config.Config{BackupDir: dir, BackupKeep: 8}, store, nil)

	task.Run()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	require.Equal(t, store.exportData, string(data))
}

func TestBackupTaskPrunesOldBackups(t *testing.T) {
	dir := t.TempDir()

	// Seed older backups; timestamped names sort by age.
	for _, name := range []string{
		"playback_backup_2024-01-01_03-00-00.tsv",
		"playback_backup_2024-01-08_03-00-00.tsv",
		"playback_backup_2024-01-15_03-00-00.tsv",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("old\n"), 0o644))
	}
	// An unrelated file is never pruned.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep\n"), 0o644))

	store := &fakeStore{exportData: "data\n"}
	task := NewBackupTask(config.Config{BackupDir: dir, BackupKeep: 2}, store, nil)
	task.Run()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var backups, others []string
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".tsv" {
			backups = append(backups, entry.Name())
		} else {
			others = append(others, entry.Name())
		}
	}
	require.Len(t, backups, 2)
	require.Equal(t, []string{"notes.txt"}, others)
	require.NotContains(t, backups, "playback_backup_2024-01-01_03-00-00.tsv")
	require.NotContains(t, backups, "playback_backup_2024-01-08_03-00-00.tsv")
}

// ==========================================================================
// Scheduler
// ==========================================================================

func TestNewSchedulerRejectsBadSchedule(t *testing.T) {
	_, err := NewScheduler(config.Config{RetentionSchedule: "not a cron expr"}, &fakeStore{}, nil)
	require.Error(t, err)
}

func TestSchedulerStartStop(t *testing.T) {
	cfg := config.Config{
		RetentionSchedule: "0 0 * * *",
		BackupSchedule:    "0 3 * * 0",
		BackupDir:         t.TempDir(),
		BackupKeep:        2,
		MaxDataAgeMonths:  -1,
	}
	s, err := NewScheduler(cfg, &fakeStore{}, nil)
	require.NoError(t, err)

	s.Start()
	s.Stop()
}
