package tasks

import (
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rbrooks/watchstats/internal/config"
)

const backupTimestampFormat = "2006-01-02_15-04-05"

// BackupTask exports the full playback history to a timestamped
// tab-delimited file and prunes old backups beyond the retention count.
type BackupTask struct {
	logger *log.Logger
	store  ActivityStore
	dir    string
	keep   int
}

// NewBackupTask creates the backup task from configuration.
func NewBackupTask(cfg config.Config, store ActivityStore, logger *log.Logger) *BackupTask {
	if logger == nil {
		logger = log.Default()
	}
	return &BackupTask{logger: logger, store: store, dir: cfg.BackupDir, keep: cfg.BackupKeep}
}

// Run executes one backup pass.
func (t *BackupTask) Run() {
	if err := t.runBackup(); err != nil {
		t.logger.Printf("Backup task failed: %v", err)
		return
	}
	if err := t.pruneOldBackups(); err != nil {
		t.logger.Printf("Backup prune failed: %v", err)
	}
}

func (t *BackupTask) runBackup() error {
	data, err := t.store.Export()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return err
	}

	name := "playback_backup_" + time.Now().Format(backupTimestampFormat) + ".tsv"
	path := filepath.Join(t.dir, name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return err
	}

	t.logger.Printf("Backup written to %s (%d bytes)", path, len(data))
	return nil
}

// pruneOldBackups removes the oldest backup files beyond the retention
// count. Timestamped names sort chronologically, so lexicographic order is
// age order.
func (t *BackupTask) pruneOldBackups() error {
	if t.keep <= 0 {
		return nil
	}

	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return err
	}

	var backups []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "playback_backup_") && strings.HasSuffix(name, ".tsv") {
			backups = append(backups, name)
		}
	}

	if len(backups) <= t.keep {
		return nil
	}

	sort.Strings(backups)
	for _, name := range backups[:len(backups)-t.keep] {
		path := filepath.Join(t.dir, name)
		if err := os.Remove(path); err != nil {
			t.logger.Printf("Failed to remove old backup %s: %v", path, err)
			continue
		}
		t.logger.Printf("Removed old backup %s", path)
	}
	return nil
}
