package tasks

import (
	"log"
	"time"

	"github.com/rbrooks/watchstats/internal/config"
)

// RetentionTask trims playback history older than the configured maximum
// age. A max age of -1 keeps everything; 0 deletes the entire history.
type RetentionTask struct {
	logger    *log.Logger
	store     ActivityStore
	maxMonths int
}

// NewRetentionTask creates the retention task from configuration.
func NewRetentionTask(cfg config.Config, store ActivityStore, logger *log.Logger) *RetentionTask {
	if logger == nil {
		logger = log.Default()
	}
	return &RetentionTask{logger: logger, store: store, maxMonths: cfg.MaxDataAgeMonths}
}

// Run executes one retention pass.
func (t *RetentionTask) Run() {
	switch {
	case t.maxMonths < 0:
		t.logger.Println("Retention task: max data age disabled, keeping all history")
		return
	case t.maxMonths == 0:
		t.logger.Println("Retention task: max data age is 0, removing all history")
		deleted, err := t.store.TrimHistory(nil)
		if err != nil {
			t.logger.Printf("Retention task failed: %v", err)
			return
		}
		t.logger.Printf("Retention task removed %d rows", deleted)
	default:
		cutoff := time.Now().AddDate(0, -t.maxMonths, 0)
		t.logger.Printf("Retention task: removing history older than %s", cutoff.Format("2006-01-02"))
		deleted, err := t.store.TrimHistory(&cutoff)
		if err != nil {
			t.logger.Printf("Retention task failed: %v", err)
			return
		}
		t.logger.Printf("Retention task removed %d rows", deleted)
	}
}
