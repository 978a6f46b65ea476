package tasks

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rbrooks/watchstats/internal/config"
)

// Scheduler runs the periodic maintenance tasks (history retention and
// backups) on cron schedules from configuration.
type Scheduler struct {
	logger *log.Logger
	cron   *cron.Cron
}

// ActivityStore is the slice of the activity service the tasks need.
// Narrowed for testing.
type ActivityStore interface {
	TrimHistory(before *time.Time) (int64, error)
	Export() (string, error)
}

// NewScheduler creates a scheduler with the retention and backup tasks
// registered. Call Start to begin running them.
func NewScheduler(cfg config.Config, store ActivityStore, logger *log.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = log.Default()
	}

	c := cron.New()

	retention := NewRetentionTask(cfg, store, logger)
	if _, err := c.AddFunc(cfg.RetentionSchedule, retention.Run); err != nil {
		return nil, err
	}

	if cfg.BackupDir != "" {
		backup := NewBackupTask(cfg, store, logger)
		if _, err := c.AddFunc(cfg.BackupSchedule, backup.Run); err != nil {
			return nil, err
		}
	} else {
		logger.Println("Backup task disabled: no backup directory configured")
	}

	return &Scheduler{logger: logger, cron: c}, nil
}

// Start begins running the registered tasks in their own goroutine.
func (s *Scheduler) Start() {
	s.logger.Println("Maintenance scheduler starting")
	s.cron.Start()
}

// Stop halts the scheduler and waits for any running task to finish.
func (s *Scheduler) Stop() {
	s.logger.Println("Maintenance scheduler stopping...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Println("Maintenance scheduler stopped")
}
