package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the server configuration, loaded from environment variables.
type Config struct {
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	Port            string        `envconfig:"PORT" default:"9090"`
	SQLiteDBPath    string        `envconfig:"SQLITE_DB_PATH" default:"./data/watchstats.db"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// AdminKey is exchanged for an admin JWT at /v1/auth/token. When empty
	// the admin surface (ad-hoc SQL) is disabled entirely.
	AdminKey            string `envconfig:"ADMIN_KEY" default:""`
	AdminJWTSecret      string `envconfig:"ADMIN_JWT_SECRET" default:""`
	AdminTokenExpirySec int    `envconfig:"ADMIN_TOKEN_EXPIRY" default:"3600"`

	// MaxDataAgeMonths controls the retention trim task: -1 keeps data
	// forever, 0 deletes everything, N deletes events older than N months.
	MaxDataAgeMonths  int    `envconfig:"MAX_DATA_AGE_MONTHS" default:"-1"`
	RetentionSchedule string `envconfig:"RETENTION_SCHEDULE" default:"0 0 * * *"`

	BackupSchedule string `envconfig:"BACKUP_SCHEDULE" default:"0 3 * * 0"`
	BackupDir      string `envconfig:"BACKUP_DIR" default:"./data/backups"`
	BackupKeep     int    `envconfig:"BACKUP_KEEP" default:"8"`
}

// Load reads configuration from the environment, honoring a .env file if
// one exists in the working directory.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}

	if cfg.AdminKey != "" && len(strings.TrimSpace(cfg.AdminJWTSecret)) < 32 {
		return Config{}, fmt.Errorf("ADMIN_JWT_SECRET must be at least 32 characters when ADMIN_KEY is set")
	}

	return cfg, nil
}
