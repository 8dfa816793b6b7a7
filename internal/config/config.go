package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DefaultTimeZone = "Africa/Accra"

	// Staging rows older than this are purged regardless of status.
	DefaultStagingRetention = 48 * time.Hour
	DefaultPurgeSchedule    = "0 * * * *"

	// Minimum similarity percentage for a reference name to be offered as a candidate.
	DefaultSimilarityThreshold = 85.0

	DefaultMaxUploadMB = 10
	InsertBatchSize    = 500
)

type DatabaseOptions struct {
	Name     string `env:"DB_NAME" envDefault:"smartad"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"10"`
}

// ConnectionString is the keyword/value DSN understood by both lib/pq and pgx.
func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.Password, d.SSLMode,
	)
}

type UploadOptions struct {
	MaxUploadMB         int           `env:"MAX_UPLOAD_MB" envDefault:"10"`
	SimilarityThreshold float64       `env:"SIMILARITY_THRESHOLD" envDefault:"85"`
	StagingRetention    time.Duration `env:"STAGING_RETENTION" envDefault:"48h"`
	PurgeSchedule       string        `env:"PURGE_SCHEDULE" envDefault:"0 * * * *"`
}

type Config struct {
	Database      DatabaseOptions
	Upload        UploadOptions
	HTTPAddr      string `env:"HTTP_ADDR" envDefault:":8080"`
	TimeZone      string `env:"TIME_ZONE" envDefault:"Africa/Accra"`
	ServicesFile  string `env:"SERVICES_FILE" envDefault:"services.yaml"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"true"`
}

// LoadEnv loads the env files that exist and reports how many were read.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load reads the optional env files and parses the process environment.
func Load(envFiles ...string) (*Config, error) {
	if _, err := LoadEnv(envFiles); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Upload.SimilarityThreshold <= 0 || c.Upload.SimilarityThreshold > 100 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be in (0, 100], got %v", c.Upload.SimilarityThreshold)
	}
	if c.Upload.StagingRetention <= 0 {
		return fmt.Errorf("STAGING_RETENTION must be positive, got %s", c.Upload.StagingRetention)
	}
	if c.Upload.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.Upload.MaxUploadMB)
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("TIME_ZONE %q: %w", c.TimeZone, err)
	}
	return nil
}
