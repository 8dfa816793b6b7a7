package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"SmartAd/internal/config"
	"SmartAd/internal/logger"
)

const purgeTimeout = 5 * time.Minute

// Purger deletes staging rows older than the retention window.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// PurgeConfig holds the staging purge schedule.
type PurgeConfig struct {
	Schedule string
	TimeZone string
}

// NewDefaultPurgeConfig creates a PurgeConfig with default values
func NewDefaultPurgeConfig() *PurgeConfig {
	return &PurgeConfig{
		Schedule: config.DefaultPurgeSchedule,
		TimeZone: config.DefaultTimeZone,
	}
}

// RunStagingPurgeScheduler starts the cron job that clears expired upload
// sessions. The caller owns the returned cron and stops it on shutdown.
func RunStagingPurgeScheduler(cfg *PurgeConfig, purger Purger) (*cron.Cron, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = config.DefaultPurgeSchedule
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = config.DefaultTimeZone
	}

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		loc = time.UTC
	}

	c := cron.New(cron.WithLocation(loc))

	_, err = c.AddFunc(cfg.Schedule, func() {
		PurgeStaging(purger)
	})
	if err != nil {
		return nil, fmt.Errorf("unable to schedule staging purge: %v", err)
	}

	c.Start()
	logger.Audit("Staging purge scheduler started")

	return c, nil
}

// PurgeStaging runs one purge pass and records the outcome.
func PurgeStaging(purger Purger) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()

	log := logger.Component("jobs")
	n, err := purger.PurgeExpired(ctx)
	if err != nil {
		log.WithError(err).Error("staging purge failed")
		logger.Audit(fmt.Sprintf("Staging purge failed: %v", err))
		return 0, err
	}
	log.WithField("purged_rows", n).Info("staging purge finished")
	if n > 0 {
		logger.Audit(fmt.Sprintf("Staging purge removed %d expired rows", n))
	}
	return n, nil
}
