package jobs

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"SmartAd/internal/logger"
	"SmartAd/internal/serviceiface"
)

type CronService struct {
	config map[string]interface{}
	purger Purger

	mu   sync.Mutex
	cron *cron.Cron
	log  *logrus.Entry
}

func NewCronService(cfg map[string]interface{}, purger Purger) serviceiface.Service {
	return &CronService{
		config: cfg,
		purger: purger,
		log:    logger.Component("cron"),
	}
}

func (s *CronService) Name() string {
	return "cron"
}

func (s *CronService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Info("starting cron service")

	purgeConfig := NewDefaultPurgeConfig()

	// Override purge config from services.yaml if provided
	if s.config != nil {
		if schedule, ok := s.config["purge_schedule"].(string); ok && schedule != "" {
			purgeConfig.Schedule = schedule
		}
		if tz, ok := s.config["time_zone"].(string); ok && tz != "" {
			purgeConfig.TimeZone = tz
		}
	}

	c, err := RunStagingPurgeScheduler(purgeConfig, s.purger)
	if err != nil {
		return fmt.Errorf("failed to start staging purge: %v", err)
	}
	s.cron = c

	s.log.WithField("schedule", purgeConfig.Schedule).Info("cron service started, staging purge scheduled")
	return nil
}

// Stop halts the scheduler and waits for a running purge to finish.
func (s *CronService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return nil
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.log.Info("cron service stopped")
	return nil
}
