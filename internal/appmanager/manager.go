package appmanager

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"

	"SmartAd/api/setup"
	"SmartAd/api/setup/audit"
	"SmartAd/api/setup/ratesupload"
	"SmartAd/api/setup/refentity"
	"SmartAd/api/setup/similarity"
	"SmartAd/internal/config"
	"SmartAd/internal/dbtx"
	"SmartAd/internal/jobs"
	"SmartAd/internal/logger"
	"SmartAd/internal/resource"
	"SmartAd/internal/serviceiface"
)

// Deps are the process-wide handles services are built from. Setup may be
// supplied directly; otherwise it is wired from Pool on first use.
type Deps struct {
	Config *config.Config
	Pool   *pgxpool.Pool
	Setup  *setup.Deps
}

var serviceConstructors = map[string]func(*AppManager, map[string]interface{}) serviceiface.Service{
	"logger": func(_ *AppManager, cfg map[string]interface{}) serviceiface.Service {
		return logger.NewLoggerService(cfg)
	},
	"resourcemanager": func(am *AppManager, cfg map[string]interface{}) serviceiface.Service {
		rm := resource.NewResourceManagerService(cfg)
		if am.deps.Pool != nil {
			rm.AddResource("postgres", am.deps.Pool)
		}
		return rm
	},
	"setup": func(am *AppManager, cfg map[string]interface{}) serviceiface.Service {
		if cfg == nil {
			cfg = map[string]interface{}{}
		}
		if _, ok := cfg["port"]; !ok && cfg["addr"] == nil {
			cfg["addr"] = am.config().HTTPAddr
		}
		return setup.NewSetupService(cfg, *am.setupDeps())
	},
	"cron": func(am *AppManager, cfg map[string]interface{}) serviceiface.Service {
		if cfg == nil {
			cfg = map[string]interface{}{}
		}
		if _, ok := cfg["purge_schedule"]; !ok {
			cfg["purge_schedule"] = am.config().Upload.PurgeSchedule
		}
		if _, ok := cfg["time_zone"]; !ok {
			cfg["time_zone"] = am.config().TimeZone
		}
		return jobs.NewCronService(cfg, am.setupDeps().Rates)
	},
}

// ------------------- MANAGER -------------------

type AppManager struct {
	services []serviceiface.Service
	deps     Deps
	mu       sync.Mutex
}

func NewAppManager(deps Deps) *AppManager {
	return &AppManager{
		services: make([]serviceiface.Service, 0),
		deps:     deps,
	}
}

func (am *AppManager) config() *config.Config {
	if am.deps.Config == nil {
		am.deps.Config = &config.Config{
			Upload: config.UploadOptions{
				MaxUploadMB:         config.DefaultMaxUploadMB,
				SimilarityThreshold: config.DefaultSimilarityThreshold,
				StagingRetention:    config.DefaultStagingRetention,
				PurgeSchedule:       config.DefaultPurgeSchedule,
			},
			HTTPAddr: setup.DefaultAddr,
			TimeZone: config.DefaultTimeZone,
		}
	}
	return am.deps.Config
}

// setupDeps builds the rate import stack once so the HTTP and cron services
// share one Service.
func (am *AppManager) setupDeps() *setup.Deps {
	if am.deps.Setup != nil {
		return am.deps.Setup
	}
	cfg := am.config()
	log := logger.Component("setup")
	sink := audit.NewPgSink(am.deps.Pool)
	refs := refentity.NewResolver(
		refentity.NewPgRepository(am.deps.Pool),
		similarity.NewScorer(cfg.Upload.SimilarityThreshold),
		sink,
		log,
	)
	svc := ratesupload.NewService(
		ratesupload.NewPgStagingRepository(am.deps.Pool),
		ratesupload.NewPgRateRepository(am.deps.Pool),
		refs,
		dbtx.NewPoolRunner(am.deps.Pool),
		sink,
		ratesupload.Options{Retention: cfg.Upload.StagingRetention, Logger: log},
	)
	am.deps.Setup = &setup.Deps{Rates: svc, Refs: refs, MaxUploadMB: cfg.Upload.MaxUploadMB}
	return am.deps.Setup
}

func (am *AppManager) RegisterService(s serviceiface.Service) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.services = append(am.services, s)
}

// StartAll starts services in registration order. On failure the services
// already started are stopped again.
func (am *AppManager) StartAll() error {
	am.mu.Lock()
	defer am.mu.Unlock()

	for i, service := range am.services {
		logger.Component("appmanager").WithField("service", service.Name()).Info("starting service")
		if err := service.Start(); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = am.services[j].Stop()
			}
			return fmt.Errorf("failed to start service %s: %w", service.Name(), err)
		}
	}
	return nil
}

func (am *AppManager) StopAll() error {
	am.mu.Lock()
	defer am.mu.Unlock()
	for i := len(am.services) - 1; i >= 0; i-- {
		svc := am.services[i]
		if err := svc.Stop(); err != nil {
			return fmt.Errorf("failed to stop service %s: %w", svc.Name(), err)
		}
	}
	return nil
}

// ------------------- YAML CONFIG -------------------

type ServiceSequencer struct {
	Services []ServiceConfig `yaml:"services"`
}

type ServiceConfig struct {
	Name       string                 `yaml:"name"`
	StartOrder int                    `yaml:"start_order"`
	Config     map[string]interface{} `yaml:"config"`
}

func LoadServiceSequence(path string) ([]ServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seq ServiceSequencer
	if err := yaml.Unmarshal(data, &seq); err != nil {
		return nil, err
	}

	// sort by start_order
	sort.SliceStable(seq.Services, func(i, j int) bool {
		return seq.Services[i].StartOrder < seq.Services[j].StartOrder
	})

	return seq.Services, nil
}

// AutoRegisterServices builds every known service named in configs. Unknown
// names are reported and skipped.
func (am *AppManager) AutoRegisterServices(configs []ServiceConfig) {
	for _, svc := range configs {
		constructor, ok := serviceConstructors[svc.Name]
		if !ok {
			logger.Component("appmanager").WithField("service", svc.Name).Warn("unknown service in sequence, skipping")
			continue
		}
		service := constructor(am, svc.Config)
		am.RegisterService(service)
		if l, ok := service.(*logger.LoggerService); ok {
			logger.SetGlobalLogger(l)
		}
	}
}

/*
Example services.yaml:
services:
  - name: logger
    start_order: 1
    config:
      folder_path: ./logs
  - name: resourcemanager
    start_order: 2
    config:
      heartbeat_interval: 30s
  - name: setup
    start_order: 3
    config:
      port: 8080
  - name: cron
    start_order: 4
    config:
      purge_schedule: "0 * * * *"
*/

func (am *AppManager) GetServiceByName(name string) serviceiface.Service {
	am.mu.Lock()
	defer am.mu.Unlock()
	for _, svc := range am.services {
		if svc.Name() == name {
			return svc
		}
	}
	return nil
}
