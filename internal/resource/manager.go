package resource

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"SmartAd/internal/logger"
	"SmartAd/internal/serviceiface"
)

var resourceUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "smartad_resource_up",
	Help: "1 when the last heartbeat reached the resource, 0 otherwise.",
}, []string{"resource"})

// Pinger is any backing resource that can report liveness. *pgxpool.Pool
// satisfies it directly.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function, such as (*sql.DB).PingContext, to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// ResourceManager keeps the shared backing resources and checks them on a
// heartbeat.
type ResourceManager struct {
	resources         map[string]Pinger
	mu                sync.RWMutex
	stopChan          chan struct{}
	stopOnce          sync.Once
	heartbeatInterval time.Duration
	pingTimeout       time.Duration
	log               *logrus.Entry
}

func NewResourceManagerService(cfg map[string]interface{}) *ResourceManager {
	interval := 30 * time.Second // default
	if val, ok := cfg["heartbeat_interval"]; ok {
		switch v := val.(type) {
		case string:
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				interval = d
			}
		case int:
			if v > 0 {
				interval = time.Duration(v) * time.Second
			}
		case float64:
			if v > 0 {
				interval = time.Duration(v) * time.Second
			}
		}
	}
	return &ResourceManager{
		resources:         make(map[string]Pinger),
		stopChan:          make(chan struct{}),
		heartbeatInterval: interval,
		pingTimeout:       5 * time.Second,
		log:               logger.Component("resourcemanager"),
	}
}

var _ serviceiface.Service = (*ResourceManager)(nil)

func (rm *ResourceManager) Name() string { return "resourcemanager" }

// Start runs a first check so an unreachable resource fails startup, then
// keeps checking in the background.
func (rm *ResourceManager) Start() error {
	for name, err := range rm.CheckAll(context.Background()) {
		if err != nil {
			return fmt.Errorf("resource %s unavailable: %w", name, err)
		}
	}
	logger.Audit("ResourceManager started")
	go rm.heartbeatLoop()
	return nil
}

func (rm *ResourceManager) Stop() error {
	rm.stopOnce.Do(func() { close(rm.stopChan) })
	return nil
}

func (rm *ResourceManager) heartbeatLoop() {
	ticker := time.NewTicker(rm.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rm.stopChan:
			return
		case <-ticker.C:
			rm.CheckAll(context.Background())
		}
	}
}

// CheckAll pings every resource and records the result per name.
func (rm *ResourceManager) CheckAll(ctx context.Context) map[string]error {
	rm.mu.RLock()
	snapshot := make(map[string]Pinger, len(rm.resources))
	for k, v := range rm.resources {
		snapshot[k] = v
	}
	rm.mu.RUnlock()

	results := make(map[string]error, len(snapshot))
	for name, p := range snapshot {
		pctx, cancel := context.WithTimeout(ctx, rm.pingTimeout)
		err := p.Ping(pctx)
		cancel()
		results[name] = err
		if err != nil {
			resourceUp.WithLabelValues(name).Set(0)
			rm.log.WithError(err).WithField("resource", name).Warn("heartbeat failed")
			continue
		}
		resourceUp.WithLabelValues(name).Set(1)
	}
	return results
}

func (rm *ResourceManager) AddResource(key string, resource Pinger) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.resources[key] = resource
}

func (rm *ResourceManager) GetResource(key string) (Pinger, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	resource, exists := rm.resources[key]
	return resource, exists
}

func (rm *ResourceManager) RemoveResource(key string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	delete(rm.resources, key)
	resourceUp.DeleteLabelValues(key)
}

func (rm *ResourceManager) ListResources() []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	keys := make([]string, 0, len(rm.resources))
	for key := range rm.resources {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
