package appmanager

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SmartAd/api"
	"SmartAd/api/setup"
	"SmartAd/api/setup/ratesupload"
	"SmartAd/api/setup/refentity"
	"SmartAd/api/setup/setuptest"
	"SmartAd/api/setup/similarity"
	"SmartAd/internal/logger"
)

func writeSequence(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "services.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func memSetup() *setup.Deps {
	log, _ := test.NewNullLogger()
	store := setuptest.NewMemStore()
	refs := refentity.NewResolver(store.Refs(), similarity.NewScorer(0), store.Audit(), log)
	svc := ratesupload.NewService(store.Staging(), store.Rates(), refs, store, store.Audit(), ratesupload.Options{Logger: log})
	return &setup.Deps{Rates: svc, Refs: refs}
}

func TestLoadServiceSequence_SortsByStartOrder(t *testing.T) {
	path := writeSequence(t, `
services:
  - name: cron
    start_order: 3
  - name: logger
    start_order: 1
    config:
      level: debug
  - name: setup
    start_order: 2
    config:
      port: 9090
`)
	seq, err := LoadServiceSequence(path)
	require.NoError(t, err)
	require.Len(t, seq, 3)
	assert.Equal(t, []string{"logger", "setup", "cron"}, []string{seq[0].Name, seq[1].Name, seq[2].Name})
	assert.Equal(t, 9090, seq[1].Config["port"])

	_, err = LoadServiceSequence(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestAppManager_Lifecycle(t *testing.T) {
	prev := logger.GlobalLogger
	t.Cleanup(func() { logger.SetGlobalLogger(prev) })

	path := writeSequence(t, `
services:
  - name: logger
    start_order: 1
    config:
      folder_path: `+filepath.Join(t.TempDir(), "logs")+`
  - name: resourcemanager
    start_order: 2
  - name: setup
    start_order: 3
    config:
      addr: 127.0.0.1:0
  - name: cron
    start_order: 4
    config:
      purge_schedule: "*/10 * * * *"
  - name: billing
    start_order: 5
`)
	seq, err := LoadServiceSequence(path)
	require.NoError(t, err)

	am := NewAppManager(Deps{Setup: memSetup()})
	am.AutoRegisterServices(seq)
	require.Len(t, am.services, 4)
	require.NotNil(t, logger.GlobalLogger)
	assert.Nil(t, am.GetServiceByName("billing"))

	require.NoError(t, am.StartAll())
	httpSvc, ok := am.GetServiceByName("setup").(*api.HTTPService)
	require.True(t, ok)

	resp, err := http.Get("http://" + httpSvc.Addr() + "/setup/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, am.StopAll())
}

type stubService struct {
	name     string
	startErr error
	started  bool
	stopped  bool
}

func (s *stubService) Name() string { return s.name }
func (s *stubService) Start() error {
	s.started = true
	return s.startErr
}
func (s *stubService) Stop() error {
	s.stopped = true
	return nil
}

func TestStartAll_StopsStartedServicesOnFailure(t *testing.T) {
	first := &stubService{name: "first"}
	broken := &stubService{name: "broken", startErr: errors.New("port in use")}
	never := &stubService{name: "never"}

	am := NewAppManager(Deps{})
	am.RegisterService(first)
	am.RegisterService(broken)
	am.RegisterService(never)

	err := am.StartAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.True(t, first.stopped)
	assert.False(t, never.started)
}

func TestDefaultConfigFeedsServices(t *testing.T) {
	am := NewAppManager(Deps{Setup: memSetup()})
	cfg := map[string]interface{}{}
	serviceConstructors["cron"](am, cfg)
	assert.Equal(t, "0 * * * *", cfg["purge_schedule"])
	assert.Equal(t, "Africa/Accra", cfg["time_zone"])

	setupCfg := map[string]interface{}{}
	svc := serviceConstructors["setup"](am, setupCfg).(*api.HTTPService)
	assert.Equal(t, ":8080", svc.Addr())
}
