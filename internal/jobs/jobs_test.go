package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SmartAd/internal/config"
)

type fakePurger struct {
	calls atomic.Int32
	n     int64
	err   error
}

func (f *fakePurger) PurgeExpired(ctx context.Context) (int64, error) {
	f.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("purge ran without a deadline")
	}
	return f.n, f.err
}

func TestPurgeStaging(t *testing.T) {
	n, err := PurgeStaging(&fakePurger{n: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	boom := errors.New("db down")
	_, err = PurgeStaging(&fakePurger{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestRunStagingPurgeScheduler(t *testing.T) {
	cfg := &PurgeConfig{}
	c, err := RunStagingPurgeScheduler(cfg, &fakePurger{})
	require.NoError(t, err)
	defer c.Stop()
	assert.Equal(t, config.DefaultPurgeSchedule, cfg.Schedule)
	assert.Equal(t, config.DefaultTimeZone, cfg.TimeZone)
	require.Len(t, c.Entries(), 1)
	assert.Equal(t, "Africa/Accra", c.Location().String())

	_, err = RunStagingPurgeScheduler(&PurgeConfig{Schedule: "every tuesday"}, &fakePurger{})
	assert.Error(t, err)

	c, err = RunStagingPurgeScheduler(&PurgeConfig{Schedule: "*/5 * * * *", TimeZone: "Nowhere/Town"}, &fakePurger{})
	require.NoError(t, err)
	defer c.Stop()
	assert.Equal(t, "UTC", c.Location().String())
}

func TestCronService_Lifecycle(t *testing.T) {
	svc := NewCronService(map[string]interface{}{"purge_schedule": "30 2 * * *", "time_zone": "UTC"}, &fakePurger{})
	assert.Equal(t, "cron", svc.Name())
	require.NoError(t, svc.Start())

	cs := svc.(*CronService)
	require.NotNil(t, cs.cron)
	assert.Len(t, cs.cron.Entries(), 1)

	require.NoError(t, svc.Stop())
	assert.Nil(t, cs.cron)
	require.NoError(t, svc.Stop())

	bad := NewCronService(map[string]interface{}{"purge_schedule": "nope"}, &fakePurger{})
	assert.Error(t, bad.Start())
}
