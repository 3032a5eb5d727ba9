package schedulers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bttc/roundrobin/pkg/config"
	"github.com/bttc/roundrobin/pkg/core"
	"github.com/bttc/roundrobin/pkg/logger"
)

type recordingRunner struct {
	mu    sync.Mutex
	calls []core.Options
	stats core.Stats
	err   error
}

func (r *recordingRunner) ImportAll(ctx context.Context, opts core.Options) (core.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, opts)
	return r.stats, r.err
}

func testSchedulerConfig() config.SchedulerConfig {
	return config.NewConfig().Scheduler
}

func TestImportSchedulerRunNow(t *testing.T) {
	runner := &recordingRunner{stats: core.Stats{Total: 2, Imported: 1, Skipped: 1}}
	is, err := NewImportScheduler(runner, testSchedulerConfig(), logger.NewTestLogger())
	require.NoError(t, err)

	is.now = func() time.Time { return time.Date(2025, time.November, 21, 8, 30, 0, 0, time.UTC) }

	_, ok := is.LastRun()
	assert.False(t, ok)

	stats, err := is.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Imported)

	require.Len(t, runner.calls, 1)
	opts := runner.calls[0]
	assert.True(t, opts.SkipExisting)
	require.NotNil(t, opts.Since)
	// 08:30 UTC is still Nov 21 in Los Angeles
	assert.Equal(t, time.Date(2025, time.November, 7, 0, 0, 0, 0, time.UTC), *opts.Since)

	last, ok := is.LastRun()
	require.True(t, ok)
	assert.Equal(t, 2, last.Total)
}

func TestImportSchedulerSinceUsesLocation(t *testing.T) {
	is, err := NewImportScheduler(&recordingRunner{}, testSchedulerConfig(), nil)
	require.NoError(t, err)

	// 03:00 UTC on Nov 22 is the evening of Nov 21 in Los Angeles
	is.now = func() time.Time { return time.Date(2025, time.November, 22, 3, 0, 0, 0, time.UTC) }
	assert.Equal(t, time.Date(2025, time.November, 7, 0, 0, 0, 0, time.UTC), is.Since())
}

func TestImportSchedulerRunError(t *testing.T) {
	runner := &recordingRunner{err: errors.New("index unavailable")}
	is, err := NewImportScheduler(runner, testSchedulerConfig(), nil)
	require.NoError(t, err)

	_, err = is.RunNow(context.Background())
	assert.EqualError(t, err, "index unavailable")
	_, ok := is.LastRun()
	assert.True(t, ok)
}

func TestImportSchedulerStart(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.Weekday = "wednesday"
	cfg.At = "06:15"
	is, err := NewImportScheduler(&recordingRunner{}, cfg, nil)
	require.NoError(t, err)

	_, err = is.NextRun()
	assert.Error(t, err)

	require.NoError(t, is.Start(context.Background()))
	defer is.Stop()

	next, err := is.NextRun()
	require.NoError(t, err)
	local := next.In(is.location)
	assert.Equal(t, time.Wednesday, local.Weekday())
	assert.Equal(t, 6, local.Hour())
	assert.Equal(t, 15, local.Minute())
	assert.True(t, next.After(time.Now()))
}

func TestNewImportSchedulerBadLocation(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.Location = "Nowhere/Special"
	_, err := NewImportScheduler(&recordingRunner{}, cfg, nil)
	assert.Error(t, err)
}

func TestStartRejectsBadClock(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.At = "25:99"
	is, err := NewImportScheduler(&recordingRunner{}, cfg, nil)
	require.NoError(t, err)
	assert.Error(t, is.Start(context.Background()))
}
