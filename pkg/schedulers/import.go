// Package schedulers runs the recurring import of new results documents
package schedulers

import (
	"context"
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/go-co-op/gocron/v2"

	"github.com/bttc/roundrobin/pkg/config"
	"github.com/bttc/roundrobin/pkg/core"
	"github.com/bttc/roundrobin/pkg/interfaces"
	"github.com/bttc/roundrobin/pkg/logger"
)

// ImportJobName names the weekly import job
const ImportJobName = "weekly-import"

// ImportRunner is the part of the importer a scheduled run needs
type ImportRunner interface {
	ImportAll(ctx context.Context, opts core.Options) (core.Stats, error)
}

// ImportScheduler imports the documents of the last few weeks on a weekly
// schedule. Existing tournaments are skipped.
type ImportScheduler struct {
	s        gocron.Scheduler
	runner   ImportRunner
	config   config.SchedulerConfig
	location *time.Location
	logger   interfaces.Logger
	now      func() time.Time

	mu      sync.Mutex
	job     gocron.Job
	ctx     context.Context
	cancel  context.CancelFunc
	lastRun *core.Stats
}

// NewImportScheduler creates a scheduler in the configured location
func NewImportScheduler(runner ImportRunner, cfg config.SchedulerConfig, log interfaces.Logger) (*ImportScheduler, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	location, err := time.LoadLocation(cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to load location %q: %w", cfg.Location, err)
	}

	s, err := gocron.NewScheduler(gocron.WithLocation(location))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &ImportScheduler{
		s:        s,
		runner:   runner,
		config:   cfg,
		location: location,
		logger:   log,
		now:      time.Now,
	}, nil
}

// Start registers the weekly job and starts the scheduler
func (is *ImportScheduler) Start(ctx context.Context) error {
	hour, minute, err := is.config.Clock()
	if err != nil {
		return err
	}

	is.mu.Lock()
	is.ctx, is.cancel = context.WithCancel(ctx)
	is.mu.Unlock()

	job, err := is.s.NewJob(
		gocron.WeeklyJob(1, gocron.NewWeekdays(is.config.Day()), gocron.NewAtTimes(gocron.NewAtTime(hour, minute, 0))),
		gocron.NewTask(is.scheduledRun),
		gocron.WithName(ImportJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create import job: %w", err)
	}

	is.mu.Lock()
	is.job = job
	is.mu.Unlock()

	is.s.Start()
	if next, err := job.NextRun(); err == nil {
		is.logger.Info("scheduled weekly import", map[string]interface{}{
			"next_run": next.In(is.location).Format(time.RFC1123),
			"lookback": is.config.Lookback,
		})
	}
	return nil
}

// Stop cancels a running import and shuts the scheduler down
func (is *ImportScheduler) Stop() error {
	is.mu.Lock()
	if is.cancel != nil {
		is.cancel()
	}
	is.mu.Unlock()
	return is.s.Shutdown()
}

// NextRun returns the time of the next scheduled import
func (is *ImportScheduler) NextRun() (time.Time, error) {
	is.mu.Lock()
	job := is.job
	is.mu.Unlock()
	if job == nil {
		return time.Time{}, fmt.Errorf("scheduler not started")
	}
	return job.NextRun()
}

// LastRun returns the statistics of the most recent run, if any
func (is *ImportScheduler) LastRun() (core.Stats, bool) {
	is.mu.Lock()
	defer is.mu.Unlock()
	if is.lastRun == nil {
		return core.Stats{}, false
	}
	return *is.lastRun, true
}

// RunNow performs one scheduled import immediately
func (is *ImportScheduler) RunNow(ctx context.Context) (core.Stats, error) {
	since := is.Since()
	is.logger.Info("running scheduled import", map[string]interface{}{
		"since": since.Format(time.DateOnly),
	})

	stats, err := is.runner.ImportAll(ctx, core.Options{
		Since:        &since,
		SkipExisting: true,
	})

	is.mu.Lock()
	is.lastRun = &stats
	is.mu.Unlock()

	if err != nil {
		is.logger.Error("scheduled import failed", err)
		return stats, err
	}
	if stats.Failed > 0 {
		is.logger.Warn("scheduled import finished with failures", map[string]interface{}{
			"imported": stats.Imported,
			"skipped":  stats.Skipped,
			"failed":   stats.Failed,
		})
	}
	return stats, nil
}

// Since returns the first calendar date of the lookback window, taken in the
// scheduler location
func (is *ImportScheduler) Since() time.Time {
	now := is.now().In(is.location)
	start := now.AddDate(0, 0, -is.config.Lookback)
	return time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
}

func (is *ImportScheduler) scheduledRun() {
	is.mu.Lock()
	ctx := is.ctx
	is.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	_, _ = is.RunNow(ctx)
}
