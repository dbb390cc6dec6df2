package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aatumaykin/jobspool/internal/logger"
	"github.com/aatumaykin/jobspool/internal/metrics"
	"github.com/aatumaykin/jobspool/internal/spool"
	"github.com/robfig/cron/v3"
)

// DefaultPruneSchedule runs the janitor once an hour.
const DefaultPruneSchedule = "@hourly"

var scheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule checks a cron expression accepted by NewJanitor.
func ValidateSchedule(expr string) error {
	if _, err := scheduleParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// Janitor periodically removes done records older than the retention.
type Janitor struct {
	store     spool.Store
	retention time.Duration
	cron      *cron.Cron
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewJanitor prepares a janitor that prunes store on schedule.
func NewJanitor(store spool.Store, retention time.Duration, schedule string, log *logger.Logger, m *metrics.Metrics) (*Janitor, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", retention)
	}
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}

	j := &Janitor{
		store:     store,
		retention: retention,
		cron:      cron.New(cron.WithParser(scheduleParser)),
		logger:    log.Named("janitor"),
		metrics:   m,
		now:       time.Now,
	}

	if _, err := j.cron.AddFunc(schedule, j.sweep); err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return j, nil
}

// Start begins running sweeps on schedule.
func (j *Janitor) Start() {
	j.cron.Start()
	j.logger.Info("janitor started", logger.Field{Key: "retention", Value: j.retention.String()})
}

// Stop waits for a running sweep and stops the schedule.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Sweep prunes done records older than the retention and returns how many were removed.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	removed, err := j.store.Prune(ctx, spool.StateDone, j.now().Add(-j.retention))
	if err != nil {
		return 0, fmt.Errorf("failed to prune done spool: %w", err)
	}
	j.metrics.RecordPruned(removed)
	return removed, nil
}

func (j *Janitor) sweep() {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("janitor panic recovered", fmt.Errorf("panic: %v", r))
		}
	}()

	removed, err := j.Sweep(context.Background())
	if err != nil {
		j.logger.Error("janitor sweep failed", err)
		return
	}
	j.logger.Debug("janitor sweep finished", logger.Field{Key: "removed", Value: removed})
}
