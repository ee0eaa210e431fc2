// Package jobs runs the periodic scheduled-call and analytics work in-process.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"voice-agent-platform/internal/analytics"
	"voice-agent-platform/internal/metrics"
	"voice-agent-platform/internal/scheduling"
	"voice-agent-platform/pkg/logger"

	"github.com/robfig/cron/v3"
)

const (
	scheduledTimeout = 4 * time.Minute
	analyticsTimeout = 9 * time.Minute
)

type ScheduledRunner interface {
	Run(ctx context.Context) (scheduling.RunResult, error)
}

type AnalyticsRunner interface {
	Run(ctx context.Context) (analytics.Result, error)
}

type Specs struct {
	Scheduled string
	Analytics string
}

// CronManager owns the cron scheduler. Overlapping runs of the same job in
// one process are skipped; across processes the executor's run lock applies.
type CronManager struct {
	cron      *cron.Cron
	scheduled ScheduledRunner
	analytics AnalyticsRunner
	log       *slog.Logger
}

func NewCronManager(scheduled ScheduledRunner, backfill AnalyticsRunner, log *slog.Logger) *CronManager {
	if log == nil {
		log = slog.Default()
	}
	return &CronManager{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
		scheduled: scheduled,
		analytics: backfill,
		log:       log.With("component", "cron"),
	}
}

// SetupJobs registers both jobs. An empty spec disables that job.
func (cm *CronManager) SetupJobs(specs Specs) error {
	if specs.Scheduled != "" && cm.scheduled != nil {
		if _, err := cm.cron.AddFunc(specs.Scheduled, cm.runScheduled); err != nil {
			return fmt.Errorf("schedule scheduled-calls job %q: %w", specs.Scheduled, err)
		}
	}
	if specs.Analytics != "" && cm.analytics != nil {
		if _, err := cm.cron.AddFunc(specs.Analytics, cm.runAnalytics); err != nil {
			return fmt.Errorf("schedule analytics job %q: %w", specs.Analytics, err)
		}
	}
	cm.log.Info("cron jobs configured", "scheduled_spec", specs.Scheduled, "analytics_spec", specs.Analytics)
	return nil
}

func (cm *CronManager) Start() {
	cm.cron.Start()
	cm.log.Info("cron started")
}

// Stop stops scheduling and waits for running jobs until ctx ends.
func (cm *CronManager) Stop(ctx context.Context) {
	done := cm.cron.Stop()
	select {
	case <-done.Done():
		cm.log.Info("cron stopped")
	case <-ctx.Done():
		cm.log.Warn("cron stop timed out with jobs still running")
	}
}

func (cm *CronManager) runScheduled() {
	ctx, cancel := context.WithTimeout(cm.jobContext("scheduled_calls"), scheduledTimeout)
	defer cancel()

	res, err := cm.scheduled.Run(ctx)
	if err != nil {
		metrics.JobRuns.WithLabelValues("scheduled_calls", "error").Inc()
		cm.log.Error("scheduled-calls job failed", "err", err)
		return
	}
	result := "ok"
	if res.Skipped {
		result = "skipped"
	}
	metrics.JobRuns.WithLabelValues("scheduled_calls", result).Inc()
}

func (cm *CronManager) runAnalytics() {
	ctx, cancel := context.WithTimeout(cm.jobContext("analytics_backfill"), analyticsTimeout)
	defer cancel()

	if _, err := cm.analytics.Run(ctx); err != nil {
		metrics.JobRuns.WithLabelValues("analytics_backfill", "error").Inc()
		cm.log.Error("analytics job failed", "err", err)
		return
	}
	metrics.JobRuns.WithLabelValues("analytics_backfill", "ok").Inc()
}

func (cm *CronManager) jobContext(job string) context.Context {
	return logger.With(context.Background(), cm.log.With("job", job))
}
