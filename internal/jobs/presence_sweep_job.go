package jobs

import (
	"context"
	"log/slog"
	"time"

	"dispatch/internal/core/application/presence"

	"github.com/robfig/cron/v3"
)

// PresenceSweepJob periodically drops websocket sessions that stopped
// sending traffic. A swept agent goes offline and leaves the candidate pool;
// reconnecting restores it.
type PresenceSweepJob struct {
	registry *presence.Registry
	maxIdle  time.Duration
	cron     *cron.Cron
	logger   *slog.Logger
}

// NewPresenceSweepJob creates a job that sweeps sessions idle for longer
// than maxIdle.
func NewPresenceSweepJob(registry *presence.Registry, maxIdle time.Duration, logger *slog.Logger) *PresenceSweepJob {
	return &PresenceSweepJob{
		registry: registry,
		maxIdle:  maxIdle,
		cron:     cron.New(cron.WithSeconds()),
		logger:   logger.With("component", "presence_sweep_job"),
	}
}

// Start begins the presence sweep job to run every thirty seconds.
func (j *PresenceSweepJob) Start() error {
	_, err := j.cron.AddFunc("*/30 * * * * *", func() {
		ctx := context.Background()

		if swept := j.registry.SweepStale(j.maxIdle); swept > 0 {
			j.logger.InfoContext(ctx, "Swept stale sessions", "count", swept, "max_idle", j.maxIdle)
		}
	})

	if err != nil {
		return err
	}

	j.cron.Start()
	j.logger.InfoContext(context.Background(), "Presence sweep job started (running every 30 seconds)")
	return nil
}

// Stop stops the presence sweep job.
func (j *PresenceSweepJob) Stop() {
	j.cron.Stop()
	j.logger.InfoContext(context.Background(), "Presence sweep job stopped")
}
