package jobs

import (
	"context"
	"log/slog"
	"time"

	"dispatch/internal/core/application/dispatch"

	"github.com/robfig/cron/v3"
)

// TerminalEvictionJob periodically evicts delivered and cancelled orders
// from the in-memory dispatch index. The database keeps terminal orders;
// only the coordinator's working set is trimmed.
type TerminalEvictionJob struct {
	coordinator *dispatch.Coordinator
	retention   time.Duration
	cron        *cron.Cron
	logger      *slog.Logger
}

// NewTerminalEvictionJob creates a job that evicts orders terminal for
// longer than retention.
func NewTerminalEvictionJob(coordinator *dispatch.Coordinator, retention time.Duration, logger *slog.Logger) *TerminalEvictionJob {
	return &TerminalEvictionJob{
		coordinator: coordinator,
		retention:   retention,
		cron:        cron.New(cron.WithSeconds()),
		logger:      logger.With("component", "terminal_eviction_job"),
	}
}

// Start begins the terminal eviction job to run every minute.
func (j *TerminalEvictionJob) Start() error {
	_, err := j.cron.AddFunc("0 * * * * *", func() {
		ctx := context.Background()

		if evicted := j.coordinator.EvictTerminal(j.retention); evicted > 0 {
			j.logger.InfoContext(ctx, "Evicted terminal orders", "count", evicted, "retention", j.retention)
		}
	})

	if err != nil {
		return err
	}

	j.cron.Start()
	j.logger.InfoContext(context.Background(), "Terminal eviction job started (running every minute)")
	return nil
}

// Stop stops the terminal eviction job.
func (j *TerminalEvictionJob) Stop() {
	j.cron.Stop()
	j.logger.InfoContext(context.Background(), "Terminal eviction job stopped")
}
