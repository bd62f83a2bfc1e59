package jobs

import (
	"fmt"
	"log/slog"
	"time"

	"dispatch/internal/core/application/dispatch"
	"dispatch/internal/core/application/presence"
)

// JobManager coordinates all scheduled jobs in the application.
// Provides a unified interface to start and stop all background jobs.
type JobManager struct {
	presenceSweepJob    *PresenceSweepJob
	terminalEvictionJob *TerminalEvictionJob
}

// NewJobManager creates a new job manager with all required jobs.
func NewJobManager(
	registry *presence.Registry,
	coordinator *dispatch.Coordinator,
	sessionMaxIdle time.Duration,
	terminalRetention time.Duration,
	logger *slog.Logger,
) *JobManager {
	return &JobManager{
		presenceSweepJob:    NewPresenceSweepJob(registry, sessionMaxIdle, logger),
		terminalEvictionJob: NewTerminalEvictionJob(coordinator, terminalRetention, logger),
	}
}

// StartAll starts all scheduled jobs.
// Returns an error if any job fails to start.
func (jm *JobManager) StartAll() error {
	if err := jm.presenceSweepJob.Start(); err != nil {
		return fmt.Errorf("failed to start presence sweep job: %w", err)
	}

	if err := jm.terminalEvictionJob.Start(); err != nil {
		// Stop already started jobs if this one fails
		jm.presenceSweepJob.Stop()
		return fmt.Errorf("failed to start terminal eviction job: %w", err)
	}

	return nil
}

// StopAll stops all scheduled jobs gracefully.
func (jm *JobManager) StopAll() {
	jm.terminalEvictionJob.Stop()
	jm.presenceSweepJob.Stop()
}
