// Package jobs provides scheduled background tasks for the dispatch system.
//
// This package implements cron-based jobs using github.com/robfig/cron/v3
// to handle periodic housekeeping required for the dispatch service.
//
// # Available Jobs
//
// 1. PresenceSweepJob - Runs every thirty seconds to drop websocket sessions that stopped sending traffic
// 2. TerminalEvictionJob - Runs every minute to evict delivered and cancelled orders from the in-memory dispatch index
//
// # Usage
//
// Jobs are managed through JobManager which provides a unified interface:
//
//	// Create job manager with required services
//	jobManager := jobs.NewJobManager(registry, coordinator, sessionMaxIdle, terminalRetention, logger)
//
//	// Start all jobs
//	if err := jobManager.StartAll(); err != nil {
//		log.Fatal("Failed to start jobs:", err)
//	}
//
//	// Stop all jobs when shutting down
//	defer jobManager.StopAll()
//
// # Error Handling
//
// - Both jobs only log when they actually swept or evicted something
// - Failed job starts will stop any already running jobs
package jobs
