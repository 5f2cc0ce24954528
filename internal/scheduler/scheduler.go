// Package scheduler runs periodic automatic backups. Each cycle
// acquires the same session lock used by update sessions, so a tick
// that lands during an update skips its cycle instead of racing it.
package scheduler

import (
	"context"
	"time"
)

// Scheduler is the interface for backup schedulers.
type Scheduler interface {
	// Start begins the scheduling loop
	Start(ctx context.Context) error

	// Stop gracefully stops the scheduler
	Stop() error

	// Status returns the current scheduler status
	Status() *Status
}

// Status represents the current state of a scheduler.
type Status struct {
	Running        bool
	LastRunTime    time.Time
	NextRunTime    time.Time
	TotalRuns      int
	SuccessfulRuns int
	SkippedRuns    int
	FailedRuns     int
	LastError      string
}

// Config contains scheduler configuration.
type Config struct {
	// Interval between automatic backups
	Interval time.Duration
}

// BackupRunner executes one automatic backup cycle.
type BackupRunner interface {
	// RunBackup creates a backup of the installation tree
	RunBackup(ctx context.Context) error
}

// SessionGate serializes scheduled backups against update sessions.
// Acquire must fail with an error wrapping domain.ErrSessionInProgress
// while an update session holds the installation lock; the scheduler
// holds the gate for the whole cycle so a session cannot start
// mid-archive.
type SessionGate interface {
	Acquire(operation, sessionID string) error
	Release() error
}
