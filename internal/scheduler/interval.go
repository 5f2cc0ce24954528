package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/updateguard/updateguard/internal/domain"
	"github.com/updateguard/updateguard/internal/logger"
)

// IntervalScheduler triggers a backup on a fixed interval using
// time.Ticker, skipping any cycle that overlaps an update session.
type IntervalScheduler struct {
	config Config
	runner BackupRunner
	gate   SessionGate

	mu          sync.RWMutex
	running     bool
	stopped     bool
	stopOnce    sync.Once
	closeOnce   sync.Once
	stopChan    chan struct{}
	stoppedChan chan struct{}

	stats struct {
		lastRunTime    time.Time
		nextRunTime    time.Time
		totalRuns      int
		successfulRuns int
		skippedRuns    int
		failedRuns     int
		lastError      string
	}
}

// NewIntervalScheduler creates an interval-based backup scheduler.
// gate may be nil when no session lock exists.
func NewIntervalScheduler(config Config, runner BackupRunner, gate SessionGate) (*IntervalScheduler, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", config.Interval)
	}
	if runner == nil {
		return nil, fmt.Errorf("backup runner cannot be nil")
	}

	return &IntervalScheduler{
		config:      config,
		runner:      runner,
		gate:        gate,
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}, nil
}

// Start begins the scheduling loop.
func (s *IntervalScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	if s.stopped {
		return fmt.Errorf("scheduler cannot be restarted after stop")
	}

	s.running = true
	s.stats.nextRunTime = time.Now().Add(s.config.Interval)

	go s.run(ctx)
	return nil
}

func (s *IntervalScheduler) run(ctx context.Context) {
	defer s.closeOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.running = false
		s.mu.Unlock()
		close(s.stoppedChan)
	})

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.executeBackup(ctx)
		}
	}
}

func (s *IntervalScheduler) executeBackup(ctx context.Context) {
	s.mu.Lock()
	s.stats.lastRunTime = time.Now()
	s.stats.totalRuns++
	s.stats.nextRunTime = time.Now().Add(s.config.Interval)
	s.mu.Unlock()

	// Hold the session lock for the entire cycle. An in-flight update
	// session owns the tree; its held lock skips this cycle rather
	// than racing it.
	if s.gate != nil {
		if err := s.gate.Acquire("scheduled-backup", uuid.NewString()); err != nil {
			if errors.Is(err, domain.ErrSessionInProgress) {
				s.mu.Lock()
				s.stats.skippedRuns++
				s.mu.Unlock()
				logger.Get().Debug("skipping scheduled backup, update session in progress")
				return
			}
			s.mu.Lock()
			s.stats.failedRuns++
			s.stats.lastError = err.Error()
			s.mu.Unlock()
			logger.Get().Warn("scheduled backup could not acquire session lock", "error", err)
			return
		}
		defer func() {
			if err := s.gate.Release(); err != nil {
				logger.Get().Warn("failed to release session lock after scheduled backup", "error", err)
			}
		}()
	}

	err := s.runner.RunBackup(ctx)

	s.mu.Lock()
	if err != nil {
		s.stats.failedRuns++
		s.stats.lastError = err.Error()
	} else {
		s.stats.successfulRuns++
		s.stats.lastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		logger.Get().Warn("scheduled backup failed", "error", err)
	}
}

// Stop gracefully stops the scheduler.
func (s *IntervalScheduler) Stop() error {
	s.mu.RLock()
	if !s.running {
		s.mu.RUnlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.mu.RUnlock()

	s.stopOnce.Do(func() {
		close(s.stopChan)
	})

	<-s.stoppedChan

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}

// Status returns the current scheduler status.
func (s *IntervalScheduler) Status() *Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &Status{
		Running:        s.running,
		LastRunTime:    s.stats.lastRunTime,
		NextRunTime:    s.stats.nextRunTime,
		TotalRuns:      s.stats.totalRuns,
		SuccessfulRuns: s.stats.successfulRuns,
		SkippedRuns:    s.stats.skippedRuns,
		FailedRuns:     s.stats.failedRuns,
		LastError:      s.stats.lastError,
	}
}
