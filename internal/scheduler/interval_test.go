package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/updateguard/updateguard/internal/domain"
	"github.com/updateguard/updateguard/internal/testutil"
)

type countingRunner struct {
	runs int64
	err  error
}

func (r *countingRunner) RunBackup(ctx context.Context) error {
	atomic.AddInt64(&r.runs, 1)
	return r.err
}

func (r *countingRunner) count() int64 {
	return atomic.LoadInt64(&r.runs)
}

// fakeGate mimics the session lock: Acquire fails while an update
// session holds it, and tracks whether the scheduler holds it.
type fakeGate struct {
	locked   atomic.Bool // held by a simulated update session
	held     atomic.Bool // held by the scheduler
	releases atomic.Int64
}

func (g *fakeGate) Acquire(operation, sessionID string) error {
	if g.locked.Load() {
		return fmt.Errorf("lock is held by another process: %w", domain.ErrSessionInProgress)
	}
	g.held.Store(true)
	return nil
}

func (g *fakeGate) Release() error {
	g.held.Store(false)
	g.releases.Add(1)
	return nil
}

func TestNewIntervalScheduler_Validation(t *testing.T) {
	if _, err := NewIntervalScheduler(Config{Interval: 0}, &countingRunner{}, nil); err == nil {
		t.Error("zero interval must be rejected")
	}
	if _, err := NewIntervalScheduler(Config{Interval: time.Second}, nil, nil); err == nil {
		t.Error("nil runner must be rejected")
	}
}

func TestScheduler_RunsOnInterval(t *testing.T) {
	runner := &countingRunner{}
	s, err := NewIntervalScheduler(Config{Interval: 20 * time.Millisecond}, runner, nil)
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("failed to start scheduler: %v", err)
	}

	if !testutil.WaitForCondition(2*time.Second, func() bool { return runner.count() >= 2 }) {
		t.Fatal("scheduler did not run at least twice")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("failed to stop scheduler: %v", err)
	}

	status := s.Status()
	if status.Running {
		t.Error("scheduler should not report running after stop")
	}
	if status.SuccessfulRuns < 2 {
		t.Errorf("expected at least 2 successful runs, got %d", status.SuccessfulRuns)
	}
}

func TestScheduler_SkipsCyclesWhileSessionActive(t *testing.T) {
	runner := &countingRunner{}
	gate := &fakeGate{}
	gate.locked.Store(true)

	s, err := NewIntervalScheduler(Config{Interval: 20 * time.Millisecond}, runner, gate)
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("failed to start scheduler: %v", err)
	}

	if !testutil.WaitForCondition(2*time.Second, func() bool { return s.Status().SkippedRuns >= 2 }) {
		t.Fatal("locked gate should cause skipped cycles")
	}
	if runner.count() != 0 {
		t.Errorf("runner must not run while the session lock is held, ran %d times", runner.count())
	}

	// Releasing the gate lets the next cycle through
	gate.locked.Store(false)
	if !testutil.WaitForCondition(2*time.Second, func() bool { return runner.count() >= 1 }) {
		t.Fatal("scheduler did not resume after the gate opened")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("failed to stop scheduler: %v", err)
	}
}

// The scheduler must hold the session lock across the whole backup,
// not just check it before starting, so an update session cannot
// begin mid-archive.
func TestScheduler_HoldsSessionLockDuringBackup(t *testing.T) {
	gate := &fakeGate{}
	var heldDuringRun atomic.Bool
	heldDuringRun.Store(true)

	runner := &gateObservingRunner{gate: gate, heldDuringRun: &heldDuringRun}
	s, err := NewIntervalScheduler(Config{Interval: 20 * time.Millisecond}, runner, gate)
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("failed to start scheduler: %v", err)
	}

	if !testutil.WaitForCondition(2*time.Second, func() bool { return runner.count() >= 2 }) {
		t.Fatal("scheduler did not run at least twice")
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("failed to stop scheduler: %v", err)
	}

	if !heldDuringRun.Load() {
		t.Error("session lock must be held while the backup runs")
	}
	if gate.held.Load() {
		t.Error("session lock must be released after the cycle")
	}
	if gate.releases.Load() < runner.count() {
		t.Errorf("every cycle must release the lock: %d releases for %d runs",
			gate.releases.Load(), runner.count())
	}
}

type gateObservingRunner struct {
	gate          *fakeGate
	heldDuringRun *atomic.Bool
	runs          int64
}

func (r *gateObservingRunner) RunBackup(ctx context.Context) error {
	atomic.AddInt64(&r.runs, 1)
	if !r.gate.held.Load() {
		r.heldDuringRun.Store(false)
	}
	return nil
}

func (r *gateObservingRunner) count() int64 {
	return atomic.LoadInt64(&r.runs)
}

func TestScheduler_RecordsFailures(t *testing.T) {
	runner := &countingRunner{err: errors.New("backup exploded")}
	s, err := NewIntervalScheduler(Config{Interval: 20 * time.Millisecond}, runner, nil)
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("failed to start scheduler: %v", err)
	}
	defer s.Stop()

	if !testutil.WaitForCondition(2*time.Second, func() bool { return s.Status().FailedRuns >= 1 }) {
		t.Fatal("failed run was not recorded")
	}
	if s.Status().LastError == "" {
		t.Error("last error should be recorded")
	}
}

func TestScheduler_Lifecycle(t *testing.T) {
	runner := &countingRunner{}
	s, err := NewIntervalScheduler(Config{Interval: time.Hour}, runner, nil)
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}

	if err := s.Stop(); err == nil {
		t.Error("stopping a never-started scheduler should fail")
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("double start must be rejected")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("failed to stop: %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("restart after stop must be rejected")
	}
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	runner := &countingRunner{}
	s, err := NewIntervalScheduler(Config{Interval: 20 * time.Millisecond}, runner, nil)
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	cancel()

	if !testutil.WaitForCondition(2*time.Second, func() bool { return !s.Status().Running }) {
		t.Fatal("scheduler did not stop on context cancellation")
	}
}
