package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/updateguard/updateguard/internal/domain"
)

func TestAcquireRelease(t *testing.T) {
	dir := t.TempDir()

	l, err := New(dir)
	if err != nil {
		t.Fatalf("failed to create lock: %v", err)
	}

	if err := l.Acquire("update", "session-1"); err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, LockFileName)); err != nil {
		t.Errorf("lock file should exist after acquire: %v", err)
	}
	if !l.IsLocked() {
		t.Error("IsLocked should report true while held")
	}

	holder, err := l.Holder()
	if err != nil {
		t.Fatalf("failed to read holder: %v", err)
	}
	if holder.PID != os.Getpid() {
		t.Errorf("expected holder PID %d, got %d", os.Getpid(), holder.PID)
	}
	if holder.Operation != "update" || holder.SessionID != "session-1" {
		t.Errorf("unexpected holder metadata: %+v", holder)
	}

	if err := l.Release(); err != nil {
		t.Fatalf("failed to release lock: %v", err)
	}
	if l.IsLocked() {
		t.Error("IsLocked should report false after release")
	}
	if _, err := os.Stat(filepath.Join(dir, LockFileName)); !os.IsNotExist(err) {
		t.Error("lock file should be removed after release")
	}
}

func TestAcquire_SecondHolderRejected(t *testing.T) {
	dir := t.TempDir()

	first, err := New(dir)
	if err != nil {
		t.Fatalf("failed to create lock: %v", err)
	}
	if err := first.Acquire("update", "session-1"); err != nil {
		t.Fatalf("failed to acquire first lock: %v", err)
	}
	defer first.Release()

	second, err := New(dir)
	if err != nil {
		t.Fatalf("failed to create second lock: %v", err)
	}

	err = second.Acquire("update", "session-2")
	if err == nil {
		t.Fatal("second acquire should fail while first holds the lock")
	}
	if !errors.Is(err, domain.ErrSessionInProgress) {
		t.Errorf("expected ErrSessionInProgress, got %v", err)
	}
	if !IsLockError(err) {
		t.Error("expected a LockError")
	}

	var le *LockError
	if errors.As(err, &le) && le.Holder != nil {
		if le.Holder.SessionID != "session-1" {
			t.Errorf("expected holder session-1, got %s", le.Holder.SessionID)
		}
	}
}

func TestAcquire_ReentrantUpdatesOperation(t *testing.T) {
	dir := t.TempDir()

	l, err := New(dir)
	if err != nil {
		t.Fatalf("failed to create lock: %v", err)
	}
	if err := l.Acquire("validate", "session-1"); err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}
	defer l.Release()

	if err := l.Acquire("backup", "session-1"); err != nil {
		t.Fatalf("re-acquire by the same instance should succeed: %v", err)
	}

	holder, err := l.Holder()
	if err != nil {
		t.Fatalf("failed to read holder: %v", err)
	}
	if holder.Operation != "backup" {
		t.Errorf("expected operation backup, got %s", holder.Operation)
	}
}

func TestAcquire_StaleSameHostLockReclaimed(t *testing.T) {
	dir := t.TempDir()

	l, err := New(dir)
	if err != nil {
		t.Fatalf("failed to create lock: %v", err)
	}

	// Write a lock held by a PID that cannot exist
	hostname, _ := os.Hostname()
	dead := &HolderInfo{
		PID:       1 << 22,
		Hostname:  hostname,
		StartTime: time.Now().Add(-time.Hour),
		Operation: "update",
	}
	if err := l.writeHolder(dead); err != nil {
		t.Fatalf("failed to seed stale lock: %v", err)
	}

	if l.IsLocked() {
		t.Error("stale lock should not count as locked")
	}
	if err := l.Acquire("update", "session-2"); err != nil {
		t.Fatalf("acquire should reclaim stale lock: %v", err)
	}
	defer l.Release()
}

func TestAcquire_CrossHostLockHonoredUntilTimeout(t *testing.T) {
	dir := t.TempDir()

	l, err := New(dir)
	if err != nil {
		t.Fatalf("failed to create lock: %v", err)
	}

	remote := &HolderInfo{
		PID:       1234,
		Hostname:  "some-other-host",
		StartTime: time.Now(),
		Operation: "update",
	}
	if err := l.writeHolder(remote); err != nil {
		t.Fatalf("failed to seed remote lock: %v", err)
	}

	if err := l.Acquire("update", "session-2"); !errors.Is(err, domain.ErrSessionInProgress) {
		t.Errorf("fresh cross-host lock should be honored, got %v", err)
	}

	// Past the staleness window the lock is reclaimable
	l.SetStaleTimeout(time.Millisecond)
	remote.StartTime = time.Now().Add(-time.Minute)
	if err := l.writeHolder(remote); err != nil {
		t.Fatalf("failed to reseed remote lock: %v", err)
	}
	if err := l.Acquire("update", "session-2"); err != nil {
		t.Fatalf("expired cross-host lock should be reclaimed: %v", err)
	}
	defer l.Release()
}

func TestForceRelease(t *testing.T) {
	dir := t.TempDir()

	l, err := New(dir)
	if err != nil {
		t.Fatalf("failed to create lock: %v", err)
	}
	if err := l.Acquire("update", "session-1"); err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}

	if err := l.ForceRelease(); err != nil {
		t.Fatalf("force release failed: %v", err)
	}
	if l.IsLocked() {
		t.Error("lock should be free after force release")
	}
}

func TestRelease_WithoutAcquireIsNoop(t *testing.T) {
	dir := t.TempDir()

	l, err := New(dir)
	if err != nil {
		t.Fatalf("failed to create lock: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("release without acquire should be a no-op: %v", err)
	}
}
