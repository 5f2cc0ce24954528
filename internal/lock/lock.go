// Package lock provides the advisory session lock that serializes
// update sessions and scheduled backups against one installation
// directory. Exactly one holder may operate on a tree at a time; a
// second acquirer fails fast instead of interleaving.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/updateguard/updateguard/internal/domain"
)

const (
	// LockFileName is the name of the lock file inside the install tree
	LockFileName = ".updateguard.lock"

	// DefaultStaleTimeout is the fallback staleness window for locks
	// held from another host, where the PID cannot be probed
	DefaultStaleTimeout = 30 * time.Minute
)

// HolderInfo contains metadata about the lock holder.
type HolderInfo struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartTime time.Time `json:"start_time"`
	Operation string    `json:"operation,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
}

// SessionLock is a file-based lock scoped to one installation directory.
type SessionLock struct {
	lockPath     string
	staleTimeout time.Duration
	info         *HolderInfo
}

// New creates a session lock for the given installation directory.
func New(installDir string) (*SessionLock, error) {
	if installDir == "" {
		return nil, fmt.Errorf("install directory cannot be empty")
	}
	if err := os.MkdirAll(installDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	return &SessionLock{
		lockPath:     filepath.Join(installDir, LockFileName),
		staleTimeout: DefaultStaleTimeout,
	}, nil
}

// SetStaleTimeout overrides the cross-host staleness window.
func (l *SessionLock) SetStaleTimeout(d time.Duration) {
	l.staleTimeout = d
}

// Acquire attempts to acquire the lock for the named operation.
// Returns a LockError wrapping domain.ErrSessionInProgress when the
// lock is held by a live holder.
func (l *SessionLock) Acquire(operation, sessionID string) error {
	// Re-entry by the same instance just updates the operation tag
	if l.info != nil {
		existing, err := l.readHolder()
		if err == nil && l.isHeldByThisInstance(existing) {
			existing.Operation = operation
			existing.SessionID = sessionID
			if err := l.writeHolder(existing); err != nil {
				return err
			}
			l.info.Operation = operation
			l.info.SessionID = sessionID
			return nil
		}
	}

	existing, err := l.readHolder()
	if err == nil {
		if l.isStale(existing) {
			if err := os.Remove(l.lockPath); err != nil {
				return fmt.Errorf("failed to remove stale lock: %w", err)
			}
		} else {
			return &LockError{Holder: existing, Reason: "lock is held by another process"}
		}
	}

	hostname, _ := os.Hostname()
	info := &HolderInfo{
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartTime: time.Now(),
		Operation: operation,
		SessionID: sessionID,
	}

	// O_CREATE|O_EXCL makes acquisition atomic against racers
	file, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			existing, readErr := l.readHolder()
			if readErr != nil {
				return fmt.Errorf("lock acquisition race: %w", err)
			}
			return &LockError{Holder: existing, Reason: "lock acquired by another process during acquisition"}
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(info); err != nil {
		os.Remove(l.lockPath)
		return fmt.Errorf("failed to write lock info: %w", err)
	}

	l.info = info
	return nil
}

// Release releases the lock if this instance holds it.
func (l *SessionLock) Release() error {
	if l.info == nil {
		return nil
	}

	existing, err := l.readHolder()
	if err != nil {
		l.info = nil
		return nil // lock file gone, consider it released
	}

	if !l.isHeldByThisInstance(existing) {
		l.info = nil
		return fmt.Errorf("lock was stolen by another process")
	}

	if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}

	l.info = nil
	return nil
}

// IsLocked reports whether a live holder currently has the lock.
func (l *SessionLock) IsLocked() bool {
	info, err := l.readHolder()
	if err != nil {
		return false
	}
	return !l.isStale(info)
}

// Holder returns information about the current lock holder.
func (l *SessionLock) Holder() (*HolderInfo, error) {
	info, err := l.readHolder()
	if err != nil {
		return nil, err
	}
	if l.isStale(info) {
		return nil, fmt.Errorf("lock is stale")
	}
	return info, nil
}

// ForceRelease forcibly removes the lock file. Only for recovery when
// the holder is known to have crashed.
func (l *SessionLock) ForceRelease() error {
	if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to force remove lock: %w", err)
	}
	l.info = nil
	return nil
}

func (l *SessionLock) readHolder() (*HolderInfo, error) {
	data, err := os.ReadFile(l.lockPath)
	if err != nil {
		return nil, err
	}

	var info HolderInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("invalid lock file format: %w", err)
	}
	return &info, nil
}

func (l *SessionLock) writeHolder(info *HolderInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.lockPath, data, 0644)
}

// isStale reports whether the lock holder is gone. Same-host locks are
// stale only when the process is dead; cross-host locks fall back to
// the timeout since the PID cannot be probed.
func (l *SessionLock) isStale(info *HolderInfo) bool {
	hostname, _ := os.Hostname()

	if info.Hostname == hostname {
		return !processExists(info.PID)
	}

	return time.Since(info.StartTime) > l.staleTimeout
}

func (l *SessionLock) isHeldByCurrentProcess(info *HolderInfo) bool {
	hostname, _ := os.Hostname()
	return info.PID == os.Getpid() && info.Hostname == hostname
}

func (l *SessionLock) isHeldByThisInstance(info *HolderInfo) bool {
	if l.info == nil {
		return false
	}
	return l.isHeldByCurrentProcess(info) &&
		l.info.StartTime.Equal(info.StartTime) &&
		l.info.SessionID == info.SessionID
}

// LockError reports a failed acquisition together with holder details.
type LockError struct {
	Holder *HolderInfo
	Reason string
}

func (e *LockError) Error() string {
	if e.Holder != nil {
		return fmt.Sprintf("update session already in progress: %s (held by PID %d on %s since %s, operation: %s)",
			e.Reason,
			e.Holder.PID,
			e.Holder.Hostname,
			e.Holder.StartTime.Format(time.RFC3339),
			e.Holder.Operation,
		)
	}
	return fmt.Sprintf("update session already in progress: %s", e.Reason)
}

// Unwrap lets callers match errors.Is(err, domain.ErrSessionInProgress).
func (e *LockError) Unwrap() error {
	return domain.ErrSessionInProgress
}

// IsLockError checks whether err is a LockError.
func IsLockError(err error) bool {
	var le *LockError
	return errors.As(err, &le)
}
