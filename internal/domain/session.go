package domain

import "time"

// SessionStatus is the lifecycle state of an update session.
type SessionStatus string

const (
	StatusPending    SessionStatus = "pending"
	StatusInProgress SessionStatus = "in_progress"
	StatusSuccess    SessionStatus = "success"
	StatusFailed     SessionStatus = "failed"
	StatusRolledBack SessionStatus = "rolled_back"
)

// Terminal reports whether the status permits no further transitions.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusRolledBack:
		return true
	}
	return false
}

// UpdateSession tracks one PerformUpdate invocation end to end.
type UpdateSession struct {
	SessionID     string
	TargetVersion string
	Status        SessionStatus
	StartTime     time.Time
	EndTime       time.Time

	// BackupID references the pre-update backup, empty until created
	BackupID string

	// Report is set when the session ends in Failed or RolledBack
	Report *ErrorReport

	// Plan is set when automation could not recover
	Plan *ManualPlan
}

// ErrorKind buckets errors for reporting and suggestion heuristics.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindPermission ErrorKind = "permission"
	KindIntegrity  ErrorKind = "integrity"
	KindResource   ErrorKind = "resource"
	KindApply      ErrorKind = "apply"
	KindUnexpected ErrorKind = "unexpected"
)

// ErrorReport is a structured, persisted record of one failure.
type ErrorReport struct {
	ErrorID             string            `json:"error_id"`
	Timestamp           time.Time         `json:"timestamp"`
	ErrorKind           ErrorKind         `json:"error_kind"`
	Message             string            `json:"message"`
	StackTrace          string            `json:"stack_trace,omitempty"`
	SystemInfo          map[string]string `json:"system_info"`
	Context             map[string]string `json:"context,omitempty"`
	RecoverySuggestions []string          `json:"recovery_suggestions"`
	LogFilePath         string            `json:"log_file_path,omitempty"`
}

// Severity grades notification messages surfaced to the host.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notifier receives progress and health messages from any component.
// The host owns rendering; components must tolerate a nil map.
type Notifier func(message string, severity Severity, details map[string]string)

// NullNotifier discards all notifications.
func NullNotifier(string, Severity, map[string]string) {}
