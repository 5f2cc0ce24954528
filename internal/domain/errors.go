package domain

import "errors"

// Validation errors
var (
	// ErrValidation indicates a file is missing, malformed, or fails a checksum
	ErrValidation = errors.New("validation failed")

	// ErrFileNotFound indicates a required file does not exist
	ErrFileNotFound = errors.New("file not found")

	// ErrChecksumMismatch indicates content differs from the registered checksum
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrDependencyMissing indicates a required runtime dependency is absent
	ErrDependencyMissing = errors.New("required dependency missing")
)

// Filesystem errors
var (
	// ErrPermission indicates insufficient filesystem rights
	ErrPermission = errors.New("permission denied")

	// ErrResource indicates disk space exhaustion or an I/O failure
	ErrResource = errors.New("resource error")
)

// Backup and recovery errors
var (
	// ErrIntegrity indicates a backup or restored data failed verification
	ErrIntegrity = errors.New("integrity verification failed")

	// ErrBackupNotFound indicates the referenced backup archive does not exist
	ErrBackupNotFound = errors.New("backup not found")

	// ErrRestoreFailed indicates a restore could not be completed safely
	ErrRestoreFailed = errors.New("restore failed")
)

// Session errors
var (
	// ErrApply indicates the external updater step failed
	ErrApply = errors.New("update apply failed")

	// ErrSessionInProgress indicates another update session holds the lock
	ErrSessionInProgress = errors.New("update session already in progress")

	// ErrUnexpected wraps faults caught at the orchestrator boundary
	ErrUnexpected = errors.New("unexpected error")
)

// Config errors
var (
	// ErrConfigNotFound indicates config file not found
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid indicates config file is malformed
	ErrConfigInvalid = errors.New("invalid config")
)
