package domain

import (
	"os"
	"time"
)

// FileRecord captures the observed state of a single file at check time.
// Records are never mutated; each check produces a fresh one.
type FileRecord struct {
	// Path is the absolute path that was examined
	Path string

	// SizeBytes is the file size at check time
	SizeBytes int64

	// ModifiedTime is the last modification time
	ModifiedTime time.Time

	// Checksum is the SHA-256 digest of the content, hex encoded
	Checksum string

	// Permissions is the permission bitmask at check time
	Permissions os.FileMode

	// IsExecutable reports whether any execute bit is set
	IsExecutable bool
}

// ValidationOutcome is the result of checking one file.
// It is consumed immediately by the caller and not persisted.
type ValidationOutcome struct {
	IsValid  bool
	Record   *FileRecord
	Errors   []string
	Warnings []string
}

// AddError appends an error and marks the outcome invalid.
func (o *ValidationOutcome) AddError(msg string) {
	o.Errors = append(o.Errors, msg)
	o.IsValid = false
}

// AddWarning appends a warning without affecting validity.
func (o *ValidationOutcome) AddWarning(msg string) {
	o.Warnings = append(o.Warnings, msg)
}

// DependencyKind classifies what a DependencySpec refers to.
type DependencyKind string

const (
	// DependencyModule is a named runtime library module
	DependencyModule DependencyKind = "module"

	// DependencyFile is a named critical file resolved on the search path
	DependencyFile DependencyKind = "file"

	// DependencyPlatform is a platform fact such as a minimum runtime version
	DependencyPlatform DependencyKind = "platform"
)

// DependencySpec describes one runtime dependency to verify.
type DependencySpec struct {
	Name       string         `mapstructure:"name"`
	Kind       DependencyKind `mapstructure:"kind"`
	Required   bool           `mapstructure:"required"`
	MinVersion string         `mapstructure:"min_version,omitempty"`
}

// DependencyStatus is the verification result for one DependencySpec.
type DependencyStatus struct {
	Name         string
	Required     bool
	Found        bool
	ResolvedPath string
	Version      string
	Issues       []string
}

// ValidationSummary aggregates a full dependency sweep.
type ValidationSummary struct {
	TotalChecked    int
	Found           int
	MissingRequired int
	MissingOptional int
	CriticalIssues  []string
	Warnings        []string
}

// Healthy reports whether the environment can support an update.
func (s ValidationSummary) Healthy() bool {
	return s.MissingRequired == 0 && len(s.CriticalIssues) == 0
}

// InstallationLayout is the resolved install location plus the ordered
// search paths used to locate critical files. Immutable once computed.
type InstallationLayout struct {
	ExecutableDir string
	SearchPaths   []string
}
