package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/updateguard/updateguard/internal/domain"
)

// Defaults applied by the loader when fields are unset.
const (
	DefaultMaxBackups       = 5
	DefaultMaxBackupAgeDays = 30
	DefaultLayoutThreshold  = 0.5
	DefaultReportHistoryCap = 100
)

// CriticalFile names one logical artifact the application cannot start
// without, together with accepted filename aliases for it.
type CriticalFile struct {
	// Name is the logical artifact name used in reports and plans
	Name string `mapstructure:"name"`

	// Aliases are accepted filenames for the artifact, in preference order
	Aliases []string `mapstructure:"aliases"`
}

// LogConfig controls the application log output.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// Config is the complete host-supplied configuration for updateguard.
type Config struct {
	// InstallDir is the application installation tree to protect
	InstallDir string `mapstructure:"install_dir"`

	// BackupDir is the root directory for backup archives
	BackupDir string `mapstructure:"backup_dir"`

	// HoldingDir receives in-flight preserved user data
	HoldingDir string `mapstructure:"holding_dir"`

	// ReportDir receives diagnostic logs and the report history file
	ReportDir string `mapstructure:"report_dir"`

	// MaxBackups is the retention count limit
	MaxBackups int `mapstructure:"max_backups"`

	// MaxBackupAgeDays is the retention age limit
	MaxBackupAgeDays int `mapstructure:"max_backup_age_days"`

	// LayoutThreshold is the fraction of expected artifacts that must be
	// present for a directory to count as a valid installation layout
	LayoutThreshold float64 `mapstructure:"layout_threshold"`

	// CriticalFiles lists the artifacts validated before every update
	CriticalFiles []CriticalFile `mapstructure:"critical_files"`

	// Dependencies lists runtime dependencies checked before every update
	Dependencies []domain.DependencySpec `mapstructure:"dependencies"`

	// ExpectedChecksums maps filename to its registered SHA-256 hex digest
	ExpectedChecksums map[string]string `mapstructure:"expected_checksums"`

	// AutoBackupInterval enables periodic backups when > 0 (minutes)
	AutoBackupIntervalMinutes int `mapstructure:"auto_backup_interval_minutes"`

	Log LogConfig `mapstructure:"log"`
}

// Validate checks the configuration is complete and consistent.
func (c *Config) Validate() error {
	if c.InstallDir == "" {
		return fmt.Errorf("%w: install_dir cannot be empty", domain.ErrConfigInvalid)
	}
	if c.BackupDir == "" {
		return fmt.Errorf("%w: backup_dir cannot be empty", domain.ErrConfigInvalid)
	}
	if c.MaxBackups <= 0 {
		return fmt.Errorf("%w: max_backups must be positive, got %d", domain.ErrConfigInvalid, c.MaxBackups)
	}
	if c.MaxBackupAgeDays <= 0 {
		return fmt.Errorf("%w: max_backup_age_days must be positive, got %d", domain.ErrConfigInvalid, c.MaxBackupAgeDays)
	}
	if c.LayoutThreshold <= 0 || c.LayoutThreshold > 1 {
		return fmt.Errorf("%w: layout_threshold must be in (0, 1], got %v", domain.ErrConfigInvalid, c.LayoutThreshold)
	}

	names := make(map[string]bool)
	for _, cf := range c.CriticalFiles {
		if cf.Name == "" {
			return fmt.Errorf("%w: critical file name cannot be empty", domain.ErrConfigInvalid)
		}
		if names[cf.Name] {
			return fmt.Errorf("%w: duplicate critical file: %s", domain.ErrConfigInvalid, cf.Name)
		}
		if len(cf.Aliases) == 0 {
			return fmt.Errorf("%w: critical file %s has no aliases", domain.ErrConfigInvalid, cf.Name)
		}
		names[cf.Name] = true
	}

	depNames := make(map[string]bool)
	for _, d := range c.Dependencies {
		if d.Name == "" {
			return fmt.Errorf("%w: dependency name cannot be empty", domain.ErrConfigInvalid)
		}
		if depNames[d.Name] {
			return fmt.Errorf("%w: duplicate dependency: %s", domain.ErrConfigInvalid, d.Name)
		}
		switch d.Kind {
		case domain.DependencyModule, domain.DependencyFile, domain.DependencyPlatform:
		default:
			return fmt.Errorf("%w: dependency %s has unknown kind: %s", domain.ErrConfigInvalid, d.Name, d.Kind)
		}
		depNames[d.Name] = true
	}

	return nil
}

// GetCriticalFile returns a critical file spec by logical name.
func (c *Config) GetCriticalFile(name string) (*CriticalFile, error) {
	for i := range c.CriticalFiles {
		if c.CriticalFiles[i].Name == name {
			return &c.CriticalFiles[i], nil
		}
	}
	return nil, domain.ErrFileNotFound
}

// ExpandPath expands ~ and environment variables in a path.
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			if len(path) > 1 && (path[1] == '/' || path[1] == filepath.Separator) {
				path = filepath.Join(home, path[2:])
			} else if len(path) == 1 {
				path = home
			}
		}
	}
	path = os.ExpandEnv(path)
	return filepath.Clean(path)
}
