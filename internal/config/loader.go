package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/updateguard/updateguard/internal/domain"
)

// DefaultConfigPaths returns the default paths to search for config files.
func DefaultConfigPaths() []string {
	paths := []string{
		".",
		"./configs",
	}

	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "updateguard"))
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "updateguard"))
		paths = append(paths, filepath.Join(homeDir, ".updateguard"))
	}

	return paths
}

// Load reads and parses a configuration file.
// If path is empty, searches default locations for config.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range DefaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, domain.ErrConfigNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	return unmarshal(v)
}

// LoadFromString parses configuration from a YAML string.
func LoadFromString(yamlContent string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(strings.NewReader(yamlContent)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	applyDefaults(&cfg)

	// Dependencies default to required unless the key is explicitly false
	for i := range cfg.Dependencies {
		if !v.IsSet(fmt.Sprintf("dependencies.%d.required", i)) {
			cfg.Dependencies[i].Required = true
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.MaxBackups == 0 {
		cfg.MaxBackups = DefaultMaxBackups
	}
	if cfg.MaxBackupAgeDays == 0 {
		cfg.MaxBackupAgeDays = DefaultMaxBackupAgeDays
	}
	if cfg.LayoutThreshold == 0 {
		cfg.LayoutThreshold = DefaultLayoutThreshold
	}
	if cfg.InstallDir != "" {
		cfg.InstallDir = ExpandPath(cfg.InstallDir)
	}
	if cfg.BackupDir != "" {
		cfg.BackupDir = ExpandPath(cfg.BackupDir)
	}
	if cfg.HoldingDir == "" && cfg.BackupDir != "" {
		cfg.HoldingDir = filepath.Join(cfg.BackupDir, "holding")
	}
	if cfg.ReportDir == "" && cfg.BackupDir != "" {
		cfg.ReportDir = filepath.Join(cfg.BackupDir, "reports")
	}
}
