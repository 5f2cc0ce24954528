package config

import (
	"errors"
	"testing"

	"github.com/updateguard/updateguard/internal/domain"
)

const validYAML = `
install_dir: /opt/app
backup_dir: /var/backups/app
critical_files:
  - name: runtime-bundle
    aliases: ["app.bundle", "app-runtime.bundle"]
dependencies:
  - name: runtime
    kind: platform
    min_version: "1.21"
  - name: libcore.so
    kind: module
    required: false
`

func TestLoadFromString(t *testing.T) {
	cfg, err := LoadFromString(validYAML)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.InstallDir != "/opt/app" {
		t.Errorf("expected install dir /opt/app, got %s", cfg.InstallDir)
	}
	if cfg.MaxBackups != DefaultMaxBackups {
		t.Errorf("expected default max backups %d, got %d", DefaultMaxBackups, cfg.MaxBackups)
	}
	if cfg.MaxBackupAgeDays != DefaultMaxBackupAgeDays {
		t.Errorf("expected default max age %d, got %d", DefaultMaxBackupAgeDays, cfg.MaxBackupAgeDays)
	}
	if cfg.LayoutThreshold != DefaultLayoutThreshold {
		t.Errorf("expected default layout threshold %v, got %v", DefaultLayoutThreshold, cfg.LayoutThreshold)
	}
	if cfg.HoldingDir == "" || cfg.ReportDir == "" {
		t.Error("expected holding and report dirs derived from backup dir")
	}
}

func TestLoadFromString_DependencyDefaults(t *testing.T) {
	cfg, err := LoadFromString(validYAML)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if !cfg.Dependencies[0].Required {
		t.Error("dependency without explicit required should default to required")
	}
	if cfg.Dependencies[1].Required {
		t.Error("dependency with required: false must stay optional")
	}
}

func TestLoadFromString_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing install dir", `backup_dir: /b`},
		{"missing backup dir", `install_dir: /a`},
		{"bad threshold", "install_dir: /a\nbackup_dir: /b\nlayout_threshold: 1.5"},
		{"critical file without aliases", "install_dir: /a\nbackup_dir: /b\ncritical_files:\n  - name: x\n    aliases: []"},
		{"duplicate dependency", "install_dir: /a\nbackup_dir: /b\ndependencies:\n  - {name: d, kind: module}\n  - {name: d, kind: module}"},
		{"unknown dependency kind", "install_dir: /a\nbackup_dir: /b\ndependencies:\n  - {name: d, kind: wizard}"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFromString(tc.yaml)
			if !errors.Is(err, domain.ErrConfigInvalid) {
				t.Errorf("expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for nonexistent config file")
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("UPDATEGUARD_TEST_DIR", "/srv/app")

	if got := ExpandPath("$UPDATEGUARD_TEST_DIR/data"); got != "/srv/app/data" {
		t.Errorf("expected /srv/app/data, got %s", got)
	}
}
