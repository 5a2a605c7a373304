package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sftpwire.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadServiceConfig(t *testing.T) {
	path := writeConfig(t, `
addr = "files.example.net:22"
user = "backup"
key_file = "/etc/sftpwire/id_ed25519"
subsystem = "sftp"
open_timeout = "30s"
init_timeout = "20s"
idle_interval = "5m"
`)
	cfg, err := loadServiceConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "files.example.net:22" || cfg.User != "backup" {
		t.Fatalf("unexpected endpoint: %+v", cfg)
	}
	if cfg.Engine.OpenTimeout != 30*time.Second {
		t.Fatalf("open_timeout got=%v", cfg.Engine.OpenTimeout)
	}
	if cfg.Engine.InitTimeout != 20*time.Second {
		t.Fatalf("init_timeout got=%v", cfg.Engine.InitTimeout)
	}
	if cfg.Engine.IdleInterval != 5*time.Minute {
		t.Fatalf("idle_interval got=%v", cfg.Engine.IdleInterval)
	}
	if err := validateServiceConfig(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadServiceConfigKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
addr = "files.example.net:22"
user = "backup"
`)
	cfg, err := loadServiceConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defaults := defaultServiceConfig()
	if cfg.Subsystem != defaults.Subsystem {
		t.Fatalf("subsystem got=%q want default", cfg.Subsystem)
	}
	if cfg.Engine.IdleInterval != defaults.Engine.IdleInterval {
		t.Fatalf("idle_interval got=%v want default", cfg.Engine.IdleInterval)
	}
}

func TestLoadServiceConfigRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
addr = "files.example.net:22"
user = "backup"
init_timeout = "soon"
`)
	if _, err := loadServiceConfig(path); err == nil {
		t.Fatalf("expected duration parse error")
	}

	path = writeConfig(t, `
addr = "files.example.net:22"
user = "backup"
init_timeout = "-5s"
`)
	if _, err := loadServiceConfig(path); err == nil {
		t.Fatalf("expected positive-duration error")
	}
}

func TestValidateServiceConfigRequiresEndpoint(t *testing.T) {
	cfg := defaultServiceConfig()
	if err := validateServiceConfig(cfg); err == nil {
		t.Fatalf("expected missing addr error")
	}
	cfg.Addr = "files.example.net:22"
	if err := validateServiceConfig(cfg); err == nil {
		t.Fatalf("expected missing user error")
	}
	cfg.User = "backup"
	if err := validateServiceConfig(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
