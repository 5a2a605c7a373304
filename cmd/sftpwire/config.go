package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/sftpwire/internal/client"
	"github.com/danmuck/sftpwire/internal/sshchan"
)

type serviceConfig struct {
	Addr       string
	User       string
	KeyFile    string
	KnownHosts string
	Subsystem  string
	Engine     client.Config
}

func defaultServiceConfig() serviceConfig {
	return serviceConfig{
		Subsystem: sshchan.DefaultSubsystem,
		Engine:    client.Config{}.WithDefaults(),
	}
}

type fileConfig struct {
	Addr         string `toml:"addr"`
	User         string `toml:"user"`
	KeyFile      string `toml:"key_file"`
	KnownHosts   string `toml:"known_hosts"`
	Subsystem    string `toml:"subsystem"`
	OpenTimeout  string `toml:"open_timeout"`
	InitTimeout  string `toml:"init_timeout"`
	IdleInterval string `toml:"idle_interval"`
}

func loadServiceConfig(path string) (serviceConfig, error) {
	cfg := defaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return serviceConfig{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("user") {
		cfg.User = strings.TrimSpace(raw.User)
	}
	if meta.IsDefined("key_file") {
		cfg.KeyFile = strings.TrimSpace(raw.KeyFile)
	}
	if meta.IsDefined("known_hosts") {
		cfg.KnownHosts = strings.TrimSpace(raw.KnownHosts)
	}
	if meta.IsDefined("subsystem") {
		if name := strings.TrimSpace(raw.Subsystem); name != "" {
			cfg.Subsystem = name
		}
	}

	if meta.IsDefined("open_timeout") {
		d, err := parseTimeout("open_timeout", raw.OpenTimeout)
		if err != nil {
			return serviceConfig{}, err
		}
		cfg.Engine.OpenTimeout = d
	}
	if meta.IsDefined("init_timeout") {
		d, err := parseTimeout("init_timeout", raw.InitTimeout)
		if err != nil {
			return serviceConfig{}, err
		}
		cfg.Engine.InitTimeout = d
	}
	if meta.IsDefined("idle_interval") {
		d, err := parseTimeout("idle_interval", raw.IdleInterval)
		if err != nil {
			return serviceConfig{}, err
		}
		cfg.Engine.IdleInterval = d
	}

	return cfg, nil
}

func parseTimeout(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("parse %s: must be positive, got %v", key, d)
	}
	return d, nil
}

func validateServiceConfig(cfg serviceConfig) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("config missing addr")
	}
	if strings.TrimSpace(cfg.User) == "" {
		return fmt.Errorf("config missing user")
	}
	return nil
}
