// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where a session config file is
// searched for, in priority order. The first file found is used.
var DefaultConfigPaths = []string{
	"goclient.yaml",
	"goclient.yml",
	"/etc/goclient/goclient.yaml",
	"/etc/goclient/goclient.yml",
}

// ConfigPathEnvVar overrides the searched config file path.
const ConfigPathEnvVar = "GOCLIENT_CONFIG_PATH"

// Mode selects the session's dispatch behavior.
type Mode string

const (
	ModeAsync    Mode = "async"
	ModeSync     Mode = "sync"
	ModeReadOnly Mode = "read_only"
	ModeDebug    Mode = "debug"
	ModeOffline  Mode = "offline"
)

// QueueBackend selects the per-backend queue's storage engine.
type QueueBackend string

const (
	QueueBackendDisk   QueueBackend = "disk"
	QueueBackendMemory QueueBackend = "memory"
)

// BackendEndpoint is the koanf/env-facing configuration for one
// backend target, mirrored into backend.Config once validated.
type BackendEndpoint struct {
	Host    string            `koanf:"host"`
	Port    int               `koanf:"port"`
	Token   string            `koanf:"token"`
	Project string            `koanf:"project"`
	UseTLS  bool              `koanf:"use_tls"`
	Proxies map[string]string `koanf:"proxies"`
}

// Config is the root session configuration, loaded in three layers:
// struct defaults, an optional YAML file, then environment variable
// overrides, exactly as the teacher's koanf loader does it.
type Config struct {
	Backends []BackendEndpoint `koanf:"backends"`
	Mode     Mode              `koanf:"mode"`

	FlushPeriod time.Duration `koanf:"flush_period"`
	BatchSize   int           `koanf:"batch_size"`

	AsyncLagThreshold        time.Duration `koanf:"async_lag_threshold"`
	AsyncNoProgressThreshold time.Duration `koanf:"async_no_progress_threshold"`
	CallbacksInterval        time.Duration `koanf:"callbacks_interval"`

	StopTimeout time.Duration `koanf:"stop_timeout"`

	QueueBackend  QueueBackend `koanf:"queue_backend"`
	QueueRootPath string       `koanf:"queue_root_path"`

	LogLevel string `koanf:"log_level"`
}

// defaultConfig returns the struct-default layer, applied first and
// then overridden by file and environment layers.
func defaultConfig() *Config {
	return &Config{
		Mode:                     ModeAsync,
		FlushPeriod:              5 * time.Second,
		BatchSize:                1000,
		AsyncLagThreshold:        30 * time.Second,
		AsyncNoProgressThreshold: 2 * time.Minute,
		CallbacksInterval:        time.Minute,
		StopTimeout:              90 * time.Second,
		QueueBackend:             QueueBackendDisk,
		QueueRootPath:            "/data/goclient/queues",
		LogLevel:                 "info",
	}
}

// LoadWithKoanf loads session configuration from, in increasing
// priority: built-in defaults, an optional YAML file, and environment
// variables (GOCLIENT_ prefix stripped and the rest lowercased, so
// GOCLIENT_BATCH_SIZE sets batch_size; there is no double-underscore
// nesting).
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("GOCLIENT_", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps GOCLIENT_FLUSH_PERIOD -> flush_period,
// GOCLIENT_QUEUE_BACKEND -> queue_backend, etc. Nested backend fields
// are intentionally not addressable via env vars (arrays of structs
// don't have a clean flat env mapping); backends are expected to come
// from the YAML file layer or be set programmatically by the caller
// after LoadWithKoanf returns.
func envTransformFunc(key string) string {
	key = strings.TrimPrefix(key, "GOCLIENT_")
	return strings.ToLower(key)
}

// GetKoanfInstance is a convenience for callers that need to inspect
// raw loaded values beyond what Config exposes (e.g. a CLI's `config
// dump` command).
func GetKoanfInstance() (*koanf.Koanf, error) {
	k := koanf.New(".")
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, err
	}
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	}
	return k, nil
}
