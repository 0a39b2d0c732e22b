// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

package config

import (
	"fmt"
	"time"
)

// ConfigError represents a configuration validation error, mirroring
// internal/wal.ConfigError's field-carrying shape.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Message)
}

// Validate enforces the session-level invariants on top of each
// backend's own struct-tag validation, which session.go performs
// separately once each BackendEndpoint is converted to backend.Config.
func (c *Config) Validate() error {
	if len(c.Backends) == 0 {
		return &ConfigError{Field: "Backends", Message: "at least one backend must be configured"}
	}

	switch c.Mode {
	case ModeAsync, ModeSync, ModeReadOnly, ModeDebug, ModeOffline:
	default:
		return &ConfigError{Field: "Mode", Message: fmt.Sprintf("unrecognized mode %q", c.Mode)}
	}

	if c.BatchSize < 1 {
		return &ConfigError{Field: "BatchSize", Message: "must be at least 1"}
	}

	if err := requirePositive("FlushPeriod", c.FlushPeriod); err != nil {
		return err
	}
	if err := requirePositive("AsyncLagThreshold", c.AsyncLagThreshold); err != nil {
		return err
	}
	if err := requirePositive("AsyncNoProgressThreshold", c.AsyncNoProgressThreshold); err != nil {
		return err
	}
	if err := requirePositive("CallbacksInterval", c.CallbacksInterval); err != nil {
		return err
	}
	if err := requirePositive("StopTimeout", c.StopTimeout); err != nil {
		return err
	}

	switch c.QueueBackend {
	case QueueBackendDisk, QueueBackendMemory:
	default:
		return &ConfigError{Field: "QueueBackend", Message: fmt.Sprintf("unrecognized queue backend %q", c.QueueBackend)}
	}

	nBackends := len(c.Backends)
	tokenCounts := make(map[string]struct{})
	for _, b := range c.Backends {
		if b.Host == "" {
			return &ConfigError{Field: "Backends[].Host", Message: "host is required"}
		}
		if b.Token == "" {
			return &ConfigError{Field: "Backends[].Token", Message: "token is required"}
		}
		tokenCounts[b.Token] = struct{}{}
	}
	// "token count must be 1 or N": either every backend shares one
	// token (broadcast credentials), or each has its own distinct one.
	if n := len(tokenCounts); n != 1 && n != nBackends {
		return &ConfigError{Field: "Backends[].Token", Message: "token count must be 1 (shared) or equal to the number of backends"}
	}

	return nil
}

func requirePositive(field string, d time.Duration) error {
	if d <= 0 {
		return &ConfigError{Field: field, Message: "must be positive"}
	}
	return nil
}
