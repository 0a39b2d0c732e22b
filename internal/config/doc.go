// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

/*
Package config loads and validates session configuration for a
multi-backend goclient session: the backend list, dispatch mode,
batching/flush tuning, and the signals monitor's lag/no-progress
thresholds.

# Configuration Sources

Layered in increasing priority, following the same pattern as
internal/wal.Config's environment loading but routed through
knadh/koanf/v2 for nested structure:

  1. Built-in struct defaults (defaultConfig)
  2. An optional YAML file (GOCLIENT_CONFIG_PATH, or goclient.yaml in
     the working directory / /etc/goclient/)
  3. Environment variables, GOCLIENT_ prefixed

# Backend List

Backends is a list of BackendEndpoint (host, port, token, optional
per-backend project override, proxies). Because environment variables
don't have a clean flat mapping onto an array of structs, backends are
expected to come from the YAML file layer or be appended
programmatically after LoadWithKoanf returns, before passing Config to
a session constructor.

# Validation

Validate enforces the session-level invariants: at least one backend
configured, each with a non-empty host and token; the number of
distinct token values is either 1 (one token shared by every backend)
or exactly len(Backends) (one per backend), while per-backend Project
values are not counted; Mode is one of the five recognized values;
QueueBackend is disk or memory; BatchSize and the duration fields are
positive.

# Usage

	cfg, err := config.LoadWithKoanf()
	if err != nil {
	    return err
	}
	cfg.Backends = append(cfg.Backends, config.BackendEndpoint{
	    Host: "app.neptune.ai", Port: 443, Token: os.Getenv("BACKEND_TOKEN"), UseTLS: true,
	})
	if err := cfg.Validate(); err != nil {
	    return err
	}
*/
package config
