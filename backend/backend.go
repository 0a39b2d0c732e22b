// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

// Package backend defines the capability surface a replication target
// must satisfy, its health state machine, and the three concrete
// implementations used across tests and the offline session mode.
package backend

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the immutable, validated configuration for one backend
// target. Session-level validation (token/project count must be 1 or
// N across all configured backends) happens one level up, in
// internal/config; Config.Validate only checks this backend in
// isolation.
type Config struct {
	Host  string `validate:"required,hostname_port|hostname|fqdn"`
	Port  int    `validate:"required,min=1,max=65535"`
	Token string `validate:"required"`

	// Project optionally overrides the session-level project for this
	// backend alone.
	Project string

	// Proxies is passed through to the HTTP transport untouched; the
	// proxy-resolution algorithm itself is out of scope.
	Proxies map[string]string

	// UseTLS selects https vs. http for HostedBackend.
	UseTLS bool
}

// Validate runs struct-tag validation over c.
func (c Config) Validate() error {
	return validate.Struct(c)
}

// QueueDirName returns the deterministic on-disk directory name for
// this backend's durable queue: the host with dots replaced by
// underscores, joined to the port with an underscore, e.g.
// "app_neptune_ai_443".
func QueueDirName(host string, port int) string {
	safeHost := strings.ReplaceAll(host, ".", "_")
	return safeHost + "_" + strconv.Itoa(port)
}

// Backend is the capability set a replication target exposes to the
// dispatcher and async processors. Read/write payload shapes are kept
// opaque (any/operation.Operation) since the typed attribute model and
// HTTP/Swagger client generation are out of scope; a real
// implementation marshals these through its own wire format.
type Backend interface {
	// ExecuteOperations dispatches a batch of operations, in order,
	// returning the number of operations fully processed before any
	// error (so the caller can ack a prefix even on partial failure).
	ExecuteOperations(ctx context.Context, operations []any) (processed int, err error)

	// CreateRun creates a new run/experiment on this backend and
	// returns its backend-assigned identifier.
	CreateRun(ctx context.Context, params any) (runID string, err error)

	// CreateModel and CreateModelVersion mirror CreateRun for the
	// model registry surface.
	CreateModel(ctx context.Context, params any) (modelID string, err error)
	CreateModelVersion(ctx context.Context, params any) (versionID string, err error)

	// GetAttributes, DownloadFile, Search, and List are the read
	// surface; payload and result shapes are opaque per Non-goals.
	GetAttributes(ctx context.Context, query any) (any, error)
	DownloadFile(ctx context.Context, query any) (any, error)
	Search(ctx context.Context, query any) (any, error)
	List(ctx context.Context, query any) (any, error)

	// HealthPing is a cheap liveness check used by the dispatcher's
	// health-check timer and by DegradedState recovery.
	HealthPing(ctx context.Context) error

	// Close releases any held resources. Idempotent.
	Close() error

	// DisplayAddress is the human-readable identifier used in log
	// lines, e.g. "https://app.neptune.ai:443".
	DisplayAddress() string
}

// State pairs a Backend with its position in the session's originally
// configured backend list and its current health. OriginalIndex is
// preserved across health transitions so that AllBackendsFailedError
// and write fan-out results can report which configured backend
// failed, even after reordering for iteration.
type State struct {
	Backend       Backend
	OriginalIndex int
	Health        Health
}

// Snapshot is a read-only copy of a State used when releasing the
// dispatcher's lock before making a network call.
type Snapshot struct {
	OriginalIndex int
	Health        Health
	DisplayAddr   string
}

func (s State) Snapshot() Snapshot {
	return Snapshot{
		OriginalIndex: s.OriginalIndex,
		Health:        s.Health,
		DisplayAddr:   s.Backend.DisplayAddress(),
	}
}

// closeOnce wraps sync.Once so embedding implementations get an
// idempotent Close for free.
type closeOnce struct {
	once sync.Once
	err  error
}

func (c *closeOnce) do(f func() error) error {
	c.once.Do(func() { c.err = f() })
	return c.err
}
