// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

package goclient

import (
	"context"
	"testing"
	"time"

	"github.com/trackforge/goclient/internal/config"
	"github.com/trackforge/goclient/operation"
)

func testConfig(t *testing.T, mode config.Mode, backends int) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Mode:                     mode,
		FlushPeriod:              20 * time.Millisecond,
		BatchSize:                10,
		AsyncLagThreshold:        time.Second,
		AsyncNoProgressThreshold: time.Minute,
		CallbacksInterval:        time.Minute,
		StopTimeout:              2 * time.Second,
		QueueBackend:             config.QueueBackendDisk,
		QueueRootPath:            t.TempDir(),
		LogLevel:                 "error",
	}
	for i := 0; i < backends; i++ {
		cfg.Backends = append(cfg.Backends, config.BackendEndpoint{
			Host:  "backend",
			Port:  9000 + i,
			Token: "t",
		})
	}
	return cfg
}

func TestNewSessionRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, config.ModeDebug, 0)
	if _, err := NewSession(cfg, Callbacks{}); err == nil {
		t.Fatal("expected validation error with zero backends")
	}
}

func TestSessionExecuteOperationsDebugMode(t *testing.T) {
	cfg := testConfig(t, config.ModeDebug, 2)
	session, err := NewSession(cfg, Callbacks{})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session.Start(ctx)

	op, err := operation.New(operation.KindCopyAttribute, operation.CopyAttributeOperation{
		SourcePath:      "a",
		DestinationPath: "b",
	})
	if err != nil {
		t.Fatalf("operation.New: %v", err)
	}

	if err := session.ExecuteOperations(context.Background(), op); err != nil {
		t.Fatalf("ExecuteOperations: %v", err)
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer closeCancel()
	if err := session.Close(closeCtx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestSessionReadOnlyModeDeniesWrites(t *testing.T) {
	cfg := testConfig(t, config.ModeReadOnly, 1)
	session, err := NewSession(cfg, Callbacks{})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session.Start(ctx)

	op, _ := operation.New(operation.KindCopyAttribute, operation.CopyAttributeOperation{})
	if err := session.ExecuteOperations(context.Background(), op); err == nil {
		t.Fatal("expected write to be denied in read-only mode")
	}
	if _, _, err := session.CreateRun(context.Background(), nil); err == nil {
		t.Fatal("expected CreateRun to be denied in read-only mode")
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer closeCancel()
	if err := session.Close(closeCtx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestSessionOfflineModeCreateRun(t *testing.T) {
	cfg := testConfig(t, config.ModeOffline, 1)
	session, err := NewSession(cfg, Callbacks{})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session.Start(ctx)

	runID, secondaryFailures, err := session.CreateRun(context.Background(), map[string]any{"name": "test-run"})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if runID == "" {
		t.Fatal("expected non-empty run ID")
	}
	if len(secondaryFailures) != 0 {
		t.Fatalf("expected no secondary failures with a single backend, got %v", secondaryFailures)
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer closeCancel()
	if err := session.Close(closeCtx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
