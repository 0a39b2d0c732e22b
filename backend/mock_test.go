// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

package backend

import (
	"context"
	"errors"
	"testing"
)

func TestMockBackendExecuteOperations(t *testing.T) {
	m := NewMockBackend("mock://test")
	ops := []any{"op1", "op2", "op3"}

	n, err := m.ExecuteOperations(context.Background(), ops)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len(ops) {
		t.Fatalf("processed = %d, want %d", n, len(ops))
	}
	if m.ExecuteCallCount() != 1 {
		t.Fatalf("ExecuteCallCount = %d, want 1", m.ExecuteCallCount())
	}
}

func TestMockBackendInjectedError(t *testing.T) {
	m := NewMockBackend("mock://test")
	m.ExecuteErr = errors.New("boom")

	_, err := m.ExecuteOperations(context.Background(), []any{"op"})
	if !errors.Is(err, m.ExecuteErr) {
		t.Fatalf("expected injected error, got %v", err)
	}
}

func TestMockBackendCloseIdempotent(t *testing.T) {
	m := NewMockBackend("mock://test")
	if err := m.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second close should also succeed: %v", err)
	}
}

func TestOfflineBackendAcceptsAllWrites(t *testing.T) {
	o := NewOfflineBackend("")
	if o.DisplayAddress() != "offline" {
		t.Fatalf("expected default display address, got %q", o.DisplayAddress())
	}

	n, err := o.ExecuteOperations(context.Background(), []any{1, 2, 3})
	if err != nil || n != 3 {
		t.Fatalf("ExecuteOperations = (%d, %v), want (3, nil)", n, err)
	}

	id, err := o.CreateRun(context.Background(), nil)
	if err != nil || id == "" {
		t.Fatalf("CreateRun = (%q, %v), want non-empty id, nil error", id, err)
	}
}
