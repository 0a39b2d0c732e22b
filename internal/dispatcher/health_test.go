// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

package dispatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/trackforge/goclient/backend"
)

func TestRunHealthChecksRecoversDegradedBackend(t *testing.T) {
	b1 := backend.NewMockBackend("b1")
	d := New([]backend.Backend{b1}, nil)

	d.entries[0].state.Health = backend.DegradedState{Count: 3}
	d.runHealthChecks(context.Background())

	if _, healthy := d.entries[0].state.Health.(backend.HealthyState); !healthy {
		t.Fatalf("expected backend to recover to Healthy, got %v", d.entries[0].state.Health)
	}
	if b1.PingCallCount() != 1 {
		t.Fatalf("expected exactly one health ping, got %d", b1.PingCallCount())
	}
}

func TestRunHealthChecksSkipsNonDegradedBackends(t *testing.T) {
	b1 := backend.NewMockBackend("b1")
	d := New([]backend.Backend{b1}, nil)
	// Default state is HealthyState; a health check should not ping it.
	d.runHealthChecks(context.Background())

	if b1.PingCallCount() != 0 {
		t.Fatalf("expected no health ping against a non-degraded backend, got %d", b1.PingCallCount())
	}
}

func TestRunHealthChecksKeepsDegradedOnFailedPing(t *testing.T) {
	b1 := backend.NewMockBackend("b1")
	b1.HealthPingErr = errors.New("still down")
	d := New([]backend.Backend{b1}, nil)
	d.entries[0].state.Health = backend.DegradedState{Count: 3}

	d.runHealthChecks(context.Background())

	if _, degraded := d.entries[0].state.Health.(backend.DegradedState); !degraded {
		t.Fatalf("expected backend to remain Degraded, got %v", d.entries[0].state.Health)
	}
}
