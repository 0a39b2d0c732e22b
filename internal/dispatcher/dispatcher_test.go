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

func TestReadFirstSuccessWins(t *testing.T) {
	b1 := backend.NewMockBackend("b1")
	b1.HealthPingErr = errors.New("down")
	b2 := backend.NewMockBackend("b2")

	d := New([]backend.Backend{b1, b2}, nil)

	calls := 0
	result, err := d.Read(context.Background(), func(ctx context.Context, b backend.Backend) (any, error) {
		calls++
		if b.DisplayAddress() == "b1" {
			return nil, errors.New("b1 unavailable")
		}
		return "ok-from-b2", nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok-from-b2" {
		t.Fatalf("result = %v, want ok-from-b2", result)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2 (fall through b1 to b2)", calls)
	}
}

func TestReadAllBackendsFailed(t *testing.T) {
	b1 := backend.NewMockBackend("b1")
	b2 := backend.NewMockBackend("b2")
	d := New([]backend.Backend{b1, b2}, nil)

	_, err := d.Read(context.Background(), func(ctx context.Context, b backend.Backend) (any, error) {
		return nil, errors.New("down")
	})

	if err == nil {
		t.Fatal("expected an error when every backend fails")
	}
}

func TestWriteFansOutToAllBackends(t *testing.T) {
	b1 := backend.NewMockBackend("b1")
	b2 := backend.NewMockBackend("b2")
	b3 := backend.NewMockBackend("b3")
	d := New([]backend.Backend{b1, b2, b3}, nil)

	processed, failures := d.Write(context.Background(), func(ctx context.Context, b backend.Backend) error {
		return nil
	})

	if processed != 3 {
		t.Fatalf("processed = %d, want 3", processed)
	}
	if len(failures) != 0 {
		t.Fatalf("expected no failures, got %v", failures)
	}
}

func TestWritePartialFailureReported(t *testing.T) {
	b1 := backend.NewMockBackend("b1")
	b2 := backend.NewMockBackend("b2")
	d := New([]backend.Backend{b1, b2}, nil)

	processed, failures := d.Write(context.Background(), func(ctx context.Context, b backend.Backend) error {
		if b.DisplayAddress() == "b2" {
			return errors.New("b2 write failed")
		}
		return nil
	})

	if processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}
	if len(failures) != 1 || failures[0].OriginalIndex != 1 {
		t.Fatalf("unexpected failures: %+v", failures)
	}
}

func TestCloseIsIdempotentAndRejectsFurtherOps(t *testing.T) {
	b1 := backend.NewMockBackend("b1")
	d := New([]backend.Backend{b1}, nil)

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}

	_, err := d.Read(context.Background(), func(ctx context.Context, b backend.Backend) (any, error) {
		return nil, nil
	})
	if err == nil {
		t.Fatal("expected MultiBackendClosedError after Close")
	}
}

func TestMarkBackendDisconnectedDegradesBackend(t *testing.T) {
	b1 := backend.NewMockBackend("b1")
	b2 := backend.NewMockBackend("b2")
	d := New([]backend.Backend{b1, b2}, nil)

	d.MarkBackendDisconnected(1, errors.New("consumer stuck in backoff"))

	entries := d.routable()
	for _, e := range entries {
		if e.state.OriginalIndex == 1 {
			t.Fatal("backend 1 should no longer be routable after MarkBackendDisconnected")
		}
	}
}
