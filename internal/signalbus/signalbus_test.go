// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

package signalbus

import "testing"

func TestEmitAndReceive(t *testing.T) {
	b := New("test", 2)
	b.Emit(Signal{Kind: KindBatchStarted, Backend: "b1", BatchSize: 10})

	got := <-b.Signals()
	if got.Kind != KindBatchStarted || got.Backend != "b1" || got.BatchSize != 10 {
		t.Fatalf("unexpected signal: %+v", got)
	}
}

func TestEmitDropsWhenFull(t *testing.T) {
	b := New("test", 1)
	b.Emit(Signal{Kind: KindBatchStarted})
	// Second emit should not block: bus capacity is 1 and nothing has
	// drained the first signal yet.
	done := make(chan struct{})
	go func() {
		b.Emit(Signal{Kind: KindBatchProcessed})
		close(done)
	}()
	select {
	case <-done:
	default:
	}
	<-done // Emit must return promptly even when the buffer is full.

	first := <-b.Signals()
	if first.Kind != KindBatchStarted {
		t.Fatalf("expected the first signal to have been kept, got %+v", first)
	}
}
