// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

// Package signalbus carries lossy progress signals from an async
// processor's consumer loop to the signals monitor. It is
// deliberately non-blocking: a processor mid-batch must never stall
// waiting for a slow or absent listener, so a full bus drops the
// signal and logs a warning once rather than applying backpressure.
package signalbus

import (
	"sync/atomic"
	"time"

	"github.com/trackforge/goclient/internal/logging"
)

// Kind identifies which variant of Signal is populated.
type Kind int

const (
	KindBatchStarted Kind = iota
	KindBatchProcessed
	KindBatchLag
)

// Signal is the tagged union emitted onto a Bus. Only the fields
// relevant to Kind are meaningful.
type Signal struct {
	Kind      Kind
	Backend   string
	BatchSize int
	At        time.Time

	// Lag is populated only for KindBatchLag: how far behind the
	// consumer is relative to the oldest unconfirmed entry.
	Lag time.Duration
}

// Bus is a small buffered channel of Signal with non-blocking Emit.
type Bus struct {
	ch      chan Signal
	dropped atomic.Bool
	name    string
}

// New creates a Bus with the given buffer capacity, labeled name for
// its drop warning.
func New(name string, capacity int) *Bus {
	if capacity <= 0 {
		capacity = 64
	}
	return &Bus{ch: make(chan Signal, capacity), name: name}
}

// Emit attempts a non-blocking send. If the bus is full, the signal is
// dropped and a warning is logged the first time this happens since
// the bus last had room (so a stuck consumer doesn't spam the log).
func (b *Bus) Emit(s Signal) {
	select {
	case b.ch <- s:
		b.dropped.Store(false)
	default:
		if b.dropped.CompareAndSwap(false, true) {
			logging.Warn().Str("bus", b.name).Msg("signal bus full, dropping signal")
		}
	}
}

// Signals returns the receive side of the bus for the monitor to
// range over.
func (b *Bus) Signals() <-chan Signal {
	return b.ch
}

// Close closes the underlying channel. Callers must ensure no further
// Emit calls occur after Close.
func (b *Bus) Close() {
	close(b.ch)
}
