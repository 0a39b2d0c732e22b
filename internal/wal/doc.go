// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

// Package wal provides a durable, crash-safe, FIFO operation queue backed
// by BadgerDB. It is the storage engine underneath each backend's async
// operation processor (package asyncprocessor): operations are persisted
// to disk before they are handed to a backend, and only removed once the
// backend has accepted them. Recovery and retry of pending entries after
// a crash is the async processor's job (it re-drains GetPending on every
// consume tick via its own daemon.RetryWrapper); this package only owns
// durable storage, confirmation, and compaction.
//
// # Architecture
//
// An operation flows through the queue between enqueue and dispatch:
//
//	Operation → WAL Write (ACID, fsync) → Backend Dispatch → WAL Confirm
//	                                                      ↓ (on failure)
//	                                                Entry preserved for retry
//
// # Ordering
//
// Write assigns each entry a monotonically increasing ID from a
// BadgerDB-persisted sequence (badger.Sequence), zero-padded so that
// lexicographic key order matches insertion order. GetPending iterates
// keys in that order, so a consumer draining the queue always sees
// entries in the exact order they were written, across process restarts.
//
// # Components
//
//   - BadgerWAL: Core durable queue implementation using BadgerDB
//   - Compactor: Background goroutine, started automatically by Open,
//     that removes confirmed entries and runs BadgerDB's value-log GC
//     on CompactInterval
//
// # Usage
//
// Basic usage:
//
//	// Create configuration
//	cfg := wal.LoadConfig()
//
//	// Open the queue (also starts its background compactor)
//	w, err := wal.Open(&cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Close()
//
//	// Write an operation before handing it to the backend
//	entryID, err := w.Write(ctx, op)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Dispatch to the backend
//	if err := backend.Execute(ctx, op); err != nil {
//	    // Entry preserved in the queue for retry
//	    return err
//	}
//
//	// Confirm successful dispatch
//	if err := w.Confirm(ctx, entryID); err != nil {
//	    log.Printf("queue confirm failed: %v", err)
//	}
//
// # Configuration
//
// Configuration is loaded from environment variables:
//
//	WAL_ENABLED=true         # false skips Validate's checks (default: true)
//	WAL_PATH=/data/wal       # Storage directory
//	WAL_SYNC_WRITES=true     # Force fsync (durability)
//	WAL_COMPACT_INTERVAL=1h  # Compaction interval
//	WAL_ENTRY_TTL=168h       # Entry time-to-live (7 days)
//
// # Why BadgerDB
//
// BadgerDB was chosen for:
//   - Pure Go (no CGO required)
//   - ACID compliance with checksums
//   - Concurrent writes (LSM-tree)
//   - Designed for write-heavy workloads
//   - Built-in TTL support
//
// Alternatives considered:
//   - bbolt: Single-writer limitation, and our per-backend queues are
//     written and drained concurrently by enqueue callers and the
//     consumer daemon.
//   - Append-only file: Corruption risk on power loss without manual
//     checksum/recovery bookkeeping BadgerDB already provides.
//
// # Metrics
//
// Prometheus metrics are exported per queue instance (see Metrics),
// labeled with the owning backend's queue name rather than aggregated
// behind a single process-wide series:
//
//	goclient_queue_writes_total           # Total write operations
//	goclient_queue_confirms_total         # Total confirm operations
//	goclient_queue_retries_total          # Total retry attempts
//	goclient_queue_pending_entries        # Current pending count
//	goclient_queue_db_size_bytes          # Database size
//	goclient_queue_write_latency_seconds  # Write latency histogram
//
// # Thread Safety
//
// All queue operations are thread-safe. Multiple goroutines can
// call Write, Confirm, and other methods concurrently.
package wal
