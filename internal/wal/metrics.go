// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

package wal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for a single queue instance.
//
// Unlike the package-level promauto globals this replaces, Metrics is
// constructed per instance and registered against a caller-supplied
// registry. A client embedding multiple queues (one per backend) gets
// independent series per queue rather than a single process-wide set
// that can't distinguish backends.
type Metrics struct {
	writesTotal      prometheus.Counter
	confirmsTotal    prometheus.Counter
	retriesTotal     prometheus.Counter
	pendingEntries   prometheus.Gauge
	confirmedEntries prometheus.Gauge
	writeLatency     prometheus.Histogram
	dbSizeBytes      prometheus.Gauge
	compactionsTotal prometheus.Counter
	entriesCompacted prometheus.Counter
	recoveredEntries prometheus.Counter
	writeFailures    prometheus.Counter
	dispatchFailures prometheus.Counter
	maxRetries       prometheus.Counter
	expiredEntries   prometheus.Counter
	compactionTime   prometheus.Histogram
	gcTime           prometheus.Histogram
	gcRuns           prometheus.Counter
}

// NewMetrics registers a queue's collectors against reg, labeling every
// series with the owning backend's name so a single registry can host
// one queue per configured backend.
func NewMetrics(reg prometheus.Registerer, queueName string) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"queue": queueName}

	return &Metrics{
		writesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name:        "goclient_queue_writes_total",
			Help:        "Total number of durable queue write operations",
			ConstLabels: labels,
		}),
		confirmsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name:        "goclient_queue_confirms_total",
			Help:        "Total number of durable queue confirm operations",
			ConstLabels: labels,
		}),
		retriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name:        "goclient_queue_retries_total",
			Help:        "Total number of durable queue retry attempts",
			ConstLabels: labels,
		}),
		pendingEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "goclient_queue_pending_entries",
			Help:        "Current number of pending queue entries",
			ConstLabels: labels,
		}),
		confirmedEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "goclient_queue_confirmed_entries",
			Help:        "Current number of confirmed entries awaiting compaction",
			ConstLabels: labels,
		}),
		writeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "goclient_queue_write_latency_seconds",
			Help:        "Durable queue write latency in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}),
		dbSizeBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "goclient_queue_db_size_bytes",
			Help:        "BadgerDB database size in bytes",
			ConstLabels: labels,
		}),
		compactionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name:        "goclient_queue_compactions_total",
			Help:        "Total number of queue compaction runs",
			ConstLabels: labels,
		}),
		entriesCompacted: factory.NewCounter(prometheus.CounterOpts{
			Name:        "goclient_queue_entries_compacted_total",
			Help:        "Total number of entries removed during compaction",
			ConstLabels: labels,
		}),
		recoveredEntries: factory.NewCounter(prometheus.CounterOpts{
			Name:        "goclient_queue_recovered_entries_total",
			Help:        "Total number of entries recovered on startup",
			ConstLabels: labels,
		}),
		writeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name:        "goclient_queue_write_failures_total",
			Help:        "Total number of failed queue write operations",
			ConstLabels: labels,
		}),
		dispatchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name:        "goclient_queue_dispatch_failures_total",
			Help:        "Total number of backend dispatch failures from queue entries",
			ConstLabels: labels,
		}),
		maxRetries: factory.NewCounter(prometheus.CounterOpts{
			Name:        "goclient_queue_max_retries_exceeded_total",
			Help:        "Total number of entries that exceeded maximum retry attempts",
			ConstLabels: labels,
		}),
		expiredEntries: factory.NewCounter(prometheus.CounterOpts{
			Name:        "goclient_queue_expired_entries_total",
			Help:        "Total number of entries that expired before dispatch confirmation",
			ConstLabels: labels,
		}),
		compactionTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "goclient_queue_compaction_latency_seconds",
			Help:        "Queue compaction latency in seconds",
			Buckets:     prometheus.ExponentialBuckets(0.1, 2, 10),
			ConstLabels: labels,
		}),
		gcTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "goclient_queue_gc_latency_seconds",
			Help:        "BadgerDB value log GC latency in seconds",
			Buckets:     prometheus.ExponentialBuckets(0.01, 2, 12),
			ConstLabels: labels,
		}),
		gcRuns: factory.NewCounter(prometheus.CounterOpts{
			Name:        "goclient_queue_gc_runs_total",
			Help:        "Total number of BadgerDB value log GC runs",
			ConstLabels: labels,
		}),
	}
}

// noopMetrics is used when a caller opens a queue without supplying a registry.
var noopMetrics = &Metrics{
	writesTotal:      prometheus.NewCounter(prometheus.CounterOpts{Name: "noop_writes"}),
	confirmsTotal:    prometheus.NewCounter(prometheus.CounterOpts{Name: "noop_confirms"}),
	retriesTotal:     prometheus.NewCounter(prometheus.CounterOpts{Name: "noop_retries"}),
	pendingEntries:   prometheus.NewGauge(prometheus.GaugeOpts{Name: "noop_pending"}),
	confirmedEntries: prometheus.NewGauge(prometheus.GaugeOpts{Name: "noop_confirmed"}),
	writeLatency:     prometheus.NewHistogram(prometheus.HistogramOpts{Name: "noop_write_latency"}),
	dbSizeBytes:      prometheus.NewGauge(prometheus.GaugeOpts{Name: "noop_db_size"}),
	compactionsTotal: prometheus.NewCounter(prometheus.CounterOpts{Name: "noop_compactions"}),
	entriesCompacted: prometheus.NewCounter(prometheus.CounterOpts{Name: "noop_compacted"}),
	recoveredEntries: prometheus.NewCounter(prometheus.CounterOpts{Name: "noop_recovered"}),
	writeFailures:    prometheus.NewCounter(prometheus.CounterOpts{Name: "noop_write_failures"}),
	dispatchFailures: prometheus.NewCounter(prometheus.CounterOpts{Name: "noop_dispatch_failures"}),
	maxRetries:       prometheus.NewCounter(prometheus.CounterOpts{Name: "noop_max_retries"}),
	expiredEntries:   prometheus.NewCounter(prometheus.CounterOpts{Name: "noop_expired"}),
	compactionTime:   prometheus.NewHistogram(prometheus.HistogramOpts{Name: "noop_compaction_time"}),
	gcTime:           prometheus.NewHistogram(prometheus.HistogramOpts{Name: "noop_gc_time"}),
	gcRuns:           prometheus.NewCounter(prometheus.CounterOpts{Name: "noop_gc_runs"}),
}

func (m *Metrics) RecordWrite()                         { m.writesTotal.Inc() }
func (m *Metrics) RecordConfirm()                        { m.confirmsTotal.Inc() }
func (m *Metrics) RecordRetry()                          { m.retriesTotal.Inc() }
func (m *Metrics) SetPendingEntries(n int64)              { m.pendingEntries.Set(float64(n)) }
func (m *Metrics) SetConfirmedEntries(n int64)            { m.confirmedEntries.Set(float64(n)) }
func (m *Metrics) ObserveWriteLatency(seconds float64)    { m.writeLatency.Observe(seconds) }
func (m *Metrics) SetDBSize(bytes int64)                  { m.dbSizeBytes.Set(float64(bytes)) }
func (m *Metrics) RecordCompaction()                      { m.compactionsTotal.Inc() }
func (m *Metrics) RecordEntriesCompacted(n int64)         { m.entriesCompacted.Add(float64(n)) }
func (m *Metrics) RecordRecoveredEntries(n int64)         { m.recoveredEntries.Add(float64(n)) }
func (m *Metrics) RecordWriteFailure()                    { m.writeFailures.Inc() }
func (m *Metrics) RecordDispatchFailure()                 { m.dispatchFailures.Inc() }
func (m *Metrics) RecordMaxRetriesExceeded()              { m.maxRetries.Inc() }
func (m *Metrics) RecordExpiredEntry()                    { m.expiredEntries.Inc() }
func (m *Metrics) ObserveCompactionLatency(seconds float64) { m.compactionTime.Observe(seconds) }
func (m *Metrics) ObserveGCLatency(seconds float64)       { m.gcTime.Observe(seconds) }
func (m *Metrics) RecordGCRun()                           { m.gcRuns.Inc() }
