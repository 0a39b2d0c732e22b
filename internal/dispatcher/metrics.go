// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

package dispatcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the per-dispatcher-instance Prometheus sink, constructed
// with promauto.With(registry) so a process hosting several sessions
// (or tests registering many dispatchers) never collides on the
// default global registry, mirroring internal/wal.Metrics.
type Metrics struct {
	backendHealth         *prometheus.GaugeVec
	circuitBreakerOpen    *prometheus.GaugeVec
	fanOutLatency         *prometheus.HistogramVec
	allBackendsFailed     prometheus.Counter
	allBackendsUnroutable prometheus.Counter
	healthCheckRuns       prometheus.Counter
}

// NewMetrics builds a Metrics bound to reg, labeled with sessionName
// so multiple sessions in one process don't collide.
func NewMetrics(reg prometheus.Registerer, sessionName string) *Metrics {
	labels := prometheus.Labels{"session": sessionName}
	f := promauto.With(reg)

	return &Metrics{
		backendHealth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "goclient_dispatcher_backend_health",
			Help:        "Backend health state: 0=healthy, 1=failing, 2=degraded.",
			ConstLabels: labels,
		}, []string{"backend"}),
		circuitBreakerOpen: f.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "goclient_dispatcher_circuit_breaker_open",
			Help:        "Auxiliary per-backend circuit breaker state: 1=open, 0=closed or half-open.",
			ConstLabels: labels,
		}, []string{"backend"}),
		fanOutLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "goclient_dispatcher_fanout_latency_seconds",
			Help:        "Latency of a write fan-out across all routable backends.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"operation"}),
		allBackendsFailed: f.NewCounter(prometheus.CounterOpts{
			Name:        "goclient_dispatcher_all_backends_failed_total",
			Help:        "Number of read operations for which every routable backend failed.",
			ConstLabels: labels,
		}),
		allBackendsUnroutable: f.NewCounter(prometheus.CounterOpts{
			Name:        "goclient_dispatcher_all_backends_unroutable_total",
			Help:        "Number of dispatches that fell back to every configured backend because none were routable (Healthy or Failing).",
			ConstLabels: labels,
		}),
		healthCheckRuns: f.NewCounter(prometheus.CounterOpts{
			Name:        "goclient_dispatcher_health_check_runs_total",
			Help:        "Number of health-check ticks executed.",
			ConstLabels: labels,
		}),
	}
}

func (m *Metrics) SetBackendHealth(addr string, level float64) {
	if m == nil {
		return
	}
	m.backendHealth.WithLabelValues(addr).Set(level)
}

func (m *Metrics) SetCircuitBreakerOpen(addr string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1.0
	}
	m.circuitBreakerOpen.WithLabelValues(addr).Set(v)
}

func (m *Metrics) ObserveFanOut(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.fanOutLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *Metrics) RecordAllBackendsFailed() {
	if m == nil {
		return
	}
	m.allBackendsFailed.Inc()
}

func (m *Metrics) RecordAllBackendsUnroutable() {
	if m == nil {
		return
	}
	m.allBackendsUnroutable.Inc()
}

func (m *Metrics) RecordHealthCheckRun() {
	if m == nil {
		return
	}
	m.healthCheckRuns.Inc()
}

func healthLevel(h interface{ String() string }) float64 {
	switch h.String() {
	case "healthy":
		return 0
	case "failing":
		return 1
	default:
		return 2
	}
}
