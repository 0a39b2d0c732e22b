// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

// Package monitor consumes internal/signalbus signals and fires
// caller-supplied callbacks when the async pipeline falls behind
// (lag) or appears stuck (no progress), at most once per
// Config.CallbacksInterval so a user's callback isn't flooded during
// a sustained outage.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/trackforge/goclient/internal/daemon"
	"github.com/trackforge/goclient/internal/logging"
	"github.com/trackforge/goclient/internal/signalbus"
)

// Config configures the signals monitor.
type Config struct {
	AsyncLagThreshold        time.Duration
	AsyncNoProgressThreshold time.Duration
	CallbacksInterval        time.Duration
	// CallbacksAsync runs each callback on its own goroutine instead
	// of inline on the monitor's daemon loop, so a slow user callback
	// can't stall signal consumption.
	CallbacksAsync bool
}

// Callbacks are invoked on lag/no-progress conditions.
type Callbacks struct {
	OnLag        func(backend string, lag time.Duration)
	OnNoProgress func(backend string, since time.Duration)
}

// Monitor drains a signalbus.Bus on a daemon.Daemon and invokes
// Callbacks, rate-limited to Config.CallbacksInterval.
type Monitor struct {
	cfg   Config
	bus   *signalbus.Bus
	cb    Callbacks
	d     *daemon.Daemon

	mu           sync.Mutex
	lastLagFired map[string]time.Time
	lastStarted  map[string]time.Time
	lastProgFired map[string]time.Time
}

// New builds a Monitor over bus.
func New(cfg Config, bus *signalbus.Bus, cb Callbacks) *Monitor {
	m := &Monitor{
		cfg:           cfg,
		bus:           bus,
		cb:            cb,
		lastLagFired:  make(map[string]time.Time),
		lastStarted:   make(map[string]time.Time),
		lastProgFired: make(map[string]time.Time),
	}
	m.d = daemon.New("signals-monitor", 500*time.Millisecond, m.drain)
	return m
}

// Start launches the monitor's daemon loop.
func (m *Monitor) Start(ctx context.Context) { m.d.Start(ctx) }

// Stop interrupts the monitor's daemon loop and waits for it to exit.
func (m *Monitor) Stop(ctx context.Context) {
	m.d.Interrupt()
	_ = m.d.Join(ctx)
}

func (m *Monitor) drain(ctx context.Context) error {
	for {
		select {
		case s, ok := <-m.bus.Signals():
			if !ok {
				return nil
			}
			m.handle(s)
		default:
			m.mu.Lock()
			names := make([]string, 0, len(m.lastStarted))
			for name := range m.lastStarted {
				names = append(names, name)
			}
			m.mu.Unlock()
			for _, name := range names {
				m.checkNoProgress(name)
			}
			return nil
		}
	}
}

func (m *Monitor) handle(s signalbus.Signal) {
	switch s.Kind {
	case signalbus.KindBatchStarted:
		m.mu.Lock()
		m.lastStarted[s.Backend] = s.At
		m.mu.Unlock()

	case signalbus.KindBatchProcessed:
		m.mu.Lock()
		delete(m.lastStarted, s.Backend)
		m.mu.Unlock()

	case signalbus.KindBatchLag:
		if s.Lag <= m.cfg.AsyncLagThreshold {
			return
		}
		if !m.shouldFire(m.lastLagFired, s.Backend) {
			return
		}
		m.invoke(func() {
			if m.cb.OnLag != nil {
				m.cb.OnLag(s.Backend, s.Lag)
			}
		})
	}

	m.checkNoProgress(s.Backend)
}

func (m *Monitor) checkNoProgress(backendName string) {
	m.mu.Lock()
	started, ok := m.lastStarted[backendName]
	m.mu.Unlock()
	if !ok {
		return
	}

	since := time.Since(started)
	if since <= m.cfg.AsyncNoProgressThreshold {
		return
	}
	if !m.shouldFire(m.lastProgFired, backendName) {
		return
	}
	m.invoke(func() {
		if m.cb.OnNoProgress != nil {
			m.cb.OnNoProgress(backendName, since)
		}
	})
}

// shouldFire enforces CallbacksInterval rate limiting per backend,
// recording the fire time under table when it returns true.
func (m *Monitor) shouldFire(table map[string]time.Time, backendName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	last, ok := table[backendName]
	now := time.Now()
	if ok && now.Sub(last) < m.cfg.CallbacksInterval {
		return false
	}
	table[backendName] = now
	return true
}

func (m *Monitor) invoke(f func()) {
	if m.cfg.CallbacksAsync {
		go m.safeCall(f)
		return
	}
	m.safeCall(f)
}

func (m *Monitor) safeCall(f func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Msg("signals monitor callback panicked")
		}
	}()
	f()
}
