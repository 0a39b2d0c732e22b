// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

// Package dispatcher is the centerpiece of the replication client: it
// fans writes out to every routable backend in parallel and serves
// reads from the first routable backend that succeeds, tracking each
// backend's health with the pure three-state transition function in
// package backend. A sony/gobreaker/v2 breaker rides alongside each
// backend purely as an auxiliary failure counter surfaced via
// metrics; it never overrides the tagged-union health state.
package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"

	goclienterrors "github.com/trackforge/goclient/errors"
	"github.com/trackforge/goclient/backend"
	"github.com/trackforge/goclient/internal/logging"
)

const (
	// healthCheckInterval grounds the original's HEALTH_CHECK_INTERVAL_SECONDS.
	healthCheckInterval = 60 * time.Second
	// maxParallelWorkers grounds the original's MAX_PARALLEL_WORKERS.
	maxParallelWorkers = 10
	// secondaryTimeout grounds the original's MAX_RETRY_TIMEOUT_SECONDS.
	secondaryTimeout = 30 * time.Second
)

// errBackendCall is fed into a backend's breaker to record a failed
// call; its text never reaches a caller since recordResult discards
// the breaker's return value.
var errBackendCall = errors.New("dispatcher: backend call failed")

type entry struct {
	state backend.State
	cb    *gobreaker.CircuitBreaker[any]
}

// Dispatcher holds every configured backend's Backend, health, and
// auxiliary circuit breaker, and implements the read/write/health
// protocols spec'd for the multi-backend session.
type Dispatcher struct {
	mu       sync.Mutex
	entries  []*entry
	closed   bool
	shutdown chan struct{}

	metrics *Metrics
	ticker  *time.Ticker
	wg      sync.WaitGroup
}

// New builds a Dispatcher over backends in configured order (index 0
// is the primary). metrics may be nil, which is equivalent to all
// metrics calls being no-ops.
func New(backends []backend.Backend, metrics *Metrics) *Dispatcher {
	entries := make([]*entry, len(backends))
	for i, b := range backends {
		entries[i] = &entry{
			state: backend.State{Backend: b, OriginalIndex: i, Health: backend.HealthyState{}},
			cb:    newBreaker(b.DisplayAddress()),
		}
	}
	d := &Dispatcher{
		entries:  entries,
		shutdown: make(chan struct{}),
		metrics:  metrics,
	}
	for _, e := range entries {
		d.metrics.SetBackendHealth(e.state.Backend.DisplayAddress(), healthLevel(e.state.Health))
		d.metrics.SetCircuitBreakerOpen(e.state.Backend.DisplayAddress(), false)
	}
	return d
}

func newBreaker(name string) *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
	})
}

// StartHealthChecks launches the background ticker that pings
// degraded backends, recovering them to Healthy on a successful ping.
// It runs until ctx is cancelled or Close is called.
func (d *Dispatcher) StartHealthChecks(ctx context.Context) {
	d.mu.Lock()
	if d.ticker != nil {
		d.mu.Unlock()
		return
	}
	d.ticker = time.NewTicker(healthCheckInterval)
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.shutdown:
				return
			case <-d.ticker.C:
				d.metrics.RecordHealthCheckRun()
				d.runHealthChecks(ctx)
			}
		}
	}()
}

func (d *Dispatcher) runHealthChecks(ctx context.Context) {
	d.mu.Lock()
	var degraded []*entry
	for _, e := range d.entries {
		if _, ok := e.state.Health.(backend.DegradedState); ok {
			degraded = append(degraded, e)
		}
	}
	d.mu.Unlock()

	for _, e := range degraded {
		err := e.state.Backend.HealthPing(ctx)
		d.recordResult(e, err == nil)
	}
}

// recordResult transitions e's tagged-union health state on the
// result of a call, and separately feeds the same success/failure
// outcome into e's auxiliary gobreaker so its open/closed state is an
// independent failure-rate signal surfaced via metrics. The breaker
// never gates or skips a call; it only observes outcomes already
// decided by the health state machine.
func (d *Dispatcher) recordResult(e *entry, success bool) {
	d.mu.Lock()
	e.state.Health = backend.Transition(e.state.Health, success)
	addr := e.state.Backend.DisplayAddress()
	level := healthLevel(e.state.Health)
	d.mu.Unlock()

	_, _ = e.cb.Execute(func() (any, error) {
		if success {
			return nil, nil
		}
		return nil, errBackendCall
	})

	d.metrics.SetBackendHealth(addr, level)
	d.metrics.SetCircuitBreakerOpen(addr, e.cb.State() == gobreaker.StateOpen)
}

// routable returns a snapshot of routable entries in original order,
// falling back to every entry if none are routable.
func (d *Dispatcher) routable() []*entry {
	d.mu.Lock()
	defer d.mu.Unlock()

	var r []*entry
	for _, e := range d.entries {
		if backend.Routable(e.state.Health) {
			r = append(r, e)
		}
	}
	if len(r) == 0 {
		d.metrics.RecordAllBackendsUnroutable()
		logging.Warn().Msg("no routable backends, falling back to all configured backends")
		return append([]*entry{}, d.entries...)
	}
	return r
}

// Read dispatches fn against routable backends in original index
// order, returning the first success. If every attempt fails, it
// returns AllBackendsFailedError carrying each backend's cause (or
// the single unwrapped error when only one backend is configured).
func (d *Dispatcher) Read(ctx context.Context, fn func(context.Context, backend.Backend) (any, error)) (any, error) {
	if d.isClosed() {
		return nil, &goclienterrors.MultiBackendClosedError{}
	}

	entries := d.routable()
	var failures []goclienterrors.BackendFailure

	for _, e := range entries {
		result, err := fn(ctx, e.state.Backend)
		d.recordResult(e, err == nil)
		if err == nil {
			return result, nil
		}
		failures = append(failures, goclienterrors.BackendFailure{OriginalIndex: e.state.OriginalIndex, Cause: err})
	}

	d.metrics.RecordAllBackendsFailed()
	if len(d.entries) == 1 && len(failures) == 1 {
		return nil, failures[0].Cause
	}
	return nil, &goclienterrors.AllBackendsFailedError{Failures: failures}
}

// Write fans fn out to every routable backend, bounded by
// maxParallelWorkers concurrent calls, and returns the count of
// backends that succeeded plus every individual failure.
func (d *Dispatcher) Write(ctx context.Context, fn func(context.Context, backend.Backend) error) (processed int, failures []goclienterrors.BackendFailure) {
	if d.isClosed() {
		return 0, []goclienterrors.BackendFailure{{Cause: &goclienterrors.MultiBackendClosedError{}}}
	}

	entries := d.routable()
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelWorkers)

	var mu sync.Mutex
	for _, e := range entries {
		e := e
		g.Go(func() error {
			err := fn(gctx, e.state.Backend)
			d.recordResult(e, err == nil)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				processed++
			} else {
				failures = append(failures, goclienterrors.BackendFailure{OriginalIndex: e.state.OriginalIndex, Cause: err})
			}
			return nil
		})
	}
	_ = g.Wait()

	d.metrics.ObserveFanOut("write", time.Since(start).Seconds())
	return processed, failures
}

// CreateRun implements the primary-then-secondary protocol: the
// primary (index 0) creates the run synchronously; secondaries are
// fanned out with a bounded timeout and their individual failures
// don't fail the overall call, since the primary's run ID is
// authoritative.
func (d *Dispatcher) CreateRun(ctx context.Context, params any) (runID string, secondaryFailures []goclienterrors.BackendFailure, err error) {
	if d.isClosed() {
		return "", nil, &goclienterrors.MultiBackendClosedError{}
	}

	d.mu.Lock()
	entries := append([]*entry{}, d.entries...)
	d.mu.Unlock()
	if len(entries) == 0 {
		return "", nil, &goclienterrors.AllBackendsFailedError{}
	}

	primary := entries[0]
	runID, err = primary.state.Backend.CreateRun(ctx, params)
	d.recordResult(primary, err == nil)
	if err != nil {
		return "", nil, err
	}

	secondaries := entries[1:]
	if len(secondaries) == 0 {
		return runID, nil, nil
	}

	secCtx, cancel := context.WithTimeout(ctx, secondaryTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(secCtx)
	g.SetLimit(maxParallelWorkers)
	var mu sync.Mutex
	for _, e := range secondaries {
		e := e
		g.Go(func() error {
			_, serr := e.state.Backend.CreateRun(gctx, params)
			d.recordResult(e, serr == nil)
			if serr != nil {
				mu.Lock()
				secondaryFailures = append(secondaryFailures, goclienterrors.BackendFailure{OriginalIndex: e.state.OriginalIndex, Cause: serr})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return runID, secondaryFailures, nil
}

// createByFanOut implements CreateModel/CreateModelVersion: fan out
// to every routable backend and return the lowest-original-index
// success.
func (d *Dispatcher) createByFanOut(ctx context.Context, call func(context.Context, backend.Backend) (string, error)) (string, error) {
	if d.isClosed() {
		return "", &goclienterrors.MultiBackendClosedError{}
	}

	entries := d.routable()
	type result struct {
		idx int
		id  string
		err error
	}
	results := make([]result, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelWorkers)
	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			id, err := call(gctx, e.state.Backend)
			d.recordResult(e, err == nil)
			results[i] = result{idx: e.state.OriginalIndex, id: id, err: err}
			return nil
		})
	}
	_ = g.Wait()

	best := -1
	bestID := ""
	var failures []goclienterrors.BackendFailure
	for _, r := range results {
		if r.err != nil {
			failures = append(failures, goclienterrors.BackendFailure{OriginalIndex: r.idx, Cause: r.err})
			continue
		}
		if best == -1 || r.idx < best {
			best = r.idx
			bestID = r.id
		}
	}
	if best == -1 {
		return "", &goclienterrors.AllBackendsFailedError{Failures: failures}
	}
	return bestID, nil
}

func (d *Dispatcher) CreateModel(ctx context.Context, params any) (string, error) {
	return d.createByFanOut(ctx, func(ctx context.Context, b backend.Backend) (string, error) {
		return b.CreateModel(ctx, params)
	})
}

func (d *Dispatcher) CreateModelVersion(ctx context.Context, params any) (string, error) {
	return d.createByFanOut(ctx, func(ctx context.Context, b backend.Backend) (string, error) {
		return b.CreateModelVersion(ctx, params)
	})
}

// MarkBackendDisconnected forces backend at originalIndex to
// Degraded, used by internal/multiprocessor after observing its
// consumer's daemon stuck in backoff. A no-op if the backend is
// already Failing or Degraded.
func (d *Dispatcher) MarkBackendDisconnected(originalIndex int, cause error) {
	d.mu.Lock()
	var target *entry
	for _, e := range d.entries {
		if e.state.OriginalIndex == originalIndex {
			target = e
			break
		}
	}
	if target == nil {
		d.mu.Unlock()
		return
	}
	if _, healthy := target.state.Health.(backend.HealthyState); !healthy {
		d.mu.Unlock()
		return
	}
	target.state.Health = backend.DegradedState{Count: backend.FailureThreshold}
	addr := target.state.Backend.DisplayAddress()
	d.mu.Unlock()

	logging.Warn().Err(cause).Str("backend", addr).Msg("marking backend disconnected")
	d.metrics.SetBackendHealth(addr, healthLevel(backend.DegradedState{}))
}

func (d *Dispatcher) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Close shuts down the health-check loop and closes every backend,
// swallowing individual close errors behind a single warning log per
// the teacher's supervisor shutdown-swallow idiom.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	entries := append([]*entry{}, d.entries...)
	ticker := d.ticker
	d.mu.Unlock()

	close(d.shutdown)
	if ticker != nil {
		ticker.Stop()
	}
	d.wg.Wait()

	var failed []string
	for _, e := range entries {
		if err := e.state.Backend.Close(); err != nil {
			failed = append(failed, e.state.Backend.DisplayAddress())
		}
	}
	if len(failed) > 0 {
		logging.Warn().Strs("backends", failed).Msg("errors closing one or more backends during shutdown")
	}
	return nil
}
