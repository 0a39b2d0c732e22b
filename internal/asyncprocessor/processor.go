// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

// Package asyncprocessor owns one backend's durable operation queue
// and the consumer daemon that drains it, matching the per-backend
// async processor described for the multi-backend session: callers
// enqueue operations without blocking on the network, and a single
// consumer goroutine flushes batches to the backend with retry
// backoff on transient failures.
package asyncprocessor

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	goclienterrors "github.com/trackforge/goclient/errors"
	"github.com/trackforge/goclient/internal/daemon"
	"github.com/trackforge/goclient/internal/logging"
	"github.com/trackforge/goclient/internal/signalbus"
	"github.com/trackforge/goclient/internal/wal"
)

// backpressureStep sets how often EnqueueOperation logs a backlog
// warning: every backpressureStep-th call logs one, carrying the
// cumulative number of enqueued operations. The current queue size is
// not consulted, and nothing is logged when the backlog shrinks.
const backpressureStep = 5000

// StopSignal mirrors the processor's shutdown progress signals, sent
// on the optional channel passed to Stop.
type StopSignal int

const (
	StopConnectionInterrupted StopSignal = iota
	StopWaitingForOperations
	StopSuccess
	StopSyncFailure
	StopReconnectFailure
	StopStillWaiting
)

// Config configures one backend's processor.
type Config struct {
	BackendName      string
	BatchSize        int
	FlushPeriod      time.Duration
	BenignSubstrings []string
	QueueDataDir     string
}

// Processor enqueues operations into a durable per-backend queue and
// drains them to a backend.Backend via a daemon-driven consumer.
type Processor struct {
	cfg    Config
	wal    wal.WAL
	daemon *daemon.Daemon
	bus    *signalbus.Bus
	dial   ExecuteFunc

	mu              sync.Mutex
	cond            *sync.Cond
	consumedVersion int64
	writtenVersion  int64
	consumerRunning bool
	enqueueCount    int64

	// BenignErrorSubstrings is mutable so callers/tests can extend the
	// known-benign substring table beyond Config.BenignSubstrings.
	BenignErrorSubstrings []string
}

// ExecuteFunc dispatches a batch of decoded payloads to the backend,
// returning how many were processed before any error.
type ExecuteFunc func(ctx context.Context, payloads []any) (processed int, err error)

// New builds a Processor backed by q, dispatching through execute.
func New(cfg Config, q wal.WAL, execute ExecuteFunc, bus *signalbus.Bus) *Processor {
	p := &Processor{
		cfg:                   cfg,
		wal:                   q,
		dial:                  execute,
		bus:                   bus,
		BenignErrorSubstrings: append([]string{}, cfg.BenignSubstrings...),
	}
	p.cond = sync.NewCond(&p.mu)

	var retry *daemon.RetryWrapper
	work := func(ctx context.Context) error {
		return retry.Do(ctx, p.consumeOnce)
	}
	flushPeriod := cfg.FlushPeriod
	if flushPeriod <= 0 {
		flushPeriod = time.Second
	}
	p.daemon = daemon.New(cfg.BackendName+"-consumer", flushPeriod, work)
	retry = daemon.NewRetryWrapper("["+cfg.BackendName+"]", p.daemon)
	return p
}

// Start launches the consumer daemon.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	p.consumerRunning = true
	p.mu.Unlock()
	p.daemon.Start(ctx)
}

// EnqueueOperation durably writes op and, if wait is true, blocks
// until the consumer has processed at least up through this
// operation's version or the consumer has stopped running (in which
// case it returns SynchronizationAlreadyStoppedError).
func (p *Processor) EnqueueOperation(ctx context.Context, op any, wait bool) error {
	entryID, err := p.wal.Write(ctx, op)
	if err != nil {
		return err
	}
	_ = entryID

	p.mu.Lock()
	p.writtenVersion++
	version := p.writtenVersion
	p.enqueueCount++
	count := p.enqueueCount
	p.mu.Unlock()

	if count%backpressureStep == 0 {
		logging.Warn().Str("backend", p.cfg.BackendName).Int64("pending_writes", count).
			Msg("large operation backlog building up")
	}

	p.daemon.WakeUp()

	if !wait {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for p.consumedVersion < version && p.consumerRunning {
		p.cond.Wait()
	}
	if p.consumedVersion < version && !p.consumerRunning {
		return &goclienterrors.SynchronizationAlreadyStoppedError{Backend: p.cfg.BackendName}
	}
	return nil
}

// consumeOnce is one drain iteration: fetch pending entries up to
// BatchSize, execute them against the backend, and confirm the
// processed prefix. It is wrapped by a daemon.RetryWrapper so that a
// ConnectionLostError (or anything implementing daemon.RetryableError)
// triggers backoff instead of spinning.
func (p *Processor) consumeOnce(ctx context.Context) error {
	entries, err := p.wal.GetPending(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	if p.cfg.BatchSize > 0 && len(entries) > p.cfg.BatchSize {
		entries = entries[:p.cfg.BatchSize]
	}

	p.emit(signalbus.Signal{Kind: signalbus.KindBatchStarted, Backend: p.cfg.BackendName, BatchSize: len(entries)})

	oldest := entries[0].CreatedAt
	p.emit(signalbus.Signal{
		Kind:    signalbus.KindBatchLag,
		Backend: p.cfg.BackendName,
		Lag:     time.Since(oldest),
	})

	payloads := make([]any, len(entries))
	for i, e := range entries {
		var v any
		if err := e.UnmarshalPayload(&v); err != nil {
			v = string(e.Payload)
		}
		payloads[i] = v
	}

	processed, execErr := p.dial(ctx, payloads)
	for i := 0; i < processed; i++ {
		if confirmErr := p.wal.Confirm(ctx, entries[i].ID); confirmErr != nil {
			logging.Warn().Err(confirmErr).Str("backend", p.cfg.BackendName).Str("entry", entries[i].ID).
				Msg("failed to confirm processed entry")
		}
	}

	p.mu.Lock()
	p.consumedVersion += int64(processed)
	p.mu.Unlock()
	p.cond.Broadcast()

	p.emit(signalbus.Signal{Kind: signalbus.KindBatchProcessed, Backend: p.cfg.BackendName, BatchSize: processed})

	if execErr != nil && p.isBenign(execErr) {
		logging.Debug().Err(execErr).Str("backend", p.cfg.BackendName).Msg("benign server policy error, swallowed")
		return nil
	}
	return execErr
}

func (p *Processor) isBenign(err error) bool {
	if goclienterrors.IsBenignServerPolicy(err) {
		return true
	}
	msg := err.Error()
	for _, s := range p.BenignErrorSubstrings {
		if s != "" && strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (p *Processor) emit(s signalbus.Signal) {
	if p.bus == nil {
		return
	}
	s.At = time.Now()
	p.bus.Emit(s)
}

// Stop flushes remaining entries, waits for the queue to drain (or
// timeout), then interrupts the consumer daemon and closes the queue.
// Progress is reported on signalCh if non-nil. If the queue fully
// drained, its on-disk directory is removed.
func (p *Processor) Stop(ctx context.Context, timeout time.Duration, signalCh chan<- StopSignal) error {
	send := func(s StopSignal) {
		if signalCh != nil {
			select {
			case signalCh <- s:
			default:
			}
		}
	}

	send(StopWaitingForOperations)
	p.daemon.DisableSleep(true)
	p.daemon.WakeUp()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		stats := p.wal.Stats()
		if stats.PendingCount == 0 {
			break
		}
		if time.Now().After(deadline) {
			send(StopSyncFailure)
			break
		}
		select {
		case <-ctx.Done():
			send(StopConnectionInterrupted)
			goto drainDone
		case <-ticker.C:
			send(StopStillWaiting)
		}
	}
drainDone:

	p.mu.Lock()
	p.consumerRunning = false
	p.mu.Unlock()
	p.cond.Broadcast()

	p.daemon.Interrupt()
	_ = p.daemon.Join(ctx)

	drained := p.wal.Stats().PendingCount == 0
	if err := p.wal.Close(); err != nil {
		send(StopReconnectFailure)
		return err
	}

	if drained && p.cfg.QueueDataDir != "" {
		if rmErr := os.RemoveAll(p.cfg.QueueDataDir); rmErr != nil {
			logging.Warn().Err(rmErr).Str("backend", p.cfg.BackendName).Msg("failed to remove drained queue directory")
		}
	}

	send(StopSuccess)
	return nil
}

// Daemon exposes the underlying consumer daemon, used by
// internal/multiprocessor to inspect LastBackoff() after Stop.
func (p *Processor) Daemon() *daemon.Daemon { return p.daemon }
