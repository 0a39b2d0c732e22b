// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

// Package daemon implements the long-lived worker abstraction shared by
// every background consumer in this module: the async processor's
// per-backend consumer, the dispatcher's health-check loop, and the
// signals monitor. It mirrors the state machine and retry wrapper in
// the original Python implementation's internal/threading/daemon.py
// almost one for one, translated to a goroutine plus sync.Cond.
package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/trackforge/goclient/internal/logging"
)

// State is one of the Daemon's five (plus init) lifecycle states.
type State int

const (
	StateInit State = iota
	StateWorking
	StatePausing
	StatePaused
	StateInterrupted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateWorking:
		return "working"
	case StatePausing:
		return "pausing"
	case StatePaused:
		return "paused"
	case StateInterrupted:
		return "interrupted"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IsRunning reports whether the daemon is still doing useful work or
// capable of resuming it (mirrors daemon.py's is_running()).
func (s State) IsRunning() bool {
	return s == StateWorking || s == StatePausing || s == StatePaused
}

// IsTerminal reports whether the daemon has permanently stopped.
func (s State) IsTerminal() bool {
	return s == StateInterrupted || s == StateStopped
}

// WorkFunc is a single unit of work performed by the daemon's loop.
// Returning an error does not stop the loop by itself; composing it
// with a RetryWrapper determines what happens on failure. A non-nil
// error from an undecorated WorkFunc simply gets logged and the loop
// continues to the next sleep/wake cycle.
type WorkFunc func(ctx context.Context) error

// Daemon is a worker goroutine with pause/resume/interrupt control,
// guarded by a single condition variable. Pause waits in a loop that
// re-checks the state; the sleep between work calls is a single timed
// cond.Wait without a predicate, so a WakeUp that arrives while work is
// running is not remembered and the next sleep still lasts up to
// sleepTime.
type Daemon struct {
	name      string
	mu        sync.Mutex
	cond      *sync.Cond
	state     State
	sleepTime time.Duration
	work      WorkFunc

	disableSleepFlag bool
	lastBackoff      time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Daemon that calls work once per loop iteration and
// sleeps up to sleepTime (or until woken/interrupted) between calls.
func New(name string, sleepTime time.Duration, work WorkFunc) *Daemon {
	d := &Daemon{
		name:      name,
		state:     StateInit,
		sleepTime: sleepTime,
		work:      work,
		done:      make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Start transitions INIT -> WORKING and launches the worker loop.
// It is safe to call only once; subsequent calls are no-ops.
func (d *Daemon) Start(ctx context.Context) {
	d.mu.Lock()
	if d.state != StateInit {
		d.mu.Unlock()
		return
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.state = StateWorking
	d.mu.Unlock()
	d.cond.Broadcast()

	go d.run()
}

// Pause requests the daemon stop calling work and blocks the caller
// until the worker observes the request and reaches PAUSED.
func (d *Daemon) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state.IsTerminal() {
		return
	}
	if d.state == StateWorking {
		d.state = StatePausing
	}
	d.cond.Broadcast()

	for d.state == StatePausing {
		d.cond.Wait()
	}
}

// Resume transitions PAUSED -> WORKING.
func (d *Daemon) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StatePaused || d.state == StatePausing {
		d.state = StateWorking
		d.cond.Broadcast()
	}
}

// WakeUp signals the condition without changing state, shortening any
// in-progress sleep.
func (d *Daemon) WakeUp() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cond.Broadcast()
}

// Interrupt moves the daemon to INTERRUPTED from any state and wakes
// every waiter so they observe the terminal state instead of blocking
// forever.
func (d *Daemon) Interrupt() {
	d.mu.Lock()
	d.state = StateInterrupted
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Unlock()
	d.cond.Broadcast()
}

// DisableSleep causes the worker loop to skip its sleep phase and spin
// straight back into work(); used while draining a queue during stop.
func (d *Daemon) DisableSleep(disabled bool) {
	d.mu.Lock()
	d.disableSleepFlag = disabled
	d.mu.Unlock()
	d.cond.Broadcast()
}

// State returns the current state.
func (d *Daemon) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// LastBackoff returns the most recent retry backoff observed by a
// RetryWrapper-decorated work function, or 0 if none occurred / none is
// wired. Used by the multi-backend processor's post-stop health report.
func (d *Daemon) LastBackoff() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastBackoff
}

func (d *Daemon) setLastBackoff(b time.Duration) {
	d.mu.Lock()
	d.lastBackoff = b
	d.mu.Unlock()
}

// Done returns a channel closed once the worker loop has exited and
// the state is STOPPED or INTERRUPTED.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Join blocks until the daemon's loop exits or ctx is done.
func (d *Daemon) Join(ctx context.Context) error {
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Daemon) run() {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Str("daemon", d.name).Msg("daemon worker panicked")
		}
		d.mu.Lock()
		if !d.state.IsTerminal() {
			d.state = StateStopped
		}
		d.mu.Unlock()
		d.cond.Broadcast()
		close(d.done)
	}()

	for {
		d.mu.Lock()
		if d.state.IsTerminal() {
			d.mu.Unlock()
			return
		}
		if d.state == StatePausing {
			d.state = StatePaused
			d.cond.Broadcast()
			for d.state == StatePaused {
				d.cond.Wait()
			}
			if d.state.IsTerminal() {
				d.mu.Unlock()
				return
			}
		}
		working := d.state == StateWorking
		ctx := d.ctx
		d.mu.Unlock()

		if working {
			if err := d.work(ctx); err != nil {
				logging.Warn().Err(err).Str("daemon", d.name).Msg("daemon work step returned error")
			}
		}

		d.mu.Lock()
		if d.state.IsTerminal() {
			d.mu.Unlock()
			return
		}
		if d.disableSleepFlag {
			d.mu.Unlock()
			continue
		}
		d.waitTimeoutLocked(d.sleepTime)
		d.mu.Unlock()
	}
}

// waitTimeoutLocked waits on cond for up to timeout, must be called
// with d.mu held, and returns with d.mu held. It returns early when
// woken by Broadcast (WakeUp, Resume, Interrupt, DisableSleep) or once
// timeout elapses, whichever comes first.
func (d *Daemon) waitTimeoutLocked(timeout time.Duration) {
	timer := time.AfterFunc(timeout, func() {
		d.mu.Lock()
		d.cond.Broadcast()
		d.mu.Unlock()
	})
	defer timer.Stop()

	d.cond.Wait()
}
