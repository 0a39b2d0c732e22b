// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

package daemon

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestDaemonStartStop(t *testing.T) {
	var calls int32
	d := New("test", 10*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	d.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	d.Interrupt()

	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("daemon did not stop")
	}

	if atomic.LoadInt32(&calls) == 0 {
		t.Fatal("expected at least one work call")
	}
	if d.State() != StateInterrupted {
		t.Fatalf("expected StateInterrupted, got %v", d.State())
	}
	if !d.State().IsTerminal() {
		t.Fatal("expected terminal state")
	}
}

func TestDaemonPauseResume(t *testing.T) {
	var calls int32
	d := New("test", 5*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	d.Start(context.Background())
	time.Sleep(20 * time.Millisecond)

	d.Pause()
	if d.State() != StatePaused {
		t.Fatalf("expected StatePaused, got %v", d.State())
	}

	afterPause := atomic.LoadInt32(&calls)
	time.Sleep(30 * time.Millisecond)
	if atomic.LoadInt32(&calls) != afterPause {
		t.Fatal("work ran while paused")
	}

	d.Resume()
	time.Sleep(30 * time.Millisecond)
	if atomic.LoadInt32(&calls) <= afterPause {
		t.Fatal("expected work to resume")
	}

	d.Interrupt()
	<-d.Done()
}

func TestDaemonWakeUpShortensSleep(t *testing.T) {
	var calls int32
	d := New("test", time.Hour, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	d.Start(context.Background())
	time.Sleep(10 * time.Millisecond)

	d.WakeUp()
	time.Sleep(20 * time.Millisecond)

	if atomic.LoadInt32(&calls) < 2 {
		t.Fatal("expected WakeUp to trigger another work call promptly")
	}
	d.Interrupt()
	<-d.Done()
}

type retryableErr struct{ msg string }

func (e *retryableErr) Error() string   { return e.msg }
func (e *retryableErr) Retryable() bool { return true }

type fatalErr struct{ msg string }

func (e *fatalErr) Error() string { return e.msg }

func TestRetryWrapperRetriesThenSucceeds(t *testing.T) {
	wrapper := NewRetryWrapper("test", nil)
	wrapper.backoff = time.Millisecond // keep the test fast

	attempts := 0
	err := wrapper.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return &retryableErr{"connection lost"}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if wrapper.backoff != 0 {
		t.Fatal("expected backoff reset to 0 on success")
	}
}

func TestRetryWrapperPropagatesFatalError(t *testing.T) {
	wrapper := NewRetryWrapper("test", nil)
	wantErr := &fatalErr{"bad request"}

	err := wrapper.Do(context.Background(), func(ctx context.Context) error {
		return wantErr
	})

	if !errors.Is(err, error(wantErr)) {
		t.Fatalf("expected fatal error to propagate unchanged, got %v", err)
	}
}

func TestRetryWrapperRespectsContextCancellation(t *testing.T) {
	wrapper := NewRetryWrapper("test", nil)
	wrapper.backoff = time.Hour // force a long sleep so cancellation wins

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := wrapper.Do(ctx, func(ctx context.Context) error {
		return &retryableErr{"still down"}
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
