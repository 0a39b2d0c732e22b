// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

/*
Package supervisor provides process supervision for a goclient session
using suture v4.

This package implements a hierarchical supervisor tree that manages the
lifecycle of all long-running services a session starts. It provides
Erlang/OTP-style supervision with automatic restart, failure isolation,
and graceful shutdown.

# Overview

The supervisor tree organizes services into three layers for failure
isolation:

	RootSupervisor ("goclient")
	├── QueuesSupervisor ("queues-layer")
	│   └── one asyncprocessor.Processor consumer loop per backend
	├── DispatchSupervisor ("dispatch-layer")
	│   ├── dispatcher health-check loop
	│   └── multiprocessor per-backend fan-out supervision
	└── SignalsSupervisor ("signals-layer")
	    └── lag / no-progress monitor

This hierarchy ensures that:
  - A crashed queue consumer for one backend doesn't stop another
    backend's consumer, or the dispatcher's health checks
  - A panic in the signals monitor doesn't stop operations from being
    durably queued and replicated
  - Each layer can restart independently

# Key Features

Automatic Restart:
  - Crashed services are automatically restarted
  - Exponential backoff prevents restart storms
  - Configurable failure thresholds and decay rates

Failure Isolation:
  - Services are organized into logical groups
  - Child supervisor failures don't propagate upward
  - Each layer has independent failure counting

Graceful Shutdown:
  - Context cancellation triggers orderly shutdown
  - Configurable shutdown timeout per service
  - UnstoppedServiceReport for debugging hangs

Structured Logging:
  - Integration with slog for structured events
  - Logs service starts, stops, failures, and restarts
  - Event hooks via sutureslog adapter

# Usage Example

	import (
	    "log/slog"
	    "github.com/trackforge/goclient/internal/supervisor"
	)

	logger := slog.Default()
	config := supervisor.DefaultTreeConfig()

	tree, err := supervisor.NewSupervisorTree(logger, config)
	if err != nil {
	    log.Fatal(err)
	}

	tree.AddQueueService(queueConsumerService)
	tree.AddDispatchService(dispatcherHealthService)
	tree.AddSignalsService(monitorService)

	ctx := context.Background()
	if err := tree.Serve(ctx); err != nil {
	    log.Printf("supervisor stopped: %v", err)
	}

Background operation:

	errChan := tree.ServeBackground(ctx)
	// Do other setup...
	if err := <-errChan; err != nil {
	    log.Printf("supervisor error: %v", err)
	}

# Configuration

The TreeConfig controls restart behavior:

	config := supervisor.TreeConfig{
	    FailureThreshold: 5.0,
	    FailureDecay:     30.0,
	    FailureBackoff:   15 * time.Second,
	    ShutdownTimeout:  10 * time.Second,
	}

Default values match suture's production-ready defaults:
  - FailureThreshold: 5 failures
  - FailureDecay: 30 seconds
  - FailureBackoff: 15 seconds
  - ShutdownTimeout: 10 seconds

# Failure Handling

The supervisor uses a failure counter with exponential decay:

1. Each service failure increments the counter
2. Counter decays exponentially over time (FailureDecay seconds)
3. When counter exceeds FailureThreshold, supervisor enters backoff
4. During backoff, restarts are delayed by FailureBackoff duration
5. If failures continue, the child supervisor may be restarted by parent

# Service Interface

All services must implement suture.Service:

	type Service interface {
	    Serve(ctx context.Context) error
	}

Return behavior:
  - Return nil: Service stopped cleanly, will not be restarted
  - Return error: Service crashed, will be restarted
  - Context canceled: Shutdown requested, return promptly

# Debugging Shutdown Issues

If services don't stop within the timeout:

	report, err := tree.UnstoppedServiceReport()
	for _, svc := range report {
	    log.Printf("service didn't stop: %v", svc)
	}

Common causes:
  - Goroutines not respecting context cancellation
  - Blocked network I/O without deadlines
  - Mutex deadlocks during shutdown

# Thread Safety

The SupervisorTree is safe for concurrent use:
  - Services can be added from any goroutine
  - Remove operations are synchronized
  - Multiple services can crash simultaneously

# See Also

  - github.com/thejerf/suture/v4: underlying supervision library
*/
package supervisor
