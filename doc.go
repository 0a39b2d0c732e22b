// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

/*
Package goclient is a client library for an experiment-tracking
backend whose distinguishing capability is multi-backend replication:
a single Session fans every write out to N independently configured
backend servers in parallel and satisfies every read from any one
currently-healthy backend.

# Building a Session

	cfg, err := config.LoadWithKoanf()
	if err != nil {
	    log.Fatal(err)
	}
	cfg.Backends = append(cfg.Backends,
	    config.BackendEndpoint{Host: "primary.internal", Port: 443, Token: "t1", UseTLS: true},
	    config.BackendEndpoint{Host: "standby.internal", Port: 443, Token: "t2", UseTLS: true},
	)

	session, err := goclient.NewSession(cfg, goclient.Callbacks{
	    OnLag: func(backend string, lag time.Duration) { ... },
	    OnNoProgress: func(backend string, since time.Duration) { ... },
	})
	if err != nil {
	    log.Fatal(err)
	}
	session.Start(ctx)
	defer session.Close(ctx)

# Modes

Mode controls write behavior: async (default) enqueues without
blocking; sync blocks until every backend's queue has drained the
write; read-only rejects every write with a WriteDeniedError; debug
routes writes to an in-memory MockBackend instead of the network;
offline accepts every write locally via OfflineBackend without ever
dialing out.

# Failure Isolation

Each backend owns its own durable queue (internal/wal), async consumer
(internal/asyncprocessor), and health state (backend.Health). A
backend that stops responding is marked Degraded by the dispatcher and
excluded from read/write fan-out until a health check or successful
operation brings it back to Healthy; it never blocks the other
backends' consumers.
*/
package goclient
