// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

// Package goclient is the public entry point: Session wires a
// validated internal/config.Config into a concrete backend.Backend per
// configured endpoint, a durable per-backend queue, the async
// processors, the multi-backend dispatcher and processor, the signals
// monitor, and a suture-based supervision tree, then exposes the
// capability set as plain Go methods.
package goclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/thejerf/suture/v4"

	"github.com/trackforge/goclient/backend"
	goclienterrors "github.com/trackforge/goclient/errors"
	"github.com/trackforge/goclient/internal/asyncprocessor"
	"github.com/trackforge/goclient/internal/config"
	"github.com/trackforge/goclient/internal/dispatcher"
	"github.com/trackforge/goclient/internal/logging"
	"github.com/trackforge/goclient/internal/monitor"
	"github.com/trackforge/goclient/internal/multiprocessor"
	"github.com/trackforge/goclient/internal/signalbus"
	"github.com/trackforge/goclient/internal/supervisor"
	"github.com/trackforge/goclient/internal/wal"
	"github.com/trackforge/goclient/operation"
)

// Callbacks lets a caller observe the signals monitor's lag and
// no-progress conditions, surfaced from internal/monitor.Callbacks.
type Callbacks = monitor.Callbacks

// Session is one multi-backend replication session: N configured
// backends, fanned out to by the dispatcher and multiprocessor, each
// backed by its own durable queue and async consumer.
type Session struct {
	cfg *config.Config

	bus        *signalbus.Bus
	dispatcher *dispatcher.Dispatcher
	multi      *multiprocessor.Processor
	monitor    *monitor.Monitor
	tree       *supervisor.SupervisorTree

	wals []wal.WAL

	ctx    context.Context
	cancel context.CancelFunc
	treeCh <-chan error
}

// NewSession validates cfg and builds every component needed to serve
// the session's capability set. The returned Session is not yet
// running; call Start to launch the queue consumers, dispatcher health
// checks, and signals monitor.
func NewSession(cfg *config.Config, cb Callbacks) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logging.SetLevelString(cfg.LogLevel)

	registry := prometheus.NewRegistry()
	bus := signalbus.New("session", 256)

	backends := make([]backend.Backend, 0, len(cfg.Backends))
	wals := make([]wal.WAL, 0, len(cfg.Backends))

	type backendUnit struct {
		originalIndex int
		uploadDir     string
		proc          *asyncprocessor.Processor
	}
	units := make([]backendUnit, 0, len(cfg.Backends))

	for i, ep := range cfg.Backends {
		bcfg := backend.Config{
			Host:    ep.Host,
			Port:    ep.Port,
			Token:   ep.Token,
			Project: ep.Project,
			Proxies: ep.Proxies,
			UseTLS:  ep.UseTLS,
		}
		if err := bcfg.Validate(); err != nil {
			for _, w := range wals {
				_ = w.Close()
			}
			return nil, &goclienterrors.ConfigurationError{
				Field:   fmt.Sprintf("Backends[%d]", i),
				Message: err.Error(),
			}
		}

		address := fmt.Sprintf("%s:%d", ep.Host, ep.Port)
		b := newBackendInstance(cfg.Mode, bcfg, address)
		backends = append(backends, b)

		queueDir := backendQueueDir(cfg, ep)
		walCfg := wal.DefaultConfig()
		walCfg.Path = queueDir
		w, err := wal.Open(&walCfg)
		if err != nil {
			for _, closed := range wals {
				_ = closed.Close()
			}
			return nil, fmt.Errorf("open queue for backend %d (%s): %w", i, address, err)
		}
		wals = append(wals, w)

		backendRef := b
		execute := func(ctx context.Context, payloads []any) (int, error) {
			ops := make([]any, len(payloads))
			for j, v := range payloads {
				op, err := decodeQueuedOperation(v)
				if err != nil {
					return j, err
				}
				ops[j] = op
			}
			return backendRef.ExecuteOperations(ctx, ops)
		}

		proc := asyncprocessor.New(asyncprocessor.Config{
			BackendName:  address,
			BatchSize:    cfg.BatchSize,
			FlushPeriod:  cfg.FlushPeriod,
			QueueDataDir: queueDir,
		}, w, execute, bus)

		units = append(units, backendUnit{
			originalIndex: i,
			uploadDir:     filepath.Join(queueDir, "upload"),
			proc:          proc,
		})
	}

	metrics := dispatcher.NewMetrics(registry, "goclient")
	d := dispatcher.New(backends, metrics)

	procArgs := make([]struct {
		OriginalIndex int
		UploadDir     string
		Processor     *asyncprocessor.Processor
	}, len(units))
	for i, u := range units {
		procArgs[i] = struct {
			OriginalIndex int
			UploadDir     string
			Processor     *asyncprocessor.Processor
		}{OriginalIndex: u.originalIndex, UploadDir: u.uploadDir, Processor: u.proc}
	}
	multi := multiprocessor.New(d, 10, procArgs...)

	mon := monitor.New(monitor.Config{
		AsyncLagThreshold:        cfg.AsyncLagThreshold,
		AsyncNoProgressThreshold: cfg.AsyncNoProgressThreshold,
		CallbacksInterval:        cfg.CallbacksInterval,
	}, bus, cb)

	treeLogger := logging.NewSlogLoggerWithLevel(cfg.LogLevel)
	tree, err := supervisor.NewSupervisorTree(treeLogger, supervisor.DefaultTreeConfig())
	if err != nil {
		for _, w := range wals {
			_ = w.Close()
		}
		return nil, fmt.Errorf("build supervisor tree: %w", err)
	}

	for _, u := range units {
		tree.AddQueueService(processorService{proc: u.proc})
	}
	tree.AddDispatchService(dispatchHealthService{d: d})
	tree.AddSignalsService(monitorService{m: mon})

	return &Session{
		cfg:        cfg,
		bus:        bus,
		dispatcher: d,
		multi:      multi,
		monitor:    mon,
		tree:       tree,
		wals:       wals,
	}, nil
}

// Start launches the supervision tree in the background: every
// backend's queue consumer, the dispatcher's health-check ticker, and
// the signals monitor.
func (s *Session) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.treeCh = s.tree.ServeBackground(s.ctx)
}

// ExecuteOperations durably enqueues ops for fan-out to every
// configured backend, returning once every backend has accepted the
// write (sync mode) or immediately (async mode). Read-only mode denies
// writes outright.
func (s *Session) ExecuteOperations(ctx context.Context, ops ...operation.Operation) error {
	if s.cfg.Mode == config.ModeReadOnly {
		return &goclienterrors.WriteDeniedError{Backend: "session", Reason: "session is in read-only mode"}
	}
	wait := s.cfg.Mode == config.ModeSync
	for _, op := range ops {
		if err := s.multi.EnqueueOperation(ctx, op, wait); err != nil {
			return err
		}
	}
	return nil
}

// CreateRun creates a run on the primary backend synchronously,
// fanning out to secondaries in parallel. Secondary failures are
// reported but do not fail the call.
func (s *Session) CreateRun(ctx context.Context, params any) (runID string, secondaryFailures []goclienterrors.BackendFailure, err error) {
	if s.cfg.Mode == config.ModeReadOnly {
		return "", nil, &goclienterrors.WriteDeniedError{Backend: "session", Reason: "session is in read-only mode"}
	}
	return s.dispatcher.CreateRun(ctx, params)
}

// CreateModel fans out in parallel, returning the result from the
// first success with the lowest original backend index.
func (s *Session) CreateModel(ctx context.Context, params any) (string, error) {
	if s.cfg.Mode == config.ModeReadOnly {
		return "", &goclienterrors.WriteDeniedError{Backend: "session", Reason: "session is in read-only mode"}
	}
	return s.dispatcher.CreateModel(ctx, params)
}

// CreateModelVersion fans out in parallel, returning the result from
// the first success with the lowest original backend index.
func (s *Session) CreateModelVersion(ctx context.Context, params any) (string, error) {
	if s.cfg.Mode == config.ModeReadOnly {
		return "", &goclienterrors.WriteDeniedError{Backend: "session", Reason: "session is in read-only mode"}
	}
	return s.dispatcher.CreateModelVersion(ctx, params)
}

// GetAttributes reads from the first routable backend that succeeds.
func (s *Session) GetAttributes(ctx context.Context, query any) (any, error) {
	return s.dispatcher.Read(ctx, func(ctx context.Context, b backend.Backend) (any, error) {
		return b.GetAttributes(ctx, query)
	})
}

// DownloadFile reads from the first routable backend that succeeds.
func (s *Session) DownloadFile(ctx context.Context, query any) (any, error) {
	return s.dispatcher.Read(ctx, func(ctx context.Context, b backend.Backend) (any, error) {
		return b.DownloadFile(ctx, query)
	})
}

// Search reads from the first routable backend that succeeds.
func (s *Session) Search(ctx context.Context, query any) (any, error) {
	return s.dispatcher.Read(ctx, func(ctx context.Context, b backend.Backend) (any, error) {
		return b.Search(ctx, query)
	})
}

// List reads from the first routable backend that succeeds.
func (s *Session) List(ctx context.Context, query any) (any, error) {
	return s.dispatcher.Read(ctx, func(ctx context.Context, b backend.Backend) (any, error) {
		return b.List(ctx, query)
	})
}

// Close stops every backend's queue consumer (draining within
// cfg.StopTimeout), stops the signals monitor, closes the dispatcher
// and every backend, and tears down the supervision tree.
func (s *Session) Close(ctx context.Context) error {
	stopCtx, stopCancel := context.WithTimeout(ctx, s.cfg.StopTimeout)
	defer stopCancel()

	multiErr := s.multi.Stop(stopCtx, s.cfg.StopTimeout)

	s.monitor.Stop(ctx)

	if s.cancel != nil {
		s.cancel()
	}
	if s.treeCh != nil {
		select {
		case <-s.treeCh:
		case <-ctx.Done():
		}
	}

	dispatchErr := s.dispatcher.Close()
	s.bus.Close()

	if multiErr != nil {
		return multiErr
	}
	return dispatchErr
}

func newBackendInstance(mode config.Mode, cfg backend.Config, address string) backend.Backend {
	switch mode {
	case config.ModeOffline:
		return backend.NewOfflineBackend(address)
	case config.ModeDebug:
		return backend.NewMockBackend(address)
	default:
		return backend.NewHostedBackend(cfg, httpClientForBackend(cfg))
	}
}

func httpClientForBackend(cfg backend.Config) *http.Client {
	transport := &http.Transport{}
	if len(cfg.Proxies) > 0 {
		proxies := cfg.Proxies
		transport.Proxy = func(req *http.Request) (*url.URL, error) {
			if p, ok := proxies[req.URL.Scheme]; ok && p != "" {
				return url.Parse(p)
			}
			return http.ProxyFromEnvironment(req)
		}
	}
	return &http.Client{Transport: transport, Timeout: 30 * time.Second}
}

func backendQueueDir(cfg *config.Config, ep config.BackendEndpoint) string {
	name := backend.QueueDirName(ep.Host, ep.Port)
	root := cfg.QueueRootPath
	if cfg.QueueBackend == config.QueueBackendMemory {
		root = filepath.Join(os.TempDir(), "goclient-queues")
	}
	return filepath.Join(root, name)
}

// decodeQueuedOperation turns a generically-decoded WAL payload (an
// `any` produced by wal.Entry.UnmarshalPayload, i.e. a
// map[string]interface{} since the WAL round-trips through a bare
// interface{}) back into the operation.Operation it was enqueued as.
func decodeQueuedOperation(v any) (operation.Operation, error) {
	if op, ok := v.(operation.Operation); ok {
		return op, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return operation.Operation{}, err
	}
	var op operation.Operation
	if err := json.Unmarshal(raw, &op); err != nil {
		return operation.Operation{}, err
	}
	return op, nil
}

// processorService adapts an asyncprocessor.Processor's self-managed
// consumer daemon to suture.Service.
type processorService struct {
	proc *asyncprocessor.Processor
}

func (p processorService) Serve(ctx context.Context) error {
	p.proc.Start(ctx)
	<-ctx.Done()
	return ctx.Err()
}

func (p processorService) String() string { return "queue-consumer" }

// dispatchHealthService adapts the dispatcher's self-managed health
// check ticker to suture.Service.
type dispatchHealthService struct {
	d *dispatcher.Dispatcher
}

func (s dispatchHealthService) Serve(ctx context.Context) error {
	s.d.StartHealthChecks(ctx)
	<-ctx.Done()
	return ctx.Err()
}

func (s dispatchHealthService) String() string { return "dispatcher-health-check" }

// monitorService adapts the signals monitor's self-managed daemon to
// suture.Service.
type monitorService struct {
	m *monitor.Monitor
}

func (s monitorService) Serve(ctx context.Context) error {
	s.m.Start(ctx)
	<-ctx.Done()
	return ctx.Err()
}

func (s monitorService) String() string { return "signals-monitor" }

var (
	_ suture.Service = processorService{}
	_ suture.Service = dispatchHealthService{}
	_ suture.Service = monitorService{}
)
