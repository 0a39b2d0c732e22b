// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

package backend

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// MockBackend is an in-memory Backend used by dispatcher and async
// processor tests, grounded on the teacher's supervisor.MockService
// pattern: atomic call counters plus injectable errors so tests can
// force specific failure sequences without a real network.
type MockBackend struct {
	closeOnce

	address string

	mu         sync.Mutex
	runs       []any
	models     []any
	versions   []any
	operations [][]any

	ExecuteErr    error
	CreateRunErr  error
	HealthPingErr error

	executeCalls atomic.Int64
	pingCalls    atomic.Int64
}

// NewMockBackend creates a mock identified by address in log lines.
func NewMockBackend(address string) *MockBackend {
	return &MockBackend{address: address}
}

func (m *MockBackend) ExecuteOperations(ctx context.Context, operations []any) (int, error) {
	m.executeCalls.Add(1)
	if m.ExecuteErr != nil {
		return 0, m.ExecuteErr
	}
	m.mu.Lock()
	m.operations = append(m.operations, operations)
	m.mu.Unlock()
	return len(operations), nil
}

func (m *MockBackend) CreateRun(ctx context.Context, params any) (string, error) {
	if m.CreateRunErr != nil {
		return "", m.CreateRunErr
	}
	id := uuid.NewString()
	m.mu.Lock()
	m.runs = append(m.runs, params)
	m.mu.Unlock()
	return id, nil
}

func (m *MockBackend) CreateModel(ctx context.Context, params any) (string, error) {
	id := uuid.NewString()
	m.mu.Lock()
	m.models = append(m.models, params)
	m.mu.Unlock()
	return id, nil
}

func (m *MockBackend) CreateModelVersion(ctx context.Context, params any) (string, error) {
	id := uuid.NewString()
	m.mu.Lock()
	m.versions = append(m.versions, params)
	m.mu.Unlock()
	return id, nil
}

func (m *MockBackend) GetAttributes(ctx context.Context, query any) (any, error) { return nil, nil }
func (m *MockBackend) DownloadFile(ctx context.Context, query any) (any, error)  { return nil, nil }
func (m *MockBackend) Search(ctx context.Context, query any) (any, error)        { return nil, nil }
func (m *MockBackend) List(ctx context.Context, query any) (any, error)          { return nil, nil }

func (m *MockBackend) HealthPing(ctx context.Context) error {
	m.pingCalls.Add(1)
	return m.HealthPingErr
}

func (m *MockBackend) Close() error {
	return m.do(func() error { return nil })
}

func (m *MockBackend) DisplayAddress() string { return m.address }

// ExecuteCallCount returns the number of times ExecuteOperations was
// invoked, for assertions in caller tests.
func (m *MockBackend) ExecuteCallCount() int64 { return m.executeCalls.Load() }

// PingCallCount returns the number of times HealthPing was invoked.
func (m *MockBackend) PingCallCount() int64 { return m.pingCalls.Load() }
