// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

package backend

import (
	"context"

	"github.com/google/uuid"
)

// OfflineBackend accepts every write without ever reaching a network,
// grounding the session's mode=offline configuration option: useful
// for local development or CI where no real backend is reachable.
// Reads return a zero value with no error, since there is nothing
// persisted to read back.
type OfflineBackend struct {
	closeOnce
	address string
}

// NewOfflineBackend builds an OfflineBackend; address is cosmetic,
// used only in log lines.
func NewOfflineBackend(address string) *OfflineBackend {
	if address == "" {
		address = "offline"
	}
	return &OfflineBackend{address: address}
}

func (o *OfflineBackend) ExecuteOperations(ctx context.Context, operations []any) (int, error) {
	return len(operations), nil
}

func (o *OfflineBackend) CreateRun(ctx context.Context, params any) (string, error) {
	return uuid.NewString(), nil
}

func (o *OfflineBackend) CreateModel(ctx context.Context, params any) (string, error) {
	return uuid.NewString(), nil
}

func (o *OfflineBackend) CreateModelVersion(ctx context.Context, params any) (string, error) {
	return uuid.NewString(), nil
}

func (o *OfflineBackend) GetAttributes(ctx context.Context, query any) (any, error) { return nil, nil }
func (o *OfflineBackend) DownloadFile(ctx context.Context, query any) (any, error)  { return nil, nil }
func (o *OfflineBackend) Search(ctx context.Context, query any) (any, error)        { return nil, nil }
func (o *OfflineBackend) List(ctx context.Context, query any) (any, error)          { return nil, nil }

func (o *OfflineBackend) HealthPing(ctx context.Context) error { return nil }

func (o *OfflineBackend) Close() error {
	return o.do(func() error { return nil })
}

func (o *OfflineBackend) DisplayAddress() string { return o.address }
