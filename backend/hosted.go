// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
)

// HostedBackend is a minimal HTTP-calling Backend satisfier for a real
// server. Swagger/HTTP client codegen is out of scope, so this issues
// plain JSON POST/GET requests against an assumed REST surface rather
// than a generated typed client; a production deployment is expected
// to supply its own richer Backend implementation if the wire format
// differs.
type HostedBackend struct {
	closeOnce

	cfg    Config
	client *http.Client
	base   string
}

// NewHostedBackend builds a HostedBackend from cfg, using client for
// all requests (nil selects http.DefaultClient).
func NewHostedBackend(cfg Config, client *http.Client) *HostedBackend {
	if client == nil {
		client = http.DefaultClient
	}
	scheme := "http"
	if cfg.UseTLS {
		scheme = "https"
	}
	return &HostedBackend{
		cfg:    cfg,
		client: client,
		base:   fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port),
	}
}

func (h *HostedBackend) post(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.base+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.cfg.Token)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("backend %s returned %d: %s", h.base, resp.StatusCode, data)
	}
	return data, nil
}

func (h *HostedBackend) ExecuteOperations(ctx context.Context, operations []any) (int, error) {
	_, err := h.post(ctx, "/api/operations", operations)
	if err != nil {
		return 0, err
	}
	return len(operations), nil
}

func (h *HostedBackend) CreateRun(ctx context.Context, params any) (string, error) {
	data, err := h.post(ctx, "/api/runs", params)
	if err != nil {
		return "", err
	}
	return decodeID(data)
}

func (h *HostedBackend) CreateModel(ctx context.Context, params any) (string, error) {
	data, err := h.post(ctx, "/api/models", params)
	if err != nil {
		return "", err
	}
	return decodeID(data)
}

func (h *HostedBackend) CreateModelVersion(ctx context.Context, params any) (string, error) {
	data, err := h.post(ctx, "/api/model_versions", params)
	if err != nil {
		return "", err
	}
	return decodeID(data)
}

func (h *HostedBackend) GetAttributes(ctx context.Context, query any) (any, error) {
	return h.post(ctx, "/api/attributes", query)
}

func (h *HostedBackend) DownloadFile(ctx context.Context, query any) (any, error) {
	return h.post(ctx, "/api/files/download", query)
}

func (h *HostedBackend) Search(ctx context.Context, query any) (any, error) {
	return h.post(ctx, "/api/search", query)
}

func (h *HostedBackend) List(ctx context.Context, query any) (any, error) {
	return h.post(ctx, "/api/list", query)
}

func (h *HostedBackend) HealthPing(ctx context.Context) error {
	_, err := h.post(ctx, "/api/ping", nil)
	return err
}

func (h *HostedBackend) Close() error {
	return h.do(func() error {
		h.client.CloseIdleConnections()
		return nil
	})
}

func (h *HostedBackend) DisplayAddress() string { return h.base }

func decodeID(data []byte) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode backend response: %w", err)
	}
	return out.ID, nil
}
