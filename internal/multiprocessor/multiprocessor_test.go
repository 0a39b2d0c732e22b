// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

package multiprocessor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/trackforge/goclient/backend"
	"github.com/trackforge/goclient/internal/asyncprocessor"
	"github.com/trackforge/goclient/internal/dispatcher"
	"github.com/trackforge/goclient/internal/wal"
	"github.com/trackforge/goclient/operation"
)

func newTestWAL(t *testing.T) *wal.BadgerWAL {
	t.Helper()
	cfg := wal.DefaultConfig()
	cfg.Path = t.TempDir()
	cfg.CompactInterval = time.Minute
	cfg.EntryTTL = time.Hour

	w, err := wal.OpenForTesting(&cfg)
	if err != nil {
		t.Fatalf("OpenForTesting: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestEnqueueOperationReplicatesUploadFile(t *testing.T) {
	root := t.TempDir()
	uploadDirs := []string{filepath.Join(root, "primary"), filepath.Join(root, "secondary")}
	for _, d := range uploadDirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
	}

	content := []byte("checkpoint bytes")
	if err := os.WriteFile(filepath.Join(uploadDirs[0], "tmp1.bin"), content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var procs []struct {
		OriginalIndex int
		UploadDir     string
		Processor     *asyncprocessor.Processor
	}
	for i, dir := range uploadDirs {
		q := newTestWAL(t)
		p := asyncprocessor.New(asyncprocessor.Config{BackendName: "b", FlushPeriod: time.Hour},
			q, func(ctx context.Context, payloads []any) (int, error) { return len(payloads), nil }, nil)
		procs = append(procs, struct {
			OriginalIndex int
			UploadDir     string
			Processor     *asyncprocessor.Processor
		}{OriginalIndex: i, UploadDir: dir, Processor: p})
	}

	mp := New(nil, 4, procs...)

	op, err := operation.New(operation.KindUploadFile, operation.UploadFileOperation{
		AttributePath: "model/checkpoint",
		TempFileName:  "tmp1.bin",
	})
	if err != nil {
		t.Fatalf("operation.New: %v", err)
	}

	if err := mp.EnqueueOperation(context.Background(), op, false); err != nil {
		t.Fatalf("EnqueueOperation: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(uploadDirs[1], "tmp1.bin"))
	if err != nil {
		t.Fatalf("expected file replicated to secondary upload dir: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("replicated content = %q, want %q", got, content)
	}
}

func TestStopSucceedsWithoutBackoff(t *testing.T) {
	b1 := backend.NewMockBackend("b1")
	d := dispatcher.New([]backend.Backend{b1}, nil)

	q := newTestWAL(t)
	p := asyncprocessor.New(asyncprocessor.Config{BackendName: "b1", FlushPeriod: time.Hour},
		q, func(ctx context.Context, payloads []any) (int, error) { return len(payloads), nil }, nil)
	p.Start(context.Background())

	mp := New(d, 4, struct {
		OriginalIndex int
		UploadDir     string
		Processor     *asyncprocessor.Processor
	}{OriginalIndex: 0, UploadDir: t.TempDir(), Processor: p})

	if err := mp.Stop(context.Background(), time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
