// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

// Package multiprocessor owns one internal/asyncprocessor.Processor
// per routable backend and fans operations out to all of them,
// replicating upload-file temp files to each secondary's own queue
// directory rather than hard-linking, matching spec's requirement
// that secondaries not share inode state with the primary.
package multiprocessor

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trackforge/goclient/internal/asyncprocessor"
	"github.com/trackforge/goclient/internal/dispatcher"
	"github.com/trackforge/goclient/internal/logging"
	"github.com/trackforge/goclient/operation"
)

// backendProcessor pairs one asyncprocessor.Processor with the
// original-index bookkeeping multiprocessor needs for
// dispatcher.MarkBackendDisconnected.
type backendProcessor struct {
	originalIndex int
	uploadDir     string
	proc          *asyncprocessor.Processor
}

// Processor fans operations out to N per-backend async processors.
type Processor struct {
	backends   []backendProcessor
	dispatcher *dispatcher.Dispatcher
	maxWorkers int
}

// New builds a Processor over procs, each paired with its backend's
// original index and upload-staging directory.
func New(d *dispatcher.Dispatcher, maxWorkers int, procs ...struct {
	OriginalIndex int
	UploadDir     string
	Processor     *asyncprocessor.Processor
}) *Processor {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	p := &Processor{dispatcher: d, maxWorkers: maxWorkers}
	for _, entry := range procs {
		p.backends = append(p.backends, backendProcessor{
			originalIndex: entry.OriginalIndex,
			uploadDir:     entry.UploadDir,
			proc:          entry.Processor,
		})
	}
	return p
}

// Start launches every backend's consumer daemon.
func (p *Processor) Start(ctx context.Context) {
	for _, bp := range p.backends {
		bp.proc.Start(ctx)
	}
}

// EnqueueOperation replicates an upload-file operation's staged temp
// file into every secondary's own upload directory (via io.Copy, not
// a hard link, so each backend's queue owns an independent copy that
// survives the primary's cleanup) and then enqueues op on every
// backend's processor.
func (p *Processor) EnqueueOperation(ctx context.Context, op operation.Operation, wait bool) error {
	if op.Kind == operation.KindUploadFile && len(p.backends) > 1 {
		var upload operation.UploadFileOperation
		if err := op.Decode(&upload); err == nil && upload.TempFileName != "" {
			if err := p.replicateUpload(upload.TempFileName); err != nil {
				logging.Warn().Err(err).Str("file", upload.TempFileName).
					Msg("failed to replicate upload temp file to all backend queue directories")
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxWorkers)
	for _, bp := range p.backends {
		bp := bp
		g.Go(func() error {
			return bp.proc.EnqueueOperation(gctx, op, wait)
		})
	}
	return g.Wait()
}

func (p *Processor) replicateUpload(tempFileName string) error {
	if len(p.backends) == 0 {
		return nil
	}
	primary := p.backends[0]
	src := filepath.Join(primary.uploadDir, tempFileName)

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	for _, bp := range p.backends[1:] {
		if err := copyInto(in, filepath.Join(bp.uploadDir, tempFileName)); err != nil {
			return err
		}
		if _, err := in.Seek(0, io.SeekStart); err != nil {
			return err
		}
	}
	return nil
}

func copyInto(src io.Reader, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, src)
	return err
}

// Stop stops every backend processor, bounded by a shared errgroup
// worker pool; if the parallel attempt fails (e.g. a shutdown race
// across processors sharing state), it falls back to a sequential
// loop so at least the well-behaved processors still drain cleanly.
// After stopping, any processor whose consumer daemon ended with a
// non-zero last backoff is reported to the dispatcher as disconnected.
func (p *Processor) Stop(ctx context.Context, timeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxWorkers)

	for _, bp := range p.backends {
		bp := bp
		g.Go(func() error {
			return bp.proc.Stop(gctx, timeout, nil)
		})
	}
	if err := g.Wait(); err != nil {
		logging.Warn().Err(err).Msg("parallel processor stop failed, falling back to sequential")
		for _, bp := range p.backends {
			if err := bp.proc.Stop(ctx, timeout, nil); err != nil {
				logging.Warn().Err(err).Int("backend_index", bp.originalIndex).Msg("sequential processor stop failed")
			}
		}
	}

	if p.dispatcher != nil {
		for _, bp := range p.backends {
			if backoff := bp.proc.Daemon().LastBackoff(); backoff > 0 {
				p.dispatcher.MarkBackendDisconnected(bp.originalIndex, nil)
			}
		}
	}
	return nil
}
