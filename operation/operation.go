// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

// Package operation defines the opaque envelope queued by
// internal/asyncprocessor and dispatched to a backend.Backend. The
// typed attribute-value model is out of scope; Payload is carried as
// a raw JSON document so the queue and dispatcher never need to
// understand its shape.
package operation

import (
	"github.com/goccy/go-json"
)

// Kind identifies the shape of an Operation's Payload. Most kinds are
// opaque to this package; CopyAttribute and UploadFile are named here
// because the processor gives them special handling (resolution
// against a specific backend, and temp-file replication).
type Kind string

const (
	KindCopyAttribute Kind = "copy_attribute"
	KindUploadFile    Kind = "upload_file"
)

// Operation is one unit of work queued for a backend.
type Operation struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// New marshals payload into an Operation of the given kind.
func New(kind Kind, payload any) (Operation, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Operation{}, err
	}
	return Operation{Kind: kind, Payload: raw}, nil
}

// Decode unmarshals o's payload into out.
func (o Operation) Decode(out any) error {
	return json.Unmarshal(o.Payload, out)
}

// CopyAttributeOperation must be resolved against a specific backend
// before it can be replicated to the others: it instructs the backend
// to copy the current value of an existing attribute under a new path,
// and is only valid as the first operation of a batch (the value it
// reads must reflect state already committed on that backend).
type CopyAttributeOperation struct {
	SourcePath      string `json:"source_path"`
	DestinationPath string `json:"destination_path"`
}

// UploadFileOperation carries either a source path already reachable
// by the backend's machine, or the name of a temp file staged by the
// processor's upload directory (see internal/multiprocessor, which
// copies — not hard-links — these files to each secondary backend's
// own upload directory before fan-out).
type UploadFileOperation struct {
	AttributePath string `json:"attribute_path"`
	SourcePath    string `json:"source_path,omitempty"`
	TempFileName  string `json:"temp_file_name,omitempty"`
}
