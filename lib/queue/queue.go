// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package queue is the filesystem-backed job queue for run requests.
//
// A job is one file in the queue directory. The filename embeds a
// strictly monotonic nanosecond timestamp followed by the slug, so
// lexicographic order equals arrival order and no broker is needed.
// The producer (enqueue) and the single consumer (the dispatcher's
// drain loop) coordinate only through atomic file creation and
// unconditional removal after an attempt; running two drain loops
// against one queue directory is unsupported.
//
// The Queue interface exists so the drain algorithm can be exercised
// against [NewMemory] in tests without a real directory.
package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Job is the payload of one queued run request.
type Job struct {
	Slug    string `json:"slug"`
	Message string `json:"message"`
	TS      string `json:"ts"`
}

// Queue is the pending-run store. IDs are opaque to callers; the
// directory implementation uses filenames.
type Queue interface {
	// Enqueue creates a new pending job in one atomic operation and
	// returns its ID. The slug is not validated here; the consumer
	// validates and quarantines, so a bad producer cannot wedge the
	// queue.
	Enqueue(slug, message string) (string, error)

	// Pending returns the IDs of all pending jobs in arrival order.
	Pending() ([]string, error)

	// Read returns a pending job's raw payload.
	Read(id string) ([]byte, error)

	// Remove deletes a job. Removing an already-removed job is not an
	// error.
	Remove(id string) error

	// Quarantine sets a job aside for postmortem inspection instead
	// of deleting it. A quarantined job is no longer pending.
	Quarantine(id string) error
}

// Decode parses a job payload.
func Decode(payload []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return Job{}, fmt.Errorf("decoding job: %w", err)
	}
	return job, nil
}

// encode serializes a job for storage.
func encode(slug, message string, now time.Time) ([]byte, error) {
	job := Job{
		Slug:    slug,
		Message: message,
		TS:      now.UTC().Format("2006-01-02T15:04:05Z"),
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encoding job: %w", err)
	}
	return data, nil
}
