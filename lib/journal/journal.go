// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal is the append-only audit log for ticket lifecycle
// events.
//
// Each ticket has one physical log file holding one JSON record per
// line. Records are only ever appended; the file is never rewritten.
// The journal is independent of the ticket store.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Actor is the actor field written on every record this process
// appends.
const Actor = "dispatch"

// Lifecycle events recorded in the journal.
const (
	EventProvision = "provision"
	EventStart     = "start"
	EventAbort     = "abort"
	EventFinal     = "final"
)

// Record is one immutable journal entry. Turn is nil for events that
// are not tied to a run attempt (provision).
type Record struct {
	TS    string `json:"ts"`
	Event string `json:"event"`
	Turn  *int   `json:"turn"`
	Actor string `json:"actor"`
	Body  string `json:"body"`
}

// Append writes one record to the journal at path, creating the file
// (and its directory) if needed. The timestamp and actor are filled
// here; callers supply event, turn, and body. I/O errors propagate:
// an audit write never fails silently.
func Append(path, event string, turn *int, body string, now time.Time) error {
	record := Record{
		TS:    now.UTC().Format("2006-01-02T15:04:05Z"),
		Event: event,
		Turn:  turn,
		Actor: Actor,
		Body:  body,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding journal record: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating journal directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening journal %s: %w", path, err)
	}
	defer file.Close()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("appending to journal %s: %w", path, err)
	}
	return nil
}

// Turn returns a pointer to n, for building records bound to a run
// attempt.
func Turn(n int) *int { return &n }

// Decode parses one journal line.
func Decode(line []byte) (*Record, error) {
	var record Record
	if err := json.Unmarshal(line, &record); err != nil {
		return nil, fmt.Errorf("decoding journal record: %w", err)
	}
	return &record, nil
}
