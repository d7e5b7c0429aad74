// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ticket is the durable store for ticket files.
//
// A ticket is one file: a front-matter block of ordered "key: value"
// lines delimited by "---" lines, followed by a free-form body the
// orchestrator never interprets. The store owns the on-disk file
// exclusively; callers go through Load and Save, never write the file
// directly. Save is atomic (temp file + rename) and preserves key
// insertion order so the on-disk form is stable across reload cycles;
// keys introduced after load are appended at the end.
//
// The store does not coordinate concurrent writers for a single slug.
// Run-time mutation of a ticket is serialized by the queue's
// single-consumer drain discipline; writes to different slugs are
// independent.
package ticket

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Status values a ticket moves through. Provisioning creates a ticket
// as open; a run makes it active, then done on normal completion or
// stopped on abort or timeout. Nothing leaves done or stopped
// automatically; a new run simply re-enters active.
const (
	StatusOpen    = "open"
	StatusActive  = "active"
	StatusDone    = "done"
	StatusStopped = "stopped"
)

// Metadata keys the orchestrator reads and writes. Tickets may carry
// arbitrary additional keys, which the store preserves untouched.
const (
	KeyStatus      = "status"
	KeyOwner       = "owner"
	KeyTurnCounter = "turn_counter"
)

// ErrNotFound is returned by Load when the ticket file is absent or
// does not have the expected front-matter shape.
var ErrNotFound = errors.New("ticket not found")

// Ticket is the in-memory form of one ticket file.
type Ticket struct {
	// Path is the file this ticket was loaded from and will be saved
	// to.
	Path string

	// Body is the free-form text after the front matter, opaque to
	// the orchestrator.
	Body string

	order []string
	meta  map[string]string
}

// Load reads and parses a ticket file. Returns an error wrapping
// ErrNotFound when the file is missing or its front matter is
// malformed (no opening "---" line).
func Load(path string) (*Ticket, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading ticket %s: %w", path, err)
	}

	text := string(data)
	lines := strings.SplitAfter(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return nil, fmt.Errorf("%w: front matter missing in %s", ErrNotFound, path)
	}

	index := 1
	var header []string
	for index < len(lines) {
		line := lines[index]
		if strings.TrimSpace(line) == "---" {
			index++
			break
		}
		header = append(header, line)
		index++
	}

	t := &Ticket{
		Path: path,
		Body: strings.Join(lines[index:], ""),
		meta: make(map[string]string),
	}
	for _, line := range header {
		stripped := strings.TrimSpace(line)
		if stripped == "" || strings.HasPrefix(stripped, "#") || !strings.Contains(line, ":") {
			continue
		}
		key, value, _ := strings.Cut(line, ":")
		key = strings.TrimSpace(key)
		if _, seen := t.meta[key]; !seen {
			t.order = append(t.order, key)
		}
		t.meta[key] = strings.TrimSpace(value)
	}
	return t, nil
}

// Save writes the ticket back to Path atomically: the content is
// written to a temp file in the same directory and renamed over the
// target. Keys are emitted in insertion order; keys set after load
// are appended at the end of the front matter.
func (t *Ticket) Save() error {
	var builder strings.Builder
	builder.WriteString("---\n")
	for _, key := range t.order {
		fmt.Fprintf(&builder, "%s: %s\n", key, t.meta[key])
	}
	builder.WriteString("---\n")
	builder.WriteString(t.Body)

	directory := filepath.Dir(t.Path)
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("creating ticket directory: %w", err)
	}
	temp, err := os.CreateTemp(directory, ".ticket-*")
	if err != nil {
		return fmt.Errorf("creating temp ticket file: %w", err)
	}
	tempPath := temp.Name()
	if _, err := temp.WriteString(builder.String()); err != nil {
		temp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("writing ticket: %w", err)
	}
	if err := temp.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("closing ticket: %w", err)
	}
	if err := os.Chmod(tempPath, 0o644); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("setting ticket mode: %w", err)
	}
	if err := os.Rename(tempPath, t.Path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("replacing ticket %s: %w", t.Path, err)
	}
	return nil
}

// Get returns a metadata value, or "" if the key is absent.
func (t *Ticket) Get(key string) string {
	return t.meta[key]
}

// Set stores a metadata value. A key not seen before is appended to
// the front-matter order.
func (t *Ticket) Set(key, value string) {
	if _, seen := t.meta[key]; !seen {
		t.order = append(t.order, key)
	}
	t.meta[key] = value
}

// Keys returns the front-matter keys in on-disk order.
func (t *Ticket) Keys() []string {
	return append([]string(nil), t.order...)
}

// Status returns the ticket's status value.
func (t *Ticket) Status() string {
	return t.meta[KeyStatus]
}

// SetStatus sets the ticket's status value.
func (t *Ticket) SetStatus(status string) {
	t.Set(KeyStatus, status)
}

// TurnCounter returns the persisted turn counter. Absent or malformed
// values read as 0.
func (t *Ticket) TurnCounter() int {
	n, err := strconv.Atoi(strings.TrimSpace(t.meta[KeyTurnCounter]))
	if err != nil {
		return 0
	}
	return n
}

// BumpTurn increments the turn counter, persists it into metadata, and
// returns the new value. Each run attempt bumps exactly once.
func (t *Ticket) BumpTurn() int {
	next := t.TurnCounter() + 1
	t.Set(KeyTurnCounter, strconv.Itoa(next))
	return next
}

// List returns the slugs of every ticket file in directory, sorted.
func List(directory string) ([]string, error) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading tickets directory: %w", err)
	}
	var slugs []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".md") {
			continue
		}
		slugs = append(slugs, strings.TrimSuffix(name, ".md"))
	}
	sort.Strings(slugs)
	return slugs, nil
}
