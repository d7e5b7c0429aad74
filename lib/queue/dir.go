// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/bureau-foundation/dispatch/lib/clock"
)

// pendingSuffix marks a pending job file; quarantineSuffix marks a job
// set aside after a malformed payload or invalid slug.
const (
	pendingSuffix    = ".json"
	quarantineSuffix = ".bad"
)

// Dir is the production Queue: one file per pending job in a single
// directory.
type Dir struct {
	dir   string
	clock clock.Clock

	// lastStamp forces filename timestamps to be strictly
	// monotonic within this process even when the clock's
	// nanosecond reading repeats.
	lastStamp atomic.Int64
}

// NewDir returns a Queue backed by the given directory, which is
// created if absent.
func NewDir(dir string, clk clock.Clock) (*Dir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating queue directory: %w", err)
	}
	return &Dir{dir: dir, clock: clk}, nil
}

// Enqueue writes the job payload with O_EXCL creation. The filename is
// "<nanots>__<slug>.json"; the timestamp guarantees arrival ordering
// under lexicographic sort and the exclusive create guarantees two
// producers can never share a file.
func (q *Dir) Enqueue(slug, message string) (string, error) {
	now := q.clock.Now()
	payload, err := encode(slug, message, now)
	if err != nil {
		return "", err
	}

	stamp := now.UnixNano()
	for {
		last := q.lastStamp.Load()
		if stamp <= last {
			stamp = last + 1
		}
		if q.lastStamp.CompareAndSwap(last, stamp) {
			break
		}
	}

	id := fmt.Sprintf("%d__%s%s", stamp, slug, pendingSuffix)
	file, err := os.OpenFile(filepath.Join(q.dir, id),
		os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("creating job file: %w", err)
	}
	if _, err := file.Write(payload); err != nil {
		file.Close()
		return "", fmt.Errorf("writing job file: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("closing job file: %w", err)
	}
	return id, nil
}

// Pending lists pending job filenames in ascending name order, which
// by construction is arrival order.
func (q *Dir) Pending() ([]string, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return nil, fmt.Errorf("reading queue directory: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), pendingSuffix) {
			continue
		}
		ids = append(ids, entry.Name())
	}
	// os.ReadDir returns names sorted; keep the guarantee explicit
	// anyway since ordering is a queue invariant, not a convenience.
	return ids, nil
}

// Read returns a job's payload.
func (q *Dir) Read(id string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(q.dir, id))
	if err != nil {
		return nil, fmt.Errorf("reading job %s: %w", id, err)
	}
	return data, nil
}

// Remove deletes a job file. A concurrent or repeated removal is
// benign.
func (q *Dir) Remove(id string) error {
	err := os.Remove(filepath.Join(q.dir, id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing job %s: %w", id, err)
	}
	return nil
}

// Quarantine renames a job file to the quarantine extension so it is
// no longer pending but remains on disk for inspection.
func (q *Dir) Quarantine(id string) error {
	quarantined := strings.TrimSuffix(id, pendingSuffix) + quarantineSuffix
	if err := os.Rename(filepath.Join(q.dir, id), filepath.Join(q.dir, quarantined)); err != nil {
		return fmt.Errorf("quarantining job %s: %w", id, err)
	}
	return nil
}
