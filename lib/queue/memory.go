// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"fmt"
	"sync"
	"time"
)

// Memory is an in-memory Queue for tests of the drain algorithm. It
// mirrors the Dir semantics: arrival-ordered IDs, removal is benign
// when repeated, quarantined jobs leave the pending set but stay
// readable.
type Memory struct {
	mu          sync.Mutex
	sequence    int64
	order       []string
	payloads    map[string][]byte
	quarantined map[string][]byte
}

// NewMemory returns an empty in-memory queue.
func NewMemory() *Memory {
	return &Memory{
		payloads:    make(map[string][]byte),
		quarantined: make(map[string][]byte),
	}
}

// Enqueue adds a job with a synthetic monotonic ID.
func (q *Memory) Enqueue(slug, message string) (string, error) {
	payload, err := encode(slug, message, time.Unix(0, 0).UTC())
	if err != nil {
		return "", err
	}
	return q.EnqueueRaw(slug, payload), nil
}

// EnqueueRaw adds a job with an arbitrary payload, bypassing encoding.
// Tests use this to inject malformed payloads.
func (q *Memory) EnqueueRaw(slug string, payload []byte) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sequence++
	id := fmt.Sprintf("%d__%s.json", q.sequence, slug)
	q.order = append(q.order, id)
	q.payloads[id] = payload
	return id
}

// Pending returns pending IDs in arrival order.
func (q *Memory) Pending() ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var ids []string
	for _, id := range q.order {
		if _, ok := q.payloads[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Read returns a pending job's payload.
func (q *Memory) Read(id string) ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	payload, ok := q.payloads[id]
	if !ok {
		return nil, fmt.Errorf("reading job %s: not pending", id)
	}
	return payload, nil
}

// Remove deletes a job. Removing a missing job is benign.
func (q *Memory) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.payloads, id)
	return nil
}

// Quarantine moves a job out of the pending set.
func (q *Memory) Quarantine(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	payload, ok := q.payloads[id]
	if !ok {
		return fmt.Errorf("quarantining job %s: not pending", id)
	}
	delete(q.payloads, id)
	q.quarantined[id] = payload
	return nil
}

// Quarantined returns the IDs of quarantined jobs, for test
// assertions.
func (q *Memory) Quarantined() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var ids []string
	for _, id := range q.order {
		if _, ok := q.quarantined[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}
