// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

// Fake returns a FakeClock initialized to the given time. Time stands
// still until Advance is called. After and Sleep register pending
// waiters that fire when the clock advances past their deadline.
//
// FakeClock is safe for concurrent use by multiple goroutines.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{current: initial}
	clock.waitersChanged = sync.NewCond(&clock.mu)
	return clock
}

// FakeClock is a deterministic Clock for testing. Time advances only
// when Advance is called. Sleeps and After channels block until the
// clock is advanced past their deadline.
type FakeClock struct {
	mu             sync.Mutex
	current        time.Time
	waiters        []*fakeWaiter
	waitersChanged *sync.Cond
}

// fakeWaiter is a pending After or Sleep operation.
type fakeWaiter struct {
	deadline time.Time
	channel  chan time.Time
	fired    bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After returns a channel that receives after duration d elapses in
// fake time. If d <= 0, the channel receives immediately without
// registering a waiter.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.current
		return channel
	}

	c.waiters = append(c.waiters, &fakeWaiter{
		deadline: c.current.Add(d),
		channel:  channel,
	})
	c.waitersChanged.Broadcast()
	return channel
}

// Sleep blocks until the clock has been advanced past the current time
// plus d. If d <= 0, Sleep returns immediately.
func (c *FakeClock) Sleep(d time.Duration) {
	<-c.After(d)
}

// Advance moves the fake time forward by d and fires every waiter
// whose deadline has been reached, in deadline order.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = c.current.Add(d)

	// Fire in deadline order so interleaved sleeps observe a
	// consistent ordering.
	for {
		var next *fakeWaiter
		for _, waiter := range c.waiters {
			if waiter.fired || waiter.deadline.After(c.current) {
				continue
			}
			if next == nil || waiter.deadline.Before(next.deadline) {
				next = waiter
			}
		}
		if next == nil {
			break
		}
		next.fired = true
		next.channel <- c.current
	}

	// Drop fired waiters.
	remaining := c.waiters[:0]
	for _, waiter := range c.waiters {
		if !waiter.fired {
			remaining = append(remaining, waiter)
		}
	}
	c.waiters = remaining
}

// WaitForWaiters blocks until at least n waiters are registered. Use
// this to synchronize with a goroutine that is about to Sleep before
// calling Advance, eliminating the registration race.
func (c *FakeClock) WaitForWaiters(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.waiters) < n {
		c.waitersChanged.Wait()
	}
}
