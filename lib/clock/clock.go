// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock parameter instead of calling time.Now,
// time.After, or time.Sleep directly. Real() provides standard library
// behavior; Fake() provides a deterministic clock that advances only
// when Advance is called. The dispatcher's poll loops (drain loop,
// window liveness, await) all suspend through a Clock, which is what
// makes their deadline behavior testable without wall-clock waits.
package clock

import "time"

// Clock abstracts the time operations the dispatcher uses. Production
// code injects Real(); tests inject Fake() and drive it with Advance.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time after
	// duration d elapses. If d <= 0, the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// Sleep pauses the current goroutine for at least duration d.
	Sleep(d time.Duration)
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
