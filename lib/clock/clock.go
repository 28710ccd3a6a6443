// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock parameter (or carries one in a struct
// field) instead of calling time.Now, time.After, or time.Sleep
// directly. Real() provides standard library behavior; Fake() provides
// a deterministic clock that advances only when Advance is called, so
// tests of session timestamps and launch deadlines never sleep.
package clock

import "time"

// Clock abstracts the time operations Parlor components use. The
// surface is deliberately small: the lobby needs wall-clock reads for
// session and launch stamps, timeout channels for deadline selects,
// and Sleep for backoff in auxiliary tooling.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. Equivalent to time.After.
	After(d time.Duration) <-chan time.Time

	// Sleep pauses the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (realClock) Sleep(d time.Duration)                  { time.Sleep(d) }
