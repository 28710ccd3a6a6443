// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package ports allocates free TCP ports for spawned game servers.
//
// The allocator probes bind() across a configured range and hands out
// the first port that binds. The probe listener is closed before the
// game server is spawned — the worker binds the port itself, per the
// environment contract — so a pure probe would leave a window where
// two concurrent launches receive the same port. The allocator
// therefore also keeps an in-process reservation set: a port stays
// reserved from Allocate until Release, which the launch monitor calls
// during teardown. Two launches from this process can never share a
// port; a foreign process grabbing the port inside the window surfaces
// as a worker startup failure, which launch monitoring already
// handles.
package ports

import (
	"errors"
	"fmt"
	"net"
	"sync"
)

// ErrExhausted is returned when no port in the range can be bound.
// Callers treat it as retryable: earlier launches finishing will
// release ports back into the range.
var ErrExhausted = errors.New("no free port in configured range")

// Allocator hands out free TCP ports from an inclusive range.
// Safe for concurrent use.
type Allocator struct {
	host  string
	start int
	end   int

	mu       sync.Mutex
	reserved map[int]bool
}

// NewAllocator returns an allocator probing [start, end] on host.
func NewAllocator(host string, start, end int) *Allocator {
	return &Allocator{
		host:     host,
		start:    start,
		end:      end,
		reserved: make(map[int]bool),
	}
}

// Allocate probes the range and returns the first bindable port,
// marking it reserved. Returns ErrExhausted when every port is either
// reserved or refuses to bind.
func (a *Allocator) Allocate() (int, error) {
	for port := a.start; port <= a.end; port++ {
		a.mu.Lock()
		if a.reserved[port] {
			a.mu.Unlock()
			continue
		}
		// Reserve before probing so a concurrent Allocate skips this
		// port even while the probe is in flight.
		a.reserved[port] = true
		a.mu.Unlock()

		listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", a.host, port))
		if err != nil {
			a.Release(port)
			continue
		}
		listener.Close()
		return port, nil
	}
	return 0, ErrExhausted
}

// Release returns a port to the range. Releasing an unreserved port is
// a no-op, keeping teardown idempotent.
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.reserved, port)
}

// Reserved reports whether port is currently held. Used by tests and
// the lobby's state inspection.
func (a *Allocator) Reserved(port int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reserved[port]
}
