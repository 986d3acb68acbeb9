// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package progress defines the per-statement progress events the engine
// emits and a non-blocking reporter that forwards them, in order, to a
// consumer such as the terminal renderer. Emission never blocks statement
// execution: a slow or absent consumer costs events, not throughput.
package progress

import (
	"sync"
	"time"
)

// Status is the terminal state of one executed statement.
type Status string

const (
	// StatusSuccess means the statement completed and, for queries, its
	// result was fully consumed.
	StatusSuccess Status = "SUCCESS"
	// StatusFailed means the server rejected the statement; the session
	// rolled back before continuing.
	StatusFailed Status = "FAILED"
	// StatusTimeout means the statement exceeded its deadline and its
	// backend was cancelled or terminated.
	StatusTimeout Status = "TIMEOUT"
)

// Event reports one completed statement. Events arrive in statement order.
type Event struct {
	// Script is the base name of the script the statement belongs to.
	Script string `json:"script"`
	// Index is the one-based statement position.
	Index int `json:"index"`
	// Total is the statement count of the script.
	Total int `json:"total"`
	// Kind is the statement's classification tag (DDL, DML, QUERY).
	Kind string `json:"kind"`
	// Elapsed is the statement's wall-clock execution time.
	Elapsed time.Duration `json:"elapsed"`
	// Rows is rows affected (DML) or rows written (QUERY).
	Rows int64 `json:"rows"`
	// Status is the statement outcome.
	Status Status `json:"status"`
	// Detail carries the error text for FAILED and TIMEOUT events.
	Detail string `json:"detail,omitempty"`
}

// Reporter forwards events to a single consumer without blocking the
// emitter. Events overflowing the buffer are dropped, never reordered.
type Reporter struct {
	ch     chan Event
	mu     sync.Mutex
	closed bool
}

// NewReporter creates a reporter buffering up to size events; size <= 0
// gets a reasonable default.
func NewReporter(size int) *Reporter {
	if size <= 0 {
		size = 64
	}
	return &Reporter{ch: make(chan Event, size)}
}

// Emit forwards an event if buffer space allows and returns immediately.
func (r *Reporter) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.ch <- e:
	default:
		// consumer is behind; dropping beats stalling the session
	}
}

// Events returns the consumer side of the reporter.
func (r *Reporter) Events() <-chan Event { return r.ch }

// Close marks the end of the run; consumers see the channel close after the
// final event.
func (r *Reporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
}
