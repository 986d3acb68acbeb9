// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package engine

import (
	"context"
	"time"
)

// Canceler requests cancellation of a specific in-flight backend process,
// first cooperatively, then forcibly. It must act from its own connection
// since the supervised one is busy.
type Canceler interface {
	// CancelBackend asks the server to cancel the backend's current query.
	CancelBackend(ctx context.Context, pid uint32) error
	// TerminateBackend kills the backend process outright.
	TerminateBackend(ctx context.Context, pid uint32) error
}

// DefaultGrace is how long a cancelled statement gets to stop before its
// backend is terminated.
const DefaultGrace = 2 * time.Second

// Supervisor races one statement's execution against its deadline and the
// caller's cancellation. Each statement is measured independently.
type Supervisor struct {
	// Canceler issues the server-side cancel/terminate calls.
	Canceler Canceler
	// Grace is the wait between cooperative cancel and forced terminate.
	Grace time.Duration
}

// Outcome reports how a supervised statement ended.
type Outcome struct {
	// Err is the execution error, if any.
	Err error
	// TimedOut is set when the statement exceeded its deadline.
	TimedOut bool
	// Canceled is set when the caller aborted the run mid-statement.
	Canceled bool
	// Terminated is set when the backend had to be killed; the connection
	// must be discarded and never reused.
	Terminated bool
}

// Run executes fn under a deadline. timeout <= 0 means unbounded. On expiry
// or caller cancellation the statement's context is cancelled and the
// backend receives pg_cancel_backend; if it does not stop within Grace it
// receives pg_terminate_backend. Run always returns within roughly
// timeout + 2*Grace even when the driver is stuck.
func (sv *Supervisor) Run(ctx context.Context, timeout time.Duration, pid uint32, fn func(context.Context) error) Outcome {
	grace := sv.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(runCtx) }()

	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	select {
	case err := <-done:
		return Outcome{Err: err}
	case <-deadline:
		out := sv.abort(pid, cancel, done, grace)
		out.TimedOut = true
		if out.Err == nil {
			out.Err = context.DeadlineExceeded
		}
		return out
	case <-ctx.Done():
		out := sv.abort(pid, cancel, done, grace)
		out.Canceled = true
		if out.Err == nil {
			out.Err = ctx.Err()
		}
		return out
	}
}

// abort cancels the in-flight statement, escalating to termination after the
// grace period. The cancel/terminate calls use a background context: the
// statement's own context is already dead.
func (sv *Supervisor) abort(pid uint32, cancel context.CancelFunc, done <-chan error, grace time.Duration) Outcome {
	cancel()
	cancelCtx, stop := context.WithTimeout(context.Background(), grace)
	defer stop()
	_ = sv.Canceler.CancelBackend(cancelCtx, pid)

	select {
	case err := <-done:
		return Outcome{Err: err}
	case <-time.After(grace):
	}

	// Cooperative cancel did not stop it; kill the backend.
	termCtx, stopTerm := context.WithTimeout(context.Background(), grace)
	defer stopTerm()
	_ = sv.Canceler.TerminateBackend(termCtx, pid)

	select {
	case err := <-done:
		return Outcome{Err: err, Terminated: true}
	case <-time.After(grace):
		// The driver did not return even after termination. Abandon the
		// goroutine; the connection is discarded by the caller.
		return Outcome{Terminated: true}
	}
}
