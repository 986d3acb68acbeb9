// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeCanceler records server-side cancel and terminate requests.
type fakeCanceler struct {
	mu         sync.Mutex
	cancels    []uint32
	terminates []uint32
}

func (c *fakeCanceler) CancelBackend(ctx context.Context, pid uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancels = append(c.cancels, pid)
	return nil
}

func (c *fakeCanceler) TerminateBackend(ctx context.Context, pid uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminates = append(c.terminates, pid)
	return nil
}

func (c *fakeCanceler) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cancels), len(c.terminates)
}

func TestSupervisorCompletion(t *testing.T) {
	canceler := &fakeCanceler{}
	sup := &Supervisor{Canceler: canceler, Grace: 10 * time.Millisecond}

	out := sup.Run(context.Background(), time.Second, 42, func(ctx context.Context) error {
		return nil
	})
	if out.Err != nil || out.TimedOut || out.Canceled || out.Terminated {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if cancels, terminates := canceler.counts(); cancels != 0 || terminates != 0 {
		t.Fatalf("no cancellation expected, got %d cancels %d terminates", cancels, terminates)
	}
}

func TestSupervisorPropagatesError(t *testing.T) {
	sup := &Supervisor{Canceler: &fakeCanceler{}, Grace: 10 * time.Millisecond}
	boom := errors.New("syntax error at or near")

	out := sup.Run(context.Background(), time.Second, 42, func(ctx context.Context) error {
		return boom
	})
	if !errors.Is(out.Err, boom) {
		t.Fatalf("Err = %v, want %v", out.Err, boom)
	}
	if out.TimedOut || out.Terminated {
		t.Fatalf("plain failure flagged: %+v", out)
	}
}

func TestSupervisorTimeoutCancels(t *testing.T) {
	canceler := &fakeCanceler{}
	sup := &Supervisor{Canceler: canceler, Grace: 50 * time.Millisecond}

	// Statement honors context cancellation, as pgx does.
	out := sup.Run(context.Background(), 20*time.Millisecond, 42, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !out.TimedOut {
		t.Fatalf("TimedOut not set: %+v", out)
	}
	if out.Terminated {
		t.Fatal("cooperative cancel should not escalate to terminate")
	}
	canceler.mu.Lock()
	defer canceler.mu.Unlock()
	if len(canceler.cancels) != 1 || canceler.cancels[0] != 42 {
		t.Fatalf("cancels = %v, want [42]", canceler.cancels)
	}
	if len(canceler.terminates) != 0 {
		t.Fatalf("terminates = %v, want none", canceler.terminates)
	}
}

func TestSupervisorEscalatesToTerminate(t *testing.T) {
	canceler := &fakeCanceler{}
	sup := &Supervisor{Canceler: canceler, Grace: 20 * time.Millisecond}

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	// Statement ignores cancellation entirely, like a driver stuck in I/O.
	start := time.Now()
	out := sup.Run(context.Background(), 20*time.Millisecond, 7, func(ctx context.Context) error {
		<-release
		return nil
	})
	elapsed := time.Since(start)

	if !out.TimedOut || !out.Terminated {
		t.Fatalf("want TimedOut and Terminated, got %+v", out)
	}
	if cancels, terminates := canceler.counts(); cancels != 1 || terminates != 1 {
		t.Fatalf("cancels=%d terminates=%d, want 1 and 1", cancels, terminates)
	}
	// Run must return within timeout + 2*grace plus scheduling slack, even
	// though the statement goroutine never finished.
	if elapsed > time.Second {
		t.Fatalf("Run took %s, should have abandoned the statement", elapsed)
	}
}

func TestSupervisorCallerCancellation(t *testing.T) {
	canceler := &fakeCanceler{}
	sup := &Supervisor{Canceler: canceler, Grace: 50 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	out := sup.Run(ctx, time.Minute, 42, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !out.Canceled {
		t.Fatalf("Canceled not set: %+v", out)
	}
	if out.TimedOut {
		t.Fatal("caller cancellation misreported as timeout")
	}
	if cancels, _ := canceler.counts(); cancels != 1 {
		t.Fatalf("cancels = %d, want 1", cancels)
	}
}

func TestSupervisorNoTimeoutRunsUnbounded(t *testing.T) {
	sup := &Supervisor{Canceler: &fakeCanceler{}, Grace: 10 * time.Millisecond}

	out := sup.Run(context.Background(), 0, 42, func(ctx context.Context) error {
		time.Sleep(30 * time.Millisecond)
		return nil
	})
	if out.Err != nil || out.TimedOut {
		t.Fatalf("unbounded statement flagged: %+v", out)
	}
}
