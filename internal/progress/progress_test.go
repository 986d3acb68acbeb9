// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package progress

import (
	"testing"
	"time"
)

func TestReporterOrdering(t *testing.T) {
	r := NewReporter(16)
	for i := 1; i <= 5; i++ {
		r.Emit(Event{Index: i, Total: 5, Status: StatusSuccess})
	}
	r.Close()

	i := 0
	for e := range r.Events() {
		i++
		if e.Index != i {
			t.Errorf("event %d has index %d", i, e.Index)
		}
	}
	if i != 5 {
		t.Errorf("received %d events, want 5", i)
	}
}

func TestReporterNeverBlocks(t *testing.T) {
	r := NewReporter(2) // tiny buffer, no consumer
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			r.Emit(Event{Index: i})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked with a full buffer")
	}
	r.Close()
}

func TestEmitAfterClose(t *testing.T) {
	r := NewReporter(4)
	r.Close()
	r.Emit(Event{Index: 1}) // must not panic
	r.Close()               // idempotent
}
