// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package stream

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// fakeRows serves n synthetic rows through the RowSource interface.
type fakeRows struct {
	n      int
	pos    int
	failAt int // 1-based row index where Values fails, 0 = never
}

func (f *fakeRows) Next() bool {
	if f.pos >= f.n {
		return false
	}
	f.pos++
	return true
}

func (f *fakeRows) Values() ([]any, error) {
	if f.failAt > 0 && f.pos == f.failAt {
		return nil, errors.New("bad tuple")
	}
	return []any{f.pos, fmt.Sprintf("row-%d", f.pos)}, nil
}

func (f *fakeRows) Err() error { return nil }

func TestChunk(t *testing.T) {
	tests := []struct {
		name        string
		rows        int
		chunkSize   int
		wantBatches int
	}{
		{name: "exact multiple", rows: 100, chunkSize: 10, wantBatches: 10},
		{name: "remainder batch", rows: 105, chunkSize: 10, wantBatches: 11},
		{name: "single short batch", rows: 3, chunkSize: 10, wantBatches: 1},
		{name: "chunk of one", rows: 4, chunkSize: 1, wantBatches: 4},
		{name: "empty result still flushes header batch", rows: 0, chunkSize: 10, wantBatches: 1},
		{name: "ten thousand by one thousand", rows: 10000, chunkSize: 1000, wantBatches: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var batches int
			var seen int64
			var lastFirst bool
			next := 1
			sink := func(b Batch) error {
				batches++
				lastFirst = b.First
				if len(b.Rows) > tt.chunkSize {
					t.Errorf("batch %d has %d rows, above chunk size %d", batches, len(b.Rows), tt.chunkSize)
				}
				for _, row := range b.Rows {
					if row[0].(int) != next {
						t.Fatalf("row out of order: got %v, want %d", row[0], next)
					}
					next++
					seen++
				}
				return nil
			}

			total, err := Chunk(context.Background(), []string{"id", "name"}, &fakeRows{n: tt.rows}, tt.chunkSize, sink)
			if err != nil {
				t.Fatalf("Chunk() error = %v", err)
			}
			if batches != tt.wantBatches {
				t.Errorf("got %d batches, want %d", batches, tt.wantBatches)
			}
			if total != int64(tt.rows) || seen != int64(tt.rows) {
				t.Errorf("total = %d, delivered = %d, want %d", total, seen, tt.rows)
			}
			if tt.rows == 0 && !lastFirst {
				t.Error("empty result batch must be marked First")
			}
		})
	}
}

func TestChunkFirstFlag(t *testing.T) {
	var firsts []bool
	_, err := Chunk(context.Background(), []string{"id"}, &fakeRows{n: 25}, 10, func(b Batch) error {
		firsts = append(firsts, b.First)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []bool{true, false, false}
	if len(firsts) != len(want) {
		t.Fatalf("got %d batches, want %d", len(firsts), len(want))
	}
	for i := range want {
		if firsts[i] != want[i] {
			t.Errorf("batch %d First = %v, want %v", i, firsts[i], want[i])
		}
	}
}

func TestChunkValueError(t *testing.T) {
	_, err := Chunk(context.Background(), []string{"id"}, &fakeRows{n: 10, failAt: 4}, 5, func(Batch) error { return nil })
	if err == nil {
		t.Fatal("expected error from failing row")
	}
}

func TestChunkSinkError(t *testing.T) {
	calls := 0
	_, err := Chunk(context.Background(), []string{"id"}, &fakeRows{n: 30}, 10, func(Batch) error {
		calls++
		if calls == 2 {
			return errors.New("disk full")
		}
		return nil
	})
	if err == nil || err.Error() != "disk full" {
		t.Fatalf("err = %v, want disk full", err)
	}
	if calls != 2 {
		t.Errorf("sink called %d times, want 2", calls)
	}
}

func TestChunkCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	_, err := Chunk(ctx, []string{"id"}, &fakeRows{n: 100}, 10, func(b Batch) error {
		cancel() // cancel mid-result; next boundary must observe it
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestDrain(t *testing.T) {
	total, err := Drain(context.Background(), &fakeRows{n: 42})
	if err != nil {
		t.Fatal(err)
	}
	if total != 42 {
		t.Errorf("Drain() = %d, want 42", total)
	}
}
