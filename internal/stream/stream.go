// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package stream pulls query results in bounded, fixed-size row batches.
// At most one batch is held in memory regardless of result size, which keeps
// large exports flat: N rows with chunk size C surface as ceil(N/C) batches
// delivered in result order to a sink callback.
package stream

import (
	"context"
)

// RowSource is the slice of pgx.Rows the streamer depends on. Narrowing the
// dependency keeps the chunking logic testable without a live connection.
type RowSource interface {
	Next() bool
	Values() ([]any, error)
	Err() error
}

// Batch is one bounded chunk of a result set. Columns repeats on every batch
// so sinks never need to retain earlier batches.
type Batch struct {
	// Columns holds result column names in server order.
	Columns []string
	// Rows holds at most the configured chunk size of rows.
	Rows [][]any
	// First marks the first batch of a result, including an empty result.
	First bool
}

// Sink consumes one batch at a time. A sink must not retain the batch's
// backing slices after returning.
type Sink func(Batch) error

// Chunk drains rows into batches of at most chunkSize rows and feeds each to
// sink. An empty result still produces one empty first batch so sinks can
// write headers. Returns the total row count. The context is checked at
// every batch boundary so cancellation propagates mid-result.
func Chunk(ctx context.Context, columns []string, rows RowSource, chunkSize int, sink Sink) (int64, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var total int64
	batch := Batch{Columns: columns, Rows: make([][]any, 0, chunkSize), First: true}

	flush := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sink(batch); err != nil {
			return err
		}
		batch.First = false
		batch.Rows = batch.Rows[:0]
		return nil
	}

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return total, err
		}
		batch.Rows = append(batch.Rows, vals)
		total++
		if len(batch.Rows) == chunkSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return total, err
	}
	// Flush the remainder, or the empty first batch of a zero-row result.
	if len(batch.Rows) > 0 || batch.First {
		if err := flush(); err != nil {
			return total, err
		}
	}
	return total, nil
}

// Drain consumes rows without delivering them anywhere, for validation runs
// that only need the row count and server-side errors.
func Drain(ctx context.Context, rows RowSource) (int64, error) {
	var total int64
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		total++
	}
	return total, rows.Err()
}

// DefaultChunkSize bounds per-batch memory when the caller does not choose.
const DefaultChunkSize = 10000
