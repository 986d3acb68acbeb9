// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package output renders streamed result batches into files. It supports
// delimited text (CSV), spreadsheet (XLSX) and columnar binary (Parquet)
// formats, plus a server-native CSV export path that streams COPY output
// straight to the destination file.
//
// CSV and Parquet writers append batch after batch in bounded memory. XLSX
// streams rows through a single sequential pass of excelize's stream writer,
// bounded by the sheet row limit.
package output

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"sqlrun/cli/internal/stream"
)

// Format selects the output file format for query results.
type Format string

const (
	// FormatCSV renders delimited text row by row.
	FormatCSV Format = "csv"
	// FormatCSVNative delegates to the server's COPY ... TO STDOUT CSV
	// export when the statement shape permits, falling back to FormatCSV.
	FormatCSVNative Format = "csv-native"
	// FormatXLSX renders a spreadsheet workbook.
	FormatXLSX Format = "xlsx"
	// FormatParquet renders columnar binary output.
	FormatParquet Format = "parquet"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatCSVNative:
		return FormatCSVNative, nil
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatParquet:
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unknown output format %q (csv, csv-native, xlsx, parquet)", s)
	}
}

// Ext returns the file extension for the format, without the dot.
func (f Format) Ext() string {
	switch f {
	case FormatXLSX:
		return "xlsx"
	case FormatParquet:
		return "parquet"
	default:
		return "csv"
	}
}

// Spec carries the per-run output configuration. It is supplied once at run
// start and never mutated.
type Spec struct {
	// Dir is the directory result files are written into.
	Dir string
	// Format selects the result file format.
	Format Format
	// BatchSize is the number of rows buffered before a writer flush.
	BatchSize int
	// ChunkSize is the number of rows fetched from the server per batch.
	ChunkSize int
	// Timeout is the per-statement execution deadline; zero is unbounded.
	Timeout time.Duration
	// Workers bounds concurrent script runs and sizes the connection pool.
	Workers int
}

// Filename derives a collision-free result path from the output directory,
// script base name, one-based statement number, format extension and a
// second-granularity timestamp. Consecutive runs land in distinct files.
func Filename(dir, base string, stmtNum int, format Format, at time.Time) string {
	name := fmt.Sprintf("%s_stmt%02d_%s.%s", base, stmtNum, at.Format("20060102-150405"), format.Ext())
	return filepath.Join(dir, name)
}

// Writer renders streamed batches to one result file.
type Writer interface {
	// WriteBatch appends one batch. The first batch carries column names
	// for header rendering.
	WriteBatch(b stream.Batch) error
	// Close flushes buffered data and finalizes the file.
	Close() error
	// Path returns the destination file path.
	Path() string
}

// New creates a writer for the given format at path. FormatCSVNative gets a
// plain CSV writer here; the native COPY path bypasses Writer entirely and
// is chosen by the engine when the statement shape permits.
func New(format Format, path string, batchSize int) (Writer, error) {
	switch format {
	case FormatXLSX:
		return newXLSXWriter(path)
	case FormatParquet:
		return newParquetWriter(path)
	default:
		return newCSVWriter(path, batchSize)
	}
}
