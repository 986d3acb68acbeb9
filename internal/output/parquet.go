// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package output

import (
	"fmt"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"sqlrun/cli/internal/stream"
)

// colKind is the physical shape a result column maps onto in the parquet
// schema. It is fixed from the first batch; later values that do not fit are
// rendered as text.
type colKind int

const (
	colString colKind = iota
	colInt
	colFloat
	colBool
	colTime
	colBytes
)

// parquetWriter renders batches into a columnar binary file. The schema is
// derived from the first batch's column names and value types; rows append
// across batches through one row-group writer.
type parquetWriter struct {
	path  string
	file  *os.File
	w     *parquet.GenericWriter[map[string]any]
	cols  []string
	kinds []colKind
}

func newParquetWriter(path string) (*parquetWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return &parquetWriter{path: path, file: f}, nil
}

func (p *parquetWriter) WriteBatch(b stream.Batch) error {
	if b.First {
		p.cols = b.Columns
		p.kinds = sampleKinds(b)
		group := parquet.Group{}
		for i, c := range p.cols {
			group[c] = parquet.Optional(kindNode(p.kinds[i]))
		}
		schema := parquet.NewSchema("result", group)
		p.w = parquet.NewGenericWriter[map[string]any](p.file, schema)
	}
	if len(b.Rows) == 0 {
		return nil
	}
	records := make([]map[string]any, len(b.Rows))
	for ri, row := range b.Rows {
		rec := make(map[string]any, len(p.cols))
		for ci, c := range p.cols {
			rec[c] = convertCell(row[ci], p.kinds[ci])
		}
		records[ri] = rec
	}
	_, err := p.w.Write(records)
	return err
}

func (p *parquetWriter) Close() error {
	if p.w != nil {
		if err := p.w.Close(); err != nil {
			p.file.Close()
			return err
		}
	}
	return p.file.Close()
}

func (p *parquetWriter) Path() string { return p.path }

// sampleKinds picks a column kind from the first non-nil value per column.
// Columns that are entirely NULL in the first batch fall back to string.
func sampleKinds(b stream.Batch) []colKind {
	kinds := make([]colKind, len(b.Columns))
	for ci := range b.Columns {
		kinds[ci] = colString
		for _, row := range b.Rows {
			if row[ci] == nil {
				continue
			}
			kinds[ci] = kindOf(row[ci])
			break
		}
	}
	return kinds
}

func kindOf(v any) colKind {
	switch v.(type) {
	case int, int16, int32, int64:
		return colInt
	case float32, float64:
		return colFloat
	case bool:
		return colBool
	case time.Time:
		return colTime
	case []byte:
		return colBytes
	default:
		return colString
	}
}

func kindNode(k colKind) parquet.Node {
	switch k {
	case colInt:
		return parquet.Int(64)
	case colFloat:
		return parquet.Leaf(parquet.DoubleType)
	case colBool:
		return parquet.Leaf(parquet.BooleanType)
	case colTime:
		return parquet.Timestamp(parquet.Microsecond)
	case colBytes:
		return parquet.Leaf(parquet.ByteArrayType)
	default:
		return parquet.String()
	}
}

// convertCell coerces a value to the column's schema kind. Column types are
// fixed by the server, so a mismatch only occurs when the sampled first
// batch was entirely NULL; those columns are string-typed and render any
// later value as text.
func convertCell(v any, k colKind) any {
	if v == nil {
		return nil
	}
	if k == colString {
		return CellString(v)
	}
	switch k {
	case colInt:
		switch x := v.(type) {
		case int:
			return int64(x)
		case int16:
			return int64(x)
		case int32:
			return int64(x)
		case int64:
			return x
		}
	case colFloat:
		switch x := v.(type) {
		case float32:
			return float64(x)
		case float64:
			return x
		}
	case colBool:
		if x, ok := v.(bool); ok {
			return x
		}
	case colTime:
		if x, ok := v.(time.Time); ok {
			return x.UnixMicro()
		}
	case colBytes:
		if x, ok := v.([]byte); ok {
			return x
		}
	}
	return nil
}
