// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"sqlrun/cli/internal/stream"
)

// csvWriter renders batches as delimited text, one header row then data
// rows. Values are formatted to match PostgreSQL's COPY CSV rendering so the
// native export path produces byte-identical files.
type csvWriter struct {
	path      string
	file      *os.File
	w         *csv.Writer
	batchSize int
	buffered  int
}

func newCSVWriter(path string, batchSize int) (*csvWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	if batchSize <= 0 {
		batchSize = stream.DefaultChunkSize
	}
	return &csvWriter{path: path, file: f, w: csv.NewWriter(f), batchSize: batchSize}, nil
}

func (c *csvWriter) WriteBatch(b stream.Batch) error {
	if b.First {
		if err := c.w.Write(b.Columns); err != nil {
			return err
		}
	}
	record := make([]string, len(b.Columns))
	for _, row := range b.Rows {
		for i := range record {
			record[i] = CellString(row[i])
		}
		if err := c.w.Write(record); err != nil {
			return err
		}
		c.buffered++
		if c.buffered >= c.batchSize {
			c.w.Flush()
			if err := c.w.Error(); err != nil {
				return err
			}
			c.buffered = 0
		}
	}
	return nil
}

func (c *csvWriter) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		c.file.Close()
		return err
	}
	return c.file.Close()
}

func (c *csvWriter) Path() string { return c.path }

// CellString renders one result value the way PostgreSQL's CSV export does:
// NULL becomes the empty field, booleans render as t/f, floats use the
// shortest round-trip form, timestamps use ISO-8601 with a space separator.
func CellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return fmt.Sprintf("\\x%x", x)
	case bool:
		if x {
			return "t"
		}
		return "f"
	case int:
		return strconv.Itoa(x)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case time.Time:
		return x.Format("2006-01-02 15:04:05.999999-07")
	case [16]byte: // uuid
		return fmt.Sprintf("%02x%02x%02x%02x-%02x%02x-%02x%02x-%02x%02x-%02x%02x%02x%02x%02x%02x",
			x[0], x[1], x[2], x[3], x[4], x[5], x[6], x[7],
			x[8], x[9], x[10], x[11], x[12], x[13], x[14], x[15])
	default:
		return fmt.Sprint(x)
	}
}
