// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// CopySource streams a COPY TO STDOUT command's output to a writer and
// reports the exported row count. The engine's connection satisfies it.
type CopySource interface {
	CopyTo(ctx context.Context, w io.Writer, sql string) (int64, error)
}

// CopyFunc adapts a plain function to CopySource.
type CopyFunc func(ctx context.Context, w io.Writer, sql string) (int64, error)

// CopyTo implements CopySource.
func (f CopyFunc) CopyTo(ctx context.Context, w io.Writer, sql string) (int64, error) {
	return f(ctx, w, sql)
}

// NativeEligible reports whether a statement can take the server-side CSV
// export path: plain result-producing statements only, since COPY cannot
// wrap statements with their own I/O or utility semantics.
func NativeEligible(format Format, stmtText string) bool {
	if format != FormatCSVNative {
		return false
	}
	head := strings.ToLower(strings.TrimSpace(stmtText))
	for _, kw := range []string{"select", "with", "values", "table"} {
		if strings.HasPrefix(head, kw+" ") || strings.HasPrefix(head, kw+"(") {
			return true
		}
	}
	return false
}

// ExportNativeCSV wraps the query in COPY ... TO STDOUT WITH CSV HEADER and
// streams the server's output straight into path. The server renders the
// rows, so the result is byte-identical to the row-by-row CSV writer.
// Returns the number of exported data rows (header excluded).
func ExportNativeCSV(ctx context.Context, src CopySource, query, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	copySQL := fmt.Sprintf("COPY (%s) TO STDOUT WITH CSV HEADER", strings.TrimRight(strings.TrimSpace(query), ";"))
	n, err := src.CopyTo(ctx, f, copySQL)
	if err != nil {
		f.Close()
		os.Remove(path) // partial export is not a usable result file
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	return n, nil
}
