// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package output

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"sqlrun/cli/internal/stream"
)

// maxSheetRows is the XLSX worksheet row limit, header included. Results
// larger than this cannot be rendered as a spreadsheet.
const maxSheetRows = 1048576

// xlsxWriter streams batches into a single worksheet using excelize's
// stream writer. Rows must be appended in order and the workbook is
// materialized on Close, so unlike CSV the file is not valid until the
// writer is finalized.
type xlsxWriter struct {
	path    string
	file    *excelize.File
	sw      *excelize.StreamWriter
	nextRow int // 1-based worksheet row to write next
}

func newXLSXWriter(path string) (*xlsxWriter, error) {
	f := excelize.NewFile()
	sw, err := f.NewStreamWriter("Sheet1")
	if err != nil {
		f.Close()
		return nil, err
	}
	return &xlsxWriter{path: path, file: f, sw: sw, nextRow: 1}, nil
}

func (x *xlsxWriter) WriteBatch(b stream.Batch) error {
	if b.First {
		header := make([]interface{}, len(b.Columns))
		for i, c := range b.Columns {
			header[i] = c
		}
		if err := x.writeRow(header); err != nil {
			return err
		}
	}
	for _, row := range b.Rows {
		cells := make([]interface{}, len(row))
		for i, v := range row {
			cells[i] = cellValue(v)
		}
		if err := x.writeRow(cells); err != nil {
			return err
		}
	}
	return nil
}

func (x *xlsxWriter) writeRow(cells []interface{}) error {
	if x.nextRow > maxSheetRows {
		return fmt.Errorf("result exceeds the %d-row worksheet limit; use csv or parquet output", maxSheetRows)
	}
	cell, err := excelize.CoordinatesToCellName(1, x.nextRow)
	if err != nil {
		return err
	}
	if err := x.sw.SetRow(cell, cells); err != nil {
		return err
	}
	x.nextRow++
	return nil
}

func (x *xlsxWriter) Close() error {
	if err := x.sw.Flush(); err != nil {
		x.file.Close()
		return err
	}
	if err := x.file.SaveAs(x.path); err != nil {
		x.file.Close()
		return err
	}
	return x.file.Close()
}

func (x *xlsxWriter) Path() string { return x.path }

// cellValue maps result values onto types excelize renders natively;
// anything without a spreadsheet representation falls back to CSV text form.
func cellValue(v any) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case string, bool, int, int16, int32, int64, float32, float64:
		return x
	case time.Time:
		return x
	default:
		return CellString(v)
	}
}
