package history

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet written on publish.
const SheetName = "Sheet1"

// ErrNoSheets is returned when a workbook contains no worksheet.
var ErrNoSheets = errors.New("workbook has no sheets")

// DecodeXLSX parses the first worksheet of an xlsx workbook. The first row is the header.
func DecodeXLSX(data []byte) (Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return Table{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close() //nolint:errcheck // in-memory workbook

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, ErrNoSheets
	}
	records, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return Table{}, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(records) == 0 {
		return Table{}, nil
	}

	header := make([]string, len(records[0]))
	for i, name := range records[0] {
		header[i] = strings.TrimSpace(name)
	}

	var tbl Table
	for r, record := range records[1:] {
		values := make(map[string]any, len(record))
		for i, cell := range record {
			if i >= len(header) || header[i] == "" || strings.TrimSpace(cell) == "" {
				continue
			}
			if header[i] == DateColumn {
				cell = dateCell(f, sheets[0], i+1, r+2, cell)
			}
			values[header[i]] = parseCell(header[i], cell)
		}
		if len(values) == 0 {
			continue
		}
		tbl = tbl.AppendRow(NewRow(header, values))
	}
	if tbl.Len() == 0 {
		// Header-only sheet: keep its columns.
		tbl = Table{columns: NewRow(header, nil).columns}
	}
	return tbl, nil
}

// EncodeXLSX renders t as a single-sheet workbook: one header row, then one row per
// snapshot. Absent values are left as empty cells.
func EncodeXLSX(t Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck // in-memory workbook

	for i, col := range t.columns {
		if err := setCell(f, i+1, 1, col); err != nil {
			return nil, err
		}
	}
	for r, row := range t.rows {
		for i, col := range t.columns {
			v, ok := row.Value(col)
			if !ok {
				continue
			}
			if err := setCell(f, i+1, r+2, v); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func setCell(f *excelize.File, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("cell name for %d,%d: %w", col, row, err)
	}
	if err := f.SetCellValue(SheetName, cell, value); err != nil {
		return fmt.Errorf("set cell %s: %w", cell, err)
	}
	return nil
}

// dateCell renders a date-formatted serial (what Google Sheets exports for typed dates)
// as DateLayout. Text and unformatted numbers are returned unchanged.
func dateCell(f *excelize.File, sheet string, col, row int, raw string) string {
	serial, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return raw
	}
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return raw
	}
	formatted, err := f.GetCellValue(sheet, name)
	if err != nil || formatted == raw {
		return raw
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return raw
	}
	return t.Format(DateLayout)
}

// parseCell converts raw cell text. Integral numbers become int64 so counts round-trip;
// the Date column always stays text.
func parseCell(column, raw string) any {
	raw = strings.TrimSpace(raw)
	if column == DateColumn {
		return raw
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f)
		}
		return f
	}
	return raw
}
