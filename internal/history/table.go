// Package history holds the append-only follower table and its spreadsheet persistence.
package history

import "time"

// DateColumn is the fixed first column of every snapshot row.
const DateColumn = "Date"

// DateLayout renders snapshot dates as YYYY/MM/DD.
const DateLayout = "2006/01/02"

// Row maps column names to cell values in a fixed column order. A column without a
// value is blank, which is distinct from a zero count.
type Row struct {
	columns []string
	values  map[string]any
}

// NewRow builds a Row. Duplicate and empty column names are dropped; values whose column
// is not listed are ignored.
func NewRow(columns []string, values map[string]any) Row {
	seen := make(map[string]struct{}, len(columns))
	cols := make([]string, 0, len(columns))
	vals := make(map[string]any, len(values))
	for _, c := range columns {
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		cols = append(cols, c)
		if v, ok := values[c]; ok && v != nil {
			vals[c] = v
		}
	}
	return Row{columns: cols, values: vals}
}

// NewSnapshotRow builds the dated row for one run. counts holds only the accounts whose
// lookup succeeded; accounts missing from it stay blank. An account named DateColumn is
// ignored.
func NewSnapshotRow(date time.Time, accounts []string, counts map[string]int64) Row {
	columns := make([]string, 0, len(accounts)+1)
	columns = append(columns, DateColumn)
	columns = append(columns, accounts...)

	values := make(map[string]any, len(counts)+1)
	values[DateColumn] = date.Format(DateLayout)
	for _, a := range accounts {
		if a == DateColumn {
			continue
		}
		if n, ok := counts[a]; ok {
			values[a] = n
		}
	}
	return NewRow(columns, values)
}

// Columns returns the row's columns in order.
func (r Row) Columns() []string {
	return append([]string(nil), r.columns...)
}

// Value returns the value stored under column.
func (r Row) Value(column string) (any, bool) {
	v, ok := r.values[column]
	return v, ok
}

// Table is an ordered sequence of rows whose column set is the union of every row's
// columns in first-appearance order.
type Table struct {
	columns []string
	rows    []Row
}

// Columns returns the table's columns in order.
func (t Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Rows returns the table's rows in append order.
func (t Table) Rows() []Row {
	return append([]Row(nil), t.rows...)
}

// Len returns the number of rows.
func (t Table) Len() int {
	return len(t.rows)
}

// AppendRow returns a new table with row added at the end. The receiver is unchanged.
func (t Table) AppendRow(row Row) Table {
	columns := append([]string(nil), t.columns...)
	known := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		known[c] = struct{}{}
	}
	for _, c := range row.columns {
		if _, ok := known[c]; !ok {
			known[c] = struct{}{}
			columns = append(columns, c)
		}
	}

	rows := make([]Row, len(t.rows), len(t.rows)+1)
	copy(rows, t.rows)
	rows = append(rows, row)
	return Table{columns: columns, rows: rows}
}
