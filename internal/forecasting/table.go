package forecasting

import (
	"fmt"
	"time"
)

// FeatureTable is a row-major numeric table indexed by date.
type FeatureTable struct {
	Dates   []time.Time
	Columns []string
	Rows    [][]float64
}

// Len returns the number of rows.
func (t *FeatureTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the position of name, or -1.
func (t *FeatureTable) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of the named column.
func (t *FeatureTable) Column(name string) ([]float64, error) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("forecasting: column %q not in table", name)
	}
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Slice returns rows [from, to) sharing the underlying row slices.
func (t *FeatureTable) Slice(from, to int) *FeatureTable {
	out := &FeatureTable{
		Columns: t.Columns,
		Rows:    t.Rows[from:to],
	}
	if len(t.Dates) == len(t.Rows) {
		out.Dates = t.Dates[from:to]
	}
	return out
}

// Select returns the rows at the given indices.
func (t *FeatureTable) Select(indices []int) *FeatureTable {
	out := &FeatureTable{
		Columns: t.Columns,
		Rows:    make([][]float64, len(indices)),
	}
	withDates := len(t.Dates) == len(t.Rows)
	if withDates {
		out.Dates = make([]time.Time, len(indices))
	}
	for i, idx := range indices {
		out.Rows[i] = t.Rows[idx]
		if withDates {
			out.Dates[i] = t.Dates[idx]
		}
	}
	return out
}

// Reindex returns a table with exactly the given columns: missing columns are
// filled with fill, extra columns are dropped.
func (t *FeatureTable) Reindex(columns []string, fill float64) *FeatureTable {
	positions := make([]int, len(columns))
	for i, c := range columns {
		positions[i] = t.ColumnIndex(c)
	}
	out := &FeatureTable{
		Dates:   t.Dates,
		Columns: append([]string(nil), columns...),
		Rows:    make([][]float64, len(t.Rows)),
	}
	for r, row := range t.Rows {
		values := make([]float64, len(columns))
		for i, pos := range positions {
			if pos < 0 {
				values[i] = fill
			} else {
				values[i] = row[pos]
			}
		}
		out.Rows[r] = values
	}
	return out
}

// sameColumns reports whether t has exactly the given columns in order.
func (t *FeatureTable) sameColumns(columns []string) bool {
	if len(t.Columns) != len(columns) {
		return false
	}
	for i, c := range columns {
		if t.Columns[i] != c {
			return false
		}
	}
	return true
}
