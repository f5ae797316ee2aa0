// Package model defines the in-memory data shapes shared by extractors, writers and loaders.
package model

import (
	"fmt"
	"sort"
)

// Row is one record, positionally aligned with its RowSet's columns.
// Field values are nil (SQL NULL), string, int64, float64, bool or time.Time.
type Row []any

// RowSet is an ordered list of uniquely named columns plus rows aligned with them.
// Column order is exactly the order written to an extraction artifact.
type RowSet struct {
	columns []string
	index   map[string]int
	rows    []Row
}

// NewRowSet creates an empty RowSet with the given columns.
// It fails if a column name is empty or repeated.
func NewRowSet(columns ...string) (*RowSet, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if c == "" {
			return nil, fmt.Errorf("column %d has an empty name", i)
		}
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("duplicate column name '%s'", c)
		}
		index[c] = i
	}
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &RowSet{columns: cols, index: index}, nil
}

// MustRowSet is like NewRowSet but panics on invalid columns. Intended for static definitions and tests.
func MustRowSet(columns ...string) *RowSet {
	rs, err := NewRowSet(columns...)
	if err != nil {
		panic(err)
	}
	return rs
}

// Columns returns a copy of the column names in order.
func (rs *RowSet) Columns() []string {
	cols := make([]string, len(rs.columns))
	copy(cols, rs.columns)
	return cols
}

// Width returns the number of columns.
func (rs *RowSet) Width() int { return len(rs.columns) }

// Len returns the number of rows.
func (rs *RowSet) Len() int { return len(rs.rows) }

// Rows returns the underlying rows. Callers must not change their length.
func (rs *RowSet) Rows() []Row { return rs.rows }

// Row returns the i-th row.
func (rs *RowSet) Row(i int) Row { return rs.rows[i] }

// Index returns the position of column name and whether it exists.
func (rs *RowSet) Index(name string) (int, bool) {
	i, ok := rs.index[name]
	return i, ok
}

// HasColumn reports whether the column exists.
func (rs *RowSet) HasColumn(name string) bool {
	_, ok := rs.index[name]
	return ok
}

// Append adds a row. The row must have exactly Width() fields.
func (rs *RowSet) Append(row Row) error {
	if len(row) != len(rs.columns) {
		return fmt.Errorf("row has %d fields, expected %d", len(row), len(rs.columns))
	}
	rs.rows = append(rs.rows, row)
	return nil
}

// AppendAll appends every row of other, which must have identical columns.
func (rs *RowSet) AppendAll(other *RowSet) error {
	if !sameColumns(rs.columns, other.columns) {
		return fmt.Errorf("column mismatch: %v vs %v", rs.columns, other.columns)
	}
	rs.rows = append(rs.rows, other.rows...)
	return nil
}

// Get returns the value of column name in row i.
func (rs *RowSet) Get(i int, name string) (any, error) {
	pos, ok := rs.index[name]
	if !ok {
		return nil, fmt.Errorf("unknown column '%s'", name)
	}
	return rs.rows[i][pos], nil
}

// Set replaces the value of column name in row i.
func (rs *RowSet) Set(i int, name string, v any) error {
	pos, ok := rs.index[name]
	if !ok {
		return fmt.Errorf("unknown column '%s'", name)
	}
	rs.rows[i][pos] = v
	return nil
}

// AddColumn appends a column whose value for each row is produced by fn.
func (rs *RowSet) AddColumn(name string, fn func(i int, row Row) (any, error)) error {
	return rs.InsertColumn(len(rs.columns), name, fn)
}

// InsertColumn inserts a column at position pos, shifting later columns right.
// fn is called once per row in row order; a nil fn fills the column with NULL.
func (rs *RowSet) InsertColumn(pos int, name string, fn func(i int, row Row) (any, error)) error {
	if pos < 0 || pos > len(rs.columns) {
		return fmt.Errorf("column position %d out of range [0,%d]", pos, len(rs.columns))
	}
	if name == "" {
		return fmt.Errorf("column name must not be empty")
	}
	if _, dup := rs.index[name]; dup {
		return fmt.Errorf("duplicate column name '%s'", name)
	}

	values := make([]any, len(rs.rows))
	if fn != nil {
		for i, row := range rs.rows {
			v, err := fn(i, row)
			if err != nil {
				return err
			}
			values[i] = v
		}
	}

	rs.columns = append(rs.columns[:pos], append([]string{name}, rs.columns[pos:]...)...)
	rs.reindex()
	for i, row := range rs.rows {
		nr := make(Row, 0, len(row)+1)
		nr = append(nr, row[:pos]...)
		nr = append(nr, values[i])
		nr = append(nr, row[pos:]...)
		rs.rows[i] = nr
	}
	return nil
}

// Project returns a new RowSet containing only the named columns in the given order.
func (rs *RowSet) Project(columns ...string) (*RowSet, error) {
	out, err := NewRowSet(columns...)
	if err != nil {
		return nil, err
	}
	positions := make([]int, len(columns))
	for i, c := range columns {
		pos, ok := rs.index[c]
		if !ok {
			return nil, fmt.Errorf("unknown column '%s'", c)
		}
		positions[i] = pos
	}
	out.rows = make([]Row, len(rs.rows))
	for i, row := range rs.rows {
		nr := make(Row, len(positions))
		for j, pos := range positions {
			nr[j] = row[pos]
		}
		out.rows[i] = nr
	}
	return out, nil
}

// SortStable sorts rows with less, keeping the relative order of equal rows.
func (rs *RowSet) SortStable(less func(a, b Row) bool) {
	sort.SliceStable(rs.rows, func(i, j int) bool { return less(rs.rows[i], rs.rows[j]) })
}

func (rs *RowSet) reindex() {
	rs.index = make(map[string]int, len(rs.columns))
	for i, c := range rs.columns {
		rs.index[c] = i
	}
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
