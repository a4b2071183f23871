package collection

import (
	"fmt"
	"sort"
)

// Builder accumulates rows one at a time and flushes them into a store as
// complete units. Rows belong to the unit named when they are added; a row
// for a new unit name closes the previous unit. Used by streaming ingest,
// where data arrives row-wise rather than unit-wise.
type Builder struct {
	store   *Store
	unit    string
	index   []float64
	columns []string
	data    map[string][]float64
}

// NewBuilder creates a builder targeting the given store.
func NewBuilder(store *Store) *Builder {
	return &Builder{store: store}
}

// Add appends one row. The first row of the first unit fixes the column set
// (sorted by name when the store is still empty); later rows must provide a
// value for every column.
func (b *Builder) Add(unit string, index float64, values map[string]float64) error {
	if unit == "" {
		return fmt.Errorf("builder: empty unit name")
	}
	if b.unit != "" && unit != b.unit {
		if err := b.Flush(); err != nil {
			return err
		}
	}
	if b.unit == "" {
		b.unit = unit
		b.columns = b.rowColumns(values)
		b.data = make(map[string][]float64, len(b.columns))
	}
	for _, c := range b.columns {
		if _, ok := values[c]; !ok {
			return fmt.Errorf("builder: row for unit %s missing column %s", unit, c)
		}
	}
	for _, c := range b.columns {
		b.data[c] = append(b.data[c], values[c])
	}
	b.index = append(b.index, index)
	return nil
}

// Flush closes the unit under construction and appends it to the store.
// Flushing with no pending rows is a no-op.
func (b *Builder) Flush() error {
	if b.unit == "" {
		return nil
	}
	u, err := NewUnit(b.unit, b.index, b.columns, b.data)
	if err != nil {
		return err
	}
	if err := b.store.Append(u); err != nil {
		return err
	}
	b.unit = ""
	b.index = nil
	b.columns = nil
	b.data = nil
	return nil
}

func (b *Builder) rowColumns(values map[string]float64) []string {
	if cols := b.store.Columns(); len(cols) > 0 {
		return append([]string(nil), cols...)
	}
	cols := make([]string, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}
