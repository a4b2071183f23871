// Package collection provides the in-memory store of unit recordings that
// tube models train on: an ordered set of tabular units sharing one column
// schema, with a cursor designating the current unit.
package collection

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownColumn is returned when a name cannot be resolved to a schema column.
var ErrUnknownColumn = errors.New("unknown column")

// Unit is one recorded entity: a fixed set of named numeric signals sampled
// over a shared, time-ordered index.
type Unit struct {
	name    string
	index   []float64
	columns []string
	data    map[string][]float64
}

// NewUnit builds a unit from column-major data. Every column, and the index,
// must have the same length. A nil index defaults to 0..n-1.
func NewUnit(name string, index []float64, columns []string, data map[string][]float64) (*Unit, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("unit %s: no columns", name)
	}
	n := len(data[columns[0]])
	for _, c := range columns {
		vals, ok := data[c]
		if !ok {
			return nil, fmt.Errorf("unit %s: missing data for column %s", name, c)
		}
		if len(vals) != n {
			return nil, fmt.Errorf("unit %s: column %s has %d rows, want %d", name, c, len(vals), n)
		}
	}
	if index == nil {
		index = make([]float64, n)
		for i := range index {
			index[i] = float64(i)
		}
	}
	if len(index) != n {
		return nil, fmt.Errorf("unit %s: index has %d rows, want %d", name, len(index), n)
	}
	return &Unit{name: name, index: index, columns: append([]string(nil), columns...), data: data}, nil
}

// Name returns the unit's identifier.
func (u *Unit) Name() string { return u.name }

// Len returns the number of rows.
func (u *Unit) Len() int { return len(u.index) }

// Index returns the time-ordered row index.
func (u *Unit) Index() []float64 { return u.index }

// Columns returns the ordered column names.
func (u *Unit) Columns() []string { return u.columns }

// Column returns the values of the named column.
func (u *Unit) Column(name string) ([]float64, error) {
	vals, ok := u.data[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s (unit %s)", ErrUnknownColumn, name, u.name)
	}
	return vals, nil
}

// Phase reads the named column as a boolean flag: any non-zero value marks
// the row as inside the phase interval.
func (u *Unit) Phase(name string) ([]bool, error) {
	vals, err := u.Column(name)
	if err != nil {
		return nil, err
	}
	flags := make([]bool, len(vals))
	for i, v := range vals {
		flags[i] = v != 0
	}
	return flags, nil
}

// WithColumn returns a copy of the unit with one column added or replaced.
func (u *Unit) WithColumn(name string, values []float64) (*Unit, error) {
	if len(values) != u.Len() {
		return nil, fmt.Errorf("unit %s: column %s has %d rows, want %d", u.name, name, len(values), u.Len())
	}
	data := make(map[string][]float64, len(u.data)+1)
	for c, v := range u.data {
		data[c] = v
	}
	columns := u.columns
	if _, exists := u.data[name]; !exists {
		columns = append(append([]string(nil), u.columns...), name)
	}
	data[name] = values
	return &Unit{name: u.name, index: u.index, columns: columns, data: data}, nil
}

// resolveColumn matches a requested name against a schema: exact match first,
// then a unique case-insensitive prefix (signal names often carry a unit
// suffix, e.g. "ALT [ft]").
func resolveColumn(columns []string, name string) (string, error) {
	for _, c := range columns {
		if c == name {
			return c, nil
		}
	}
	var match string
	lower := strings.ToLower(name)
	for _, c := range columns {
		if strings.HasPrefix(strings.ToLower(c), lower) {
			if match != "" {
				return "", fmt.Errorf("%w: %q is ambiguous", ErrUnknownColumn, name)
			}
			match = c
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownColumn, name)
	}
	return match, nil
}
