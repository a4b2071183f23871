package collection

import (
	"errors"
	"fmt"
	"sync"
)

// ErrSchemaMismatch is returned when an appended unit does not share the
// store's column schema.
var ErrSchemaMismatch = errors.New("unit schema mismatch")

// Store is an ordered, cursor-addressable set of units sharing one column
// schema. The cursor ("current unit") is shared mutable state: consumers that
// reposition it while iterating are expected to restore it before returning.
type Store struct {
	mu      sync.RWMutex
	name    string
	units   []*Unit
	columns []string
	pos     int
	display string
	phase   string
}

// NewStore creates an empty store. The schema is fixed by the first appended
// unit.
func NewStore(name string) *Store {
	return &Store{name: name}
}

// Name returns the store's identifier.
func (s *Store) Name() string { return s.name }

// Append adds a unit. The first unit fixes the schema; later units must match
// it exactly (same columns, same order).
func (s *Store) Append(u *Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.units) == 0 {
		s.columns = append([]string(nil), u.Columns()...)
		s.display = s.columns[0]
	} else if !equalColumns(s.columns, u.Columns()) {
		return fmt.Errorf("%w: unit %s", ErrSchemaMismatch, u.Name())
	}
	s.units = append(s.units, u)
	return nil
}

// Len returns the number of units.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.units)
}

// Columns returns the shared column schema.
func (s *Store) Columns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.columns
}

// Pos returns the cursor position.
func (s *Store) Pos() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pos
}

// Seek moves the cursor to the given unit position.
func (s *Store) Seek(pos int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos < 0 || pos >= len(s.units) {
		return fmt.Errorf("seek position %d out of range [0,%d)", pos, len(s.units))
	}
	s.pos = pos
	return nil
}

// Current returns the unit at the cursor, or nil when the store is empty.
func (s *Store) Current() *Unit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.units) == 0 {
		return nil
	}
	return s.units[s.pos]
}

// Unit returns the unit at the given position without moving the cursor.
func (s *Store) Unit(i int) *Unit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.units[i]
}

// Display returns the currently displayed column, used as the default
// estimation target.
func (s *Store) Display() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.display
}

// SetDisplay selects the displayed column.
func (s *Store) SetDisplay(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, err := resolveColumn(s.columns, name)
	if err != nil {
		return err
	}
	s.display = col
	return nil
}

// Phase returns the phase column name, or "" when none is set.
func (s *Store) Phase() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// SetPhase designates the column whose non-zero rows form the phase interval.
func (s *Store) SetPhase(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, err := resolveColumn(s.columns, name)
	if err != nil {
		return err
	}
	s.phase = col
	return nil
}

// Resolve maps a requested name onto a schema column.
func (s *Store) Resolve(name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return resolveColumn(s.columns, name)
}

// TotalRows sums row counts across all units.
func (s *Store) TotalRows() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, u := range s.units {
		total += u.Len()
	}
	return total
}

func equalColumns(a, b []string) bool {
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
