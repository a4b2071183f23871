package collection

import (
	"fmt"
)

// IntervalColumn is the flag column added by Highlight.
const IntervalColumn = "INTERVAL"

// Highlight derives a new store from origin where an INTERVAL column marks,
// unit by unit, the rows whose index value appears in the corresponding
// extract unit. The derived store's phase is set to the INTERVAL column so
// the extraction shows up as a phase interval. Both stores must hold the same
// number of units.
func Highlight(origin, extract *Store) (*Store, error) {
	if origin.Len() != extract.Len() {
		return nil, fmt.Errorf("highlight: origin has %d units, extract has %d", origin.Len(), extract.Len())
	}
	out := NewStore(origin.Name() + "_E")
	for i := 0; i < origin.Len(); i++ {
		u := origin.Unit(i)
		marked := make(map[float64]struct{}, extract.Unit(i).Len())
		for _, idx := range extract.Unit(i).Index() {
			marked[idx] = struct{}{}
		}
		flags := make([]float64, u.Len())
		for r, idx := range u.Index() {
			if _, ok := marked[idx]; ok {
				flags[r] = 1
			}
		}
		flagged, err := u.WithColumn(IntervalColumn, flags)
		if err != nil {
			return nil, fmt.Errorf("highlight unit %s: %w", u.Name(), err)
		}
		if err := out.Append(flagged); err != nil {
			return nil, err
		}
	}
	if err := out.SetPhase(IntervalColumn); err != nil {
		return nil, err
	}
	return out, nil
}
