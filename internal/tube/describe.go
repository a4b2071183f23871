package tube

import (
	"fmt"
	"strings"
)

// FactorUsage reports, per target variable, how many ensemble candidates
// selected each factor: a factor-importance audit of what the model actually
// relies on. Row and column order follow the tube's variable and factor
// order; untrained variables and never-selected factors count zero.
type FactorUsage struct {
	Variables []string
	Factors   []string
	counts    map[string]map[string]int
}

// Describe aggregates factor usage over the current ensembles.
func (t *Tube) Describe() *FactorUsage {
	fu := &FactorUsage{
		Variables: append([]string(nil), t.variables...),
		Factors:   append([]string(nil), t.factors...),
		counts:    make(map[string]map[string]int, len(t.variables)),
	}
	for _, v := range fu.Variables {
		row := make(map[string]int, len(fu.Factors))
		for _, cand := range t.ensembles[v] {
			for _, f := range cand.Features {
				row[f]++
			}
		}
		fu.counts[v] = row
	}
	return fu
}

// At returns the number of candidates in variable's ensemble that used
// factor.
func (fu *FactorUsage) At(variable, factor string) int {
	return fu.counts[variable][factor]
}

// String renders the table as aligned plain text.
func (fu *FactorUsage) String() string {
	var b strings.Builder
	width := len("target")
	for _, v := range fu.Variables {
		if len(v) > width {
			width = len(v)
		}
	}
	fmt.Fprintf(&b, "%-*s", width, "target")
	for _, f := range fu.Factors {
		fmt.Fprintf(&b, "  %s", f)
	}
	b.WriteByte('\n')
	for _, v := range fu.Variables {
		fmt.Fprintf(&b, "%-*s", width, v)
		for _, f := range fu.Factors {
			fmt.Fprintf(&b, "  %*d", len(f), fu.At(v, f))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
