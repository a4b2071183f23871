package tube

import (
	"math"

	"github.com/your-org/signal-tube/internal/collection"
)

// Estimate returns the point estimate and calibrated envelope for a target
// variable on the unit currently under the collection's cursor, one entry per
// row. An empty name resolves to the collection's displayed column. A
// variable without a trained ensemble yields NaN-filled arrays with
// zmin = zmax = z, explicitly signaling "unestimable". Estimate has no side
// effects.
func (t *Tube) Estimate(name string) (z, zmin, zmax []float64, err error) {
	col := name
	if col == "" {
		col = t.source.Display()
	} else if col, err = t.source.Resolve(name); err != nil {
		return nil, nil, nil, err
	}
	u := t.source.Current()
	if u == nil {
		return nil, nil, nil, ErrNoCurrentUnit
	}

	if len(t.ensembles[col]) == 0 {
		z = nanSlice(u.Len())
		return z, nanSlice(u.Len()), nanSlice(u.Len()), nil
	}

	z, zminRaw, zmaxRaw, err := t.aggregate(u, col)
	if err != nil {
		return nil, nil, nil, err
	}
	c := t.CalibrationFor(col)
	zmin = make([]float64, len(z))
	zmax = make([]float64, len(z))
	for r := range z {
		zmin[r] = z[r] - c.QMin*(z[r]-zminRaw[r])
		zmax[r] = z[r] + c.QMax*(zmaxRaw[r]-z[r])
	}
	return z, zmin, zmax, nil
}

// aggregate evaluates every candidate of the variable's ensemble on the
// given unit and reduces the predictions elementwise to mean, min and max.
// The mean of a set lies within its extremes, so zmin <= z <= zmax holds by
// construction.
func (t *Tube) aggregate(u *collection.Unit, variable string) (z, zmin, zmax []float64, err error) {
	ens := t.ensembles[variable]
	n := u.Len()
	z = make([]float64, n)
	zmin = make([]float64, n)
	zmax = make([]float64, n)
	for r := range zmin {
		zmin[r] = math.Inf(1)
		zmax[r] = math.Inf(-1)
	}

	x := make([][]float64, n)
	for _, cand := range ens {
		fcols := make([][]float64, len(cand.Features))
		for j, f := range cand.Features {
			if fcols[j], err = u.Column(f); err != nil {
				return nil, nil, nil, err
			}
		}
		for r := 0; r < n; r++ {
			row := make([]float64, len(fcols))
			for j, col := range fcols {
				row[j] = col[r]
			}
			x[r] = row
		}
		pred := cand.Model.Predict(x)
		for r, v := range pred {
			z[r] += v
			if v < zmin[r] {
				zmin[r] = v
			}
			if v > zmax[r] {
				zmax[r] = v
			}
		}
	}
	for r := range z {
		z[r] /= float64(len(ens))
	}
	return z, zmin, zmax, nil
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
