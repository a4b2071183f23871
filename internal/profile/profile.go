// Package profile computes per-column signal statistics used to audit a
// collection before and after training: dispersion, step volatility and the
// Hurst exponent as a rough persistence measure.
package profile

import (
	"fmt"
	"math"

	"github.com/rodrigo-brito/hurst"
	"gonum.org/v1/gonum/stat"

	"github.com/your-org/signal-tube/internal/collection"
)

// ColumnProfile summarizes one column of one unit.
type ColumnProfile struct {
	Column     string
	Rows       int
	Mean       float64
	StdDev     float64
	Volatility float64
	Hurst      float64
	HurstOK    bool
}

// Volatility is the standard deviation of the signal's successive
// differences. Unlike log-return volatility it is defined for signals that
// cross zero.
func Volatility(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	diffs := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		diffs[i-1] = values[i] - values[i-1]
	}
	return stat.StdDev(diffs, nil)
}

// HurstExponent estimates the Hurst exponent over lags [minLag, maxLag).
func HurstExponent(values []float64, minLag, maxLag int) (float64, error) {
	if len(values) < maxLag {
		return 0, fmt.Errorf("not enough data for Hurst exponent, got %d rows, need at least %d", len(values), maxLag)
	}
	return hurst.Estimate(values, minLag, maxLag), nil
}

// Describe profiles every column of a unit. Hurst estimation uses the given
// lag range and is skipped (HurstOK false) when the unit is too short.
func Describe(u *collection.Unit, minLag, maxLag int) ([]ColumnProfile, error) {
	profiles := make([]ColumnProfile, 0, len(u.Columns()))
	for _, c := range u.Columns() {
		vals, err := u.Column(c)
		if err != nil {
			return nil, err
		}
		p := ColumnProfile{
			Column:     c,
			Rows:       len(vals),
			Volatility: Volatility(vals),
		}
		if len(vals) > 0 {
			p.Mean = stat.Mean(vals, nil)
			p.StdDev = stat.StdDev(vals, nil)
			if math.IsNaN(p.StdDev) { // single row
				p.StdDev = 0
			}
		}
		if h, err := HurstExponent(vals, minLag, maxLag); err == nil {
			p.Hurst = h
			p.HurstOK = true
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}
