package tube

import (
	"math"
	"sort"

	"go.uber.org/zap"
)

// excessPool keeps the top-keep largest values seen so far, ascending-sorted.
// Its smallest element after the full pass is the tail quantile used as a
// scale factor.
type excessPool struct {
	keep   int
	values []float64
}

func (p *excessPool) merge(batch []float64) {
	p.values = append(p.values, batch...)
	sort.Float64s(p.values)
	if len(p.values) > p.keep {
		p.values = p.values[len(p.values)-p.keep:]
	}
}

// factor returns the smallest of the retained values, or 1 when no positive
// excess was ever observed (the raw envelope already contains everything).
func (p *excessPool) factor() float64 {
	if len(p.values) == 0 {
		return 1
	}
	return p.values[0]
}

// calibrate derives per-variable scale factors so the envelope empirically
// keeps roughly a TubeThreshold tail of residuals outside on each side. It
// walks every unit once, pooling the normalized excesses of observations
// above and below the raw (uncalibrated) envelope, and retains the top
// ceil(threshold x totalRows) of each; the smallest retained value becomes
// the factor. Prior calibration is overwritten wholesale.
func (t *Tube) calibrate(tp TubeParams) error {
	keep := int(math.Ceil(tp.TubeThreshold * float64(t.totalRows)))
	if keep < 1 {
		keep = 1
	}

	up := make(map[string]*excessPool, len(t.variables))
	dn := make(map[string]*excessPool, len(t.variables))
	for _, v := range t.variables {
		up[v] = &excessPool{keep: keep}
		dn[v] = &excessPool{keep: keep}
	}

	for i := 0; i < t.source.Len(); i++ {
		if err := t.source.Seek(i); err != nil {
			return err
		}
		u := t.source.Current()
		for _, v := range t.variables {
			if len(t.ensembles[v]) == 0 {
				continue
			}
			y, err := u.Column(v)
			if err != nil {
				return err
			}
			z, zmin, zmax, err := t.aggregate(u, v)
			if err != nil {
				return err
			}
			var ups, dns []float64
			for r := range y {
				if zmax[r] > z[r] {
					if e := (y[r] - z[r]) / (zmax[r] - z[r]); e > 0 {
						ups = append(ups, e)
					}
				}
				if z[r] > zmin[r] {
					if e := (z[r] - y[r]) / (z[r] - zmin[r]); e > 0 {
						dns = append(dns, e)
					}
				}
			}
			up[v].merge(ups)
			dn[v].merge(dns)
		}
	}

	for _, v := range t.variables {
		c := Calibration{QMin: dn[v].factor(), QMax: up[v].factor()}
		t.calib[v] = c
		t.logger.Debug("Calibrated envelope",
			zap.String("target", v),
			zap.Float64("qmin", c.QMin),
			zap.Float64("qmax", c.QMax))
	}
	return nil
}
