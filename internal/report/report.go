// Package report evaluates a trained tube model against its own collection
// and aggregates how well the envelope contains the recorded data.
package report

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/your-org/signal-tube/internal/csvwriter"
	"github.com/your-org/signal-tube/internal/tube"
)

// UnitCoverage counts, for one unit and one target variable, the rows whose
// observed value fell inside and outside the calibrated envelope.
type UnitCoverage struct {
	Unit     string
	Variable string
	Rows     int
	Outside  int
	Coverage decimal.Decimal
}

// Summary aggregates coverage per target variable across all units.
type Summary struct {
	Variable string
	Rows     int
	Outside  int
	Coverage decimal.Decimal
	// MeanWidth is the mean calibrated envelope width across all rows.
	MeanWidth float64
	// ExcessP95 is the empirical 95th percentile of the absolute residual
	// |y - z| over all rows.
	ExcessP95 float64
}

// Evaluate walks every unit of the model's collection, estimates each target
// variable and tallies envelope coverage. The collection cursor is restored
// before returning.
func Evaluate(model *tube.Tube, src tube.Collection, logger *zap.Logger) ([]UnitCoverage, []Summary, error) {
	origin := src.Pos()
	defer func() {
		if err := src.Seek(origin); err != nil {
			logger.Error("Failed to restore collection cursor", zap.Int("pos", origin), zap.Error(err))
		}
	}()

	var coverages []UnitCoverage
	totals := make(map[string]*Summary)
	residuals := make(map[string][]float64)
	widths := make(map[string][]float64)

	for i := 0; i < src.Len(); i++ {
		if err := src.Seek(i); err != nil {
			return nil, nil, err
		}
		u := src.Current()
		for _, v := range model.Variables() {
			y, err := u.Column(v)
			if err != nil {
				return nil, nil, err
			}
			z, zmin, zmax, err := model.Estimate(v)
			if err != nil {
				return nil, nil, fmt.Errorf("estimate %s on unit %s: %w", v, u.Name(), err)
			}
			outside, rows := 0, 0
			for r := range y {
				if math.IsNaN(z[r]) {
					continue
				}
				rows++
				if y[r] < zmin[r] || y[r] > zmax[r] {
					outside++
				}
				residuals[v] = append(residuals[v], math.Abs(y[r]-z[r]))
				widths[v] = append(widths[v], zmax[r]-zmin[r])
			}
			coverages = append(coverages, UnitCoverage{
				Unit:     u.Name(),
				Variable: v,
				Rows:     rows,
				Outside:  outside,
				Coverage: coverageRatio(rows, outside),
			})
			s, ok := totals[v]
			if !ok {
				s = &Summary{Variable: v}
				totals[v] = s
			}
			s.Rows += rows
			s.Outside += outside
		}
	}

	summaries := make([]Summary, 0, len(totals))
	for _, v := range model.Variables() {
		s, ok := totals[v]
		if !ok {
			continue
		}
		s.Coverage = coverageRatio(s.Rows, s.Outside)
		if res := residuals[v]; len(res) > 0 {
			sort.Float64s(res)
			s.ExcessP95 = stat.Quantile(0.95, stat.Empirical, res, nil)
			s.MeanWidth = stat.Mean(widths[v], nil)
		}
		summaries = append(summaries, *s)
		logger.Info("Envelope coverage",
			zap.String("target", s.Variable),
			zap.Int("rows", s.Rows),
			zap.Int("outside", s.Outside),
			zap.String("coverage", s.Coverage.String()))
	}
	return coverages, summaries, nil
}

// WriteCSV writes per-unit coverage rows to the given writer, header first.
func WriteCSV(w *csvwriter.Writer, coverages []UnitCoverage) error {
	if err := w.Write([]string{"unit", "variable", "rows", "outside", "coverage"}); err != nil {
		return err
	}
	for _, c := range coverages {
		record := []string{
			c.Unit,
			c.Variable,
			strconv.Itoa(c.Rows),
			strconv.Itoa(c.Outside),
			c.Coverage.String(),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return nil
}

// coverageRatio returns (rows - outside) / rows at four decimal places, 0
// when no rows were estimable.
func coverageRatio(rows, outside int) decimal.Decimal {
	if rows == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(rows - outside)).
		Div(decimal.NewFromInt(int64(rows))).
		Round(4)
}
