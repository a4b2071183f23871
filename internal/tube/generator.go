package tube

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// buildEnsemble produces up to KeepBestNumber candidates for one target by
// repeated random-subspace trials, each fitted on a fresh training sample and
// scored on a disjoint validation sample. countRows requests the total row
// count as a side product of the first trial.
func (t *Tube) buildEnsemble(target string, lp LearnParams, countRows bool, obs Observer) ([]Candidate, int, error) {
	cols := exclude(t.factors, target)
	pop := make([]Candidate, 0, lp.KeepBestNumber)
	totalRows := 0
	miss := 0

	for i := 0; i < lp.RetryNumber; i++ {
		obs.Step(1)

		features := t.sampleFeatures(cols, lp.MaxFeatures)
		trial, rows, err := t.gatherSamples(target, features, lp.SamplesPercent)
		if err != nil {
			return nil, 0, err
		}
		if i == 0 && countRows {
			totalRows = rows
		}

		model := t.newModel()
		accepted := false
		if err := model.Fit(trial.trainX, trial.trainY); err != nil {
			// Tiny units can leave too few rows for the drawn subset size.
			// The trial is simply unsuccessful, not fatal.
			t.logger.Debug("Trial fit failed",
				zap.String("target", target),
				zap.Strings("features", features),
				zap.Error(err))
		} else {
			score := model.Score(trial.valX, trial.valY)
			if len(pop) < lp.KeepBestNumber {
				pop = append(pop, Candidate{Model: model, Features: features, Score: score})
				continue
			}
			worst := 0
			for j := 1; j < len(pop); j++ {
				if pop[j].Score < pop[worst].Score {
					worst = j
				}
			}
			if score > pop[worst].Score {
				pop[worst] = Candidate{Model: model, Features: features, Score: score}
				miss = 0
				accepted = true
			}
		}

		if !accepted && len(pop) >= lp.KeepBestNumber {
			miss++
			if miss >= lp.KeepBestNumber {
				skipped := lp.RetryNumber - i - 1
				if skipped > 0 {
					obs.Step(skipped)
				}
				t.logger.Debug("Early stop",
					zap.String("target", target),
					zap.Int("trials", i+1),
					zap.Int("skipped", skipped))
				break
			}
		}
	}
	return pop, totalRows, nil
}

// sampleFeatures draws a random feature subset: a uniform size in
// [1, len(cols)], clamped by maxFeatures, then that many distinct columns.
func (t *Tube) sampleFeatures(cols []string, maxFeatures int) []string {
	perm := t.rng.Perm(len(cols))
	n := t.rng.Intn(len(cols)) + 1
	if maxFeatures < n {
		n = maxFeatures
	}
	if len(cols) < n {
		n = len(cols)
	}
	features := make([]string, n)
	for j := range features {
		features[j] = cols[perm[j]]
	}
	return features
}

type trialSamples struct {
	trainX [][]float64
	trainY []float64
	valX   [][]float64
	valY   []float64
}

// gatherSamples draws, for every unit, ceil(rows x pct) training rows with
// replacement and as many validation rows from the remaining rows (also with
// replacement), accumulating them into contiguous tables. When the training
// draw happens to touch every row of a unit, validation falls back to the
// full row range. Returns the total row count across units as a side product.
func (t *Tube) gatherSamples(target string, features []string, pct float64) (*trialSamples, int, error) {
	trial := &trialSamples{}
	totalRows := 0
	for i := 0; i < t.source.Len(); i++ {
		if err := t.source.Seek(i); err != nil {
			return nil, 0, err
		}
		u := t.source.Current()
		n := u.Len()
		totalRows += n
		if n == 0 {
			continue
		}
		m := int(math.Ceil(float64(n) * pct))
		if m < 1 {
			return nil, 0, fmt.Errorf("samples_percent %v draws no rows from unit %s", pct, u.Name())
		}

		y, err := u.Column(target)
		if err != nil {
			return nil, 0, err
		}
		fcols := make([][]float64, len(features))
		for j, f := range features {
			if fcols[j], err = u.Column(f); err != nil {
				return nil, 0, err
			}
		}

		used := make([]bool, n)
		trainIdx := make([]int, m)
		for k := range trainIdx {
			r := t.rng.Intn(n)
			trainIdx[k] = r
			used[r] = true
		}
		remaining := make([]int, 0, n)
		for r := 0; r < n; r++ {
			if !used[r] {
				remaining = append(remaining, r)
			}
		}
		valIdx := make([]int, m)
		for k := range valIdx {
			if len(remaining) == 0 {
				valIdx[k] = t.rng.Intn(n)
			} else {
				valIdx[k] = remaining[t.rng.Intn(len(remaining))]
			}
		}

		appendRows := func(idx []int, dstX *[][]float64, dstY *[]float64) {
			for _, r := range idx {
				row := make([]float64, len(fcols))
				for j, col := range fcols {
					row[j] = col[r]
				}
				*dstX = append(*dstX, row)
				*dstY = append(*dstY, y[r])
			}
		}
		appendRows(trainIdx, &trial.trainX, &trial.trainY)
		appendRows(valIdx, &trial.valX, &trial.valY)
	}
	return trial, totalRows, nil
}
