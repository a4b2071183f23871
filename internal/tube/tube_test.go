package tube

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/signal-tube/internal/collection"
)

// linearStore builds units where A is (almost) a linear function of B and C,
// so random-subspace candidates score well but not perfectly.
func linearStore(t *testing.T, units int, rows ...int) *collection.Store {
	t.Helper()
	store := collection.NewStore("test")
	for i := 0; i < units; i++ {
		n := rows[0]
		if i < len(rows) {
			n = rows[i]
		}
		a := make([]float64, n)
		b := make([]float64, n)
		c := make([]float64, n)
		for r := 0; r < n; r++ {
			x := float64(r) + 100*float64(i)
			b[r] = 0.5*x + math.Sin(0.21*x)
			c[r] = 20 - 0.1*x + math.Cos(0.17*x)
			a[r] = 2*b[r] - c[r] + 0.05*math.Sin(7.1*x)
		}
		u, err := collection.NewUnit(fmt.Sprintf("unit%02d", i), nil,
			[]string{"A", "B", "C"},
			map[string][]float64{"A": a, "B": b, "C": c})
		require.NoError(t, err)
		require.NoError(t, store.Append(u))
	}
	return store
}

// identityStore builds units where target A duplicates factor B exactly.
func identityStore(t *testing.T, units, rows int) *collection.Store {
	t.Helper()
	store := collection.NewStore("identity")
	for i := 0; i < units; i++ {
		b := make([]float64, rows)
		for r := range b {
			b[r] = float64(r) + 10*float64(i)
		}
		u, err := collection.NewUnit(fmt.Sprintf("unit%02d", i), nil,
			[]string{"A", "B"},
			map[string][]float64{"A": b, "B": b})
		require.NoError(t, err)
		require.NoError(t, store.Append(u))
	}
	return store
}

type recordObserver struct {
	total    int
	steps    []int
	statuses []string
}

func (o *recordObserver) Step(n int) {
	o.total += n
	o.steps = append(o.steps, n)
}

func (o *recordObserver) Status(msg string) {
	o.statuses = append(o.statuses, msg)
}

type stubRegressor struct {
	id      int
	score   float64
	predict float64
}

func (s *stubRegressor) Fit([][]float64, []float64) error { return nil }

func (s *stubRegressor) Predict(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i := range out {
		out[i] = s.predict
	}
	return out
}

func (s *stubRegressor) Score([][]float64, []float64) float64 { return s.score }

// scriptedFactory hands out stub regressors with predetermined held-out
// scores, one per trial.
func scriptedFactory(scores []float64) (func() Regressor, *[]*stubRegressor) {
	made := &[]*stubRegressor{}
	next := 0
	return func() Regressor {
		s := &stubRegressor{id: next, score: scores[next]}
		next++
		*made = append(*made, s)
		return s
	}, made
}

func TestFitNoData(t *testing.T) {
	store := collection.NewStore("empty")
	model := New(store)

	err := model.Fit(DefaultParams(), nil)

	require.ErrorIs(t, err, ErrNoData)
	assert.Empty(t, model.FitID())
	assert.Zero(t, model.TotalRows())
}

func TestFitNoFactors(t *testing.T) {
	store := identityStore(t, 1, 10)
	model := New(store, WithVariables("A"), WithFactors("A"))

	err := model.Fit(DefaultParams(), nil)

	require.ErrorIs(t, err, ErrNoFactors)
	assert.Empty(t, model.Ensemble("A"))
}

func TestEstimateBeforeFit(t *testing.T) {
	store := linearStore(t, 2, 50, 30)
	require.NoError(t, store.Seek(1))
	model := New(store)

	z, zmin, zmax, err := model.Estimate("A")

	require.NoError(t, err)
	require.Len(t, z, 30)
	require.Len(t, zmin, 30)
	require.Len(t, zmax, 30)
	for r := range z {
		assert.True(t, math.IsNaN(z[r]))
		assert.True(t, math.IsNaN(zmin[r]))
		assert.True(t, math.IsNaN(zmax[r]))
	}
}

func TestFitConcreteScenario(t *testing.T) {
	store := linearStore(t, 2, 50, 50)
	model := New(store,
		WithSeed(42),
		WithVariables("A"),
		WithFactors("A", "B", "C"))
	params := Params{
		Learn: LearnParams{
			RetryNumber:    5,
			KeepBestNumber: 2,
			SamplesPercent: 0.2,
			MaxFeatures:    2,
		},
		Tube: TubeParams{TubeThreshold: 0.1},
	}

	require.NoError(t, model.Fit(params, nil))

	ens := model.Ensemble("A")
	require.NotEmpty(t, ens)
	assert.LessOrEqual(t, len(ens), 2)
	subsetTotal := 0
	for _, cand := range ens {
		require.NotEmpty(t, cand.Features)
		assert.LessOrEqual(t, len(cand.Features), 2)
		for _, f := range cand.Features {
			assert.Contains(t, []string{"B", "C"}, f, "a target must never predict itself")
		}
		subsetTotal += len(cand.Features)
	}
	assert.Equal(t, 100, model.TotalRows())
	assert.NotEmpty(t, model.FitID())

	calib := model.CalibrationFor("A")
	assert.GreaterOrEqual(t, calib.QMin, 0.0)
	assert.GreaterOrEqual(t, calib.QMax, 0.0)

	for pos := 0; pos < store.Len(); pos++ {
		require.NoError(t, store.Seek(pos))
		z, zmin, zmax, err := model.Estimate("A")
		require.NoError(t, err)
		require.Len(t, z, 50)
		for r := range z {
			assert.LessOrEqual(t, zmin[r], z[r]+1e-9, "row %d of unit %d", r, pos)
			assert.LessOrEqual(t, z[r], zmax[r]+1e-9, "row %d of unit %d", r, pos)
		}
	}

	usage := model.Describe()
	if diff := cmp.Diff([]string{"A"}, usage.Variables); diff != "" {
		t.Fatalf("unexpected table rows (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"A", "B", "C"}, usage.Factors); diff != "" {
		t.Fatalf("unexpected table columns (-want +got):\n%s", diff)
	}
	assert.Zero(t, usage.At("A", "A"))
	counted := usage.At("A", "A") + usage.At("A", "B") + usage.At("A", "C")
	assert.Equal(t, subsetTotal, counted, "factor counts must sum to the feature-subset sizes")
}

func TestFitRestoresCursor(t *testing.T) {
	store := linearStore(t, 3, 20, 20, 20)
	require.NoError(t, store.Seek(2))
	model := New(store, WithSeed(7), WithVariables("A"))

	require.NoError(t, model.Fit(DefaultParams(), nil))
	assert.Equal(t, 2, store.Pos(), "fit must restore the cursor")

	require.NoError(t, store.Seek(1))
	_, err := model.Artifact()
	require.NoError(t, err)
	assert.Equal(t, 1, store.Pos())
}

func TestEarlyStop(t *testing.T) {
	store := linearStore(t, 1, 40)
	factory, made := scriptedFactory([]float64{0.5, 0.6, 0.1, 0.1, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9})
	model := New(store,
		WithSeed(1),
		WithVariables("A"),
		WithRegressorFactory(factory))
	params := Params{
		Learn: LearnParams{
			RetryNumber:    10,
			KeepBestNumber: 2,
			SamplesPercent: 0.2,
			MaxFeatures:    2,
		},
		Tube: TubeParams{TubeThreshold: 0.1},
	}
	obs := &recordObserver{}

	require.NoError(t, model.Fit(params, obs))

	// Two trials fill the population, two consecutive misses stop it.
	assert.Len(t, *made, 4, "no further trials may execute after the miss counter fills")
	scores := []float64{}
	for _, cand := range model.Ensemble("A") {
		scores = append(scores, cand.Score)
	}
	assert.ElementsMatch(t, []float64{0.5, 0.6}, scores)
	// 4 executed trials + 6 skipped reported at once + 1 calibration step.
	assert.Equal(t, 11, obs.total)
	assert.Contains(t, obs.statuses, "Working on target A ...")
	assert.Contains(t, obs.statuses, "Computing extreme quantiles...")
}

func TestWorstReplacementTieBreak(t *testing.T) {
	store := linearStore(t, 1, 40)
	factory, _ := scriptedFactory([]float64{0.5, 0.3, 0.3, 0.4})
	model := New(store,
		WithSeed(1),
		WithVariables("A"),
		WithRegressorFactory(factory))
	params := Params{
		Learn: LearnParams{
			RetryNumber:    4,
			KeepBestNumber: 3,
			SamplesPercent: 0.2,
			MaxFeatures:    2,
		},
		Tube: TubeParams{TubeThreshold: 0.1},
	}

	require.NoError(t, model.Fit(params, nil))

	ens := model.Ensemble("A")
	require.Len(t, ens, 3)
	// The earliest of the two tied worst candidates is the one replaced.
	assert.Equal(t, 0.5, ens[0].Score)
	assert.Equal(t, 0.4, ens[1].Score)
	assert.Equal(t, 0.3, ens[2].Score)
	assert.Equal(t, 3, ens[1].Model.(*stubRegressor).id)
}

func TestCalibrationFallback(t *testing.T) {
	// A single candidate collapses the raw spread to zero width, so no
	// residual can exceed the envelope and both factors default to 1.
	store := identityStore(t, 2, 30)
	model := New(store, WithSeed(3), WithVariables("A"))
	params := Params{
		Learn: LearnParams{
			RetryNumber:    1,
			KeepBestNumber: 1,
			SamplesPercent: 0.5,
			MaxFeatures:    1,
		},
		Tube: TubeParams{TubeThreshold: 0.05},
	}

	require.NoError(t, model.Fit(params, nil))

	require.Len(t, model.Ensemble("A"), 1)
	assert.Equal(t, Calibration{QMin: 1, QMax: 1}, model.CalibrationFor("A"))
}

func TestCalibrationQuantiles(t *testing.T) {
	// Two constant-output candidates put the raw envelope at [10, 20] with
	// center 15 on every row, so the target values yield known normalized
	// excesses. With keep = ceil(0.2 x 10) = 2 each pool retains its two
	// largest excesses and the factor is the smaller of them.
	y := []float64{19, 18, 16, 14, 13, 12.5, 15, 15, 15, 15}
	b := make([]float64, len(y))
	for r := range b {
		b[r] = float64(r)
	}
	store := collection.NewStore("calib")
	u, err := collection.NewUnit("unit00", nil, []string{"A", "B"},
		map[string][]float64{"A": y, "B": b})
	require.NoError(t, err)
	require.NoError(t, store.Append(u))

	outputs := []float64{10, 20}
	next := 0
	factory := func() Regressor {
		s := &stubRegressor{id: next, score: 0.5 + 0.1*float64(next), predict: outputs[next]}
		next++
		return s
	}
	model := New(store, WithSeed(1), WithVariables("A"), WithRegressorFactory(factory))
	params := Params{
		Learn: LearnParams{
			RetryNumber:    2,
			KeepBestNumber: 2,
			SamplesPercent: 0.2,
			MaxFeatures:    1,
		},
		Tube: TubeParams{TubeThreshold: 0.2},
	}

	require.NoError(t, model.Fit(params, nil))
	require.Len(t, model.Ensemble("A"), 2)

	// Upward excesses are (0.8, 0.6, 0.2): the pool keeps 0.6 and 0.8 and
	// scales by 0.6. Downward excesses (0.2, 0.4, 0.5) give 0.4.
	c := model.CalibrationFor("A")
	assert.InDelta(t, 0.6, c.QMax, 1e-12)
	assert.InDelta(t, 0.4, c.QMin, 1e-12)

	z, zmin, zmax, err := model.Estimate("A")
	require.NoError(t, err)
	assert.InDelta(t, 15, z[0], 1e-12)
	assert.InDelta(t, 13, zmin[0], 1e-12)
	assert.InDelta(t, 18, zmax[0], 1e-12)
}

func TestFitDeterministicWithSeed(t *testing.T) {
	params := Params{
		Learn: LearnParams{
			RetryNumber:    6,
			KeepBestNumber: 3,
			SamplesPercent: 0.3,
			MaxFeatures:    2,
		},
		Tube: TubeParams{TubeThreshold: 0.1},
	}
	run := func() ([]Candidate, Calibration) {
		store := linearStore(t, 2, 40, 40)
		model := New(store, WithSeed(99), WithVariables("A"))
		require.NoError(t, model.Fit(params, nil))
		return model.Ensemble("A"), model.CalibrationFor("A")
	}

	ens1, calib1 := run()
	ens2, calib2 := run()

	require.Equal(t, len(ens1), len(ens2))
	for i := range ens1 {
		assert.Equal(t, ens1[i].Features, ens2[i].Features)
		assert.Equal(t, ens1[i].Score, ens2[i].Score)
	}
	assert.Equal(t, calib1, calib2)
}

func TestEstimateDefaultsToDisplayedColumn(t *testing.T) {
	store := linearStore(t, 1, 30)
	require.NoError(t, store.SetDisplay("B"))
	model := New(store, WithSeed(5), WithVariables("A", "B"))
	params := DefaultParams()
	params.Learn.SamplesPercent = 0.3

	require.NoError(t, model.Fit(params, nil))

	z1, _, _, err := model.Estimate("")
	require.NoError(t, err)
	z2, _, _, err := model.Estimate("B")
	require.NoError(t, err)
	assert.Equal(t, z2, z1)
}

func TestEstimateUnknownColumn(t *testing.T) {
	store := linearStore(t, 1, 10)
	model := New(store)

	_, _, _, err := model.Estimate("bogus")

	require.Error(t, err)
	assert.True(t, errors.Is(err, collection.ErrUnknownColumn))
}

func TestArtifactRoundTrip(t *testing.T) {
	store := linearStore(t, 2, 40, 40)
	model := New(store, WithSeed(11), WithVariables("A"), WithFactors("A", "B", "C"))
	params := DefaultParams()
	params.Learn.SamplesPercent = 0.25
	require.NoError(t, model.Fit(params, nil))

	artifact, err := model.Artifact()
	require.NoError(t, err)

	restored := New(store)
	restored.Restore(artifact)

	assert.Equal(t, model.FitID(), restored.FitID())
	assert.Equal(t, model.TotalRows(), restored.TotalRows())
	require.NoError(t, store.Seek(0))
	z1, zmin1, zmax1, err := model.Estimate("A")
	require.NoError(t, err)
	z2, zmin2, zmax2, err := restored.Estimate("A")
	require.NoError(t, err)
	assert.Equal(t, z1, z2)
	assert.Equal(t, zmin1, zmin2)
	assert.Equal(t, zmax1, zmax2)
}
