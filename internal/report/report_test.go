package report

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/signal-tube/internal/collection"
	"github.com/your-org/signal-tube/internal/csvwriter"
	"github.com/your-org/signal-tube/internal/tube"
)

func fittedModel(t *testing.T) (*tube.Tube, *collection.Store) {
	t.Helper()
	store := collection.NewStore("test")
	for i := 0; i < 2; i++ {
		n := 40
		a := make([]float64, n)
		b := make([]float64, n)
		for r := 0; r < n; r++ {
			x := float64(r) + 40*float64(i)
			b[r] = x
			a[r] = 2*x + 0.1*math.Sin(3*x)
		}
		u, err := collection.NewUnit("unit"+string(rune('A'+i)), nil,
			[]string{"A", "B"},
			map[string][]float64{"A": a, "B": b})
		require.NoError(t, err)
		require.NoError(t, store.Append(u))
	}
	model := tube.New(store, tube.WithSeed(17), tube.WithVariables("A"))
	params := tube.DefaultParams()
	params.Learn.SamplesPercent = 0.3
	params.Tube.TubeThreshold = 0.1
	require.NoError(t, model.Fit(params, nil))
	return model, store
}

func TestEvaluate(t *testing.T) {
	model, store := fittedModel(t)
	require.NoError(t, store.Seek(1))

	coverages, summaries, err := Evaluate(model, store, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 1, store.Pos(), "evaluate must restore the cursor")
	require.Len(t, coverages, 2)
	for _, c := range coverages {
		assert.Equal(t, "A", c.Variable)
		assert.Equal(t, 40, c.Rows)
		assert.GreaterOrEqual(t, c.Outside, 0)
		assert.LessOrEqual(t, c.Outside, c.Rows)
		ratio, _ := c.Coverage.Float64()
		assert.GreaterOrEqual(t, ratio, 0.0)
		assert.LessOrEqual(t, ratio, 1.0)
	}

	require.Len(t, summaries, 1)
	s := summaries[0]
	assert.Equal(t, "A", s.Variable)
	assert.Equal(t, 80, s.Rows)
	assert.Equal(t, coverages[0].Outside+coverages[1].Outside, s.Outside)
	assert.GreaterOrEqual(t, s.MeanWidth, 0.0)
	assert.GreaterOrEqual(t, s.ExcessP95, 0.0)
}

func TestEvaluateUntrainedVariableCountsNoRows(t *testing.T) {
	store := collection.NewStore("test")
	u, err := collection.NewUnit("u0", nil, []string{"A", "B"},
		map[string][]float64{"A": {1, 2, 3}, "B": {4, 5, 6}})
	require.NoError(t, err)
	require.NoError(t, store.Append(u))
	model := tube.New(store, tube.WithVariables("A"))

	coverages, summaries, err := Evaluate(model, store, zap.NewNop())
	require.NoError(t, err)

	require.Len(t, coverages, 1)
	assert.Zero(t, coverages[0].Rows, "NaN estimates are not countable rows")
	require.Len(t, summaries, 1)
	assert.True(t, summaries[0].Coverage.IsZero())
}

func TestWriteCSV(t *testing.T) {
	model, store := fittedModel(t)
	coverages, _, err := Evaluate(model, store, zap.NewNop())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "coverage.csv")
	w, err := csvwriter.NewWriter(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, WriteCSV(w, coverages))
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, []string{"unit", "variable", "rows", "outside", "coverage"}, records[0])
	assert.Equal(t, "unitA", records[1][0])
	assert.Equal(t, "40", records[1][2])
}
