// Package tube trains statistically calibrated trust envelopes around target
// signals recorded across a collection of units. An ensemble of randomly
// subsetted linear models produces a point estimate with a raw min/max
// spread, and a residual-quantile calibration widens that spread into an
// envelope that empirically contains most historical observations. Values
// falling outside the envelope flag anomalous behavior.
package tube

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/signal-tube/internal/collection"
)

// Collection is the unit source consumed by the engine: an ordered set of
// tabular units behind a cursor. The engine repositions the cursor while
// iterating and restores it before returning, since the cursor is shared
// with external consumers.
type Collection interface {
	Len() int
	Columns() []string
	Pos() int
	Seek(pos int) error
	Current() *collection.Unit
	Resolve(name string) (string, error)
	Display() string
}

// Candidate is one retained trial: a fitted model, the feature subset it was
// trained on, and its held-out score. Candidates are immutable; the selection
// loop replaces them wholesale, never mutates them.
type Candidate struct {
	Model    Regressor
	Features []string
	Score    float64
}

// Calibration scales the raw ensemble spread below (QMin) and above (QMax)
// the mean prediction. The zero-configuration pair is (1, 1).
type Calibration struct {
	QMin float64 `json:"qmin"`
	QMax float64 `json:"qmax"`
}

// Tube is the trained envelope model for a set of target variables over one
// collection.
type Tube struct {
	source    Collection
	variables []string
	factors   []string

	ensembles map[string][]Candidate
	calib     map[string]Calibration
	totalRows int
	fitID     string
	fitParams Params

	rng      *rand.Rand
	logger   *zap.Logger
	newModel func() Regressor
}

// Option configures a Tube at construction time.
type Option func(*Tube)

// WithSeed makes training deterministic for a fixed seed.
func WithSeed(seed int64) Option {
	return func(t *Tube) { t.rng = rand.New(rand.NewSource(seed)) }
}

// WithLogger attaches a logger; the default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tube) { t.logger = logger }
}

// WithVariables selects the target variables to learn. The default is the
// collection's first column.
func WithVariables(names ...string) Option {
	return func(t *Tube) { t.variables = dedupe(names) }
}

// WithFactors selects the candidate predictor columns. The default is every
// column. Factors may overlap with variables; a variable is never used to
// predict itself.
func WithFactors(names ...string) Option {
	return func(t *Tube) { t.factors = dedupe(names) }
}

// WithRegressorFactory substitutes the regressor fitted on each trial. The
// default is NewLinearRegression.
func WithRegressorFactory(f func() Regressor) Option {
	return func(t *Tube) { t.newModel = f }
}

// New binds an untrained tube model to a collection.
func New(source Collection, opts ...Option) *Tube {
	t := &Tube{
		source:    source,
		ensembles: make(map[string][]Candidate),
		calib:     make(map[string]Calibration),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:    zap.NewNop(),
		newModel:  func() Regressor { return NewLinearRegression() },
	}
	if cols := source.Columns(); len(cols) > 0 {
		t.variables = []string{cols[0]}
		t.factors = append([]string(nil), cols...)
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Variables returns the target variables.
func (t *Tube) Variables() []string { return t.variables }

// Factors returns the candidate predictor columns.
func (t *Tube) Factors() []string { return t.factors }

// Ensemble returns the retained candidates for a variable, nil when the
// variable was never trained.
func (t *Tube) Ensemble(variable string) []Candidate {
	return append([]Candidate(nil), t.ensembles[variable]...)
}

// CalibrationFor returns the variable's calibration pair, (1, 1) when the
// variable was never calibrated.
func (t *Tube) CalibrationFor(variable string) Calibration {
	if c, ok := t.calib[variable]; ok {
		return c
	}
	return Calibration{QMin: 1, QMax: 1}
}

// TotalRows returns the cached row count summed over all units, 0 before the
// first fit.
func (t *Tube) TotalRows() int { return t.totalRows }

// FitID identifies the most recent successful fit, "" before the first one.
func (t *Tube) FitID() string { return t.fitID }

// FitParams returns the parameters used by the most recent fit.
func (t *Tube) FitParams() Params { return t.fitParams }

// Fit trains the ensembles and calibrates the envelope in one pass, replacing
// any prior state. It fails with ErrNoData before any work when the
// collection is empty, and with ErrNoFactors when a target variable has no
// usable predictors; neither failure mutates the model. The collection cursor
// is restored on every exit path.
func (t *Tube) Fit(p Params, obs Observer) error {
	if obs == nil {
		obs = NopObserver{}
	}
	if t.source.Len() == 0 {
		return ErrNoData
	}
	if p.Learn.KeepBestNumber > p.Learn.RetryNumber {
		t.logger.Warn("keep_best_number exceeds retry_number; population cannot fill and early stopping never triggers",
			zap.Int("keepBestNumber", p.Learn.KeepBestNumber),
			zap.Int("retryNumber", p.Learn.RetryNumber))
	}
	for _, v := range t.variables {
		if len(exclude(t.factors, v)) == 0 {
			return fmt.Errorf("%w for target %s", ErrNoFactors, v)
		}
	}

	origin := t.source.Pos()
	defer func() {
		if err := t.source.Seek(origin); err != nil {
			t.logger.Error("Failed to restore collection cursor", zap.Int("pos", origin), zap.Error(err))
		}
	}()

	start := time.Now()
	totalRows := 0
	ensembles := make(map[string][]Candidate, len(t.variables))
	for _, v := range t.variables {
		obs.Status("Working on target " + v + " ...")
		ens, rows, err := t.buildEnsemble(v, p.Learn, totalRows == 0, obs)
		if err != nil {
			return err
		}
		if totalRows == 0 {
			totalRows = rows
		}
		ensembles[v] = ens
		t.logger.Info("Ensemble built",
			zap.String("target", v),
			zap.Int("candidates", len(ens)))
	}

	t.ensembles = ensembles
	t.totalRows = totalRows
	t.calib = make(map[string]Calibration, len(t.variables))
	for _, v := range t.variables {
		t.calib[v] = Calibration{QMin: 1, QMax: 1}
	}

	obs.Step(1)
	obs.Status("Computing extreme quantiles...")
	if err := t.calibrate(p.Tube); err != nil {
		return err
	}

	t.fitID = uuid.NewString()
	t.fitParams = p
	obs.Status("")
	t.logger.Info("Fit complete",
		zap.String("fitID", t.fitID),
		zap.Int("totalRows", t.totalRows),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func exclude(names []string, drop string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != drop {
			out = append(out, n)
		}
	}
	return out
}
