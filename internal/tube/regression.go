package tube

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Regressor is the minimal capability a candidate model must provide. Any
// fitted predictor satisfying it can be slotted into an ensemble without
// touching candidate generation or prediction.
type Regressor interface {
	Fit(x [][]float64, y []float64) error
	Predict(x [][]float64) []float64
	Score(x [][]float64, y []float64) float64
}

// LinearRegression is an ordinary least-squares model with intercept, solved
// by QR factorization.
type LinearRegression struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

// NewLinearRegression returns an unfitted model.
func NewLinearRegression() *LinearRegression {
	return &LinearRegression{}
}

// Fit solves the least-squares problem for the given row-major samples.
// An ill-conditioned design matrix is tolerated; the solution is still used.
func (m *LinearRegression) Fit(x [][]float64, y []float64) error {
	rows := len(x)
	if rows == 0 {
		return errors.New("no training rows")
	}
	if rows != len(y) {
		return fmt.Errorf("got %d rows but %d targets", rows, len(y))
	}
	cols := len(x[0])
	if rows < cols+1 {
		return fmt.Errorf("need at least %d rows to fit %d features, got %d", cols+1, cols, rows)
	}

	design := mat.NewDense(rows, cols+1, nil)
	for i, row := range x {
		design.Set(i, 0, 1)
		for j, v := range row {
			design.Set(i, j+1, v)
		}
	}

	var qr mat.QR
	qr.Factorize(design)
	beta := mat.NewVecDense(cols+1, nil)
	if err := qr.SolveVecTo(beta, false, mat.NewVecDense(rows, y)); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return fmt.Errorf("least squares solve failed: %w", err)
		}
	}

	m.Intercept = beta.AtVec(0)
	m.Coef = make([]float64, cols)
	for j := 0; j < cols; j++ {
		m.Coef[j] = beta.AtVec(j + 1)
	}
	return nil
}

// Predict evaluates the fitted model on row-major samples.
func (m *LinearRegression) Predict(x [][]float64) []float64 {
	pred := make([]float64, len(x))
	for i, row := range x {
		v := m.Intercept
		for j, c := range m.Coef {
			v += c * row[j]
		}
		pred[i] = v
	}
	return pred
}

// Score returns the coefficient of determination on the given samples. A
// constant target yields 1 when predicted exactly and 0 otherwise.
func (m *LinearRegression) Score(x [][]float64, y []float64) float64 {
	pred := m.Predict(x)
	mean := stat.Mean(y, nil)
	var ssRes, ssTot float64
	for i, v := range y {
		ssRes += (v - pred[i]) * (v - pred[i])
		ssTot += (v - mean) * (v - mean)
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}
