package tube

import "errors"

var (
	// ErrNoData is returned by Fit when the collection holds no units.
	ErrNoData = errors.New("collection has no units")

	// ErrNoFactors is returned by Fit when a target variable is left with no
	// usable predictor columns.
	ErrNoFactors = errors.New("no usable predictor columns")

	// ErrNoCurrentUnit is returned by Estimate when the collection has no
	// unit under its cursor.
	ErrNoCurrentUnit = errors.New("no current unit")
)
