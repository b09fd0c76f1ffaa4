// Package learn provides the regression and time-series fitting primitives used by
// the forecasting pipeline: ordinary least squares, CART regression trees, random
// forests, gradient boosting, an additive trend/seasonality model and ARIMA.
//
// All estimators work on row-major float64 matrices and are deterministic for a
// fixed seed.
package learn

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNotFitted is returned when Predict is called before Fit.
	ErrNotFitted = errors.New("learn: estimator is not fitted")
	// ErrEmptyInput is returned when Fit receives no rows.
	ErrEmptyInput = errors.New("learn: empty input")
)

// Regressor is a supervised estimator over a feature matrix.
type Regressor interface {
	Fit(X [][]float64, y []float64) error
	Predict(X [][]float64) ([]float64, error)
}

// Importancer is implemented by estimators that expose per-feature importances.
// Importances are non-negative and sum to 1 when any split was made.
type Importancer interface {
	FeatureImportances() []float64
}

// validateXY checks that X is rectangular and matches y.
func validateXY(X [][]float64, y []float64) (int, error) {
	if len(X) == 0 {
		return 0, ErrEmptyInput
	}
	if len(X) != len(y) {
		return 0, fmt.Errorf("learn: %d rows but %d targets", len(X), len(y))
	}
	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return 0, fmt.Errorf("learn: row %d has %d columns, want %d", i, len(row), width)
		}
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("learn: target %d is not finite", i)
		}
	}
	return width, nil
}

func validateWidth(X [][]float64, width int) error {
	for i, row := range X {
		if len(row) != width {
			return fmt.Errorf("learn: row %d has %d columns, model expects %d", i, len(row), width)
		}
	}
	return nil
}

func allFinite(X [][]float64) bool {
	for _, row := range X {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// normalize scales v in place so it sums to 1. A zero vector is left unchanged.
func normalize(v []float64) {
	var total float64
	for _, x := range v {
		total += x
	}
	if total <= 0 {
		return
	}
	for i := range v {
		v[i] /= total
	}
}
