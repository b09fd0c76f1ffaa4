package learn

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// defaultRidge keeps the normal equations solvable when columns are constant
// or collinear. It is small enough to leave well-posed fits unchanged.
const defaultRidge = 1e-8

// LinearRegression is ordinary least squares with an intercept.
type LinearRegression struct {
	// Ridge is the diagonal jitter added to the centered normal equations.
	Ridge float64

	coef      []float64
	intercept float64
	fitted    bool
}

// NewLinearRegression returns an unfitted OLS estimator.
func NewLinearRegression() *LinearRegression {
	return &LinearRegression{Ridge: defaultRidge}
}

// Fit solves (XcᵀXc + εI)β = Xcᵀyc on mean-centered data.
func (m *LinearRegression) Fit(X [][]float64, y []float64) error {
	width, err := validateXY(X, y)
	if err != nil {
		return err
	}
	if !allFinite(X) {
		return errors.New("learn: linear regression input contains NaN or infinity")
	}

	n := len(X)
	colMeans := make([]float64, width)
	for _, row := range X {
		floats.Add(colMeans, row)
	}
	floats.Scale(1/float64(n), colMeans)
	yMean := stat.Mean(y, nil)

	xtx := mat.NewSymDense(width, nil)
	xty := mat.NewVecDense(width, nil)
	centered := make([]float64, width)
	for i, row := range X {
		floats.SubTo(centered, row, colMeans)
		yc := y[i] - yMean
		for a := 0; a < width; a++ {
			xty.SetVec(a, xty.AtVec(a)+centered[a]*yc)
			for b := a; b < width; b++ {
				xtx.SetSym(a, b, xtx.At(a, b)+centered[a]*centered[b])
			}
		}
	}

	jitter := m.Ridge * float64(n)
	if jitter <= 0 {
		jitter = defaultRidge
	}
	for a := 0; a < width; a++ {
		xtx.SetSym(a, a, xtx.At(a, a)+jitter)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(xtx); !ok {
		return errors.New("learn: normal equations are not positive definite")
	}
	beta := mat.NewVecDense(width, nil)
	if err := chol.SolveVecTo(beta, xty); err != nil {
		return fmt.Errorf("learn: solve normal equations: %w", err)
	}

	m.coef = make([]float64, width)
	for j := range m.coef {
		m.coef[j] = beta.AtVec(j)
	}
	m.intercept = yMean - floats.Dot(m.coef, colMeans)
	m.fitted = true
	return nil
}

// Predict returns Xβ + intercept.
func (m *LinearRegression) Predict(X [][]float64) ([]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	if err := validateWidth(X, len(m.coef)); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = m.intercept + floats.Dot(m.coef, row)
	}
	return out, nil
}

// Coefficients returns a copy of the fitted slope vector and the intercept.
func (m *LinearRegression) Coefficients() ([]float64, float64) {
	return append([]float64(nil), m.coef...), m.intercept
}

func sqrtOrZero(v float64) float64 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return math.Sqrt(v)
}
