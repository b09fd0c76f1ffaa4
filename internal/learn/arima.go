package learn

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// Order is an ARIMA(p, d, q) specification.
type Order struct {
	P int `json:"p"`
	D int `json:"d"`
	Q int `json:"q"`
}

func (o Order) String() string {
	return fmt.Sprintf("(%d,%d,%d)", o.P, o.D, o.Q)
}

// Grid bounds, inclusive.
const (
	maxGridP = 2
	maxGridD = 1
	maxGridQ = 2
)

// FallbackOrder is used when no grid candidate can be fitted.
var FallbackOrder = Order{P: 1, D: 1, Q: 1}

// ARIMA is a fitted ARIMA model estimated by conditional sum of squares.
type ARIMA struct {
	order  Order
	mean   float64
	ar     []float64
	ma     []float64
	sigma2 float64
	aic    float64

	// history needed for forecasting
	levels    []float64
	diffs     []float64
	residuals []float64
}

// Order returns the fitted order.
func (a *ARIMA) Order() Order { return a.order }

// AIC returns the Akaike information criterion of the fit.
func (a *ARIMA) AIC() float64 { return a.aic }

// Coefficients returns copies of the AR and MA coefficients.
func (a *ARIMA) Coefficients() (ar, ma []float64) {
	return append([]float64(nil), a.ar...), append([]float64(nil), a.ma...)
}

// FitARIMA estimates an ARIMA model with d in {0, 1}. A mean term is estimated
// only when d == 0.
func FitARIMA(y []float64, order Order) (*ARIMA, error) {
	if order.P < 0 || order.Q < 0 || order.D < 0 || order.D > 1 {
		return nil, fmt.Errorf("learn: unsupported ARIMA order %s", order)
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("learn: value %d is not finite", i)
		}
	}

	w := append([]float64(nil), y...)
	if order.D == 1 {
		w = difference(y)
	}
	start := conditionStart(order)
	minObs := start + order.P + order.Q + 3
	if len(w) < minObs {
		return nil, fmt.Errorf("learn: ARIMA%s needs at least %d observations, got %d", order, minObs, len(w))
	}

	var mean float64
	if order.D == 0 {
		mean = stat.Mean(w, nil)
	}
	z := make([]float64, len(w))
	for i, v := range w {
		z[i] = v - mean
	}

	k := order.P + order.Q
	params := make([]float64, k)
	if k > 0 {
		for i := range params {
			params[i] = 0.1
		}
		problem := optimize.Problem{
			Func: func(x []float64) float64 {
				css, _ := conditionalSS(z, x[:order.P], x[order.P:], start)
				return css
			},
		}
		settings := &optimize.Settings{FuncEvaluations: 4000}
		result, err := optimize.Minimize(problem, params, settings, &optimize.NelderMead{})
		if result == nil {
			return nil, fmt.Errorf("learn: ARIMA%s optimization failed: %w", order, err)
		}
		params = result.X
	}

	ar, ma := params[:order.P], params[order.P:]
	css, residuals := conditionalSS(z, ar, ma, start)
	nEff := float64(len(z) - start)
	if math.IsNaN(css) || math.IsInf(css, 0) || nEff <= 0 {
		return nil, fmt.Errorf("learn: ARIMA%s did not converge", order)
	}
	sigma2 := css / nEff
	if sigma2 <= 0 {
		sigma2 = 1e-12
	}
	logLik := -nEff / 2 * (math.Log(2*math.Pi*sigma2) + 1)
	nParams := float64(k + 1)
	if order.D == 0 {
		nParams++
	}

	return &ARIMA{
		order:     order,
		mean:      mean,
		ar:        append([]float64(nil), ar...),
		ma:        append([]float64(nil), ma...),
		sigma2:    sigma2,
		aic:       -2*logLik + 2*nParams,
		levels:    append([]float64(nil), y...),
		diffs:     z,
		residuals: residuals,
	}, nil
}

// conditionStart is the first index of the (differenced) series whose residual
// enters the likelihood. Every grid order is scored from the same original-time
// observation, so their AICs share one sample size.
func conditionStart(order Order) int {
	start := maxGridP + maxGridD - order.D
	if start < order.P {
		start = order.P
	}
	return start
}

// conditionalSS returns the sum of squared residuals from index start and the
// residuals of an ARMA recursion on the demeaned series z. Pre-sample residuals
// are zero.
func conditionalSS(z, ar, ma []float64, start int) (float64, []float64) {
	if !invertible(ma) {
		return math.Inf(1), nil
	}
	p := len(ar)
	e := make([]float64, len(z))
	var css float64
	for t := p; t < len(z); t++ {
		pred := 0.0
		for i, phi := range ar {
			pred += phi * z[t-1-i]
		}
		for j, theta := range ma {
			if t-1-j >= 0 {
				pred += theta * e[t-1-j]
			}
		}
		e[t] = z[t] - pred
		if t >= start {
			css += e[t] * e[t]
		}
	}
	return css, e
}

// invertible rejects MA polynomials with coefficient mass that lets residuals explode.
func invertible(ma []float64) bool {
	var total float64
	for _, theta := range ma {
		total += math.Abs(theta)
	}
	return total < 1
}

// Forecast returns the next steps values on the original (undifferenced) scale.
func (a *ARIMA) Forecast(steps int) []float64 {
	if steps <= 0 {
		return nil
	}
	z := append([]float64(nil), a.diffs...)
	e := append([]float64(nil), a.residuals...)
	out := make([]float64, steps)
	last := a.levels[len(a.levels)-1]
	for h := 0; h < steps; h++ {
		t := len(z)
		pred := 0.0
		for i, phi := range a.ar {
			if t-1-i >= 0 {
				pred += phi * z[t-1-i]
			}
		}
		for j, theta := range a.ma {
			if t-1-j >= 0 && t-1-j < len(e) {
				pred += theta * e[t-1-j]
			}
		}
		z = append(z, pred)
		e = append(e, 0)

		if a.order.D == 0 {
			out[h] = pred + a.mean
		} else {
			last += pred
			out[h] = last
		}
	}
	return out
}

func difference(y []float64) []float64 {
	if len(y) < 2 {
		return nil
	}
	out := make([]float64, len(y)-1)
	for i := 1; i < len(y); i++ {
		out[i-1] = y[i] - y[i-1]
	}
	return out
}

// ARIMAFitFunc fits one candidate order.
type ARIMAFitFunc func(y []float64, order Order) (*ARIMA, error)

// ARIMAGrid returns the candidate orders in search order: p outer, d middle, q inner.
func ARIMAGrid() []Order {
	orders := make([]Order, 0, (maxGridP+1)*(maxGridD+1)*(maxGridQ+1))
	for p := 0; p <= maxGridP; p++ {
		for d := 0; d <= maxGridD; d++ {
			for q := 0; q <= maxGridQ; q++ {
				orders = append(orders, Order{P: p, D: d, Q: q})
			}
		}
	}
	return orders
}

// GridSearchARIMA fits every grid order and keeps the lowest AIC. Ties go to the
// first order found. When every candidate fails the fallback order is fitted.
func GridSearchARIMA(y []float64, fit ARIMAFitFunc) (*ARIMA, error) {
	if fit == nil {
		fit = FitARIMA
	}
	var best *ARIMA
	for _, order := range ARIMAGrid() {
		model, err := fit(y, order)
		if err != nil || model == nil || math.IsNaN(model.AIC()) {
			continue
		}
		if best == nil || model.AIC() < best.AIC() {
			best = model
		}
	}
	if best != nil {
		return best, nil
	}
	model, err := fit(y, FallbackOrder)
	if err != nil {
		return nil, fmt.Errorf("learn: fallback ARIMA%s: %w", FallbackOrder, err)
	}
	if model == nil {
		return nil, errors.New("learn: fallback ARIMA returned no model")
	}
	return model, nil
}
