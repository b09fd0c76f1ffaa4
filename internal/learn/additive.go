package learn

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// AdditiveParams configures the piecewise-linear trend plus Fourier seasonality model.
type AdditiveParams struct {
	YearlySeasonality     bool
	WeeklySeasonality     bool
	DailySeasonality      bool
	YearlyOrder           int
	WeeklyOrder           int
	DailyOrder            int
	NChangepoints         int
	ChangepointRange      float64
	ChangepointPriorScale float64
	SeasonalityPriorScale float64
	// NoiseScale is the assumed residual scale on the absmax-scaled target; it
	// turns prior scales into ridge weights.
	NoiseScale float64
}

// DefaultAdditiveParams enables yearly and weekly seasonality with a 0.05 changepoint prior.
func DefaultAdditiveParams() AdditiveParams {
	return AdditiveParams{
		YearlySeasonality:     true,
		WeeklySeasonality:     true,
		DailySeasonality:      false,
		YearlyOrder:           10,
		WeeklyOrder:           3,
		DailyOrder:            4,
		NChangepoints:         25,
		ChangepointRange:      0.8,
		ChangepointPriorScale: 0.05,
		SeasonalityPriorScale: 10,
		NoiseScale:            0.1,
	}
}

type seasonality struct {
	period float64
	order  int
}

// AdditiveModel decomposes a daily series into trend and seasonal components
// and fits all of them jointly by penalized least squares.
type AdditiveModel struct {
	params       AdditiveParams
	start        time.Time
	span         float64
	yScale       float64
	changepoints []float64
	seasons      []seasonality
	coef         []float64
	fitted       bool
}

// NewAdditiveModel returns an unfitted model.
func NewAdditiveModel(params AdditiveParams) *AdditiveModel {
	return &AdditiveModel{params: params}
}

// Fit estimates trend and seasonality from (ds, y) pairs sorted by ds.
func (m *AdditiveModel) Fit(ds []time.Time, y []float64) error {
	if len(ds) != len(y) {
		return fmt.Errorf("learn: %d timestamps but %d values", len(ds), len(y))
	}
	if len(y) < 2 {
		return errors.New("learn: additive model needs at least two observations")
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("learn: value %d is not finite", i)
		}
	}

	m.start = ds[0]
	m.span = ds[len(ds)-1].Sub(ds[0]).Hours() / 24
	if m.span <= 0 {
		return errors.New("learn: additive model needs increasing timestamps")
	}
	m.yScale = math.Max(math.Abs(floats.Max(y)), math.Abs(floats.Min(y)))
	if m.yScale == 0 {
		m.yScale = 1
	}

	m.changepoints = m.changepoints[:0]
	if m.params.NChangepoints > 0 {
		limit := int(math.Floor(float64(len(ds)) * m.params.ChangepointRange))
		if limit > len(ds)-1 {
			limit = len(ds) - 1
		}
		count := m.params.NChangepoints
		if count > limit-1 {
			count = limit - 1
		}
		for k := 1; k <= count; k++ {
			idx := int(math.Round(float64(k) * float64(limit) / float64(count+1)))
			m.changepoints = append(m.changepoints, m.scaledTime(ds[idx]))
		}
	}

	m.seasons = m.seasons[:0]
	if m.params.YearlySeasonality {
		m.seasons = append(m.seasons, seasonality{period: 365.25, order: m.params.YearlyOrder})
	}
	if m.params.WeeklySeasonality {
		m.seasons = append(m.seasons, seasonality{period: 7, order: m.params.WeeklyOrder})
	}
	if m.params.DailySeasonality {
		m.seasons = append(m.seasons, seasonality{period: 1, order: m.params.DailyOrder})
	}

	design := m.design(ds)
	p := len(design[0])
	penalty := m.penalties(p)

	xtx := mat.NewSymDense(p, nil)
	xty := mat.NewVecDense(p, nil)
	for i, row := range design {
		target := y[i] / m.yScale
		for a := 0; a < p; a++ {
			xty.SetVec(a, xty.AtVec(a)+row[a]*target)
			for b := a; b < p; b++ {
				xtx.SetSym(a, b, xtx.At(a, b)+row[a]*row[b])
			}
		}
	}
	for a := 0; a < p; a++ {
		xtx.SetSym(a, a, xtx.At(a, a)+penalty[a])
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(xtx); !ok {
		return errors.New("learn: additive design is singular")
	}
	beta := mat.NewVecDense(p, nil)
	if err := chol.SolveVecTo(beta, xty); err != nil {
		return fmt.Errorf("learn: solve additive model: %w", err)
	}
	m.coef = make([]float64, p)
	for j := range m.coef {
		m.coef[j] = beta.AtVec(j)
	}
	m.fitted = true
	return nil
}

// Predict evaluates the fitted components at ds.
func (m *AdditiveModel) Predict(ds []time.Time) ([]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	design := m.design(ds)
	out := make([]float64, len(ds))
	for i, row := range design {
		out[i] = floats.Dot(row, m.coef) * m.yScale
	}
	return out, nil
}

func (m *AdditiveModel) scaledTime(t time.Time) float64 {
	return t.Sub(m.start).Hours() / 24 / m.span
}

// design builds [1, t, (t-c_k)+..., sin/cos per seasonality order].
func (m *AdditiveModel) design(ds []time.Time) [][]float64 {
	width := 2 + len(m.changepoints)
	for _, s := range m.seasons {
		width += 2 * s.order
	}
	rows := make([][]float64, len(ds))
	for i, t := range ds {
		row := make([]float64, 0, width)
		st := m.scaledTime(t)
		row = append(row, 1, st)
		for _, c := range m.changepoints {
			row = append(row, math.Max(st-c, 0))
		}
		days := float64(t.Unix()) / 86400
		for _, s := range m.seasons {
			for k := 1; k <= s.order; k++ {
				angle := 2 * math.Pi * float64(k) * days / s.period
				row = append(row, math.Sin(angle), math.Cos(angle))
			}
		}
		rows[i] = row
	}
	return rows
}

// penalties converts prior scales into per-coefficient ridge weights.
func (m *AdditiveModel) penalties(p int) []float64 {
	noise := m.params.NoiseScale
	if noise <= 0 {
		noise = 0.1
	}
	weight := func(scale float64) float64 {
		if scale <= 0 {
			return 1e6
		}
		return noise * noise / (scale * scale)
	}
	out := make([]float64, p)
	out[0] = weight(5)
	out[1] = weight(5)
	i := 2
	for range m.changepoints {
		out[i] = weight(m.params.ChangepointPriorScale)
		i++
	}
	for ; i < p; i++ {
		out[i] = weight(m.params.SeasonalityPriorScale)
	}
	return out
}
