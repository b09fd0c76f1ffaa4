package forecasting

import (
	"fmt"
	"time"

	"github.com/irfndi/cashflow-ai-go/internal/learn"
)

// syntheticOrigin anchors the daily calendar the additive model is trained on.
var syntheticOrigin = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Model is a fitted forecasting model bound to one kind.
type Model interface {
	Kind() ModelKind
	Predict(features *FeatureTable) ([]float64, error)
}

// FeatureImporter is implemented by models exposing per-feature importances,
// aligned with the training feature columns.
type FeatureImporter interface {
	FeatureImportances() []float64
}

// regressionModel adapts a learn.Regressor to the feature table it was trained on.
type regressionModel struct {
	kind      ModelKind
	columns   []string
	estimator learn.Regressor
}

func (m *regressionModel) Kind() ModelKind { return m.kind }

func (m *regressionModel) Predict(features *FeatureTable) ([]float64, error) {
	if !features.sameColumns(m.columns) {
		return nil, fmt.Errorf("%s: feature columns do not match training columns (%d vs %d)",
			m.kind, len(features.Columns), len(m.columns))
	}
	return m.estimator.Predict(features.Rows)
}

// treeModel is a regressionModel whose estimator reports importances.
type treeModel struct {
	regressionModel
	importances learn.Importancer
}

func (m *treeModel) FeatureImportances() []float64 {
	return m.importances.FeatureImportances()
}

// prophetModel predicts from dates alone. Real dates are mapped onto the
// synthetic training calendar by their offset from the last training date.
type prophetModel struct {
	model         *learn.AdditiveModel
	lastReal      time.Time
	lastSynthetic time.Time
}

func (m *prophetModel) Kind() ModelKind { return ModelProphet }

func (m *prophetModel) Predict(features *FeatureTable) ([]float64, error) {
	ds := make([]time.Time, features.Len())
	for i := range ds {
		if len(features.Dates) == features.Len() && !m.lastReal.IsZero() {
			days := features.Dates[i].Sub(m.lastReal).Hours() / 24
			ds[i] = m.lastSynthetic.Add(time.Duration(days * float64(24*time.Hour)))
		} else {
			ds[i] = m.lastSynthetic.AddDate(0, 0, i+1)
		}
	}
	return m.model.Predict(ds)
}

// arimaModel forecasts one step per requested row, ignoring feature values.
type arimaModel struct {
	model *learn.ARIMA
}

func (m *arimaModel) Kind() ModelKind { return ModelARIMA }

func (m *arimaModel) Predict(features *FeatureTable) ([]float64, error) {
	return m.model.Forecast(features.Len()), nil
}

// Order returns the selected ARIMA order.
func (m *arimaModel) Order() learn.Order { return m.model.Order() }
