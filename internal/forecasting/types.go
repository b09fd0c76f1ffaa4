// Package forecasting implements the ensemble cash-flow forecasting pipeline:
// feature engineering over a daily series, per-model training, ensemble
// combination and forecast assembly with confidence estimates.
//
// The package consumes an ordered daily series and returns a ForecastResult. It
// has no knowledge of HTTP, storage or process-wide configuration; every tunable
// is passed in through Config.
package forecasting

import (
	"fmt"
	"time"
)

// ModelKind identifies one forecasting algorithm.
type ModelKind string

const (
	ModelLinearRegression ModelKind = "linear_regression"
	ModelRandomForest     ModelKind = "random_forest"
	ModelXGBoost          ModelKind = "xgboost"
	ModelLightGBM         ModelKind = "lightgbm"
	ModelProphet          ModelKind = "prophet"
	ModelARIMA            ModelKind = "arima"
	// ModelEnsemble tags results produced by the combiner. It is not trainable.
	ModelEnsemble ModelKind = "ensemble"
)

// TrainableKinds lists every kind TrainModel accepts.
func TrainableKinds() []ModelKind {
	return []ModelKind{
		ModelLinearRegression,
		ModelRandomForest,
		ModelXGBoost,
		ModelLightGBM,
		ModelProphet,
		ModelARIMA,
	}
}

// ParseModelKind validates a kind tag.
func ParseModelKind(s string) (ModelKind, error) {
	kind := ModelKind(s)
	if kind == ModelEnsemble {
		return kind, nil
	}
	for _, k := range TrainableKinds() {
		if k == kind {
			return kind, nil
		}
	}
	return "", &UnknownModelError{Kind: kind}
}

func (k ModelKind) String() string { return string(k) }

// Series column names.
const (
	ColumnNetFlow      = "net_flow"
	ColumnTotalInflow  = "total_inflow"
	ColumnTotalOutflow = "total_outflow"
	ColumnTotalBalance = "total_balance"
)

// TimeSeriesRow is one day of aggregated cash flow.
type TimeSeriesRow struct {
	Date         time.Time `json:"date"`
	NetFlow      float64   `json:"net_flow"`
	TotalInflow  float64   `json:"total_inflow"`
	TotalOutflow float64   `json:"total_outflow"`
	TotalBalance float64   `json:"total_balance"`
}

// Value returns the named series column.
func (r TimeSeriesRow) Value(column string) (float64, error) {
	switch column {
	case ColumnNetFlow:
		return r.NetFlow, nil
	case ColumnTotalInflow:
		return r.TotalInflow, nil
	case ColumnTotalOutflow:
		return r.TotalOutflow, nil
	case ColumnTotalBalance:
		return r.TotalBalance, nil
	default:
		return 0, fmt.Errorf("forecasting: unknown series column %q", column)
	}
}

// Interval is a two-sided confidence interval around one prediction.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// FeatureImportance is the normalized contribution of one feature.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// ForecastResult is the immutable output of Forecaster.Forecast.
type ForecastResult struct {
	Predictions         []float64           `json:"predictions"`
	ConfidenceIntervals []Interval          `json:"confidence_intervals"`
	FeatureImportance   []FeatureImportance `json:"feature_importance"`
	ModelMetrics        map[string]float64  `json:"model_metrics"`
	ModelType           ModelKind           `json:"model_type"`
	ForecastDates       []time.Time         `json:"forecast_dates"`
	ConfidenceScore     float64             `json:"confidence_score"`
}
