package forecasting

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Metric names reported in ForecastResult.ModelMetrics.
const (
	MetricMAE  = "mae"
	MetricMSE  = "mse"
	MetricRMSE = "rmse"
	MetricR2   = "r2"
	MetricMAPE = "mape"
)

// RegressionMetrics scores predictions against actuals. MAPE is in percent and
// skips zero actuals; R² is omitted when the actuals are constant.
func RegressionMetrics(actual, predicted []float64) map[string]float64 {
	n := len(actual)
	if n == 0 || n != len(predicted) {
		return map[string]float64{}
	}
	var absSum, sqSum, pctSum float64
	pctCount := 0
	for i := range actual {
		diff := actual[i] - predicted[i]
		absSum += math.Abs(diff)
		sqSum += diff * diff
		if actual[i] != 0 {
			pctSum += math.Abs(diff / actual[i])
			pctCount++
		}
	}
	mse := sqSum / float64(n)
	out := map[string]float64{
		MetricMAE:  absSum / float64(n),
		MetricMSE:  mse,
		MetricRMSE: math.Sqrt(mse),
	}
	if pctCount > 0 {
		out[MetricMAPE] = 100 * pctSum / float64(pctCount)
	}
	mean := stat.Mean(actual, nil)
	var ssTot float64
	for _, v := range actual {
		ssTot += (v - mean) * (v - mean)
	}
	if ssTot > 0 {
		out[MetricR2] = 1 - sqSum/ssTot
	}
	return out
}

// meanAbsoluteError is the cross-validation objective.
func meanAbsoluteError(actual, predicted []float64) float64 {
	var sum float64
	for i := range actual {
		sum += math.Abs(actual[i] - predicted[i])
	}
	return sum / float64(len(actual))
}

// featureImportance sums the importances of every member that exposes them,
// normalizes to 1 and sorts descending (ties by name). It is empty when no
// member contributes a positive importance.
func featureImportance(state *EnsembleState) []FeatureImportance {
	totals := make([]float64, len(state.FeatureColumns))
	contributed := false
	for _, kind := range state.Order {
		importer, ok := state.Models[kind].(FeatureImporter)
		if !ok {
			continue
		}
		values := importer.FeatureImportances()
		if len(values) != len(totals) {
			continue
		}
		for i, v := range values {
			totals[i] += v
		}
		contributed = true
	}
	if !contributed {
		return nil
	}

	var sum float64
	for _, v := range totals {
		sum += v
	}
	if sum <= 0 {
		return nil
	}

	out := make([]FeatureImportance, len(totals))
	for i, v := range totals {
		out[i] = FeatureImportance{Feature: state.FeatureColumns[i], Importance: v / sum}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		return out[i].Feature < out[j].Feature
	})
	return out
}
