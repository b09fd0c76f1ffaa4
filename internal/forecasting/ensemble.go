package forecasting

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/irfndi/cashflow-ai-go/internal/learn"
)

// EnsembleState is the set of models produced by one TrainEnsemble call. It is
// replaced wholesale on retraining and is read-only otherwise.
type EnsembleState struct {
	Models         map[ModelKind]Model
	Scalers        map[ModelKind]*learn.StandardScaler
	FeatureColumns []string
	Metrics        map[string]float64
	// Order is the training order; members are combined in this order.
	Order     []ModelKind
	TrainedAt time.Time
}

// Predict runs one member, applying its scaler when present.
func (s *EnsembleState) Predict(features *FeatureTable, kind ModelKind) ([]float64, error) {
	model, ok := s.Models[kind]
	if !ok {
		return nil, &UnknownModelError{Kind: kind}
	}
	input := features
	if scaler, ok := s.Scalers[kind]; ok && scaler != nil {
		scaled, err := scaler.Transform(features.Rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scale features: %w", kind, err)
		}
		input = &FeatureTable{Dates: features.Dates, Columns: features.Columns, Rows: scaled}
	}
	pred, err := model.Predict(input)
	if err != nil {
		return nil, err
	}
	if len(pred) != features.Len() {
		return nil, fmt.Errorf("%s: got %d predictions for %d rows", kind, len(pred), features.Len())
	}
	return pred, nil
}

// EnsemblePredict combines every member with equal weights. Members that fail
// are logged and skipped for this call only. The dispersion is the population
// standard deviation across contributing members at each position.
func (s *EnsembleState) EnsemblePredict(features *FeatureTable, logger *logrus.Logger) ([]float64, []float64, error) {
	var (
		predictions [][]float64
		weights     []float64
	)
	for _, kind := range s.Order {
		pred, err := s.Predict(features, kind)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"model": kind,
				"error": err.Error(),
			}).Warn("Prediction failed for ensemble member")
			continue
		}
		predictions = append(predictions, pred)
		weights = append(weights, 1.0)
	}
	if len(predictions) == 0 {
		return nil, nil, ErrNoSuccessfulPredictions
	}

	n := features.Len()
	combined := make([]float64, n)
	dispersion := make([]float64, n)
	column := make([]float64, len(predictions))
	for i := 0; i < n; i++ {
		for m, pred := range predictions {
			column[m] = pred[i]
		}
		combined[i] = stat.Mean(column, weights)
		_, variance := stat.PopMeanVariance(column, nil)
		dispersion[i] = math.Sqrt(math.Max(variance, 0))
	}
	return combined, dispersion, nil
}
