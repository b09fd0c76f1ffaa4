package forecasting

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/irfndi/cashflow-ai-go/internal/learn"
)

// Forecaster drives the pipeline. It starts untrained, trains its ensemble on
// the first Forecast or TrainEnsemble call and reuses that ensemble afterwards.
// Training holds the write lock; prediction holds the read lock.
type Forecaster struct {
	cfg     Config
	builder *FeatureBuilder
	logger  *logrus.Logger
	now     func() time.Time

	mu    sync.RWMutex
	state *EnsembleState
}

// NewForecaster validates cfg and returns an untrained forecaster. A nil
// logger discards output.
func NewForecaster(cfg Config, logger *logrus.Logger) (*Forecaster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("forecasting: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Forecaster{
		cfg:     cfg,
		builder: NewFeatureBuilder(cfg),
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Config returns the forecaster configuration.
func (f *Forecaster) Config() Config { return f.cfg }

// IsTrained reports whether an ensemble is available.
func (f *Forecaster) IsTrained() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state != nil
}

// State returns the current ensemble, or nil when untrained.
func (f *Forecaster) State() *EnsembleState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// PrepareData builds the feature table and target vector for target.
func (f *Forecaster) PrepareData(series []TimeSeriesRow, target string) (*FeatureTable, []float64, error) {
	table, y, err := f.builder.Build(series, target)
	if err != nil {
		return nil, nil, err
	}
	if table.Len() == 0 {
		return nil, nil, fmt.Errorf("%w: %d rows leave no complete feature rows (warm-up %d)",
			ErrInsufficientData, len(series), f.builder.WarmupRows())
	}
	f.logger.WithFields(logrus.Fields{
		"features": len(table.Columns),
		"samples":  table.Len(),
	}).Info("Prepared data for forecasting")
	return table, y, nil
}

// TrainModel fits a single model kind. Failures are returned, not swallowed.
func (f *Forecaster) TrainModel(kind ModelKind, features *FeatureTable, target []float64) (*TrainedModel, error) {
	f.logger.WithField("model", kind).Info("Training model")
	return TrainModel(f.cfg, kind, features, target)
}

// TrainEnsemble fits every configured ensemble kind on the prepared series and
// replaces the current state. Per-kind failures are logged and skipped; the
// call fails only when no kind trains or ctx is cancelled.
func (f *Forecaster) TrainEnsemble(ctx context.Context, series []TimeSeriesRow, target string) (*EnsembleState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trainLocked(ctx, series, target)
}

func (f *Forecaster) trainLocked(ctx context.Context, series []TimeSeriesRow, target string) (*EnsembleState, error) {
	f.logger.Info("Training ensemble of forecasting models")
	features, y, err := f.PrepareData(series, target)
	if err != nil {
		return nil, err
	}

	metrics, err := f.holdoutMetrics(ctx, features, y)
	if err != nil {
		return nil, err
	}

	state, err := f.fitKinds(ctx, features, y)
	if err != nil {
		return nil, err
	}
	state.Metrics = metrics
	state.TrainedAt = f.now()
	f.state = state
	return state, nil
}

// fitKinds trains each ensemble kind in order, isolating failures.
func (f *Forecaster) fitKinds(ctx context.Context, features *FeatureTable, y []float64) (*EnsembleState, error) {
	state := &EnsembleState{
		Models:         make(map[ModelKind]Model),
		Scalers:        make(map[ModelKind]*learn.StandardScaler),
		FeatureColumns: append([]string(nil), features.Columns...),
		Metrics:        map[string]float64{},
	}
	for _, kind := range f.cfg.EnsembleKinds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		trained, err := f.TrainModel(kind, features, y)
		if err != nil {
			f.logger.WithFields(logrus.Fields{
				"model": kind,
				"error": err.Error(),
			}).Error("Failed to train model")
			continue
		}
		state.Models[kind] = trained.Model
		if trained.Scaler != nil {
			state.Scalers[kind] = trained.Scaler
		}
		state.Order = append(state.Order, kind)
		f.logger.WithFields(logrus.Fields{
			"model":    kind,
			"duration": time.Since(start),
		}).Info("Successfully trained model")
	}
	if len(state.Models) == 0 {
		return nil, ErrNoModelsTrained
	}
	return state, nil
}

// holdoutMetrics fits the ensemble on the leading rows and scores it on the
// trailing ValidationFraction. It returns empty metrics when the split is too
// small to be meaningful.
func (f *Forecaster) holdoutMetrics(ctx context.Context, features *FeatureTable, y []float64) (map[string]float64, error) {
	n := features.Len()
	split := int(math.Floor(float64(n) * (1 - f.cfg.ValidationFraction)))
	if f.cfg.ValidationFraction <= 0 || split < 2 || split >= n {
		return map[string]float64{}, nil
	}

	state, err := f.fitKinds(ctx, features.Slice(0, split), y[:split])
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		f.logger.WithError(err).Warn("Hold-out fit failed; metrics unavailable")
		return map[string]float64{}, nil
	}
	pred, _, err := state.EnsemblePredict(features.Slice(split, n), f.logger)
	if err != nil {
		f.logger.WithError(err).Warn("Hold-out prediction failed; metrics unavailable")
		return map[string]float64{}, nil
	}
	metrics := RegressionMetrics(y[split:], pred)
	f.logger.WithFields(logrus.Fields{
		"validation_rows": n - split,
		"mae":             metrics[MetricMAE],
	}).Info("Computed hold-out metrics")
	return metrics, nil
}

// Predict runs a single trained member.
func (f *Forecaster) Predict(features *FeatureTable, kind ModelKind) ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.state == nil {
		return nil, ErrNotTrained
	}
	return f.state.Predict(features, kind)
}

// EnsemblePredict combines every trained member.
func (f *Forecaster) EnsemblePredict(features *FeatureTable) ([]float64, []float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.state == nil {
		return nil, nil, ErrNotTrained
	}
	return f.state.EnsemblePredict(features, f.logger)
}

// Forecast predicts horizon days after the last observed date, training the
// ensemble first if needed. A confidenceLevel of exactly 0.95 uses z = 1.96;
// any other level uses z = 2.58.
func (f *Forecaster) Forecast(ctx context.Context, series []TimeSeriesRow, horizon int, confidenceLevel float64) (*ForecastResult, error) {
	if horizon < 1 {
		return nil, fmt.Errorf("forecasting: horizon must be at least 1 day, got %d", horizon)
	}
	if err := validateSeries(series); err != nil {
		return nil, err
	}
	f.logger.WithField("forecast_days", horizon).Info("Generating forecast")

	state, err := f.ensureTrained(ctx, series)
	if err != nil {
		return nil, err
	}

	last := series[len(series)-1].Date
	dates := make([]time.Time, horizon)
	for i := range dates {
		dates[i] = last.AddDate(0, 0, i+1)
	}
	future, err := f.builder.FutureFeatures(series, dates, state.FeatureColumns)
	if err != nil {
		return nil, err
	}

	predictions, dispersion, err := state.EnsemblePredict(future, f.logger)
	if err != nil {
		return nil, err
	}

	z := 2.58
	if confidenceLevel == 0.95 {
		z = 1.96
	}
	intervals := make([]Interval, horizon)
	for i, p := range predictions {
		intervals[i] = Interval{Lower: p - z*dispersion[i], Upper: p + z*dispersion[i]}
	}

	metrics := make(map[string]float64, len(state.Metrics))
	for k, v := range state.Metrics {
		metrics[k] = v
	}

	return &ForecastResult{
		Predictions:         predictions,
		ConfidenceIntervals: intervals,
		FeatureImportance:   featureImportance(state),
		ModelMetrics:        metrics,
		ModelType:           ModelEnsemble,
		ForecastDates:       dates,
		ConfidenceScore:     confidenceScore(predictions, dispersion),
	}, nil
}

func (f *Forecaster) ensureTrained(ctx context.Context, series []TimeSeriesRow) (*EnsembleState, error) {
	f.mu.RLock()
	state := f.state
	f.mu.RUnlock()
	if state != nil {
		return state, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != nil {
		return f.state, nil
	}
	return f.trainLocked(ctx, series, f.cfg.TargetColumn)
}

// confidenceScore is 1 − mean(dispersion)/mean(|predictions|) clamped to
// [0.1, 0.95]. An undefined 0/0 ratio scores 0.95.
func confidenceScore(predictions, dispersion []float64) float64 {
	abs := make([]float64, len(predictions))
	for i, p := range predictions {
		abs[i] = math.Abs(p)
	}
	score := 1 - stat.Mean(dispersion, nil)/stat.Mean(abs, nil)
	if math.IsNaN(score) {
		return 0.95
	}
	return math.Max(0.1, math.Min(0.95, score))
}
