package forecasting

import (
	"context"
	"fmt"
	"math"

	"github.com/c-bata/goptuna"
	"github.com/c-bata/goptuna/tpe"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/irfndi/cashflow-ai-go/internal/learn"
)

// Search-space parameter names.
const (
	ParamNEstimators     = "n_estimators"
	ParamMaxDepth        = "max_depth"
	ParamLearningRate    = "learning_rate"
	ParamSubsample       = "subsample"
	ParamColsampleByTree = "colsample_bytree"
	ParamNumLeaves       = "num_leaves"
	ParamFeatureFraction = "feature_fraction"
)

// tpeStartupTrials are sampled uniformly before the Parzen estimators kick in.
const tpeStartupTrials = 10

// ParamSpec describes one dimension of a search space.
type ParamSpec struct {
	Name    string
	Low     float64
	High    float64
	Integer bool
}

func (p ParamSpec) suggest(trial goptuna.Trial) (float64, error) {
	if p.Integer {
		v, err := trial.SuggestInt(p.Name, int(p.Low), int(p.High))
		return float64(v), err
	}
	return trial.SuggestFloat(p.Name, p.Low, p.High)
}

// SearchSpace returns the hyperparameter ranges explored for kind.
func SearchSpace(kind ModelKind) ([]ParamSpec, error) {
	common := []ParamSpec{
		{Name: ParamNEstimators, Low: 50, High: 300, Integer: true},
		{Name: ParamMaxDepth, Low: 3, High: 10, Integer: true},
		{Name: ParamLearningRate, Low: 0.01, High: 0.3},
	}
	switch kind {
	case ModelXGBoost:
		return append(common,
			ParamSpec{Name: ParamSubsample, Low: 0.6, High: 1.0},
			ParamSpec{Name: ParamColsampleByTree, Low: 0.6, High: 1.0},
		), nil
	case ModelLightGBM:
		return append(common,
			ParamSpec{Name: ParamNumLeaves, Low: 10, High: 100, Integer: true},
			ParamSpec{Name: ParamFeatureFraction, Low: 0.6, High: 1.0},
		), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrOptimizationUnsupported, kind)
	}
}

// BoostingParamsFor applies a sampled assignment to the kind's default parameters.
func BoostingParamsFor(cfg Config, kind ModelKind, params map[string]float64) learn.BoostingParams {
	base := cfg.seeded().XGBoost
	if kind == ModelLightGBM {
		base = cfg.seeded().LightGBM
	}
	if v, ok := params[ParamNEstimators]; ok {
		base.NEstimators = int(v)
	}
	if v, ok := params[ParamMaxDepth]; ok {
		base.MaxDepth = int(v)
	}
	if v, ok := params[ParamLearningRate]; ok {
		base.LearningRate = v
	}
	if v, ok := params[ParamSubsample]; ok {
		base.Subsample = v
	}
	if v, ok := params[ParamColsampleByTree]; ok {
		base.ColsampleByTree = v
	}
	if v, ok := params[ParamNumLeaves]; ok {
		base.NumLeaves = int(v)
	}
	if v, ok := params[ParamFeatureFraction]; ok {
		base.ColsampleByTree = v
	}
	return base
}

// OptimizeHyperparameters searches the kind's space with a seeded TPE study,
// minimizing mean absolute error over forward-chaining cross-validation, and
// returns the best assignment. trials <= 0 uses the configured budget.
func (f *Forecaster) OptimizeHyperparameters(ctx context.Context, features *FeatureTable, target []float64, kind ModelKind, trials int) (map[string]float64, error) {
	space, err := SearchSpace(kind)
	if err != nil {
		return nil, err
	}
	if features.Len() != len(target) {
		return nil, fmt.Errorf("forecasting: %d feature rows but %d targets", features.Len(), len(target))
	}
	folds, err := TimeSeriesSplit(features.Len(), f.cfg.CVFolds)
	if err != nil {
		return nil, err
	}
	if trials <= 0 {
		trials = f.cfg.TrialBudget
	}
	f.logger.WithFields(logrus.Fields{
		"model":  kind,
		"trials": trials,
	}).Info("Optimizing hyperparameters")

	study, err := goptuna.CreateStudy(
		fmt.Sprintf("optimize-%s", kind),
		goptuna.StudyOptionDirection(goptuna.StudyDirectionMinimize),
		goptuna.StudyOptionSampler(tpe.NewSampler(
			tpe.SamplerOptionSeed(f.cfg.Seed),
			tpe.SamplerOptionNumberOfStartupTrials(tpeStartupTrials),
		)),
		goptuna.StudyOptionLogger(&studyLogger{entry: f.logger.WithField("model", kind)}),
	)
	if err != nil {
		return nil, fmt.Errorf("forecasting: create study: %w", err)
	}

	objective := func(trial goptuna.Trial) (float64, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		params := make(map[string]float64, len(space))
		for _, p := range space {
			v, err := p.suggest(trial)
			if err != nil {
				return 0, err
			}
			params[p.Name] = v
		}
		return f.crossValidate(kind, params, features, target, folds), nil
	}
	optErr := study.Optimize(objective, trials)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if optErr != nil {
		return nil, &TrainingError{Kind: kind, Err: optErr}
	}

	score, err := study.GetBestValue()
	if err != nil || math.IsInf(score, 0) || math.IsNaN(score) {
		return nil, &TrainingError{Kind: kind, Err: fmt.Errorf("no trial out of %d completed", trials)}
	}
	raw, err := study.GetBestParams()
	if err != nil {
		return nil, &TrainingError{Kind: kind, Err: err}
	}
	best := make(map[string]float64, len(raw))
	for name, v := range raw {
		switch x := v.(type) {
		case float64:
			best[name] = x
		case int:
			best[name] = float64(x)
		}
	}
	f.logger.WithFields(logrus.Fields{
		"model":       kind,
		"best_params": best,
		"best_mae":    score,
	}).Info("Hyperparameter search finished")
	return best, nil
}

// studyLogger routes study progress into logrus at debug level.
type studyLogger struct {
	entry *logrus.Entry
}

func (l *studyLogger) Debug(msg string, fields ...interface{}) { l.with(fields).Debug(msg) }
func (l *studyLogger) Info(msg string, fields ...interface{})  { l.with(fields).Debug(msg) }
func (l *studyLogger) Warn(msg string, fields ...interface{})  { l.with(fields).Warn(msg) }
func (l *studyLogger) Error(msg string, fields ...interface{}) { l.with(fields).Error(msg) }

// with turns alternating key/value pairs into logrus fields.
func (l *studyLogger) with(kv []interface{}) *logrus.Entry {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return l.entry.WithFields(fields)
}

// crossValidate returns the mean fold MAE, or +Inf when any fold fails.
func (f *Forecaster) crossValidate(kind ModelKind, params map[string]float64, features *FeatureTable, target []float64, folds []Fold) float64 {
	scores := make([]float64, 0, len(folds))
	for _, fold := range folds {
		model := learn.NewGradientBoosting(BoostingParamsFor(f.cfg, kind, params))
		train := features.Select(fold.Train)
		if err := model.Fit(train.Rows, pick(target, fold.Train)); err != nil {
			return math.Inf(1)
		}
		pred, err := model.Predict(features.Select(fold.Test).Rows)
		if err != nil {
			return math.Inf(1)
		}
		scores = append(scores, meanAbsoluteError(pick(target, fold.Test), pred))
	}
	return stat.Mean(scores, nil)
}

func pick(values []float64, indices []int) []float64 {
	out := make([]float64, len(indices))
	for i, idx := range indices {
		out[i] = values[idx]
	}
	return out
}
