package forecasting

import (
	"errors"
	"time"

	"github.com/irfndi/cashflow-ai-go/internal/learn"
)

// TrainedModel is the output of a single fit. Scaler is set only for kinds
// that need standardized inputs and must be applied before Predict.
type TrainedModel struct {
	Model  Model
	Scaler *learn.StandardScaler
}

// TrainModel fits one model kind. Fit failures are returned as *TrainingError;
// unknown kinds as *UnknownModelError.
func TrainModel(cfg Config, kind ModelKind, features *FeatureTable, target []float64) (*TrainedModel, error) {
	if _, err := ParseModelKind(string(kind)); err != nil || kind == ModelEnsemble {
		return nil, &UnknownModelError{Kind: kind}
	}
	if features.Len() == 0 {
		return nil, &TrainingError{Kind: kind, Err: ErrInsufficientData}
	}
	if features.Len() != len(target) {
		return nil, &TrainingError{Kind: kind, Err: errors.New("feature rows and target length differ")}
	}
	cfg = cfg.seeded()
	columns := append([]string(nil), features.Columns...)

	switch kind {
	case ModelLinearRegression:
		scaler, err := learn.FitStandardScaler(features.Rows)
		if err != nil {
			return nil, &TrainingError{Kind: kind, Err: err}
		}
		scaled, err := scaler.Transform(features.Rows)
		if err != nil {
			return nil, &TrainingError{Kind: kind, Err: err}
		}
		est := learn.NewLinearRegression()
		if err := est.Fit(scaled, target); err != nil {
			return nil, &TrainingError{Kind: kind, Err: err}
		}
		return &TrainedModel{
			Model:  &regressionModel{kind: kind, columns: columns, estimator: est},
			Scaler: scaler,
		}, nil

	case ModelRandomForest:
		return fitTree(kind, columns, learn.NewRandomForest(cfg.RandomForest), features, target)

	case ModelXGBoost:
		return fitTree(kind, columns, learn.NewGradientBoosting(cfg.XGBoost), features, target)

	case ModelLightGBM:
		return fitTree(kind, columns, learn.NewGradientBoosting(cfg.LightGBM), features, target)

	case ModelProphet:
		return trainProphet(cfg, features, target)

	case ModelARIMA:
		model, err := learn.GridSearchARIMA(target, nil)
		if err != nil {
			return nil, &TrainingError{Kind: kind, Err: err}
		}
		return &TrainedModel{Model: &arimaModel{model: model}}, nil

	default:
		return nil, &UnknownModelError{Kind: kind}
	}
}

type importantRegressor interface {
	learn.Regressor
	learn.Importancer
}

func fitTree(kind ModelKind, columns []string, est importantRegressor, features *FeatureTable, target []float64) (*TrainedModel, error) {
	if err := est.Fit(features.Rows, target); err != nil {
		return nil, &TrainingError{Kind: kind, Err: err}
	}
	return &TrainedModel{
		Model: &treeModel{
			regressionModel: regressionModel{kind: kind, columns: columns, estimator: est},
			importances:     est,
		},
	}, nil
}

// trainProphet fits the additive model on the target reindexed onto a daily
// calendar starting at syntheticOrigin.
func trainProphet(cfg Config, features *FeatureTable, target []float64) (*TrainedModel, error) {
	ds := make([]time.Time, len(target))
	for i := range ds {
		ds[i] = syntheticOrigin.AddDate(0, 0, i)
	}
	model := learn.NewAdditiveModel(cfg.Prophet)
	if err := model.Fit(ds, target); err != nil {
		return nil, &TrainingError{Kind: ModelProphet, Err: err}
	}
	pm := &prophetModel{model: model, lastSynthetic: ds[len(ds)-1]}
	if len(features.Dates) == features.Len() {
		pm.lastReal = features.Dates[features.Len()-1]
	}
	return &TrainedModel{Model: pm}, nil
}
