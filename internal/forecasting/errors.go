package forecasting

import (
	"errors"
	"fmt"
)

var (
	// ErrNotTrained is returned by operations that need a trained ensemble.
	ErrNotTrained = errors.New("forecasting: models must be trained before making predictions")
	// ErrNoSuccessfulPredictions is returned when every ensemble member fails.
	ErrNoSuccessfulPredictions = errors.New("forecasting: no successful predictions from ensemble")
	// ErrNoModelsTrained is returned when no ensemble kind could be fitted.
	ErrNoModelsTrained = errors.New("forecasting: no ensemble model could be trained")
	// ErrInsufficientData is returned when feature engineering leaves no usable rows.
	ErrInsufficientData = errors.New("forecasting: insufficient data")
	// ErrOptimizationUnsupported is returned for kinds without a search space.
	ErrOptimizationUnsupported = errors.New("forecasting: hyperparameter optimization not supported for model kind")
)

// UnknownModelError reports a kind that is not known or was never trained.
type UnknownModelError struct {
	Kind ModelKind
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("forecasting: model %s not found", e.Kind)
}

// TrainingError wraps the failure of a single model fit.
type TrainingError struct {
	Kind ModelKind
	Err  error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("forecasting: training %s failed: %v", e.Kind, e.Err)
}

func (e *TrainingError) Unwrap() error {
	return e.Err
}
