package forecasting

import (
	"errors"
	"fmt"

	"github.com/irfndi/cashflow-ai-go/internal/learn"
)

// Config carries every tunable of the pipeline.
type Config struct {
	TargetColumn   string
	LagOffsets     []int
	RollingWindows []int
	// RecentWindow is how many trailing observations feed the lag fill of future rows.
	RecentWindow int
	// ValidationFraction is the trailing share of rows held out for metrics; 0 disables.
	ValidationFraction float64
	EnsembleKinds      []ModelKind
	Seed               int64

	RandomForest learn.RandomForestParams
	XGBoost      learn.BoostingParams
	LightGBM     learn.BoostingParams
	Prophet      learn.AdditiveParams

	CVFolds     int
	TrialBudget int
}

// DefaultConfig returns the standard pipeline configuration.
func DefaultConfig() Config {
	return Config{
		TargetColumn:       ColumnNetFlow,
		LagOffsets:         []int{1, 7, 30},
		RollingWindows:     []int{7, 30, 90},
		RecentWindow:       10,
		ValidationFraction: 0.2,
		EnsembleKinds: []ModelKind{
			ModelRandomForest,
			ModelXGBoost,
			ModelLightGBM,
			ModelLinearRegression,
		},
		Seed:         42,
		RandomForest: learn.DefaultRandomForestParams(),
		XGBoost:      learn.DefaultXGBoostParams(),
		LightGBM:     learn.DefaultLightGBMParams(),
		Prophet:      learn.DefaultAdditiveParams(),
		CVFolds:      5,
		TrialBudget:  100,
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if _, err := (TimeSeriesRow{}).Value(c.TargetColumn); err != nil {
		return fmt.Errorf("invalid target column: %w", err)
	}
	for _, lag := range c.LagOffsets {
		if lag < 1 {
			return fmt.Errorf("lag offsets must be positive, got %d", lag)
		}
	}
	for _, w := range c.RollingWindows {
		if w < 1 {
			return fmt.Errorf("rolling windows must be positive, got %d", w)
		}
	}
	if c.RecentWindow < 1 {
		return errors.New("recent window must be positive")
	}
	if c.ValidationFraction < 0 || c.ValidationFraction >= 1 {
		return fmt.Errorf("validation fraction must be in [0, 1), got %v", c.ValidationFraction)
	}
	if len(c.EnsembleKinds) == 0 {
		return errors.New("at least one ensemble kind is required")
	}
	for _, k := range c.EnsembleKinds {
		if _, err := ParseModelKind(string(k)); err != nil || k == ModelEnsemble {
			return fmt.Errorf("invalid ensemble kind %q", k)
		}
	}
	if c.CVFolds < 2 {
		return fmt.Errorf("cv folds must be at least 2, got %d", c.CVFolds)
	}
	return nil
}

// seeded returns the per-model parameters with the shared seed applied.
func (c Config) seeded() Config {
	c.RandomForest.Seed = c.Seed
	c.XGBoost.Seed = c.Seed
	c.LightGBM.Seed = c.Seed
	return c
}
