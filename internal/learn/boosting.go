package learn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"
)

// GrowthPolicy selects how boosted trees are expanded.
type GrowthPolicy int

const (
	// DepthWise expands every node up to MaxDepth (xgboost style).
	DepthWise GrowthPolicy = iota
	// LeafWise expands the best leaf first up to NumLeaves (lightgbm style).
	LeafWise
)

// BoostingParams configures a squared-error gradient boosting ensemble.
type BoostingParams struct {
	NEstimators  int
	MaxDepth     int
	LearningRate float64
	// Subsample is the fraction of rows drawn without replacement per round.
	Subsample float64
	// ColsampleByTree is the fraction of features drawn per round.
	ColsampleByTree float64
	Lambda          float64
	MinChildWeight  float64
	MinChildSamples int
	NumLeaves       int
	Growth          GrowthPolicy
	// SplitImportance reports split counts instead of total gain.
	SplitImportance bool
	Seed            int64
}

// DefaultXGBoostParams mirrors the depth-wise booster defaults.
func DefaultXGBoostParams() BoostingParams {
	return BoostingParams{
		NEstimators:     100,
		MaxDepth:        6,
		LearningRate:    0.1,
		Subsample:       1,
		ColsampleByTree: 1,
		Lambda:          1,
		MinChildWeight:  1,
		Growth:          DepthWise,
		Seed:            42,
	}
}

// DefaultLightGBMParams mirrors the leaf-wise booster defaults.
func DefaultLightGBMParams() BoostingParams {
	return BoostingParams{
		NEstimators:     100,
		MaxDepth:        6,
		LearningRate:    0.1,
		Subsample:       1,
		ColsampleByTree: 1,
		MinChildWeight:  1e-3,
		MinChildSamples: 20,
		NumLeaves:       31,
		Growth:          LeafWise,
		SplitImportance: true,
		Seed:            42,
	}
}

// GradientBoosting fits an additive ensemble of shrunken regression trees.
type GradientBoosting struct {
	params      BoostingParams
	base        float64
	trees       []*RegressionTree
	width       int
	importances []float64
}

// NewGradientBoosting returns an unfitted booster.
func NewGradientBoosting(params BoostingParams) *GradientBoosting {
	if params.NEstimators <= 0 {
		params.NEstimators = 100
	}
	if params.LearningRate <= 0 {
		params.LearningRate = 0.1
	}
	if params.Subsample <= 0 || params.Subsample > 1 {
		params.Subsample = 1
	}
	if params.ColsampleByTree <= 0 || params.ColsampleByTree > 1 {
		params.ColsampleByTree = 1
	}
	return &GradientBoosting{params: params}
}

// Params returns the effective parameters.
func (g *GradientBoosting) Params() BoostingParams {
	return g.params
}

// Fit runs NEstimators boosting rounds from the target mean.
func (g *GradientBoosting) Fit(X [][]float64, y []float64) error {
	width, err := validateXY(X, y)
	if err != nil {
		return err
	}

	n := len(X)
	rng := rand.New(rand.NewSource(g.params.Seed))
	base := stat.Mean(y, nil)
	pred := make([]float64, n)
	for i := range pred {
		pred[i] = base
	}
	grad := make([]float64, n)
	hess := make([]float64, n)
	for i := range hess {
		hess[i] = 1
	}

	treeParams := TreeParams{
		MaxDepth:       g.params.MaxDepth,
		MinSamplesLeaf: g.params.MinChildSamples,
		MinChildWeight: g.params.MinChildWeight,
		Lambda:         g.params.Lambda,
	}
	if g.params.Growth == LeafWise {
		treeParams.MaxLeaves = g.params.NumLeaves
		if treeParams.MaxLeaves <= 1 {
			treeParams.MaxLeaves = 31
		}
	}

	nRows := int(math.Ceil(g.params.Subsample * float64(n)))
	nCols := int(math.Ceil(g.params.ColsampleByTree * float64(width)))
	if nCols < 1 {
		nCols = 1
	}

	trees := make([]*RegressionTree, 0, g.params.NEstimators)
	importances := make([]float64, width)
	for round := 0; round < g.params.NEstimators; round++ {
		for i := range grad {
			grad[i] = pred[i] - y[i]
		}
		rows := sampleIndices(rng, n, nRows)
		features := sampleIndices(rng, width, nCols)

		tree := growTree(X, grad, hess, rows, features, treeParams)
		for i, row := range X {
			pred[i] += g.params.LearningRate * tree.predictRow(row)
		}
		source := tree.gains
		if g.params.SplitImportance {
			source = tree.splitCount
		}
		for j, v := range source {
			importances[j] += v
		}
		trees = append(trees, tree)
	}
	normalize(importances)

	g.base = base
	g.trees = trees
	g.width = width
	g.importances = importances
	return nil
}

// Predict returns base + learning_rate · Σ tree(x).
func (g *GradientBoosting) Predict(X [][]float64) ([]float64, error) {
	if g.trees == nil {
		return nil, ErrNotFitted
	}
	if err := validateWidth(X, g.width); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		v := g.base
		for _, t := range g.trees {
			v += g.params.LearningRate * t.predictRow(row)
		}
		out[i] = v
	}
	return out, nil
}

// FeatureImportances returns normalized gain (or split-count) importances.
func (g *GradientBoosting) FeatureImportances() []float64 {
	return append([]float64(nil), g.importances...)
}

// sampleIndices draws k of n indices without replacement, in ascending order.
// k >= n returns every index.
func sampleIndices(rng *rand.Rand, n, k int) []int {
	if k >= n {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	perm := rng.Perm(n)[:k]
	chosen := make([]bool, n)
	for _, i := range perm {
		chosen[i] = true
	}
	out := make([]int, 0, k)
	for i, ok := range chosen {
		if ok {
			out = append(out, i)
		}
	}
	return out
}
