package learn

import (
	"math/rand"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"golang.org/x/sync/errgroup"
)

// RandomForestParams mirrors the usual bagged-CART settings.
type RandomForestParams struct {
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Bootstrap       bool
	Seed            int64
	// Workers bounds concurrent tree fits; <= 0 uses every logical core.
	Workers int
}

// DefaultRandomForestParams returns 100 bootstrapped trees of depth 10.
func DefaultRandomForestParams() RandomForestParams {
	return RandomForestParams{
		NEstimators:     100,
		MaxDepth:        10,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Bootstrap:       true,
		Seed:            42,
	}
}

// RandomForest averages independently grown least-squares trees.
type RandomForest struct {
	params      RandomForestParams
	trees       []*RegressionTree
	width       int
	importances []float64
}

// NewRandomForest returns an unfitted forest.
func NewRandomForest(params RandomForestParams) *RandomForest {
	if params.NEstimators <= 0 {
		params.NEstimators = 100
	}
	return &RandomForest{params: params}
}

// Fit grows the trees concurrently. Per-tree seeds are drawn up front so the
// result does not depend on scheduling.
func (f *RandomForest) Fit(X [][]float64, y []float64) error {
	width, err := validateXY(X, y)
	if err != nil {
		return err
	}

	n := len(X)
	grad := make([]float64, n)
	hess := make([]float64, n)
	for i, v := range y {
		grad[i] = -v
		hess[i] = 1
	}
	features := make([]int, width)
	for j := range features {
		features[j] = j
	}
	treeParams := TreeParams{
		MaxDepth:        f.params.MaxDepth,
		MinSamplesSplit: f.params.MinSamplesSplit,
		MinSamplesLeaf:  f.params.MinSamplesLeaf,
	}

	master := rand.New(rand.NewSource(f.params.Seed))
	seeds := make([]int64, f.params.NEstimators)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	trees := make([]*RegressionTree, f.params.NEstimators)
	var g errgroup.Group
	g.SetLimit(workerCount(f.params.Workers))
	for i := range trees {
		i := i
		g.Go(func() error {
			rows := make([]int, n)
			if f.params.Bootstrap {
				rng := rand.New(rand.NewSource(seeds[i]))
				for k := range rows {
					rows[k] = rng.Intn(n)
				}
			} else {
				for k := range rows {
					rows[k] = k
				}
			}
			trees[i] = growTree(X, grad, hess, rows, features, treeParams)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	importances := make([]float64, width)
	for _, t := range trees {
		per := append([]float64(nil), t.gains...)
		normalize(per)
		for j, v := range per {
			importances[j] += v
		}
	}
	normalize(importances)

	f.trees = trees
	f.width = width
	f.importances = importances
	return nil
}

// Predict averages the tree outputs.
func (f *RandomForest) Predict(X [][]float64) ([]float64, error) {
	if f.trees == nil {
		return nil, ErrNotFitted
	}
	if err := validateWidth(X, f.width); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		var sum float64
		for _, t := range f.trees {
			sum += t.predictRow(row)
		}
		out[i] = sum / float64(len(f.trees))
	}
	return out, nil
}

// FeatureImportances returns the mean impurity decrease per feature.
func (f *RandomForest) FeatureImportances() []float64 {
	return append([]float64(nil), f.importances...)
}

// workerCount resolves the tree-fitting parallelism; <= 0 means every logical core.
func workerCount(requested int) int {
	if requested > 0 {
		return requested
	}
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}
