package forecasting

import "fmt"

// Fold is one forward-chaining split: every test index is after every train index.
type Fold struct {
	Train []int
	Test  []int
}

// TimeSeriesSplit partitions n ordered rows into k expanding-window folds with
// equal test blocks of n/(k+1) rows at the end of the series.
func TimeSeriesSplit(n, k int) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("forecasting: need at least 2 folds, got %d", k)
	}
	testSize := n / (k + 1)
	if testSize < 1 {
		return nil, fmt.Errorf("%w: %d rows cannot form %d folds", ErrInsufficientData, n, k)
	}
	folds := make([]Fold, k)
	for i := range folds {
		start := n - (k-i)*testSize
		folds[i] = Fold{
			Train: indexRange(0, start),
			Test:  indexRange(start, start+testSize),
		}
	}
	return folds, nil
}

func indexRange(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}
