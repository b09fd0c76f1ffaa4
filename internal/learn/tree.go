package learn

import (
	"math"
	"sort"
)

// TreeParams controls how a single regression tree is grown.
type TreeParams struct {
	// MaxDepth limits the depth of the tree; <= 0 means unlimited.
	MaxDepth int
	// MaxLeaves switches to best-first (leaf-wise) growth when > 0.
	MaxLeaves       int
	MinSamplesSplit int
	MinSamplesLeaf  int
	// MinChildWeight is the minimum hessian sum allowed in a child.
	MinChildWeight float64
	// Lambda is the L2 penalty on leaf values.
	Lambda float64
	// MinGain is the minimum loss reduction required to split.
	MinGain float64
}

type treeNode struct {
	feature   int
	threshold float64
	left      int
	right     int
	value     float64
	leaf      bool
}

// RegressionTree is a fitted binary tree over gradient statistics. With
// gradient -y and unit hessian it reduces to a CART least-squares tree.
type RegressionTree struct {
	nodes      []treeNode
	gains      []float64
	splitCount []float64
}

func (t *RegressionTree) predictRow(x []float64) float64 {
	i := 0
	for {
		n := &t.nodes[i]
		if n.leaf {
			return n.value
		}
		if x[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (t *RegressionTree) Depth() int {
	var walk func(i, d int) int
	walk = func(i, d int) int {
		n := t.nodes[i]
		if n.leaf {
			return d
		}
		l, r := walk(n.left, d+1), walk(n.right, d+1)
		if l > r {
			return l
		}
		return r
	}
	return walk(0, 0)
}

// Leaves returns the number of leaf nodes.
func (t *RegressionTree) Leaves() int {
	count := 0
	for _, n := range t.nodes {
		if n.leaf {
			count++
		}
	}
	return count
}

type split struct {
	feature   int
	threshold float64
	gain      float64
	left      []int
	right     []int
}

type treeBuilder struct {
	X        [][]float64
	grad     []float64
	hess     []float64
	features []int
	params   TreeParams
	tree     *RegressionTree
}

// growTree fits a tree on the given rows. Rows may repeat (bootstrap samples).
func growTree(X [][]float64, grad, hess []float64, rows, features []int, params TreeParams) *RegressionTree {
	width := len(X[0])
	b := &treeBuilder{
		X:        X,
		grad:     grad,
		hess:     hess,
		features: features,
		params:   params,
		tree: &RegressionTree{
			gains:      make([]float64, width),
			splitCount: make([]float64, width),
		},
	}
	if params.MaxLeaves > 0 {
		b.growLeafWise(rows)
	} else {
		b.growDepthWise(rows, 0)
	}
	return b.tree
}

func (b *treeBuilder) leafValue(rows []int) float64 {
	var g, h float64
	for _, r := range rows {
		g += b.grad[r]
		h += b.hess[r]
	}
	return -g / (h + b.params.Lambda)
}

func (b *treeBuilder) addLeaf(rows []int) int {
	b.tree.nodes = append(b.tree.nodes, treeNode{leaf: true, value: b.leafValue(rows)})
	return len(b.tree.nodes) - 1
}

func (b *treeBuilder) canSplit(rows []int, depth int) bool {
	if b.params.MaxDepth > 0 && depth >= b.params.MaxDepth {
		return false
	}
	minSplit := b.params.MinSamplesSplit
	if minSplit < 2 {
		minSplit = 2
	}
	return len(rows) >= minSplit
}

func (b *treeBuilder) growDepthWise(rows []int, depth int) int {
	if !b.canSplit(rows, depth) {
		return b.addLeaf(rows)
	}
	s, ok := b.bestSplit(rows)
	if !ok {
		return b.addLeaf(rows)
	}
	idx := len(b.tree.nodes)
	b.tree.nodes = append(b.tree.nodes, treeNode{feature: s.feature, threshold: s.threshold})
	b.recordSplit(s)
	left := b.growDepthWise(s.left, depth+1)
	right := b.growDepthWise(s.right, depth+1)
	b.tree.nodes[idx].left = left
	b.tree.nodes[idx].right = right
	return idx
}

type pendingLeaf struct {
	node  int
	rows  []int
	depth int
	split split
	ok    bool
}

func (b *treeBuilder) pending(rows []int, depth int) pendingLeaf {
	p := pendingLeaf{node: b.addLeaf(rows), rows: rows, depth: depth}
	if b.canSplit(rows, depth) {
		p.split, p.ok = b.bestSplit(rows)
	}
	return p
}

func (b *treeBuilder) growLeafWise(rows []int) {
	frontier := []pendingLeaf{b.pending(rows, 0)}
	leaves := 1
	for leaves < b.params.MaxLeaves {
		best := -1
		for i, p := range frontier {
			if p.ok && (best < 0 || p.split.gain > frontier[best].split.gain) {
				best = i
			}
		}
		if best < 0 {
			return
		}
		p := frontier[best]
		frontier = append(frontier[:best], frontier[best+1:]...)

		b.recordSplit(p.split)
		left := b.pending(p.split.left, p.depth+1)
		right := b.pending(p.split.right, p.depth+1)
		b.tree.nodes[p.node] = treeNode{
			feature:   p.split.feature,
			threshold: p.split.threshold,
			left:      left.node,
			right:     right.node,
		}
		frontier = append(frontier, left, right)
		leaves++
	}
}

func (b *treeBuilder) recordSplit(s split) {
	b.tree.gains[s.feature] += s.gain
	b.tree.splitCount[s.feature]++
}

func (b *treeBuilder) bestSplit(rows []int) (split, bool) {
	var gTotal, hTotal float64
	for _, r := range rows {
		gTotal += b.grad[r]
		hTotal += b.hess[r]
	}
	lambda := b.params.Lambda
	parentScore := gTotal * gTotal / (hTotal + lambda)

	minLeaf := b.params.MinSamplesLeaf
	if minLeaf < 1 {
		minLeaf = 1
	}

	best := split{gain: b.params.MinGain}
	found := false
	sorted := make([]int, len(rows))

	for _, f := range b.features {
		copy(sorted, rows)
		sort.Slice(sorted, func(i, j int) bool {
			return b.X[sorted[i]][f] < b.X[sorted[j]][f]
		})

		var gLeft, hLeft float64
		for i := 0; i < len(sorted)-1; i++ {
			r := sorted[i]
			gLeft += b.grad[r]
			hLeft += b.hess[r]

			nLeft := i + 1
			if nLeft < minLeaf {
				continue
			}
			if len(sorted)-nLeft < minLeaf {
				break
			}
			cur, next := b.X[r][f], b.X[sorted[i+1]][f]
			if cur == next {
				continue
			}
			gRight, hRight := gTotal-gLeft, hTotal-hLeft
			if hLeft < b.params.MinChildWeight || hRight < b.params.MinChildWeight {
				continue
			}
			gain := 0.5 * (gLeft*gLeft/(hLeft+lambda) + gRight*gRight/(hRight+lambda) - parentScore)
			if gain > best.gain {
				best = split{feature: f, threshold: midpoint(cur, next), gain: gain}
				found = true
			}
		}
	}
	if !found {
		return split{}, false
	}

	for _, r := range rows {
		if b.X[r][best.feature] <= best.threshold {
			best.left = append(best.left, r)
		} else {
			best.right = append(best.right, r)
		}
	}
	return best, true
}

// midpoint returns a threshold t with a <= t < b that survives infinite values.
func midpoint(a, b float64) float64 {
	t := a + (b-a)/2
	if math.IsNaN(t) || math.IsInf(t, 0) || t >= b {
		return a
	}
	return t
}
