package ml

import (
	"errors"
	"math/rand"
	"sort"
)

// DecisionTree is a CART classifier using gini impurity. Nodes are stored
// flat; children are absolute indices into nodes.
type DecisionTree struct {
	MaxDepth        int
	MinSamplesSplit int
	MaxFeatures     int
	Seed            int64

	classes []int
	width   int
	nodes   []TreeNode
}

// TreeNode is one split or leaf of a fitted tree.
type TreeNode struct {
	FeatureIdx int       `json:"feature_idx"`
	Threshold  float64   `json:"threshold"`
	LeftChild  int       `json:"left_child"`
	RightChild int       `json:"right_child"`
	ClassLabel int       `json:"class_label"`
	IsLeaf     bool      `json:"is_leaf"`
	Dist       []float64 `json:"dist,omitempty"`
}

// NewDecisionTree returns a tree with no depth limit that considers every feature.
func NewDecisionTree(maxDepth int) *DecisionTree {
	return &DecisionTree{MaxDepth: maxDepth, MinSamplesSplit: 2}
}

// Fit grows the tree on every row of X.
func (dt *DecisionTree) Fit(X [][]float64, y []int) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	classes, enc := encodeLabels(y)
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	dt.classes = classes
	dt.grow(X, enc, len(classes), idx, rand.New(rand.NewSource(dt.Seed)))
	return nil
}

// Predict returns the majority class of the leaf each row lands in.
func (dt *DecisionTree) Predict(X [][]float64) ([]int, error) {
	if len(dt.nodes) == 0 {
		return nil, errors.New("model not trained")
	}
	if err := checkWidth(X, dt.width); err != nil {
		return nil, err
	}
	out := make([]int, len(X))
	for i, row := range X {
		out[i] = dt.classes[dt.leaf(row).ClassLabel]
	}
	return out, nil
}

// NodeCount returns the number of nodes of the fitted tree.
func (dt *DecisionTree) NodeCount() int { return len(dt.nodes) }

func (dt *DecisionTree) leaf(row []float64) *TreeNode {
	idx := 0
	for {
		node := &dt.nodes[idx]
		if node.IsLeaf {
			return node
		}
		if row[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
	}
}

// grow builds the tree over the (possibly repeated) sample indices idx.
// Labels are class indices in [0,nClasses).
func (dt *DecisionTree) grow(X [][]float64, y []int, nClasses int, idx []int, rnd *rand.Rand) {
	dt.width = len(X[0])
	dt.nodes = dt.nodes[:0]
	dt.buildNode(X, y, nClasses, idx, 0, rnd)
}

func (dt *DecisionTree) buildNode(X [][]float64, y []int, nClasses int, idx []int, depth int, rnd *rand.Rand) int {
	counts := make([]int, nClasses)
	for _, i := range idx {
		counts[y[i]]++
	}
	self := len(dt.nodes)
	dt.nodes = append(dt.nodes, TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		ClassLabel: argmaxInt(counts),
		IsLeaf:     true,
		Dist:       distribution(counts, len(idx)),
	})

	minSplit := max(dt.MinSamplesSplit, 2)
	if isPure(counts) || len(idx) < minSplit || (dt.MaxDepth > 0 && depth >= dt.MaxDepth) {
		return self
	}

	feature, threshold, ok := dt.findBestSplit(X, y, nClasses, idx, counts, rnd)
	if !ok {
		return self
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := dt.buildNode(X, y, nClasses, left, depth+1, rnd)
	r := dt.buildNode(X, y, nClasses, right, depth+1, rnd)
	node := &dt.nodes[self]
	node.IsLeaf = false
	node.FeatureIdx = feature
	node.Threshold = threshold
	node.LeftChild = l
	node.RightChild = r
	node.Dist = nil
	return self
}

// findBestSplit scans features in a random order and keeps the split with the
// lowest weighted gini. At least MaxFeatures non-constant features are tried
// when MaxFeatures is set; otherwise every feature is.
func (dt *DecisionTree) findBestSplit(X [][]float64, y []int, nClasses int, idx []int, counts []int, rnd *rand.Rand) (int, float64, bool) {
	width := len(X[0])
	order := rnd.Perm(width)
	budget := width
	if dt.MaxFeatures > 0 && dt.MaxFeatures < width {
		budget = dt.MaxFeatures
	}

	type entry struct {
		v float64
		y int
	}
	values := make([]entry, len(idx))
	leftCounts := make([]int, nClasses)
	n := len(idx)

	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := gini(counts, n)
	tried := 0
	for _, f := range order {
		if tried >= budget {
			break
		}
		for k, i := range idx {
			values[k] = entry{v: X[i][f], y: y[i]}
		}
		sort.Slice(values, func(a, b int) bool { return values[a].v < values[b].v })
		if values[0].v == values[n-1].v {
			continue
		}
		tried++

		for c := range leftCounts {
			leftCounts[c] = 0
		}
		rightCounts := append([]int(nil), counts...)
		for k := 0; k < n-1; k++ {
			leftCounts[values[k].y]++
			rightCounts[values[k].y]--
			if values[k].v == values[k+1].v {
				continue
			}
			nl := k + 1
			impurity := (float64(nl)*gini(leftCounts, nl) + float64(n-nl)*gini(rightCounts, n-nl)) / float64(n)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = f
				bestThreshold = (values[k].v + values[k+1].v) / 2
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func gini(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	impurity := 1.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		impurity -= p * p
	}
	return impurity
}

func isPure(counts []int) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func distribution(counts []int, n int) []float64 {
	out := make([]float64, len(counts))
	if n == 0 {
		return out
	}
	for i, c := range counts {
		out[i] = float64(c) / float64(n)
	}
	return out
}

// encodeLabels maps labels to indices into the sorted distinct label list.
func encodeLabels(y []int) ([]int, []int) {
	classes, _ := groupByClass(y)
	pos := make(map[int]int, len(classes))
	for i, c := range classes {
		pos[c] = i
	}
	enc := make([]int, len(y))
	for i, l := range y {
		enc[i] = pos[l]
	}
	return classes, enc
}
