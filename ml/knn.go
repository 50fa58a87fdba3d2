package ml

import (
	"errors"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// KNNConfig configures the neighbour classifier.
type KNNConfig struct {
	K int `yaml:"k"`
}

// KNN is a k-nearest-neighbours classifier with Euclidean distance.
type KNN struct {
	K int
	X [][]float64
	y []int
}

// NewKNN creates and returns a new KNN model.
func NewKNN(k int) *KNN {
	return &KNN{K: k}
}

// Fit stores the training data; all work happens in Predict.
func (m *KNN) Fit(X [][]float64, y []int) error {
	if m.K <= 0 {
		return configErrorf("knn.k", "must be positive, got %d", m.K)
	}
	if err := checkXY(X, y); err != nil {
		return err
	}
	m.X = X
	m.y = y
	return nil
}

// Predict labels each row by majority vote of its K nearest training rows.
// Equal distances keep training order and tied votes go to the lowest label.
func (m *KNN) Predict(X [][]float64) ([]int, error) {
	if m.X == nil {
		return nil, errors.New("knn: model not trained")
	}
	if err := checkWidth(X, len(m.X[0])); err != nil {
		return nil, err
	}
	out := make([]int, len(X))
	parallelRows(len(X), func(i int) {
		out[i] = m.predictSingle(X[i])
	})
	return out, nil
}

func (m *KNN) predictSingle(xi []float64) int {
	type pair struct {
		d   float64
		idx int
	}
	k := min(m.K, len(m.X))
	nbrs := make([]pair, 0, k+1)
	less := func(a, b pair) bool {
		if a.d != b.d {
			return a.d < b.d
		}
		return a.idx < b.idx
	}

	for j, xj := range m.X {
		p := pair{d: floats.Distance(xi, xj, 2), idx: j}
		if len(nbrs) == k && !less(p, nbrs[k-1]) {
			continue
		}
		pos := sort.Search(len(nbrs), func(n int) bool { return less(p, nbrs[n]) })
		nbrs = append(nbrs, pair{})
		copy(nbrs[pos+1:], nbrs[pos:])
		nbrs[pos] = p
		if len(nbrs) > k {
			nbrs = nbrs[:k]
		}
	}

	counts := make(map[int]int, k)
	for _, p := range nbrs {
		counts[m.y[p.idx]]++
	}
	best, bestCount := 0, -1
	for label, c := range counts {
		if c > bestCount || (c == bestCount && label < best) {
			best, bestCount = label, c
		}
	}
	return best
}
