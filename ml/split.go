package ml

import (
	"math"
	"math/rand"
	"sort"
)

// Split holds row indices of a train/test partition. Indices refer to the
// original dataset order.
type Split struct {
	TrainIdx []int
	TestIdx  []int
}

// StratifiedSplit partitions len(labels) rows so both subsets keep the class
// proportions of labels. The test subset has ceil(n*testRatio) rows.
func StratifiedSplit(labels []int, testRatio float64, seed int64) (Split, error) {
	n := len(labels)
	if n == 0 {
		return Split{}, NewDataShapeError(-1, -1, "labels is empty")
	}
	if testRatio <= 0 || testRatio >= 1 {
		return Split{}, configErrorf("split.test_ratio", "must be in (0,1), got %v", testRatio)
	}

	classes, members := groupByClass(labels)
	nTest := int(math.Ceil(float64(n) * testRatio))
	if nTest >= n {
		return Split{}, configErrorf("split.test_ratio", "leaves no training rows for %d samples", n)
	}

	alloc := allocate(classes, members, n, nTest)
	rnd := rand.New(rand.NewSource(seed))

	var split Split
	for ci, c := range classes {
		idx := append([]int(nil), members[c]...)
		rnd.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		split.TestIdx = append(split.TestIdx, idx[:alloc[ci]]...)
		split.TrainIdx = append(split.TrainIdx, idx[alloc[ci]:]...)
	}
	sort.Ints(split.TrainIdx)
	sort.Ints(split.TestIdx)
	return split, nil
}

// allocate distributes nTest test rows over classes: the floor of each
// class's share first, then the remainder by largest fractional part, lower
// label first on ties.
func allocate(classes []int, members map[int][]int, n, nTest int) []int {
	alloc := make([]int, len(classes))
	type frac struct {
		class int
		rest  float64
	}
	fracs := make([]frac, len(classes))
	assigned := 0
	for ci, c := range classes {
		share := float64(len(members[c])) * float64(nTest) / float64(n)
		alloc[ci] = int(math.Floor(share))
		assigned += alloc[ci]
		fracs[ci] = frac{class: ci, rest: share - math.Floor(share)}
	}
	sort.SliceStable(fracs, func(a, b int) bool { return fracs[a].rest > fracs[b].rest })
	for i := 0; assigned < nTest && i < len(fracs); i++ {
		ci := fracs[i].class
		if alloc[ci] < len(members[classes[ci]]) {
			alloc[ci]++
			assigned++
		}
	}
	return alloc
}

// StratifiedKFold deals the rows of every class round-robin into k folds
// after a seeded shuffle, so each fold keeps the class proportions.
// The returned slices are the held-out indices of each fold.
func StratifiedKFold(labels []int, k int, seed int64) ([][]int, error) {
	if k < 2 {
		return nil, configErrorf("search.folds", "need at least 2 folds, got %d", k)
	}
	classes, members := groupByClass(labels)
	for _, c := range classes {
		if len(members[c]) < k {
			return nil, configErrorf("search.folds", "class %d has %d samples, fewer than %d folds", c, len(members[c]), k)
		}
	}

	rnd := rand.New(rand.NewSource(seed))
	folds := make([][]int, k)
	next := 0
	for _, c := range classes {
		idx := append([]int(nil), members[c]...)
		rnd.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		for _, i := range idx {
			folds[next%k] = append(folds[next%k], i)
			next++
		}
	}
	for _, f := range folds {
		sort.Ints(f)
	}
	return folds, nil
}

// Complement returns every index in [0,n) not present in held.
func Complement(n int, held []int) []int {
	mask := make([]bool, n)
	for _, i := range held {
		mask[i] = true
	}
	out := make([]int, 0, n-len(held))
	for i := 0; i < n; i++ {
		if !mask[i] {
			out = append(out, i)
		}
	}
	return out
}

// Subset returns the rows and labels at idx.
func Subset(X [][]float64, y []int, idx []int) ([][]float64, []int) {
	return selectRows(X, idx), selectLabels(y, idx)
}

// groupByClass returns the sorted distinct labels and the row indices of each.
func groupByClass(labels []int) ([]int, map[int][]int) {
	members := make(map[int][]int)
	for i, l := range labels {
		members[l] = append(members[l], i)
	}
	classes := make([]int, 0, len(members))
	for c := range members {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	return classes, members
}
