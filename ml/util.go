package ml

import (
	"runtime"
	"sync"

	"gonum.org/v1/gonum/floats"
)

func checkXY(X [][]float64, y []int) error {
	if len(X) == 0 || len(y) == 0 {
		return NewDataShapeError(-1, -1, "features or labels empty")
	}
	if len(X) != len(y) {
		return NewDataShapeError(-1, -1, "features and labels size mismatch")
	}
	return checkWidth(X, len(X[0]))
}

func checkWidth(X [][]float64, width int) error {
	for i, row := range X {
		if len(row) != width {
			return NewDataShapeError(i, -1, "inconsistent number of features")
		}
	}
	return nil
}

func squaredNorm(x []float64) float64 { return floats.Dot(x, x) }

// argmaxInt returns the first index holding the maximum.
func argmaxInt(v []int) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// parallelRows calls fn for every row index in [0,n), splitting the range
// over GOMAXPROCS goroutines. fn must only write to its own row slot.
func parallelRows(n int, fn func(i int)) {
	if n == 0 {
		return
	}
	workers := runtime.GOMAXPROCS(0)
	rowsPerWorker := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * rowsPerWorker
		end := min(start+rowsPerWorker, n)
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				fn(i)
			}
		}(start, end)
	}
	wg.Wait()
}
