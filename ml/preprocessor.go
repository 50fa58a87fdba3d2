package ml

import (
	"errors"
	"math"
)

// MinMaxScaler rescales every feature column to [0,1] using statistics
// computed once by Fit.
type MinMaxScaler struct {
	Min []float64
	Max []float64
}

// Fit computes per-column min/max from X. Missing values fail fast.
func (s *MinMaxScaler) Fit(X [][]float64) error {
	if len(X) == 0 {
		return errors.New("features is empty")
	}
	cols := len(X[0])
	mins := make([]float64, cols)
	maxs := make([]float64, cols)
	for i, row := range X {
		if len(row) != cols {
			return NewDataShapeError(i, -1, "inconsistent number of features")
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return NewDataShapeError(i, j, "missing or non-finite value")
			}
			if i == 0 {
				mins[j], maxs[j] = v, v
				continue
			}
			if v < mins[j] {
				mins[j] = v
			}
			if v > maxs[j] {
				maxs[j] = v
			}
		}
	}
	s.Min = mins
	s.Max = maxs
	return nil
}

// Transform applies the fitted statistics to X and returns new rows.
// Zero-range columns map to 0 and values outside the fitted range are clipped.
func (s *MinMaxScaler) Transform(X [][]float64) ([][]float64, error) {
	if s.Min == nil {
		return nil, errors.New("scaler not fitted")
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		if len(row) != len(s.Min) {
			return nil, NewDataShapeError(i, -1, "feature count does not match fitted scaler")
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, NewDataShapeError(i, j, "missing or non-finite value")
			}
			scaled[j] = normalizeFeature(v, s.Min[j], s.Max[j])
		}
		out[i] = scaled
	}
	return out, nil
}

// FitTransform fits on X and transforms it.
func (s *MinMaxScaler) FitTransform(X [][]float64) ([][]float64, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

func normalizeFeature(value, min, max float64) float64 {
	if max == min {
		return 0
	}
	v := (value - min) / (max - min)
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Prepared is the scaled, split dataset handed to training and search.
type Prepared struct {
	Split
	Scaler *MinMaxScaler

	TrainX [][]float64
	TrainY []int
	TestX  [][]float64
	TestY  []int
}

// FitSource selects which rows the scaler learns from.
type FitSource string

const (
	// FitOnTrain fits scaling parameters on the training subset only.
	FitOnTrain FitSource = "train"
	// FitOnAll fits on the whole dataset before splitting.
	FitOnAll FitSource = "all"
)

// Prepare splits X/y with a stratified partition and rescales the features.
func Prepare(X [][]float64, y []int, testRatio float64, seed int64, source FitSource) (*Prepared, error) {
	if len(X) != len(y) {
		return nil, NewDataShapeError(-1, -1, "features and labels size mismatch")
	}
	split, err := StratifiedSplit(y, testRatio, seed)
	if err != nil {
		return nil, err
	}

	scaler := &MinMaxScaler{}
	switch source {
	case FitOnAll:
		err = scaler.Fit(X)
	case FitOnTrain, "":
		err = scaler.Fit(selectRows(X, split.TrainIdx))
	default:
		return nil, configErrorf("scaling.fit_on", "unknown fit source %q", source)
	}
	if err != nil {
		return nil, err
	}

	p := &Prepared{Split: split, Scaler: scaler}
	if p.TrainX, err = scaler.Transform(selectRows(X, split.TrainIdx)); err != nil {
		return nil, err
	}
	if p.TestX, err = scaler.Transform(selectRows(X, split.TestIdx)); err != nil {
		return nil, err
	}
	p.TrainY = selectLabels(y, split.TrainIdx)
	p.TestY = selectLabels(y, split.TestIdx)
	return p, nil
}

func selectRows(X [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = X[j]
	}
	return out
}

func selectLabels(y []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}
