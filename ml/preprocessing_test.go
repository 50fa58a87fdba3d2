package ml

import (
	"errors"
	"math"
	"testing"
)

func TestMinMaxScalerRange(t *testing.T) {
	X := [][]float64{
		{0, 5, 16},
		{8, 5, 4},
		{16, 5, 0},
		{4, 5, 10},
	}
	s := &MinMaxScaler{}
	out, err := s.FitTransform(X)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, row := range out {
		for j, v := range row {
			if v < 0 || v > 1 {
				t.Fatalf("value out of range at %d,%d: %v", i, j, v)
			}
		}
	}
	if out[0][0] != 0 || out[2][0] != 1 || out[1][0] != 0.5 {
		t.Fatalf("unexpected scaling of column 0: %v %v %v", out[0][0], out[1][0], out[2][0])
	}
	for i := range out {
		if out[i][1] != 0 {
			t.Fatalf("expected constant column to scale to 0, got %v", out[i][1])
		}
	}
}

func TestMinMaxScalerClipsUnseenRange(t *testing.T) {
	s := &MinMaxScaler{}
	if err := s.Fit([][]float64{{2}, {4}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := s.Transform([][]float64{{0}, {3}, {9}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0][0] != 0 || out[1][0] != 0.5 || out[2][0] != 1 {
		t.Fatalf("unexpected values: %v", out)
	}
}

func TestMinMaxScalerRejectsMissing(t *testing.T) {
	s := &MinMaxScaler{}
	err := s.Fit([][]float64{{1, 2}, {math.NaN(), 3}})
	var shape *DataShapeError
	if !errors.As(err, &shape) {
		t.Fatalf("expected DataShapeError, got %v", err)
	}
	if shape.Row != 1 || shape.Col != 0 {
		t.Fatalf("expected row 1 col 0, got %d,%d", shape.Row, shape.Col)
	}
	if _, err := (&MinMaxScaler{}).Transform([][]float64{{1}}); err == nil {
		t.Fatalf("expected error from unfitted scaler")
	}
}

// digitsLabels reproduces the class counts of the reference digits set.
func digitsLabels() []int {
	counts := []int{178, 182, 177, 183, 181, 182, 181, 179, 174, 180}
	var labels []int
	for label, n := range counts {
		for i := 0; i < n; i++ {
			labels = append(labels, label)
		}
	}
	// interleave so classes are not contiguous
	out := make([]int, 0, len(labels))
	for step := 0; step < 7; step++ {
		for i := step; i < len(labels); i += 7 {
			out = append(out, labels[i])
		}
	}
	return out
}

func TestStratifiedSplitSizes(t *testing.T) {
	labels := digitsLabels()
	split, err := StratifiedSplit(labels, 0.2, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(split.TestIdx) != 360 || len(split.TrainIdx) != 1437 {
		t.Fatalf("expected 1437/360, got %d/%d", len(split.TrainIdx), len(split.TestIdx))
	}

	seen := make([]bool, len(labels))
	for _, i := range append(append([]int(nil), split.TrainIdx...), split.TestIdx...) {
		if seen[i] {
			t.Fatalf("index %d appears twice", i)
		}
		seen[i] = true
	}
	for i, ok := range seen {
		if !ok {
			t.Fatalf("index %d missing from split", i)
		}
	}
}

func TestStratifiedSplitProportions(t *testing.T) {
	labels := digitsLabels()
	split, err := StratifiedSplit(labels, 0.2, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	total := make(map[int]int)
	test := make(map[int]int)
	for _, l := range labels {
		total[l]++
	}
	for _, i := range split.TestIdx {
		test[labels[i]]++
	}
	for c, n := range total {
		want := float64(n) * float64(len(split.TestIdx)) / float64(len(labels))
		if math.Abs(float64(test[c])-want) > 1 {
			t.Fatalf("class %d: expected about %.1f test rows, got %d", c, want, test[c])
		}
	}
}

func TestStratifiedSplitDeterministic(t *testing.T) {
	labels := digitsLabels()
	a, err := StratifiedSplit(labels, 0.2, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := StratifiedSplit(labels, 0.2, 3)
	c, _ := StratifiedSplit(labels, 0.2, 4)
	if !equalInts(a.TestIdx, b.TestIdx) {
		t.Fatalf("same seed produced different splits")
	}
	if equalInts(a.TestIdx, c.TestIdx) {
		t.Fatalf("different seeds produced identical splits")
	}
}

func TestStratifiedSplitRejectsRatio(t *testing.T) {
	for _, r := range []float64{0, 1, -0.5, 1.5} {
		_, err := StratifiedSplit([]int{0, 1, 0, 1}, r, 1)
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("ratio %v: expected ConfigurationError, got %v", r, err)
		}
	}
}

func TestStratifiedKFold(t *testing.T) {
	labels := digitsLabels()
	folds, err := StratifiedKFold(labels, 3, 11)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(folds) != 3 {
		t.Fatalf("expected 3 folds, got %d", len(folds))
	}
	seen := make(map[int]bool)
	for _, f := range folds {
		if len(f) < len(labels)/3-1 || len(f) > len(labels)/3+1 {
			t.Fatalf("unbalanced fold size %d", len(f))
		}
		per := make(map[int]int)
		for _, i := range f {
			if seen[i] {
				t.Fatalf("index %d in two folds", i)
			}
			seen[i] = true
			per[labels[i]]++
		}
		for c, n := range per {
			if n < 57 || n > 62 {
				t.Fatalf("class %d has %d rows in a fold", c, n)
			}
		}
	}
	if len(seen) != len(labels) {
		t.Fatalf("folds cover %d of %d rows", len(seen), len(labels))
	}
	rest := Complement(len(labels), folds[0])
	if len(rest)+len(folds[0]) != len(labels) {
		t.Fatalf("complement size mismatch")
	}
}

func TestStratifiedKFoldRejectsSmallClass(t *testing.T) {
	_, err := StratifiedKFold([]int{0, 0, 0, 1, 1}, 3, 1)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if _, err := StratifiedKFold([]int{0, 1}, 1, 1); err == nil {
		t.Fatalf("expected error for k=1")
	}
}

func TestPrepareFitOnTrainIgnoresTestRows(t *testing.T) {
	X := make([][]float64, 20)
	y := make([]int, 20)
	for i := range X {
		X[i] = []float64{float64(i), 3}
		y[i] = i % 2
	}
	p, err := Prepare(X, y, 0.2, 1, FitOnTrain)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.TestY) != 4 || len(p.TrainY) != 16 {
		t.Fatalf("expected 16/4, got %d/%d", len(p.TrainY), len(p.TestY))
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, i := range p.TrainIdx {
		lo = math.Min(lo, X[i][0])
		hi = math.Max(hi, X[i][0])
	}
	if p.Scaler.Min[0] != lo || p.Scaler.Max[0] != hi {
		t.Fatalf("scaler fitted on [%v,%v], train range is [%v,%v]", p.Scaler.Min[0], p.Scaler.Max[0], lo, hi)
	}
	for _, rows := range [][][]float64{p.TrainX, p.TestX} {
		for _, row := range rows {
			if row[0] < 0 || row[0] > 1 || row[1] != 0 {
				t.Fatalf("unexpected scaled row %v", row)
			}
		}
	}

	all, err := Prepare(X, y, 0.2, 1, FitOnAll)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if all.Scaler.Min[0] != 0 || all.Scaler.Max[0] != 19 {
		t.Fatalf("expected full-range scaler, got [%v,%v]", all.Scaler.Min[0], all.Scaler.Max[0])
	}
	if _, err := Prepare(X, y, 0.2, 1, FitSource("test")); err == nil {
		t.Fatalf("expected error for unknown fit source")
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
