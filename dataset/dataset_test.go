package dataset

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"digitlab/ml"
)

func TestSyntheticCanonicalCounts(t *testing.T) {
	d, err := LoadValidated(context.Background(), Synthetic{Seed: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Len() != CanonicalSize {
		t.Fatalf("expected %d samples, got %d", CanonicalSize, d.Len())
	}
	counts := d.ClassCounts()
	if counts != canonicalCounts {
		t.Fatalf("expected counts %v, got %v", canonicalCounts, counts)
	}
	for i, row := range d.Features {
		for j, v := range row {
			if v < 0 || v > 16 || v != math.Round(v) {
				t.Fatalf("row %d col %d: unexpected intensity %v", i, j, v)
			}
		}
		if row[0] != 0 {
			t.Fatalf("row %d: expected blank corner pixel", i)
		}
	}
}

func TestSyntheticDeterministic(t *testing.T) {
	ctx := context.Background()
	a, _ := Synthetic{Samples: 50, Seed: 3}.Load(ctx)
	b, _ := Synthetic{Samples: 50, Seed: 3}.Load(ctx)
	c, _ := Synthetic{Samples: 50, Seed: 4}.Load(ctx)
	if a.Len() != 50 {
		t.Fatalf("expected 50 samples, got %d", a.Len())
	}
	same := func(x, y *Dataset) bool {
		for i := range x.Features {
			if x.Labels[i] != y.Labels[i] {
				return false
			}
			for j := range x.Features[i] {
				if x.Features[i][j] != y.Features[i][j] {
					return false
				}
			}
		}
		return true
	}
	if !same(a, b) {
		t.Fatalf("same seed produced different datasets")
	}
	if same(a, c) {
		t.Fatalf("different seeds produced identical datasets")
	}
	counts := a.ClassCounts()
	for l, n := range counts {
		if n != 5 {
			t.Fatalf("label %d: expected 5 samples, got %d", l, n)
		}
	}
}

func TestValidateShapeErrors(t *testing.T) {
	row := func() []float64 { return make([]float64, FeatureCount) }
	missing := row()
	missing[10] = math.NaN()

	cases := []struct {
		name     string
		d        *Dataset
		row, col int
	}{
		{"empty", &Dataset{}, -1, -1},
		{"lengths", &Dataset{Features: [][]float64{row()}, Labels: []int{1, 2}}, -1, -1},
		{"width", &Dataset{Features: [][]float64{row(), make([]float64, 63)}, Labels: []int{1, 2}}, 1, -1},
		{"missing", &Dataset{Features: [][]float64{row(), missing}, Labels: []int{1, 2}}, 1, 10},
		{"label", &Dataset{Features: [][]float64{row()}, Labels: []int{10}}, 0, -1},
	}
	for _, tc := range cases {
		err := tc.d.Validate()
		var shape *ml.DataShapeError
		if !errors.As(err, &shape) {
			t.Fatalf("%s: expected DataShapeError, got %v", tc.name, err)
		}
		if shape.Row != tc.row || shape.Col != tc.col {
			t.Fatalf("%s: expected %d,%d, got %d,%d", tc.name, tc.row, tc.col, shape.Row, shape.Col)
		}
	}
}

func TestOptdigitsRoundTrip(t *testing.T) {
	ctx := context.Background()
	src, err := Synthetic{Samples: 20, Seed: 2}.Load(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteOptdigits(&buf, src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "digits.tra")
	data := append([]byte("\xef\xbb\xbf"), buf.Bytes()...)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := LoadValidated(ctx, OptdigitsFile{Path: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Len() != src.Len() {
		t.Fatalf("expected %d samples, got %d", src.Len(), got.Len())
	}
	for i := range src.Features {
		if got.Labels[i] != src.Labels[i] || got.Features[i][5] != src.Features[i][5] {
			t.Fatalf("row %d differs after round trip", i)
		}
	}
}

func TestParseOptdigitsErrors(t *testing.T) {
	ctx := context.Background()
	fields := strings.Repeat("0,", FeatureCount)

	if _, err := ParseOptdigits(ctx, strings.NewReader("1,2,3\n")); err == nil {
		t.Fatalf("expected error for short record")
	}
	if _, err := ParseOptdigits(ctx, strings.NewReader(fields+"x\n")); err == nil {
		t.Fatalf("expected error for bad label")
	}

	d, err := ParseOptdigits(ctx, strings.NewReader("?,"+fields[2:]+"4\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = d.Validate()
	var shape *ml.DataShapeError
	if !errors.As(err, &shape) || shape.Col != 0 {
		t.Fatalf("expected missing value at column 0, got %v", err)
	}

	if _, err := (OptdigitsFile{Path: filepath.Join(t.TempDir(), "nope")}).Load(ctx); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestImage(t *testing.T) {
	d, _ := Synthetic{Samples: 10, Seed: 1}.Load(context.Background())
	img := d.Image(3)
	if len(img) != ImageSide || len(img[0]) != ImageSide {
		t.Fatalf("unexpected image shape %dx%d", len(img), len(img[0]))
	}
	if img[2][5] != d.Features[3][2*ImageSide+5] {
		t.Fatalf("image does not match features")
	}
}
