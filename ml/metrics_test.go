package ml

import (
	"errors"
	"math"
	"testing"
)

func TestConfusionMatrixSums(t *testing.T) {
	yTrue := []int{0, 0, 1, 1, 2, 2, 2, 9, 9, 5}
	yPred := []int{0, 1, 1, 1, 2, 0, 2, 9, 8, 5}
	m, err := NewConfusionMatrix(yTrue, yPred)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Total() != len(yTrue) {
		t.Fatalf("expected total %d, got %d", len(yTrue), m.Total())
	}
	for label := 0; label < NumClasses; label++ {
		support := 0
		for _, l := range yTrue {
			if l == label {
				support++
			}
		}
		if m.RowSum(label) != support {
			t.Fatalf("row %d: expected %d, got %d", label, support, m.RowSum(label))
		}
	}
	if m.Correct() != 7 {
		t.Fatalf("expected 7 correct, got %d", m.Correct())
	}
	if m[2][0] != 1 || m[9][8] != 1 {
		t.Fatalf("misclassifications not recorded: %v", m)
	}
}

func TestConfusionMatrixRejectsBadLabels(t *testing.T) {
	if _, err := NewConfusionMatrix([]int{0, 1}, []int{0}); err == nil {
		t.Fatalf("expected error for length mismatch")
	}
	_, err := NewConfusionMatrix([]int{0, 10}, []int{0, 1})
	var shape *DataShapeError
	if !errors.As(err, &shape) {
		t.Fatalf("expected DataShapeError, got %v", err)
	}
}

func TestEvaluateClassReport(t *testing.T) {
	yTrue := []int{0, 0, 0, 1, 1, 2}
	yPred := []int{0, 0, 1, 1, 1, 1}
	e, err := Evaluate("m", yTrue, yPred)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(e.Accuracy-4.0/6) > 1e-12 {
		t.Fatalf("unexpected accuracy %v", e.Accuracy)
	}
	if len(e.PerClass) != 3 {
		t.Fatalf("expected 3 reported labels, got %d", len(e.PerClass))
	}
	c0, c1, c2 := e.PerClass[0], e.PerClass[1], e.PerClass[2]
	if c0.Precision != 1 || math.Abs(c0.Recall-2.0/3) > 1e-12 {
		t.Fatalf("label 0: %+v", c0)
	}
	if c1.Precision != 0.5 || c1.Recall != 1 {
		t.Fatalf("label 1: %+v", c1)
	}
	if c2.Precision != 0 || c2.Recall != 0 || c2.F1 != 0 {
		t.Fatalf("label 2 should score 0 without division errors: %+v", c2)
	}
	if e.Macro.Support != 6 || e.Weighted.Support != 6 {
		t.Fatalf("unexpected support %d/%d", e.Macro.Support, e.Weighted.Support)
	}
	wantMacroRecall := (2.0/3 + 1 + 0) / 3
	if math.Abs(e.Macro.Recall-wantMacroRecall) > 1e-12 {
		t.Fatalf("expected macro recall %v, got %v", wantMacroRecall, e.Macro.Recall)
	}
	wantWeightedRecall := (2.0/3*3 + 1*2 + 0) / 6
	if math.Abs(e.Weighted.Recall-wantWeightedRecall) > 1e-12 {
		t.Fatalf("expected weighted recall %v, got %v", wantWeightedRecall, e.Weighted.Recall)
	}
}

type failingClassifier struct{}

func (failingClassifier) Fit([][]float64, []int) error { return errors.New("boom") }

func (failingClassifier) Predict([][]float64) ([]int, error) { return nil, errors.New("not fitted") }

func TestFitAndEvaluateWrapsFitError(t *testing.T) {
	_, err := FitAndEvaluate("bad", failingClassifier{}, [][]float64{{1}}, []int{0}, [][]float64{{1}}, []int{0})
	var fitErr *FitError
	if !errors.As(err, &fitErr) {
		t.Fatalf("expected FitError, got %v", err)
	}
	if fitErr.Model != "bad" || fitErr.Unwrap().Error() != "boom" {
		t.Fatalf("unexpected fit error %+v", fitErr)
	}
}
