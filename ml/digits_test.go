package ml_test

import (
	"context"
	"testing"

	"digitlab/dataset"
	"digitlab/ml"
)

func prepareDigits(t *testing.T, seed int64) *ml.Prepared {
	t.Helper()
	d, err := dataset.LoadValidated(context.Background(), dataset.Synthetic{Seed: seed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, err := ml.Prepare(d.Features, d.Labels, 0.2, seed, ml.FitOnTrain)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return p
}

func TestDigitsSplitAndSVMAccuracy(t *testing.T) {
	if testing.Short() {
		t.Skip("fits an SVM on the full digits set")
	}
	p := prepareDigits(t, 42)
	if len(p.TrainY) != 1437 || len(p.TestY) != 360 {
		t.Fatalf("expected 1437/360, got %d/%d", len(p.TrainY), len(p.TestY))
	}
	for _, rows := range [][][]float64{p.TrainX, p.TestX} {
		for i, row := range rows {
			for j, v := range row {
				if v < 0 || v > 1 {
					t.Fatalf("scaled value out of range at %d,%d: %v", i, j, v)
				}
			}
		}
	}

	eval, err := ml.FitAndEvaluate("svm", ml.NewSVC(ml.DefaultSVMConfig()), p.TrainX, p.TrainY, p.TestX, p.TestY)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eval.Accuracy < 0.95 {
		t.Fatalf("expected accuracy >= 0.95, got %.4f", eval.Accuracy)
	}
	if eval.Confusion.Total() != len(p.TestY) {
		t.Fatalf("confusion total %d, expected %d", eval.Confusion.Total(), len(p.TestY))
	}
	for label := 0; label < ml.NumClasses; label++ {
		support := 0
		for _, y := range p.TestY {
			if y == label {
				support++
			}
		}
		if eval.Confusion.RowSum(label) != support {
			t.Fatalf("label %d: row sum %d, support %d", label, eval.Confusion.RowSum(label), support)
		}
	}
}

func TestDigitsSameSeedSameResults(t *testing.T) {
	if testing.Short() {
		t.Skip("fits every model twice")
	}
	run := func() []*ml.Evaluation {
		p := prepareDigits(t, 7)
		var out []*ml.Evaluation
		for _, spec := range ml.DefaultModels() {
			c, err := ml.NewClassifier(spec, 7)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			e, err := ml.FitAndEvaluate(spec.Name, c, p.TrainX, p.TrainY, p.TestX, p.TestY)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			out = append(out, e)
		}
		return out
	}
	a, b := run(), run()
	for i := range a {
		if a[i].Accuracy != b[i].Accuracy || a[i].Confusion != b[i].Confusion {
			t.Fatalf("%s: results differ between runs with the same seed", a[i].Model)
		}
	}
}
