package evaluate

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/multierr"
	"go.uber.org/zap/zaptest"

	"digitlab/dataset"
	"digitlab/ml"
)

func prepared(t *testing.T, samples int) *ml.Prepared {
	t.Helper()
	d, err := dataset.LoadValidated(context.Background(), dataset.Synthetic{Samples: samples, Seed: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, err := ml.Prepare(d.Features, d.Labels, 0.2, 5, ml.FitOnTrain)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return p
}

func TestTrainerFitErrorDoesNotAbortOthers(t *testing.T) {
	broken := ml.DefaultSVMConfig()
	broken.MaxIter = 1
	models := []ml.ModelSpec{
		{Name: "broken_svm", Kind: ml.KindSVM, SVM: broken},
		{Name: "knn", Kind: ml.KindKNN, KNN: ml.KNNConfig{K: 5}},
		{Name: "forest", Kind: ml.KindForest, Forest: ml.ForestConfig{Trees: 10, MinSamplesSplit: 2, Bootstrap: true}},
	}
	trainer, err := NewTrainer(models, 1, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	evals, err := trainer.Run(context.Background(), prepared(t, 300))
	if err == nil {
		t.Fatalf("expected combined error")
	}
	if len(multierr.Errors(err)) != 1 {
		t.Fatalf("expected exactly one failure, got %v", err)
	}
	var fitErr *ml.FitError
	if !errors.As(err, &fitErr) || fitErr.Model != "broken_svm" {
		t.Fatalf("expected FitError for broken_svm, got %v", err)
	}
	if len(evals) != 3 {
		t.Fatalf("expected 3 evaluations, got %d", len(evals))
	}
	if evals[0].Err == nil || evals[0].Model != "broken_svm" {
		t.Fatalf("expected failed slot for broken_svm, got %+v", evals[0])
	}
	for _, e := range evals[1:] {
		if e.Err != nil {
			t.Fatalf("%s: unexpected error: %v", e.Model, e.Err)
		}
		if e.Accuracy < 0.8 {
			t.Fatalf("%s: accuracy too low: %.3f", e.Model, e.Accuracy)
		}
		if e.Confusion.Total() != 60 {
			t.Fatalf("%s: expected 60 test rows, got %d", e.Model, e.Confusion.Total())
		}
	}
}

func TestNewTrainerRejectsInvalidSpec(t *testing.T) {
	_, err := NewTrainer([]ml.ModelSpec{{Name: "svm", Kind: ml.KindSVM, SVM: ml.SVMConfig{C: -1}}}, 1, nil)
	var cfgErr *ml.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestTrainerCancelled(t *testing.T) {
	trainer, err := NewTrainer(ml.DefaultModels(), 1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := trainer.Run(ctx, prepared(t, 100)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
