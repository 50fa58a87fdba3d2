// Package evaluate fits each configured model on the training subset and
// scores it on the held-out test subset.
package evaluate

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"digitlab/ml"
)

// Trainer runs a fixed set of model specs against one prepared split.
type Trainer struct {
	models []ml.ModelSpec
	seed   int64
	logger *zap.Logger
}

// NewTrainer validates every spec up front so configuration mistakes surface
// before any fitting starts.
func NewTrainer(models []ml.ModelSpec, seed int64, logger *zap.Logger) (*Trainer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, spec := range models {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
	}
	return &Trainer{models: models, seed: seed, logger: logger}, nil
}

// Run fits and scores every model concurrently. Each model owns its result
// slot. A failing model is reported as *ml.FitError in its slot's Err and in
// the combined error; the other models still complete. The returned slice
// always has one entry per model, in configuration order.
func (t *Trainer) Run(ctx context.Context, data *ml.Prepared) ([]*ml.Evaluation, error) {
	results := make([]*ml.Evaluation, len(t.models))
	errs := make([]error, len(t.models))

	g, ctx := errgroup.WithContext(ctx)
	for i, spec := range t.models {
		i, spec := i, spec
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i], errs[i] = t.runOne(spec, data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var combined error
	for i, err := range errs {
		if err == nil {
			continue
		}
		results[i] = &ml.Evaluation{Model: t.models[i].Label(), Err: err}
		combined = multierr.Append(combined, err)
	}
	return results, combined
}

func (t *Trainer) runOne(spec ml.ModelSpec, data *ml.Prepared) (*ml.Evaluation, error) {
	name := spec.Label()
	start := time.Now()
	clf, err := ml.NewClassifier(spec, t.seed)
	if err != nil {
		return nil, &ml.FitError{Model: name, Err: err}
	}
	eval, err := ml.FitAndEvaluate(name, clf, data.TrainX, data.TrainY, data.TestX, data.TestY)
	if err != nil {
		t.logger.Error("model failed", zap.String("model", name), zap.Error(err))
		return nil, err
	}
	t.logger.Info("model evaluated",
		zap.String("model", name),
		zap.Float64("accuracy", eval.Accuracy),
		zap.Float64("macro_f1", eval.Macro.F1),
		zap.Duration("elapsed", time.Since(start)),
	)
	return eval, nil
}
