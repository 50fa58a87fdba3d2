// Package pipeline wires one run together: load, validate, scale and split,
// train and evaluate every model, search the SVM grid, then report and
// persist the results.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"digitlab/config"
	"digitlab/dataset"
	"digitlab/db"
	"digitlab/evaluate"
	"digitlab/ml"
	"digitlab/monitoring"
	"digitlab/report"
	"digitlab/search"
)

// Options carries the collaborators of a run. Every field is optional.
type Options struct {
	Provider dataset.Provider // defaults to ProviderFor(cfg)
	Out      io.Writer        // console report
	Renderer report.Renderer  // defaults to an ASCII renderer on Out
	Store    *db.Store
	Monitor  *monitoring.Server
	Logger   *zap.Logger
}

// Report is the outcome of a run.
type Report struct {
	RunID       int64            `json:"run_id,omitempty"`
	Samples     int              `json:"samples"`
	TrainSize   int              `json:"train_size"`
	TestSize    int              `json:"test_size"`
	Evaluations []*ml.Evaluation `json:"evaluations"`
	Search      *search.Result   `json:"search,omitempty"`
	Duration    time.Duration    `json:"duration"`

	// FitErrors combines the per-model failures. They do not fail the run.
	FitErrors error `json:"-"`
}

// Evaluation returns the evaluation of the named model, or nil.
func (r *Report) Evaluation(model string) *ml.Evaluation {
	for _, e := range r.Evaluations {
		if e != nil && e.Model == model {
			return e
		}
	}
	return nil
}

// ProviderFor picks the optdigits file when a path is configured and the
// seeded synthetic generator otherwise.
func ProviderFor(cfg *config.Config) dataset.Provider {
	if cfg.Dataset.Path != "" {
		return dataset.OptdigitsFile{Path: cfg.Dataset.Path}
	}
	return dataset.Synthetic{Samples: cfg.Dataset.Samples, Seed: cfg.Seed, Noise: cfg.Dataset.Noise}
}

// Run executes the pipeline. Data shape and configuration errors abort the
// run; model fit failures are collected in Report.FitErrors.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*Report, error) {
	start := time.Now()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	out := opts.Out
	if out == nil || cfg.Report.Quiet {
		out = io.Discard
	}
	renderer := opts.Renderer
	if renderer == nil {
		renderer = report.NewASCIIRenderer(out, false)
	}
	provider := opts.Provider
	if provider == nil {
		provider = ProviderFor(cfg)
	}

	data, err := dataset.LoadValidated(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	logger.Info("dataset loaded", zap.Int("samples", data.Len()))
	report.WriteDatasetSummary(out, data.Len(), dataset.FeatureCount, data.ClassCounts())

	n := cfg.Report.Samples
	if n > data.Len() {
		n = data.Len()
	}
	images := make([][][]float64, n)
	for i := range images {
		images[i] = data.Image(i)
	}
	report.RenderGallery(renderer, images, data.Labels, n)

	prepared, err := ml.Prepare(data.Features, data.Labels, cfg.Split.TestRatio, cfg.Seed, cfg.Scaling.FitOn)
	if err != nil {
		return nil, err
	}
	rep := &Report{Samples: data.Len(), TrainSize: len(prepared.TrainY), TestSize: len(prepared.TestY)}
	report.WriteSplitSummary(out, rep.TrainSize, rep.TestSize)
	logger.Info("dataset split",
		zap.Int("train", rep.TrainSize),
		zap.Int("test", rep.TestSize),
		zap.String("scaler_fit_on", string(cfg.Scaling.FitOn)),
	)
	if opts.Monitor != nil {
		opts.Monitor.PublishStatus(monitoring.RunStatusMessage{Status: "started", Samples: data.Len()})
	}

	if opts.Store != nil {
		rep.RunID, err = opts.Store.CreateRun(ctx, db.Run{
			StartedAt: start,
			Seed:      cfg.Seed,
			Samples:   rep.Samples,
			TrainSize: rep.TrainSize,
			TestSize:  rep.TestSize,
		})
		if err != nil {
			return nil, fmt.Errorf("record run: %w", err)
		}
	}

	if len(cfg.Models) > 0 {
		trainer, err := evaluate.NewTrainer(cfg.Models, cfg.Seed, logger)
		if err != nil {
			return nil, err
		}
		evals, fitErrs := trainer.Run(ctx, prepared)
		if evals == nil {
			return nil, fitErrs
		}
		rep.Evaluations = evals
		rep.FitErrors = fitErrs
		if fitErrs != nil {
			logger.Warn("some models failed", zap.Error(fitErrs))
		}

		report.WriteAccuracyTable(out, evals)
		for _, e := range evals {
			report.WriteClassificationReport(out, e)
			if cfg.Report.Confusion {
				report.RenderConfusion(renderer, e)
			}
		}
		if opts.Monitor != nil {
			opts.Monitor.PublishEvaluations(evals)
		}
		if opts.Store != nil {
			if err := opts.Store.SaveEvaluations(ctx, rep.RunID, evals, rep.TrainSize); err != nil {
				return nil, fmt.Errorf("save evaluations: %w", err)
			}
		}
	}

	if cfg.Search.Enabled {
		var observers []search.Observer
		if opts.Monitor != nil {
			observers = append(observers, opts.Monitor)
		}
		ps, err := search.NewParameterSearch(cfg.Search.Config, cfg.Seed, logger, observers...)
		if err != nil {
			return nil, err
		}
		result, err := ps.Run(ctx, prepared)
		if result == nil {
			return nil, err
		}
		if err != nil {
			rep.FitErrors = multierr.Append(rep.FitErrors, err)
		}
		rep.Search = result
		report.WriteGridTable(out, result)
		if result.Refit != nil {
			report.WriteClassificationReport(out, result.Refit)
		}
		if opts.Store != nil {
			if err := opts.Store.SaveSearch(ctx, rep.RunID, result); err != nil {
				return nil, fmt.Errorf("save search: %w", err)
			}
			if result.Refit != nil {
				if err := opts.Store.SaveEvaluations(ctx, rep.RunID, []*ml.Evaluation{result.Refit}, rep.TrainSize); err != nil {
					return nil, fmt.Errorf("save refit: %w", err)
				}
			}
		}
	}

	rep.Duration = time.Since(start)
	if opts.Monitor != nil {
		opts.Monitor.PublishStatus(monitoring.RunStatusMessage{Status: "completed", Samples: data.Len()})
	}
	logger.Info("run completed", zap.Duration("elapsed", rep.Duration), zap.Int64("run_id", rep.RunID))
	return rep, nil
}
