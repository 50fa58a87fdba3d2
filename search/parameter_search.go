// Package search runs an exhaustive, cross-validated grid search over SVM
// hyperparameters.
package search

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"digitlab/ml"
)

// Config controls the search.
type Config struct {
	Folds   int          `yaml:"folds"`   // cross-validation folds
	Workers int          `yaml:"workers"` // concurrent fit/score jobs, <= 0 means GOMAXPROCS
	Refit   bool         `yaml:"refit"`   // refit the winner on all training rows and score on test
	Grid    Grid         `yaml:"grid"`
	Base    ml.SVMConfig `yaml:"base"` // settings not covered by the grid
}

// DefaultConfig is 3-fold search over DefaultGrid with refit.
func DefaultConfig() Config {
	return Config{
		Folds: 3,
		Refit: true,
		Grid:  DefaultGrid(),
		Base:  ml.DefaultSVMConfig(),
	}
}

// Status of a candidate.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Candidate is the cross-validated outcome of one combination.
type Candidate struct {
	ID         int           `json:"id"`
	Params     Params        `json:"params"`
	FoldScores []float64     `json:"fold_scores"`
	MeanScore  float64       `json:"mean_score"`
	StdScore   float64       `json:"std_score"`
	Rank       int           `json:"rank"`
	Status     Status        `json:"status"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Result is the outcome of a search.
type Result struct {
	Best       Candidate      `json:"best"`
	Candidates []Candidate    `json:"candidates"`
	Refit      *ml.Evaluation `json:"refit,omitempty"`
	Duration   time.Duration  `json:"duration"`
}

// Top returns the n best candidates by rank, enumeration order among equals.
func (r *Result) Top(n int) []Candidate {
	out := append([]Candidate(nil), r.Candidates...)
	sort.SliceStable(out, func(a, b int) bool { return out[a].Rank < out[b].Rank })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Progress describes one finished fit/score job.
type Progress struct {
	Candidate int     `json:"candidate"`
	Fold      int     `json:"fold"`
	Params    Params  `json:"params"`
	Score     float64 `json:"score"`
	Error     string  `json:"error,omitempty"`
	Done      int     `json:"done"`
	Total     int     `json:"total"`
}

// Observer receives progress from concurrently running jobs; implementations
// must be safe for concurrent use.
type Observer interface {
	OnProgress(Progress)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Progress)

// OnProgress calls f.
func (f ObserverFunc) OnProgress(p Progress) { f(p) }

// ParameterSearch evaluates every grid combination with stratified k-fold
// cross-validation on the training rows.
type ParameterSearch struct {
	mu        sync.RWMutex
	config    Config
	seed      int64
	logger    *zap.Logger
	observers []Observer

	done    int
	total   int
	started bool
}

// NewParameterSearch validates the grid and fold count before any fitting.
func NewParameterSearch(config Config, seed int64, logger *zap.Logger, observers ...Observer) (*ParameterSearch, error) {
	if err := config.Grid.Validate(); err != nil {
		return nil, err
	}
	if config.Folds < 2 {
		return nil, &ml.ConfigurationError{Field: "search.folds", Reason: fmt.Sprintf("need at least 2 folds, got %d", config.Folds)}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ParameterSearch{
		config:    config,
		seed:      seed,
		logger:    logger,
		observers: observers,
	}, nil
}

// Run executes all (combination, fold) jobs on a bounded worker pool and
// reduces them in enumeration order. The first combination with the highest
// mean score wins. Failed combinations are reported but never selected.
func (p *ParameterSearch) Run(ctx context.Context, data *ml.Prepared) (*Result, error) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil, fmt.Errorf("parameter search is already running")
	}
	p.started = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.started = false
		p.mu.Unlock()
	}()

	start := time.Now()
	folds, err := ml.StratifiedKFold(data.TrainY, p.config.Folds, p.seed)
	if err != nil {
		return nil, err
	}
	combos := p.config.Grid.Combinations()
	k := len(folds)

	p.mu.Lock()
	p.done = 0
	p.total = len(combos) * k
	p.mu.Unlock()

	p.logger.Info("grid search started",
		zap.Int("combinations", len(combos)),
		zap.Int("folds", k),
		zap.Int("jobs", len(combos)*k),
	)

	scores := make([][]float64, len(combos))
	errs := make([][]error, len(combos))
	elapsed := make([][]time.Duration, len(combos))
	for i := range combos {
		scores[i] = make([]float64, k)
		errs[i] = make([]error, k)
		elapsed[i] = make([]time.Duration, k)
	}

	workers := p.config.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for ci := range combos {
		ci := ci
		for fi := range folds {
			fi := fi
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				jobStart := time.Now()
				score, err := p.scoreFold(combos[ci], data, folds[fi])
				scores[ci][fi], errs[ci][fi] = score, err
				elapsed[ci][fi] = time.Since(jobStart)
				p.report(ci, fi, combos[ci], score, err)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("parameter search cancelled: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parameter search cancelled: %w", err)
	}

	result := &Result{Candidates: make([]Candidate, len(combos))}
	var failures error
	for ci, params := range combos {
		c := Candidate{ID: ci, Params: params, FoldScores: scores[ci], Status: StatusCompleted}
		for fi, err := range errs[ci] {
			c.Duration += elapsed[ci][fi]
			if err != nil && c.Status == StatusCompleted {
				c.Status = StatusFailed
				c.Error = err.Error()
				failures = multierr.Append(failures, fmt.Errorf("%s: %w", params, err))
			}
		}
		if c.Status == StatusCompleted {
			c.MeanScore, c.StdScore = meanStd(c.FoldScores)
		}
		result.Candidates[ci] = c
	}

	best := -1
	for ci, c := range result.Candidates {
		if c.Status != StatusCompleted {
			continue
		}
		if best == -1 || isBetterResult(c.MeanScore, result.Candidates[best].MeanScore) {
			best = ci
		}
	}
	if best == -1 {
		return nil, fmt.Errorf("all %d candidates failed: %w", len(combos), failures)
	}
	assignRanks(result.Candidates)
	result.Best = result.Candidates[best]

	p.logger.Info("grid search completed",
		zap.Stringer("best", result.Best.Params),
		zap.Float64("best_mean_score", result.Best.MeanScore),
		zap.Int("failed", len(multierr.Errors(failures))),
	)

	if p.config.Refit {
		name := "svm_best"
		clf := ml.NewSVC(result.Best.Params.Apply(p.config.Base))
		eval, err := ml.FitAndEvaluate(name, clf, data.TrainX, data.TrainY, data.TestX, data.TestY)
		if err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
		result.Refit = eval
		p.logger.Info("refit best parameters", zap.Float64("test_accuracy", eval.Accuracy))
	}
	result.Duration = time.Since(start)
	return result, nil
}

// Progress returns the completed share of jobs in percent.
func (p *ParameterSearch) Progress() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.total == 0 {
		return 0
	}
	return float64(p.done) / float64(p.total) * 100
}

// IsRunning reports whether Run is in progress.
func (p *ParameterSearch) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

// scoreFold fits on every training row outside heldOut and returns the
// accuracy on heldOut.
func (p *ParameterSearch) scoreFold(params Params, data *ml.Prepared, heldOut []int) (float64, error) {
	fitIdx := ml.Complement(len(data.TrainY), heldOut)
	fitX, fitY := ml.Subset(data.TrainX, data.TrainY, fitIdx)
	valX, valY := ml.Subset(data.TrainX, data.TrainY, heldOut)

	clf := ml.NewSVC(params.Apply(p.config.Base))
	if err := clf.Fit(fitX, fitY); err != nil {
		return 0, &ml.FitError{Model: params.String(), Err: err}
	}
	pred, err := clf.Predict(valX)
	if err != nil {
		return 0, &ml.FitError{Model: params.String(), Err: err}
	}
	return ml.Accuracy(valY, pred), nil
}

func (p *ParameterSearch) report(ci, fi int, params Params, score float64, err error) {
	p.mu.Lock()
	p.done++
	pr := Progress{Candidate: ci, Fold: fi, Params: params, Score: score, Done: p.done, Total: p.total}
	p.mu.Unlock()

	if err != nil {
		pr.Error = err.Error()
		p.logger.Warn("fold failed", zap.Stringer("params", params), zap.Int("fold", fi), zap.Error(err))
	} else {
		p.logger.Debug("fold scored", zap.Stringer("params", params), zap.Int("fold", fi), zap.Float64("score", score))
	}
	for _, o := range p.observers {
		o.OnProgress(pr)
	}
}

// isBetterResult is strict so the earlier combination keeps a tie.
func isBetterResult(newMetric, currentMetric float64) bool {
	return newMetric > currentMetric
}

// meanStd returns the mean and population standard deviation.
func meanStd(x []float64) (float64, float64) {
	mean, variance := stat.MeanVariance(x, nil)
	n := float64(len(x))
	if n > 1 {
		variance = variance * (n - 1) / n
	}
	return mean, math.Sqrt(variance)
}

// assignRanks gives completed candidates 1 + the number of strictly better
// candidates; failed ones rank after all completed ones.
func assignRanks(cands []Candidate) {
	completed := 0
	for _, c := range cands {
		if c.Status == StatusCompleted {
			completed++
		}
	}
	for i := range cands {
		if cands[i].Status != StatusCompleted {
			cands[i].Rank = completed + 1
			continue
		}
		rank := 1
		for _, other := range cands {
			if other.Status == StatusCompleted && other.MeanScore > cands[i].MeanScore {
				rank++
			}
		}
		cands[i].Rank = rank
	}
}
