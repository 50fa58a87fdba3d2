package ml

import (
	"errors"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ForestConfig configures the random forest.
type ForestConfig struct {
	Trees           int  `yaml:"trees"`
	MaxDepth        int  `yaml:"max_depth"`
	MinSamplesSplit int  `yaml:"min_samples_split"`
	MaxFeatures     int  `yaml:"max_features"` // 0 => sqrt(features)
	Bootstrap       bool `yaml:"bootstrap"`
}

// DefaultForestConfig is 100 fully grown bootstrap trees.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{Trees: 100, MinSamplesSplit: 2, Bootstrap: true}
}

// Validate checks tree count and limits.
func (c ForestConfig) Validate() error {
	if c.Trees <= 0 {
		return configErrorf("forest.trees", "must be positive, got %d", c.Trees)
	}
	if c.MaxDepth < 0 {
		return configErrorf("forest.max_depth", "must not be negative, got %d", c.MaxDepth)
	}
	if c.MaxFeatures < 0 {
		return configErrorf("forest.max_features", "must not be negative, got %d", c.MaxFeatures)
	}
	return nil
}

// RandomForest is an ensemble of decision trees grown on bootstrap samples
// with random feature subsets.
type RandomForest struct {
	cfg  ForestConfig
	seed int64

	classes []int
	width   int
	trees   []*DecisionTree
}

// NewRandomForest returns an unfitted forest. Tree i draws from a source
// seeded with seed+i, so results do not depend on scheduling.
func NewRandomForest(cfg ForestConfig, seed int64) *RandomForest {
	return &RandomForest{cfg: cfg, seed: seed}
}

// Fit grows every tree concurrently.
func (rf *RandomForest) Fit(X [][]float64, y []int) error {
	if err := rf.cfg.Validate(); err != nil {
		return err
	}
	if err := checkXY(X, y); err != nil {
		return err
	}
	classes, enc := encodeLabels(y)
	n := len(X)
	maxFeatures := rf.cfg.MaxFeatures
	if maxFeatures == 0 {
		maxFeatures = max(1, int(math.Sqrt(float64(len(X[0])))))
	}

	trees := make([]*DecisionTree, rf.cfg.Trees)
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for t := range trees {
		t := t
		g.Go(func() error {
			seed := rf.seed + int64(t)
			rnd := rand.New(rand.NewSource(seed))
			sample := make([]int, n)
			for j := range sample {
				if rf.cfg.Bootstrap {
					sample[j] = rnd.Intn(n)
				} else {
					sample[j] = j
				}
			}
			tree := &DecisionTree{
				MaxDepth:        rf.cfg.MaxDepth,
				MinSamplesSplit: rf.cfg.MinSamplesSplit,
				MaxFeatures:     maxFeatures,
				Seed:            seed,
				classes:         classes,
			}
			tree.grow(X, enc, len(classes), sample, rnd)
			trees[t] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	rf.classes = classes
	rf.width = len(X[0])
	rf.trees = trees
	return nil
}

// Predict averages the leaf class distributions of all trees.
func (rf *RandomForest) Predict(X [][]float64) ([]int, error) {
	if len(rf.trees) == 0 {
		return nil, errors.New("randomforest: model not trained")
	}
	if err := checkWidth(X, rf.width); err != nil {
		return nil, err
	}
	out := make([]int, len(X))
	parallelRows(len(X), func(i int) {
		sum := make([]float64, len(rf.classes))
		for _, tree := range rf.trees {
			for c, p := range tree.leaf(X[i]).Dist {
				sum[c] += p
			}
		}
		best := 0
		for c := 1; c < len(sum); c++ {
			if sum[c] > sum[best] {
				best = c
			}
		}
		out[i] = rf.classes[best]
	})
	return out, nil
}

// Len returns the number of fitted trees.
func (rf *RandomForest) Len() int { return len(rf.trees) }
