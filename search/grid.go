package search

import (
	"fmt"

	"digitlab/ml"
)

// Params is one SVM hyperparameter combination.
type Params struct {
	C      float64       `json:"c"`
	Gamma  ml.GammaSpec  `json:"gamma"`
	Kernel ml.KernelKind `json:"kernel"`
}

func (p Params) String() string {
	return fmt.Sprintf("C=%g gamma=%s kernel=%s", p.C, p.Gamma, p.Kernel)
}

// Apply overlays the combination on a base SVM configuration.
func (p Params) Apply(base ml.SVMConfig) ml.SVMConfig {
	base.C = p.C
	base.Gamma = p.Gamma
	base.Kernel = p.Kernel
	return base
}

// Grid is the finite hyperparameter space. Enumeration is C-major, then
// gamma, then kernel; that order decides ties.
type Grid struct {
	C      []float64       `yaml:"c"`
	Gamma  []ml.GammaSpec  `yaml:"gamma"`
	Kernel []ml.KernelKind `yaml:"kernel"`
}

// DefaultGrid is the 12-combination SVM grid.
func DefaultGrid() Grid {
	return Grid{
		C: []float64{0.1, 1, 10},
		Gamma: []ml.GammaSpec{
			{Mode: ml.GammaScale},
			{Mode: ml.GammaAuto},
			ml.GammaOf(0.01),
			ml.GammaOf(0.001),
		},
		Kernel: []ml.KernelKind{ml.KernelRBF, ml.KernelPoly},
	}
}

// Size is the number of combinations.
func (g Grid) Size() int {
	return len(g.C) * len(g.Gamma) * len(g.Kernel)
}

// Validate rejects empty axes, non-positive C or gamma values and unknown kernels.
func (g Grid) Validate() error {
	if len(g.C) == 0 || len(g.Gamma) == 0 || len(g.Kernel) == 0 {
		return &ml.ConfigurationError{Field: "search.grid", Reason: "every axis needs at least one value"}
	}
	for _, c := range g.C {
		if !(c > 0) {
			return &ml.ConfigurationError{Field: "search.grid.c", Reason: fmt.Sprintf("regularization strength must be positive, got %v", c)}
		}
	}
	for _, gamma := range g.Gamma {
		if err := gamma.Validate(); err != nil {
			return err
		}
	}
	for _, k := range g.Kernel {
		if _, err := ml.ParseKernel(string(k)); err != nil {
			return err
		}
	}
	return nil
}

// Combinations enumerates the grid.
func (g Grid) Combinations() []Params {
	out := make([]Params, 0, g.Size())
	for _, c := range g.C {
		for _, gamma := range g.Gamma {
			for _, k := range g.Kernel {
				out = append(out, Params{C: c, Gamma: gamma, Kernel: k})
			}
		}
	}
	return out
}
