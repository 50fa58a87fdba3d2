package ml

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// kernel evaluates K(a,b) for one fitted kernel configuration.
type kernel struct {
	kind   KernelKind
	gamma  float64
	degree int
	coef0  float64
}

// eval takes the squared norms of a and b so the RBF distance reuses the dot product.
func (k kernel) eval(a, b []float64, normA, normB float64) float64 {
	dot := floats.Dot(a, b)
	switch k.kind {
	case KernelPoly:
		return powi(k.gamma*dot+k.coef0, k.degree)
	default:
		d2 := normA + normB - 2*dot
		if d2 < 0 {
			d2 = 0
		}
		return math.Exp(-k.gamma * d2)
	}
}

func powi(base float64, n int) float64 {
	out := 1.0
	for n > 0 {
		if n&1 == 1 {
			out *= base
		}
		base *= base
		n >>= 1
	}
	return out
}

func squaredNorms(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = floats.Dot(row, row)
	}
	return out
}

// resolveGamma turns a GammaSpec into a concrete width for training data X.
// "scale" is 1/(d*Var(X)) over every entry, falling back to 1 when X is constant;
// "auto" is 1/d.
func resolveGamma(spec GammaSpec, X [][]float64) float64 {
	d := len(X[0])
	switch spec.Mode {
	case GammaAuto:
		return 1 / float64(d)
	case GammaValue:
		return spec.Value
	}
	flat := make([]float64, 0, len(X)*d)
	for _, row := range X {
		flat = append(flat, row...)
	}
	_, variance := stat.MeanVariance(flat, nil)
	n := float64(len(flat))
	if n > 1 {
		// population variance
		variance = variance * (n - 1) / n
	}
	if variance == 0 || math.IsNaN(variance) {
		return 1
	}
	return 1 / (float64(d) * variance)
}
