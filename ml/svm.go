package ml

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
)

const (
	tau             = 1e-12
	defaultTol      = 1e-3
	defaultMaxIter  = 1_000_000
	defaultCacheRow = 512
)

// SVMConfig configures a kernel support vector classifier.
type SVMConfig struct {
	C         float64    `yaml:"c"`
	Gamma     GammaSpec  `yaml:"gamma"`
	Kernel    KernelKind `yaml:"kernel"`
	Degree    int        `yaml:"degree"`
	Coef0     float64    `yaml:"coef0"`
	Tol       float64    `yaml:"tol"`
	MaxIter   int        `yaml:"max_iter"`
	CacheRows int        `yaml:"cache_rows"`
}

// DefaultSVMConfig is C=10 with an RBF kernel of width "scale".
func DefaultSVMConfig() SVMConfig {
	return SVMConfig{
		C:         10,
		Gamma:     GammaSpec{Mode: GammaScale},
		Kernel:    KernelRBF,
		Degree:    3,
		Tol:       defaultTol,
		MaxIter:   defaultMaxIter,
		CacheRows: defaultCacheRow,
	}
}

// Validate checks the regularization strength, kernel and width.
func (c SVMConfig) Validate() error {
	if !(c.C > 0) {
		return configErrorf("svm.c", "regularization strength must be positive, got %v", c.C)
	}
	if _, err := ParseKernel(string(c.Kernel)); err != nil {
		return err
	}
	if c.Degree < 0 {
		return configErrorf("svm.degree", "must not be negative, got %d", c.Degree)
	}
	return c.Gamma.Validate()
}

// SVC is a multi-class kernel SVM trained one-vs-one; every class pair gets a
// binary soft-margin machine solved by SMO.
type SVC struct {
	cfg    SVMConfig
	kernel kernel

	width   int
	classes []int
	sv      [][]float64
	svNorms []float64
	pairs   []pairMachine
}

// pairMachine separates classes[a] (positive) from classes[b].
type pairMachine struct {
	a, b int
	sv   []int // positions in SVC.sv
	coef []float64
	rho  float64
}

// NewSVC returns an unfitted classifier. Zero tolerance, iteration cap and
// cache size fall back to defaults.
func NewSVC(cfg SVMConfig) *SVC {
	if cfg.Tol <= 0 {
		cfg.Tol = defaultTol
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = defaultMaxIter
	}
	if cfg.CacheRows <= 0 {
		cfg.CacheRows = defaultCacheRow
	}
	if cfg.Degree <= 0 {
		cfg.Degree = 3
	}
	return &SVC{cfg: cfg}
}

// Gamma returns the kernel width resolved during Fit.
func (m *SVC) Gamma() float64 { return m.kernel.gamma }

// SupportVectors returns the number of distinct training rows kept.
func (m *SVC) SupportVectors() int { return len(m.sv) }

// Fit trains one binary machine per class pair.
func (m *SVC) Fit(X [][]float64, y []int) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	if err := m.cfg.Validate(); err != nil {
		return err
	}
	classes, members := groupByClass(y)
	if len(classes) < 2 {
		return errors.New("svm: need at least two classes")
	}
	m.classes = classes
	m.width = len(X[0])
	m.kernel = kernel{
		kind:   m.cfg.Kernel,
		gamma:  resolveGamma(m.cfg.Gamma, X),
		degree: m.cfg.Degree,
		coef0:  m.cfg.Coef0,
	}
	norms := squaredNorms(X)

	type pairResult struct {
		a, b int
		rows []int
		coef []float64
		rho  float64
	}
	results := make([]pairResult, 0, len(classes)*(len(classes)-1)/2)
	for a := 0; a < len(classes); a++ {
		for b := a + 1; b < len(classes); b++ {
			results = append(results, pairResult{a: a, b: b})
		}
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range results {
		r := &results[i]
		g.Go(func() error {
			rows := append(append([]int(nil), members[classes[r.a]]...), members[classes[r.b]]...)
			signs := make([]float64, len(rows))
			for k := range rows {
				if k < len(members[classes[r.a]]) {
					signs[k] = 1
				} else {
					signs[k] = -1
				}
			}
			s, err := newSolver(X, norms, rows, signs, m.kernel, m.cfg)
			if err != nil {
				return err
			}
			alpha, rho, err := s.solve()
			if err != nil {
				return fmt.Errorf("classes %d vs %d: %w", classes[r.a], classes[r.b], err)
			}
			for k, av := range alpha {
				if av > 0 {
					r.rows = append(r.rows, rows[k])
					r.coef = append(r.coef, signs[k]*av)
				}
			}
			r.rho = rho
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Collect the distinct support rows so prediction evaluates each kernel once.
	pos := make(map[int]int)
	m.sv = nil
	m.svNorms = nil
	m.pairs = make([]pairMachine, len(results))
	for i, r := range results {
		pm := pairMachine{a: r.a, b: r.b, coef: r.coef, rho: r.rho, sv: make([]int, len(r.rows))}
		for k, row := range r.rows {
			p, ok := pos[row]
			if !ok {
				p = len(m.sv)
				pos[row] = p
				m.sv = append(m.sv, X[row])
				m.svNorms = append(m.svNorms, norms[row])
			}
			pm.sv[k] = p
		}
		m.pairs[i] = pm
	}
	return nil
}

// Predict votes over all pair machines; ties go to the lowest label.
func (m *SVC) Predict(X [][]float64) ([]int, error) {
	if m.pairs == nil {
		return nil, errors.New("svm: model not trained")
	}
	if err := checkWidth(X, m.width); err != nil {
		return nil, err
	}
	out := make([]int, len(X))
	parallelRows(len(X), func(i int) {
		x := X[i]
		xn := squaredNorm(x)
		kv := make([]float64, len(m.sv))
		for k, s := range m.sv {
			kv[k] = m.kernel.eval(s, x, m.svNorms[k], xn)
		}
		votes := make([]int, len(m.classes))
		for _, p := range m.pairs {
			dec := -p.rho
			for k, s := range p.sv {
				dec += p.coef[k] * kv[s]
			}
			if dec > 0 {
				votes[p.a]++
			} else {
				votes[p.b]++
			}
		}
		out[i] = m.classes[argmaxInt(votes)]
	})
	return out, nil
}

// solver is an SMO solver for the binary soft-margin dual
//
//	min 0.5 a'Qa - e'a  s.t. 0 <= a <= C, y'a = 0,  Q_ij = y_i y_j K(x_i,x_j)
//
// using second-order working set selection.
type solver struct {
	x     [][]float64
	norms []float64
	rows  []int
	y     []float64
	k     kernel
	c     float64
	tol   float64
	max   int

	qd    []float64
	cache *lru.Cache[int, []float64]
}

func newSolver(X [][]float64, norms []float64, rows []int, y []float64, k kernel, cfg SVMConfig) (*solver, error) {
	cache, err := lru.New[int, []float64](cfg.CacheRows)
	if err != nil {
		return nil, err
	}
	s := &solver{
		x:     X,
		norms: norms,
		rows:  rows,
		y:     y,
		k:     k,
		c:     cfg.C,
		tol:   cfg.Tol,
		max:   cfg.MaxIter,
		cache: cache,
		qd:    make([]float64, len(rows)),
	}
	for i, r := range rows {
		s.qd[i] = k.eval(X[r], X[r], norms[r], norms[r])
	}
	return s, nil
}

// q returns row i of Q, computing it on a cache miss.
func (s *solver) q(i int) []float64 {
	if row, ok := s.cache.Get(i); ok {
		return row
	}
	ri := s.rows[i]
	row := make([]float64, len(s.rows))
	for j, rj := range s.rows {
		row[j] = s.y[i] * s.y[j] * s.k.eval(s.x[ri], s.x[rj], s.norms[ri], s.norms[rj])
	}
	s.cache.Add(i, row)
	return row
}

func (s *solver) solve() ([]float64, float64, error) {
	l := len(s.rows)
	alpha := make([]float64, l)
	grad := make([]float64, l)
	for i := range grad {
		grad[i] = -1
	}

	for iter := 0; ; iter++ {
		if iter >= s.max {
			return nil, 0, fmt.Errorf("svm: did not converge after %d iterations", s.max)
		}
		i, j, done := s.selectWorkingSet(alpha, grad)
		if done {
			break
		}
		s.update(i, j, alpha, grad)
	}
	return alpha, s.rho(alpha, grad), nil
}

func (s *solver) upper(a float64) bool { return a >= s.c }
func (s *solver) lower(a float64) bool { return a <= 0 }

func (s *solver) selectWorkingSet(alpha, grad []float64) (int, int, bool) {
	gmax := math.Inf(-1)
	gmax2 := math.Inf(-1)
	gmaxIdx, gminIdx := -1, -1
	objDiffMin := math.Inf(1)

	for t := range alpha {
		if s.y[t] > 0 {
			if !s.upper(alpha[t]) && -grad[t] >= gmax {
				gmax = -grad[t]
				gmaxIdx = t
			}
		} else if !s.lower(alpha[t]) && grad[t] >= gmax {
			gmax = grad[t]
			gmaxIdx = t
		}
	}
	if gmaxIdx == -1 {
		return 0, 0, true
	}
	i := gmaxIdx
	qi := s.q(i)

	for j := range alpha {
		var gradDiff, quad float64
		if s.y[j] > 0 {
			if s.lower(alpha[j]) {
				continue
			}
			gradDiff = gmax + grad[j]
			if grad[j] >= gmax2 {
				gmax2 = grad[j]
			}
			quad = s.qd[i] + s.qd[j] - 2*s.y[i]*qi[j]
		} else {
			if s.upper(alpha[j]) {
				continue
			}
			gradDiff = gmax - grad[j]
			if -grad[j] >= gmax2 {
				gmax2 = -grad[j]
			}
			quad = s.qd[i] + s.qd[j] + 2*s.y[i]*qi[j]
		}
		if gradDiff > 0 {
			if quad <= 0 {
				quad = tau
			}
			objDiff := -(gradDiff * gradDiff) / quad
			if objDiff <= objDiffMin {
				gminIdx = j
				objDiffMin = objDiff
			}
		}
	}
	if gmax+gmax2 < s.tol || gminIdx == -1 {
		return 0, 0, true
	}
	return i, gminIdx, false
}

func (s *solver) update(i, j int, alpha, grad []float64) {
	qi := s.q(i)
	qj := s.q(j)
	c := s.c
	oldI, oldJ := alpha[i], alpha[j]

	if s.y[i] != s.y[j] {
		quad := s.qd[i] + s.qd[j] + 2*qi[j]
		if quad <= 0 {
			quad = tau
		}
		delta := (-grad[i] - grad[j]) / quad
		diff := alpha[i] - alpha[j]
		alpha[i] += delta
		alpha[j] += delta
		if diff > 0 {
			if alpha[j] < 0 {
				alpha[j] = 0
				alpha[i] = diff
			}
		} else if alpha[i] < 0 {
			alpha[i] = 0
			alpha[j] = -diff
		}
		if diff > 0 {
			if alpha[i] > c {
				alpha[i] = c
				alpha[j] = c - diff
			}
		} else if alpha[j] > c {
			alpha[j] = c
			alpha[i] = c + diff
		}
	} else {
		quad := s.qd[i] + s.qd[j] - 2*qi[j]
		if quad <= 0 {
			quad = tau
		}
		delta := (grad[i] - grad[j]) / quad
		sum := alpha[i] + alpha[j]
		alpha[i] -= delta
		alpha[j] += delta
		if sum > c {
			if alpha[i] > c {
				alpha[i] = c
				alpha[j] = sum - c
			}
		} else if alpha[j] < 0 {
			alpha[j] = 0
			alpha[i] = sum
		}
		if sum > c {
			if alpha[j] > c {
				alpha[j] = c
				alpha[i] = sum - c
			}
		} else if alpha[i] < 0 {
			alpha[i] = 0
			alpha[j] = sum
		}
	}

	dI := alpha[i] - oldI
	dJ := alpha[j] - oldJ
	for k := range grad {
		grad[k] += qi[k]*dI + qj[k]*dJ
	}
}

// rho is the bias: the mean of y*grad over free vectors, or the midpoint of
// the feasible interval when every vector sits at a bound.
func (s *solver) rho(alpha, grad []float64) float64 {
	ub, lb := math.Inf(1), math.Inf(-1)
	sumFree, nFree := 0.0, 0
	for i, a := range alpha {
		yg := s.y[i] * grad[i]
		switch {
		case s.upper(a):
			if s.y[i] < 0 {
				ub = math.Min(ub, yg)
			} else {
				lb = math.Max(lb, yg)
			}
		case s.lower(a):
			if s.y[i] > 0 {
				ub = math.Min(ub, yg)
			} else {
				lb = math.Max(lb, yg)
			}
		default:
			nFree++
			sumFree += yg
		}
	}
	if nFree > 0 {
		return sumFree / float64(nFree)
	}
	return (ub + lb) / 2
}
