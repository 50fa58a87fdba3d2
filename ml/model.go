package ml

import (
	"fmt"
	"strconv"
)

// NumClasses is the number of digit labels.
const NumClasses = 10

// Classifier is the capability set shared by every model variant.
type Classifier interface {
	Fit(X [][]float64, y []int) error
	Predict(X [][]float64) ([]int, error)
}

// ModelKind tags a model variant.
type ModelKind string

const (
	KindSVM    ModelKind = "svm"
	KindKNN    ModelKind = "knn"
	KindForest ModelKind = "forest"
)

// KernelKind names an SVM kernel shape.
type KernelKind string

const (
	KernelRBF  KernelKind = "rbf"
	KernelPoly KernelKind = "poly"
)

// UnmarshalYAML accepts the short names and the long aliases.
func (k *KernelKind) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	kind, err := ParseKernel(s)
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// ParseKernel maps a kernel name to a KernelKind.
func ParseKernel(s string) (KernelKind, error) {
	switch s {
	case "rbf", "radial-basis":
		return KernelRBF, nil
	case "poly", "polynomial":
		return KernelPoly, nil
	}
	return "", configErrorf("kernel", "unknown kernel %q", s)
}

// Gamma modes.
const (
	GammaScale = "scale"
	GammaAuto  = "auto"
	GammaValue = "value"
)

// GammaSpec is the kernel-width policy: derived from the training data
// ("scale", "auto") or a fixed positive value.
type GammaSpec struct {
	Mode  string
	Value float64
}

// GammaOf returns a fixed-value GammaSpec.
func GammaOf(v float64) GammaSpec { return GammaSpec{Mode: GammaValue, Value: v} }

func (g GammaSpec) String() string {
	if g.Mode == GammaValue {
		return strconv.FormatFloat(g.Value, 'g', -1, 64)
	}
	return g.Mode
}

// MarshalText renders the mode name or the number.
func (g GammaSpec) MarshalText() ([]byte, error) { return []byte(g.String()), nil }

// ParseGamma accepts "scale", "auto", "auto-scaled" or a number.
func ParseGamma(s string) (GammaSpec, error) {
	switch s {
	case GammaScale, "auto-scaled":
		return GammaSpec{Mode: GammaScale}, nil
	case GammaAuto:
		return GammaSpec{Mode: GammaAuto}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return GammaSpec{}, configErrorf("gamma", "unknown gamma %q", s)
	}
	return GammaOf(v), nil
}

// UnmarshalYAML accepts either a mode name or a number.
func (g *GammaSpec) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		spec, err := ParseGamma(v)
		if err != nil {
			return err
		}
		*g = spec
	case int:
		*g = GammaOf(float64(v))
	case float64:
		*g = GammaOf(v)
	default:
		return configErrorf("gamma", "unsupported value %v", raw)
	}
	return nil
}

// Validate rejects non-positive numeric widths and unknown modes.
func (g GammaSpec) Validate() error {
	switch g.Mode {
	case GammaScale, GammaAuto:
		return nil
	case GammaValue:
		if g.Value <= 0 {
			return configErrorf("gamma", "must be positive, got %v", g.Value)
		}
		return nil
	}
	return configErrorf("gamma", "unknown mode %q", g.Mode)
}

// ModelSpec is a tagged model configuration. Only the record matching Kind is used.
type ModelSpec struct {
	Name   string       `yaml:"name"`
	Kind   ModelKind    `yaml:"kind"`
	SVM    SVMConfig    `yaml:"svm"`
	KNN    KNNConfig    `yaml:"knn"`
	Forest ForestConfig `yaml:"forest"`
}

// UnmarshalYAML fills every record with its defaults before decoding so a
// config only names the settings it changes.
func (s *ModelSpec) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain ModelSpec
	p := plain{SVM: DefaultSVMConfig(), KNN: KNNConfig{K: 5}, Forest: DefaultForestConfig()}
	if err := unmarshal(&p); err != nil {
		return err
	}
	*s = ModelSpec(p)
	return nil
}

// Label is the display name of the spec.
func (s ModelSpec) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return string(s.Kind)
}

// Validate checks the record selected by Kind.
func (s ModelSpec) Validate() error {
	switch s.Kind {
	case KindSVM:
		return s.SVM.Validate()
	case KindKNN:
		if s.KNN.K <= 0 {
			return configErrorf("knn.k", "must be positive, got %d", s.KNN.K)
		}
		return nil
	case KindForest:
		return s.Forest.Validate()
	}
	return configErrorf("kind", "unsupported model kind %q", s.Kind)
}

// NewClassifier builds an unfitted classifier for spec. seed drives every
// stochastic step of the variant.
func NewClassifier(spec ModelSpec, seed int64) (Classifier, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	switch spec.Kind {
	case KindSVM:
		return NewSVC(spec.SVM), nil
	case KindKNN:
		return NewKNN(spec.KNN.K), nil
	case KindForest:
		return NewRandomForest(spec.Forest, seed), nil
	}
	return nil, fmt.Errorf("unsupported model kind %q", spec.Kind)
}

// DefaultModels returns the three evaluated variants: SVC(C=10, gamma=scale),
// KNN(k=5) and a 100-tree random forest.
func DefaultModels() []ModelSpec {
	return []ModelSpec{
		{Name: "svm", Kind: KindSVM, SVM: DefaultSVMConfig()},
		{Name: "knn", Kind: KindKNN, KNN: KNNConfig{K: 5}},
		{Name: "random_forest", Kind: KindForest, Forest: DefaultForestConfig()},
	}
}
