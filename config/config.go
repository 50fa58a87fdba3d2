// Package config loads the yaml run configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v2"

	"digitlab/logging"
	"digitlab/ml"
	"digitlab/search"
)

// Config is the full run configuration. Zero fields in a file keep the
// values from Default.
type Config struct {
	Seed     int64          `yaml:"seed"`
	Dataset  DatasetConfig  `yaml:"dataset"`
	Split    SplitConfig    `yaml:"split"`
	Scaling  ScalingConfig  `yaml:"scaling"`
	Models   []ml.ModelSpec `yaml:"models"`
	Search   SearchConfig   `yaml:"search"`
	Database DatabaseConfig `yaml:"database"`
	Log      logging.Config `yaml:"log"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Report   ReportConfig   `yaml:"report"`
}

// DatasetConfig selects the data source: an optdigits file when Path is set,
// the synthetic generator otherwise.
type DatasetConfig struct {
	Path    string  `yaml:"path"`
	Samples int     `yaml:"samples"`
	Noise   float64 `yaml:"noise"`
}

type SplitConfig struct {
	TestRatio float64 `yaml:"test_ratio"`
}

type ScalingConfig struct {
	FitOn ml.FitSource `yaml:"fit_on"`
}

// SearchConfig enables the grid search and carries its settings.
type SearchConfig struct {
	Enabled       bool `yaml:"enabled"`
	search.Config `yaml:",inline"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type MonitorConfig struct {
	Addr string `yaml:"addr"`
}

// ReportConfig controls console output.
type ReportConfig struct {
	Samples   int  `yaml:"samples"` // digit images shown before training
	Confusion bool `yaml:"confusion"`
	Quiet     bool `yaml:"quiet"`
}

// Default returns the reference run: seed 42, 80/20 split, scaler fitted on
// the training rows, the three default models and the 12-combination search.
func Default() *Config {
	return &Config{
		Seed:    42,
		Dataset: DatasetConfig{Samples: 1797, Noise: 2.5},
		Split:   SplitConfig{TestRatio: 0.2},
		Scaling: ScalingConfig{FitOn: ml.FitOnTrain},
		Models:  ml.DefaultModels(),
		Search:  SearchConfig{Enabled: true, Config: search.DefaultConfig()},
		Log:     logging.DefaultConfig(),
		Report:  ReportConfig{Samples: 4, Confusion: true},
	}
}

// Load decodes the yaml file at path over Default and validates the result.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Decode(file)
}

// Decode reads yaml from r over Default and validates it. Empty input yields
// the defaults.
func Decode(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := yaml.NewDecoder(r).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting as *ml.ConfigurationError.
func (c *Config) Validate() error {
	if !(c.Split.TestRatio > 0 && c.Split.TestRatio < 1) {
		return &ml.ConfigurationError{Field: "split.test_ratio", Reason: fmt.Sprintf("must be in (0,1), got %v", c.Split.TestRatio)}
	}
	switch c.Scaling.FitOn {
	case ml.FitOnTrain, ml.FitOnAll:
	default:
		return &ml.ConfigurationError{Field: "scaling.fit_on", Reason: fmt.Sprintf("unknown fit source %q", c.Scaling.FitOn)}
	}
	if c.Dataset.Samples < 0 {
		return &ml.ConfigurationError{Field: "dataset.samples", Reason: "must not be negative"}
	}
	if c.Dataset.Noise < 0 {
		return &ml.ConfigurationError{Field: "dataset.noise", Reason: "must not be negative"}
	}
	if len(c.Models) == 0 && !c.Search.Enabled {
		return &ml.ConfigurationError{Field: "models", Reason: "nothing to run: no models and search disabled"}
	}
	seen := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		if err := m.Validate(); err != nil {
			return err
		}
		if seen[m.Label()] {
			return &ml.ConfigurationError{Field: "models", Reason: fmt.Sprintf("duplicate model name %q", m.Label())}
		}
		seen[m.Label()] = true
	}
	if c.Search.Enabled {
		if err := c.Search.Grid.Validate(); err != nil {
			return err
		}
		if c.Search.Folds < 2 {
			return &ml.ConfigurationError{Field: "search.folds", Reason: fmt.Sprintf("need at least 2 folds, got %d", c.Search.Folds)}
		}
		if err := c.Search.Base.Validate(); err != nil {
			return err
		}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return &ml.ConfigurationError{Field: "log.level", Reason: err.Error()}
	}
	if c.Report.Samples < 0 {
		return &ml.ConfigurationError{Field: "report.samples", Reason: "must not be negative"}
	}
	return nil
}
