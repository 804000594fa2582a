package osim

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/gaitlab/osimctl/osim/setup"
)

// StudyConfig is the YAML form of a tuning study. Pointer fields
// distinguish "not set" from zero so flags and defaults can fill them in.
type StudyConfig struct {
	Setup              string   `yaml:"setup"`
	Executable         string   `yaml:"executable"`
	Tasks              []string `yaml:"tasks"`
	Omit               string   `yaml:"omit"`
	MinMaxErr          *float64 `yaml:"min_max_err"`
	MaxMaxErr          *float64 `yaml:"max_max_err"`
	MaxIterations      *int     `yaml:"max_iterations"`
	DivergencePatience *int     `yaml:"divergence_patience"`
	RoundWeights       bool     `yaml:"round_weights"`
	Plot               string   `yaml:"plot"`
	ToolElement        string   `yaml:"tool_element"`
	ShowToolOutput     bool     `yaml:"show_tool_output"`
}

const (
	DefaultMinMaxErr          = 0.5
	DefaultMaxMaxErr          = 1.5
	DefaultMaxIterations      = 100
	DefaultDivergencePatience = 5
	DefaultExecutable         = "rra"
)

// LoadStudyConfig reads a study file. Unknown keys are rejected so typos
// fail loudly. Relative paths are taken relative to the study file.
func LoadStudyConfig(path string) (*StudyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading study config: %w", err)
	}
	var cfg StudyConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing study config: %w", err)
	}

	base := filepath.Dir(path)
	if cfg.Setup, err = expandPath(base, cfg.Setup); err != nil {
		return nil, err
	}
	if cfg.Plot, err = expandPath(base, cfg.Plot); err != nil {
		return nil, err
	}
	if cfg.Executable, err = homedir.Expand(cfg.Executable); err != nil {
		return nil, fmt.Errorf("expanding executable: %w", err)
	}
	return &cfg, nil
}

func expandPath(base, p string) (string, error) {
	if p == "" {
		return "", nil
	}
	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", fmt.Errorf("expanding %q: %w", p, err)
	}
	if filepath.IsAbs(expanded) {
		return expanded, nil
	}
	return filepath.Join(base, expanded), nil
}

// TunerConfig converts the study into loop settings, applying defaults
// for fields the study leaves unset.
func (c *StudyConfig) TunerConfig() TunerConfig {
	tc := TunerConfig{
		SetupPath:          c.Setup,
		Tasks:              c.Tasks,
		OmitPattern:        c.Omit,
		Band:               Band{Min: DefaultMinMaxErr, Max: DefaultMaxMaxErr},
		MaxIterations:      DefaultMaxIterations,
		DivergencePatience: DefaultDivergencePatience,
		PlotPath:           c.Plot,
		ToolElement:        c.ToolElement,
	}
	if c.MinMaxErr != nil {
		tc.Band.Min = *c.MinMaxErr
	}
	if c.MaxMaxErr != nil {
		tc.Band.Max = *c.MaxMaxErr
	}
	if c.MaxIterations != nil {
		tc.MaxIterations = *c.MaxIterations
	}
	if c.DivergencePatience != nil {
		tc.DivergencePatience = *c.DivergencePatience
	}
	if c.RoundWeights {
		tc.WeightFormat = setup.FormatInt
	}
	return tc
}

// ExecutableOrDefault returns the configured tool, or DefaultExecutable.
func (c *StudyConfig) ExecutableOrDefault() string {
	if c.Executable == "" {
		return DefaultExecutable
	}
	return c.Executable
}
