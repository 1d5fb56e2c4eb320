package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	lferrors "lightforge/internal/errors"
	"lightforge/internal/mode"
	"lightforge/internal/pooling"
)

// Config captures the runtime knobs for a run.
type Config struct {
	Mode         string   `yaml:"mode"`
	Pooling      string   `yaml:"pooling"`
	Roots        []string `yaml:"roots"`
	Steps        int      `yaml:"steps"`
	BatchSize    int      `yaml:"batch_size"`
	NumWorkers   int      `yaml:"num_workers"`
	Seed         int64    `yaml:"seed"`
	LogEvery     int      `yaml:"log_every"`
	EvalEvery    int      `yaml:"eval_every"`
	EvalPercent  int      `yaml:"eval_percent"`
	NumClasses   int      `yaml:"num_classes"`
	LearningRate float64  `yaml:"learning_rate"`
	Checkpoint   string   `yaml:"checkpoint"`
	Verbose      int      `yaml:"verbose"`
}

// Overrides captures CLI supplied values. Zero values leave the config
// untouched, except EvalPercent which applies whenever it is non-nil.
type Overrides struct {
	Mode         string
	Pooling      string
	Roots        []string
	Steps        int
	BatchSize    int
	NumWorkers   int
	Seed         int64
	LogEvery     int
	EvalEvery    int
	EvalPercent  *int
	NumClasses   int
	LearningRate float64
	Checkpoint   string
	Verbose      int
}

// Default returns a Config with the built-in defaults.
func Default() *Config {
	return &Config{
		Mode:         mode.Train.String(),
		Pooling:      string(pooling.Mean),
		BatchSize:    32,
		NumWorkers:   2,
		Seed:         42,
		LogEvery:     50,
		NumClasses:   1000,
		LearningRate: 0.05,
		Verbose:      1,
	}
}

// Load reads a Config from YAML on top of the defaults. It does not
// validate; callers apply environment and flag overrides first.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := parseYAML(f)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.Mode != "" {
		c.Mode = o.Mode
	}
	if o.Pooling != "" {
		c.Pooling = o.Pooling
	}
	if len(o.Roots) > 0 {
		c.Roots = append([]string(nil), o.Roots...)
	}
	if o.Steps > 0 {
		c.Steps = o.Steps
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.NumWorkers > 0 {
		c.NumWorkers = o.NumWorkers
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
	if o.EvalEvery > 0 {
		c.EvalEvery = o.EvalEvery
	}
	if o.EvalPercent != nil {
		c.EvalPercent = *o.EvalPercent
	}
	if o.NumClasses > 0 {
		c.NumClasses = o.NumClasses
	}
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
	if o.Checkpoint != "" {
		c.Checkpoint = o.Checkpoint
	}
	if o.Verbose > 0 {
		c.Verbose = o.Verbose
	}
}

// RunMode parses the configured mode.
func (c *Config) RunMode() (mode.Mode, error) {
	return mode.Parse(c.Mode)
}

// Validate verifies the config is runnable. It never modifies c.
func (c *Config) Validate() error {
	if c == nil {
		return lferrors.New("config is nil")
	}
	m, err := c.RunMode()
	if err != nil {
		return &lferrors.ConfigError{Field: "mode", Value: c.Mode, Message: err.Error()}
	}
	if _, err := pooling.Get(c.Pooling); err != nil {
		return &lferrors.ConfigError{Field: "pooling", Value: c.Pooling, Message: err.Error()}
	}
	if len(c.Roots) == 0 {
		return &lferrors.ConfigError{Field: "roots", Message: "at least one dataset root must be set", Hint: "pass --root DIR"}
	}
	if m == mode.Train && c.Steps <= 0 {
		return &lferrors.ConfigError{Field: "steps", Value: c.Steps, Message: "must be > 0 in train mode"}
	}
	if c.BatchSize <= 0 {
		return &lferrors.ConfigError{Field: "batch_size", Value: c.BatchSize, Message: "must be > 0"}
	}
	if c.NumWorkers <= 0 {
		return &lferrors.ConfigError{Field: "num_workers", Value: c.NumWorkers, Message: "must be > 0"}
	}
	if c.EvalPercent < 0 || c.EvalPercent >= 100 {
		return &lferrors.ConfigError{Field: "eval_percent", Value: c.EvalPercent, Message: "must be in [0, 100)"}
	}
	if c.EvalEvery < 0 {
		return &lferrors.ConfigError{Field: "eval_every", Value: c.EvalEvery, Message: "must be >= 0"}
	}
	if c.NumClasses <= 0 {
		return &lferrors.ConfigError{Field: "num_classes", Value: c.NumClasses, Message: "must be > 0"}
	}
	if c.LogEvery <= 0 {
		return &lferrors.ConfigError{Field: "log_every", Value: c.LogEvery, Message: "must be > 0"}
	}
	if c.LearningRate <= 0 {
		return &lferrors.ConfigError{Field: "learning_rate", Value: c.LearningRate, Message: "must be > 0"}
	}
	if m != mode.Train && c.Checkpoint == "" {
		return &lferrors.ConfigError{
			Field:   "checkpoint",
			Message: fmt.Sprintf("required in %s mode", m),
			Hint:    "train first with --checkpoint PATH",
		}
	}
	return nil
}

func parseYAML(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}
