// Package config holds the hyperparameters and paths of a training run.
package config

import (
	"io"
	"os"

	"github.com/FlavioCFOliveira/planar/internal/net"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a config fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// Config captures the runtime knobs for a training or prediction run.
type Config struct {
	DataDir       string `yaml:"data_dir"`
	CheckpointDir string `yaml:"checkpoint_dir"`
	// HistoryFile receives the per-epoch CSV history when set.
	HistoryFile string `yaml:"history_file"`

	InputSize  int `yaml:"input_size"`
	Hidden1    int `yaml:"hidden1"`
	Hidden2    int `yaml:"hidden2"`
	NumClasses int `yaml:"num_classes"`

	Epochs       int     `yaml:"epochs"`
	BatchSize    int     `yaml:"batch_size"`
	LearningRate float64 `yaml:"learning_rate"`
	Momentum     float64 `yaml:"momentum"`
	Optimizer    string  `yaml:"optimizer"`
	Seed         int64   `yaml:"seed"`

	// NumWorkers is the batch assembly pool size; 0 uses the detected device.
	NumWorkers      int `yaml:"num_workers"`
	CheckpointEvery int `yaml:"checkpoint_every"`
	LogEvery        int `yaml:"log_every"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	DataDir       string
	CheckpointDir string
	HistoryFile   string
	Epochs        int
	BatchSize     int
	LearningRate  float64
	Optimizer     string
	// Seed is applied when non-nil, so an explicit zero seed is possible.
	Seed          *int64
	NumWorkers    int
}

// Defaults returns the configuration used when no file is given.
func Defaults() *Config {
	return &Config{
		DataDir:         "./datasets/task2a",
		CheckpointDir:   "./output/q2a/checkpoints",
		InputSize:       2,
		Hidden1:         5,
		Hidden2:         3,
		NumClasses:      2,
		Epochs:          100,
		BatchSize:       16,
		LearningRate:    1e-2,
		Momentum:        0.1,
		Optimizer:       "sgd",
		Seed:            3,
		CheckpointEvery: 1,
		LogEvery:        10,
	}
}

// Load reads a YAML file over Defaults and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML from r over Defaults. Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(ErrInvalidConfig, err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates c using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
	if o.CheckpointDir != "" {
		c.CheckpointDir = o.CheckpointDir
	}
	if o.HistoryFile != "" {
		c.HistoryFile = o.HistoryFile
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
	if o.Optimizer != "" {
		c.Optimizer = o.Optimizer
	}
	if o.Seed != nil {
		c.Seed = *o.Seed
	}
	if o.NumWorkers > 0 {
		c.NumWorkers = o.NumWorkers
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.Wrap(ErrInvalidConfig, "config is nil")
	}
	if err := c.Architecture().Validate(); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	switch {
	case c.DataDir == "":
		return errors.Wrap(ErrInvalidConfig, "data_dir must be set")
	case c.CheckpointDir == "":
		return errors.Wrap(ErrInvalidConfig, "checkpoint_dir must be set")
	case c.Epochs <= 0:
		return errors.Wrapf(ErrInvalidConfig, "epochs must be > 0 (got %d)", c.Epochs)
	case c.BatchSize <= 0:
		return errors.Wrapf(ErrInvalidConfig, "batch_size must be > 0 (got %d)", c.BatchSize)
	case c.LearningRate <= 0:
		return errors.Wrapf(ErrInvalidConfig, "learning_rate must be > 0 (got %g)", c.LearningRate)
	case c.Momentum < 0 || c.Momentum >= 1:
		return errors.Wrapf(ErrInvalidConfig, "momentum must be in [0, 1) (got %g)", c.Momentum)
	case c.NumWorkers < 0:
		return errors.Wrapf(ErrInvalidConfig, "num_workers must be >= 0 (got %d)", c.NumWorkers)
	}
	switch c.Optimizer {
	case "sgd", "SGD", "adam", "Adam":
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown optimizer %q", c.Optimizer)
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = 1
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 10
	}
	return nil
}

// Architecture returns the network shape described by c.
func (c *Config) Architecture() net.Architecture {
	return net.Architecture{
		InputSize:  c.InputSize,
		Hidden1:    c.Hidden1,
		Hidden2:    c.Hidden2,
		NumClasses: c.NumClasses,
	}
}
