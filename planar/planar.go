// Package planar exposes the 2D point classifier for use outside this module.
package planar

import (
	"context"
	"math/rand"

	"github.com/FlavioCFOliveira/planar/internal/config"
	"github.com/FlavioCFOliveira/planar/internal/data"
	"github.com/FlavioCFOliveira/planar/internal/layer"
	"github.com/FlavioCFOliveira/planar/internal/loss"
	"github.com/FlavioCFOliveira/planar/internal/net"
	"github.com/FlavioCFOliveira/planar/internal/opt"
	"github.com/FlavioCFOliveira/planar/internal/trainer"
)

// Re-export common types and functions for easier access
type (
	Architecture = net.Architecture
	Classifier   = net.Classifier
	Store        = net.Store
	Predictor    = net.Predictor
	State        = net.State
	Dataset      = data.Dataset
	Batcher      = data.Batcher
	Split        = data.Split
	Optimizer    = opt.Optimizer
	Loss         = loss.Loss
	Config       = config.Config
	Device       = layer.Device
	Callback     = trainer.Callback
	EpochRecord  = trainer.EpochRecord
	History      = trainer.History
)

// Splits
const (
	TrainSplit      = data.Train
	ValidationSplit = data.Validation
	TestSplit       = data.Test
)

// Errors
var (
	ErrCheckpointNotFound = net.ErrCheckpointNotFound
	ErrShapeMismatch      = net.ErrShapeMismatch
	ErrMalformedRow       = data.ErrMalformedRow
	ErrLabelOutOfRange    = data.ErrLabelOutOfRange
	ErrInvalidConfig      = config.ErrInvalidConfig
)

// Model creation
func NewClassifier(arch Architecture, seed int64) (*Classifier, error) {
	return net.New(arch, rand.New(rand.NewSource(seed)))
}

// Data
func NewDataset(split Split, x [][]float64, labels []int, inputSize, numClasses int) (*Dataset, error) {
	return data.New(split, x, labels, inputSize, numClasses)
}

func LoadSplit(dir string, split Split, inputSize, numClasses int) (*Dataset, error) {
	return data.LoadSplit(dir, split, inputSize, numClasses)
}

func NewBatcher(ds *Dataset, batchSize int, seed int64, workers int) (*Batcher, error) {
	return data.NewBatcher(ds, batchSize, data.BatcherOptions{Seed: seed, Workers: workers})
}

// Optimizers
func SGD(lr, momentum float64) Optimizer {
	return opt.NewSGD(lr, momentum)
}

func Adam(lr float64) Optimizer {
	return opt.NewAdam(lr)
}

// CrossEntropy is the training loss.
var CrossEntropy Loss = loss.CrossEntropy{}

// Training
func Train(ctx context.Context, model *Classifier, optimizer Optimizer, trainBatches, valBatches *Batcher, epochs int, callbacks ...Callback) (History, error) {
	return trainer.Train(ctx, model, optimizer, CrossEntropy, trainBatches, valBatches, epochs, callbacks...)
}

// Callbacks
func Logger(interval, epochs int) Callback {
	return trainer.Logger{Interval: interval, Epochs: epochs}
}

func Checkpointer(store *Store, every, epochs int) Callback {
	return trainer.NewCheckpointer(store, every, epochs)
}

func CSVLogger(filename string, append bool) Callback {
	return trainer.NewCSVLogger(filename, append)
}

// Checkpoints and prediction
func NewStore(dir string) *Store {
	return net.NewStore(dir)
}

func NewPredictor(arch Architecture, store *Store) *Predictor {
	return net.NewPredictor(arch, store)
}

// Configuration
func DefaultConfig() *Config {
	return config.Defaults()
}

func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DetectDevice reports the compute device used for batch assembly.
func DetectDevice() Device {
	return layer.DetectDevice()
}
