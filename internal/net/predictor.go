package net

import (
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Predictor evaluates checkpointed classifiers. It never trains.
type Predictor struct {
	arch  Architecture
	store *Store
}

// NewPredictor returns a predictor that rebuilds classifiers with arch and
// loads their parameters from store.
func NewPredictor(arch Architecture, store *Store) *Predictor {
	return &Predictor{arch: arch, store: store}
}

// Load rebuilds the classifier saved for epoch, in evaluation mode.
func (p *Predictor) Load(epoch int) (*Classifier, error) {
	st, err := p.store.Load(epoch)
	if err != nil {
		return nil, err
	}
	// initial values are overwritten by the checkpoint
	c, err := New(p.arch, rand.New(rand.NewSource(0)))
	if err != nil {
		return nil, err
	}
	if err := c.LoadState(st); err != nil {
		return nil, errors.Wrapf(err, "checkpoint %d does not fit %s", epoch, p.arch)
	}
	c.SetTraining(false)
	return c, nil
}

// Predict runs points through the classifier saved for epoch and returns the
// logits and the intermediate activations [h1, h2, logits].
func (p *Predictor) Predict(points [][]float64, epoch int) (*mat.Dense, []*mat.Dense, error) {
	if err := p.arch.Validate(); err != nil {
		return nil, nil, err
	}
	x, err := PointsMatrix(points, p.arch.InputSize)
	if err != nil {
		return nil, nil, err
	}
	c, err := p.Load(epoch)
	if err != nil {
		return nil, nil, err
	}
	logits, intermediates := c.Forward(x)
	return logits, intermediates, nil
}

// PointsMatrix packs points into an [n, inputSize] matrix.
func PointsMatrix(points [][]float64, inputSize int) (*mat.Dense, error) {
	if len(points) == 0 {
		return nil, errors.New("no input points")
	}
	x := mat.NewDense(len(points), inputSize, nil)
	for i, pt := range points {
		if len(pt) != inputSize {
			return nil, errors.Wrapf(ErrShapeMismatch, "point %d has %d components, want %d", i, len(pt), inputSize)
		}
		x.SetRow(i, pt)
	}
	return x, nil
}
