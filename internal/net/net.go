// Package net provides the point classifier network, its checkpoint store
// and the checkpoint-backed predictor.
package net

import (
	"fmt"
	"math/rand"

	"github.com/FlavioCFOliveira/planar/internal/activations"
	"github.com/FlavioCFOliveira/planar/internal/layer"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Architecture fixes the layer sizes of a Classifier.
type Architecture struct {
	InputSize  int
	Hidden1    int
	Hidden2    int
	NumClasses int
}

// Validate checks that every size is positive.
func (a Architecture) Validate() error {
	if a.InputSize <= 0 || a.Hidden1 <= 0 || a.Hidden2 <= 0 || a.NumClasses <= 0 {
		return errors.Errorf("architecture sizes must be > 0 (got %s)", a)
	}
	return nil
}

func (a Architecture) String() string {
	return fmt.Sprintf("%d-%d-%d-%d", a.InputSize, a.Hidden1, a.Hidden2, a.NumClasses)
}

// layer names, also used as checkpoint keys
var layerNames = [...]string{"fc1", "fc2", "out"}

// Classifier is a three-layer feed-forward network:
// tanh(x·W1+b1) → tanh(·W2+b2) → ·W3+b3 (raw logits).
type Classifier struct {
	arch     Architecture
	layers   [3]*layer.Dense
	training bool
}

// New creates a classifier with parameters drawn from rng.
// Layers are initialized in order fc1, fc2, out so a seed fixes every weight.
func New(arch Architecture, rng *rand.Rand) (*Classifier, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	c := &Classifier{
		arch: arch,
		layers: [3]*layer.Dense{
			layer.NewDense(arch.InputSize, arch.Hidden1, activations.Tanh{}, rng),
			layer.NewDense(arch.Hidden1, arch.Hidden2, activations.Tanh{}, rng),
			layer.NewDense(arch.Hidden2, arch.NumClasses, activations.Linear{}, rng),
		},
	}
	c.SetTraining(true)
	return c, nil
}

// Architecture returns the layer sizes.
func (c *Classifier) Architecture() Architecture {
	return c.arch
}

// Forward runs x ([n, InputSize]) through the network and returns the
// [n, NumClasses] logits together with the activations [h1, h2, logits].
// The intermediates are independent of the returned logits.
func (c *Classifier) Forward(x *mat.Dense) (*mat.Dense, []*mat.Dense) {
	h1 := c.layers[0].Forward(x)
	h2 := c.layers[1].Forward(h1)
	logits := c.layers[2].Forward(h2)
	return logits, []*mat.Dense{h1, h2, mat.DenseCopyOf(logits)}
}

// Backward propagates dL/dlogits through all layers, accumulating gradients.
func (c *Classifier) Backward(grad *mat.Dense) *mat.Dense {
	curr := grad
	for i := len(c.layers) - 1; i >= 0; i-- {
		curr = c.layers[i].Backward(curr)
	}
	return curr
}

// ZeroGrad clears the gradients of every layer.
func (c *Classifier) ZeroGrad() {
	for _, l := range c.Layers() {
		l.ZeroGrad()
	}
}

// Params returns live views of every parameter buffer, layer by layer.
func (c *Classifier) Params() [][]float64 {
	var params [][]float64
	for _, l := range c.Layers() {
		params = append(params, l.Params()...)
	}
	return params
}

// Gradients returns live views of every gradient buffer, in Params order.
func (c *Classifier) Gradients() [][]float64 {
	var grads [][]float64
	for _, l := range c.Layers() {
		grads = append(grads, l.Gradients()...)
	}
	return grads
}

// SetTraining switches between training mode (gradient tracking) and evaluation mode.
func (c *Classifier) SetTraining(training bool) {
	c.training = training
	for _, l := range c.Layers() {
		l.SetTraining(training)
	}
}

// Training reports whether the classifier is in training mode.
func (c *Classifier) Training() bool {
	return c.training
}

// Layers returns the dense layers in forward order.
func (c *Classifier) Layers() []layer.Layer {
	out := make([]layer.Layer, len(c.layers))
	for i, l := range c.layers {
		out[i] = l
	}
	return out
}

// Summary returns a printable description of the layers.
func (c *Classifier) Summary() string {
	s := fmt.Sprintf("%-8s %-10s %-10s %s\n", "Layer", "Shape", "Activation", "Params")
	total := 0
	for i, l := range c.Layers() {
		n := 0
		for _, p := range l.Params() {
			n += len(p)
		}
		total += n
		s += fmt.Sprintf("%-8s %-10s %-10s %d\n", layerNames[i],
			fmt.Sprintf("%dx%d", l.InSize(), l.OutSize()), activations.Name(l.Activation()), n)
	}
	return s + fmt.Sprintf("Total params: %d\n", total)
}

// Argmax returns the index of the largest logit of every row.
// Ties resolve to the lowest index.
func Argmax(logits *mat.Dense) []int {
	rows, _ := logits.Dims()
	out := make([]int, rows)
	for i := range out {
		out[i] = floats.MaxIdx(logits.RawRowView(i))
	}
	return out
}
