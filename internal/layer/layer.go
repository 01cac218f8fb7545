// Package layer provides neural network layer implementations.
package layer

import (
	"math"
	"math/rand"

	"github.com/FlavioCFOliveira/planar/internal/activations"
	"gonum.org/v1/gonum/mat"
)

// Layer is a neural network layer operating on row-major batches.
// Each input row is one sample.
type Layer interface {
	Forward(x *mat.Dense) *mat.Dense
	Backward(grad *mat.Dense) *mat.Dense
	// Params returns live views of the parameter buffers.
	Params() [][]float64
	// Gradients returns live views of the gradient buffers, in Params order.
	Gradients() [][]float64
	ZeroGrad()
	SetTraining(training bool)
	InSize() int
	OutSize() int
	Activation() activations.Activation
}

// Dense is a fully connected layer computing act(x·W + b).
// W has shape [in, out] so a batch [n, in] maps to [n, out].
type Dense struct {
	weights *mat.Dense
	biases  []float64
	act     activations.Activation
	inSize  int
	outSize int

	gradW *mat.Dense
	gradB []float64

	training bool
	input    *mat.Dense
	preAct   *mat.Dense
}

// NewDense creates a dense layer initialized from rng with the usual
// linear-layer default: weights and biases ~ U(-1/sqrt(in), 1/sqrt(in)).
func NewDense(in, out int, act activations.Activation, rng *rand.Rand) *Dense {
	weights := make([]float64, in*out)
	biases := make([]float64, out)

	bound := 1 / math.Sqrt(float64(in))
	for i := range weights {
		weights[i] = rng.Float64()*2*bound - bound
	}
	for i := range biases {
		biases[i] = rng.Float64()*2*bound - bound
	}

	return &Dense{
		weights:  mat.NewDense(in, out, weights),
		biases:   biases,
		act:      act,
		inSize:   in,
		outSize:  out,
		gradW:    mat.NewDense(in, out, nil),
		gradB:    make([]float64, out),
		training: true,
	}
}

// Forward performs a forward pass for a [n, in] batch and returns a new [n, out] matrix.
// In training mode the input and pre-activation are retained for Backward.
func (d *Dense) Forward(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	if cols != d.inSize {
		panic("Dense: input width does not match layer input size")
	}

	pre := mat.NewDense(rows, d.outSize, nil)
	pre.Mul(x, d.weights)
	for r := 0; r < rows; r++ {
		row := pre.RawRowView(r)
		for o, b := range d.biases {
			row[o] += b
		}
	}

	out := mat.NewDense(rows, d.outSize, nil)
	activations.Apply(d.act, out, pre)

	if d.training {
		d.input = mat.DenseCopyOf(x)
		d.preAct = pre
	} else {
		d.input = nil
		d.preAct = nil
	}
	return out
}

// Backward accumulates dL/dW and dL/db and returns dL/dx.
// grad is dL/d(output) with shape [n, out].
func (d *Dense) Backward(grad *mat.Dense) *mat.Dense {
	if d.input == nil {
		panic("Dense: Backward called without a tracked forward pass")
	}
	rows, cols := grad.Dims()
	if cols != d.outSize {
		panic("Dense: gradient width does not match layer output size")
	}

	// dz = grad * act'(z)
	dz := mat.DenseCopyOf(grad)
	activations.MulDerivative(d.act, dz, d.preAct)

	var dW mat.Dense
	dW.Mul(d.input.T(), dz)
	d.gradW.Add(d.gradW, &dW)

	for r := 0; r < rows; r++ {
		row := dz.RawRowView(r)
		for o := range d.gradB {
			d.gradB[o] += row[o]
		}
	}

	gradIn := mat.NewDense(rows, d.inSize, nil)
	gradIn.Mul(dz, d.weights.T())
	return gradIn
}

// Params returns live views of the weights and biases.
func (d *Dense) Params() [][]float64 {
	return [][]float64{d.weights.RawMatrix().Data, d.biases}
}

// Gradients returns live views of the weight and bias gradients.
func (d *Dense) Gradients() [][]float64 {
	return [][]float64{d.gradW.RawMatrix().Data, d.gradB}
}

// ZeroGrad clears the accumulated gradients.
func (d *Dense) ZeroGrad() {
	d.gradW.Zero()
	for i := range d.gradB {
		d.gradB[i] = 0
	}
}

// SetTraining toggles gradient tracking.
func (d *Dense) SetTraining(training bool) {
	d.training = training
	if !training {
		d.input = nil
		d.preAct = nil
	}
}

// Weights returns the weight matrix [in, out]. Mutating it mutates the layer.
func (d *Dense) Weights() *mat.Dense {
	return d.weights
}

// Biases returns the bias vector. Mutating it mutates the layer.
func (d *Dense) Biases() []float64 {
	return d.biases
}

// SetWeight sets a single weight at (row, col).
func (d *Dense) SetWeight(row, col int, val float64) {
	d.weights.Set(row, col, val)
}

// SetBias sets a single bias.
func (d *Dense) SetBias(idx int, val float64) {
	d.biases[idx] = val
}

// InSize returns the input size of the layer.
func (d *Dense) InSize() int {
	return d.inSize
}

// OutSize returns the output size of the layer.
func (d *Dense) OutSize() int {
	return d.outSize
}

// Activation returns the activation function used by this layer.
func (d *Dense) Activation() activations.Activation {
	return d.act
}
