// Package activations provides element-wise activation functions.
package activations

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Activation is an activation function with derivative.
type Activation interface {
	// Activate computes f(x)
	Activate(x float64) float64

	// Derivative computes f'(x) from the pre-activation value x
	Derivative(x float64) float64
}

// Tanh activation function.
type Tanh struct{}

// Activate computes tanh(x)
func (t Tanh) Activate(x float64) float64 {
	return math.Tanh(x)
}

// Derivative computes 1 - tanh(x)^2
func (t Tanh) Derivative(x float64) float64 {
	tanhX := math.Tanh(x)
	return 1 - tanhX*tanhX
}

// Linear is the identity activation, used on output layers that emit raw logits.
type Linear struct{}

// Activate returns x unchanged.
func (l Linear) Activate(x float64) float64 {
	return x
}

// Derivative is always 1.
func (l Linear) Derivative(x float64) float64 {
	return 1
}

// Apply writes act(src) into dst element by element.
// dst may be src.
func Apply(act Activation, dst, src *mat.Dense) {
	if _, ok := act.(Linear); ok {
		if dst != src {
			dst.Copy(src)
		}
		return
	}
	dst.Apply(func(_, _ int, v float64) float64 {
		return act.Activate(v)
	}, src)
}

// MulDerivative scales grad in place by act'(preAct).
func MulDerivative(act Activation, grad, preAct *mat.Dense) {
	if _, ok := act.(Linear); ok {
		return
	}
	grad.Apply(func(i, j int, g float64) float64 {
		return g * act.Derivative(preAct.At(i, j))
	}, grad)
}

// Name returns the canonical name of a known activation.
func Name(act Activation) string {
	switch act.(type) {
	case Tanh:
		return "Tanh"
	case Linear:
		return "Linear"
	default:
		return "Unknown"
	}
}
