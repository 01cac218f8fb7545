// Package opt provides optimization algorithms.
package opt

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Optimizer updates network parameters in place from their gradients.
//
// params and gradients are parallel slices of buffers; the i-th buffer keeps
// its identity and length across calls so stateful optimizers can key their
// moments by position.
type Optimizer interface {
	Step(params, gradients [][]float64)
}

// SGD (Stochastic Gradient Descent) optimizer with optional momentum.
// With Momentum > 0 the update follows v = m*v + g; p -= lr*v, the first
// step seeding v with g.
type SGD struct {
	LearningRate float64
	Momentum     float64

	velocity [][]float64
}

// NewSGD creates an SGD optimizer.
func NewSGD(learningRate, momentum float64) *SGD {
	return &SGD{LearningRate: learningRate, Momentum: momentum}
}

// Step updates params in place.
func (s *SGD) Step(params, gradients [][]float64) {
	checkShapes(params, gradients)

	if s.Momentum == 0 {
		for i := range params {
			floats.AddScaled(params[i], -s.LearningRate, gradients[i])
		}
		return
	}

	if s.velocity == nil {
		s.velocity = make([][]float64, len(params))
		for i, g := range gradients {
			s.velocity[i] = append([]float64(nil), g...)
		}
	} else {
		for i, g := range gradients {
			floats.Scale(s.Momentum, s.velocity[i])
			floats.Add(s.velocity[i], g)
		}
	}

	for i := range params {
		floats.AddScaled(params[i], -s.LearningRate, s.velocity[i])
	}
}

// Adam optimizer for faster convergence.
type Adam struct {
	LearningRate float64
	Beta1        float64 // Exponential decay rate for first moment
	Beta2        float64 // Exponential decay rate for second moment
	Epsilon      float64 // Small constant for numerical stability

	step int
	m    [][]float64
	v    [][]float64
}

// NewAdam creates a new Adam optimizer with default values.
func NewAdam(learningRate float64) *Adam {
	return &Adam{
		LearningRate: learningRate,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
	}
}

// Step updates params in place using bias-corrected moment estimates.
func (a *Adam) Step(params, gradients [][]float64) {
	checkShapes(params, gradients)

	if a.m == nil {
		a.m = make([][]float64, len(params))
		a.v = make([][]float64, len(params))
		for i, p := range params {
			a.m[i] = make([]float64, len(p))
			a.v[i] = make([]float64, len(p))
		}
	}

	a.step++
	bc1 := 1 - math.Pow(a.Beta1, float64(a.step))
	bc2 := 1 - math.Pow(a.Beta2, float64(a.step))

	for i := range params {
		p, g, m, v := params[i], gradients[i], a.m[i], a.v[i]
		for j := range p {
			m[j] = a.Beta1*m[j] + (1-a.Beta1)*g[j]
			v[j] = a.Beta2*v[j] + (1-a.Beta2)*g[j]*g[j]
			mHat := m[j] / bc1
			vHat := v[j] / bc2
			p[j] -= a.LearningRate * mHat / (math.Sqrt(vHat) + a.Epsilon)
		}
	}
}

// New returns the optimizer registered under name ("sgd" or "adam").
func New(name string, learningRate, momentum float64) (Optimizer, error) {
	switch name {
	case "sgd", "SGD":
		return NewSGD(learningRate, momentum), nil
	case "adam", "Adam":
		return NewAdam(learningRate), nil
	default:
		return nil, errors.Errorf("unknown optimizer %q", name)
	}
}

func checkShapes(params, gradients [][]float64) {
	if len(params) != len(gradients) {
		panic("optimizer: params and gradients must have same length")
	}
	for i := range params {
		if len(params[i]) != len(gradients[i]) {
			panic("optimizer: parameter and gradient buffers differ in length")
		}
	}
}
