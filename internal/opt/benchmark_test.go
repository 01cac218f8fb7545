// Package opt provides benchmarks for optimizers.
package opt

import (
	"math/rand"
	"testing"
)

func randomBuffers(sizes ...int) [][]float64 {
	rng := rand.New(rand.NewSource(1))
	out := make([][]float64, len(sizes))
	for i, n := range sizes {
		out[i] = make([]float64, n)
		for j := range out[i] {
			out[i][j] = rng.NormFloat64()
		}
	}
	return out
}

// sizes of a 2-50-30-3 classifier
var benchSizes = []int{2 * 50, 50, 50 * 30, 30, 30 * 3, 3}

// BenchmarkSGDStep benchmarks an SGD update with momentum.
func BenchmarkSGDStep(b *testing.B) {
	params, grads := randomBuffers(benchSizes...), randomBuffers(benchSizes...)
	sgd := NewSGD(0.01, 0.1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sgd.Step(params, grads)
	}
}

// BenchmarkAdamStep benchmarks an Adam update.
func BenchmarkAdamStep(b *testing.B) {
	params, grads := randomBuffers(benchSizes...), randomBuffers(benchSizes...)
	adam := NewAdam(0.001)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		adam.Step(params, grads)
	}
}
