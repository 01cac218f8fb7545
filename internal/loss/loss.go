// Package loss provides classification loss functions over logit batches.
package loss

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Loss is a loss function with derivative.
type Loss interface {
	// Forward computes the mean loss of a [n, classes] logit batch against n labels.
	Forward(logits *mat.Dense, labels []int) float64

	// Backward computes dL/dlogits for the mean loss returned by Forward.
	Backward(logits *mat.Dense, labels []int) *mat.Dense
}

// CrossEntropy is softmax cross entropy on raw logits with integer class
// targets, averaged over the batch.
type CrossEntropy struct{}

// Forward computes mean(logsumexp(z_i) - z_i[y_i]).
func (c CrossEntropy) Forward(logits *mat.Dense, labels []int) float64 {
	rows, classes := checkBatch("CrossEntropy", logits, labels)

	var sum float64
	for i := 0; i < rows; i++ {
		row := logits.RawRowView(i)
		y := labels[i]
		if y < 0 || y >= classes {
			panic("CrossEntropy: label out of range")
		}
		sum += floats.LogSumExp(row) - row[y]
	}
	return sum / float64(rows)
}

// Backward computes (softmax(z) - onehot(y)) / n.
func (c CrossEntropy) Backward(logits *mat.Dense, labels []int) *mat.Dense {
	rows, classes := checkBatch("CrossEntropy", logits, labels)

	grad := mat.NewDense(rows, classes, nil)
	scale := 1 / float64(rows)
	for i := 0; i < rows; i++ {
		g := grad.RawRowView(i)
		Softmax(g, logits.RawRowView(i))
		g[labels[i]] -= 1
		floats.Scale(scale, g)
	}
	return grad
}

// Softmax writes softmax(src) into dst using the max-shift for stability.
func Softmax(dst, src []float64) {
	if len(dst) != len(src) {
		panic("Softmax: slices must have same length")
	}
	maxVal := floats.Max(src)
	var sum float64
	for i, v := range src {
		dst[i] = math.Exp(v - maxVal)
		sum += dst[i]
	}
	floats.Scale(1/sum, dst)
}

func checkBatch(name string, logits *mat.Dense, labels []int) (int, int) {
	rows, classes := logits.Dims()
	if rows != len(labels) {
		panic(name + ": logits and labels must have same length")
	}
	return rows, classes
}
