// Package trainer runs fixed-length training of a classifier with per-epoch
// validation.
package trainer

import (
	"context"
	"io"
	"time"

	"github.com/FlavioCFOliveira/planar/internal/data"
	"github.com/FlavioCFOliveira/planar/internal/loss"
	"github.com/FlavioCFOliveira/planar/internal/net"
	"github.com/FlavioCFOliveira/planar/internal/opt"
	"github.com/pkg/errors"
)

// EpochRecord summarizes one epoch.
type EpochRecord struct {
	// Epoch is 0-based.
	Epoch int
	// AvgLoss is the mean of the per-batch training losses.
	AvgLoss float64
	// ValAccuracy is the validation accuracy in percent.
	ValAccuracy float64
	Duration    time.Duration
}

// History is the ordered list of epoch records of a run.
type History []EpochRecord

// Losses returns the average training loss of every epoch.
func (h History) Losses() []float64 {
	out := make([]float64, len(h))
	for i, r := range h {
		out[i] = r.AvgLoss
	}
	return out
}

// Accuracies returns the validation accuracy of every epoch.
func (h History) Accuracies() []float64 {
	out := make([]float64, len(h))
	for i, r := range h {
		out[i] = r.ValAccuracy
	}
	return out
}

// Train runs epochs of training over trainBatches and evaluates on valBatches
// after each one. Callbacks are invoked in order; the first callback error
// stops the run. Epochs completed before an error keep whatever the
// callbacks persisted for them. Callbacks implementing io.Closer are closed
// when Train returns, whether or not the run succeeded.
func Train(ctx context.Context, model *net.Classifier, optimizer opt.Optimizer, lossFn loss.Loss,
	trainBatches, valBatches *data.Batcher, epochs int, callbacks ...Callback) (_ History, err error) {
	if epochs <= 0 {
		return nil, errors.Errorf("trainer: epochs must be > 0 (got %d)", epochs)
	}
	if err := checkBatcher("training", trainBatches); err != nil {
		return nil, err
	}
	if err := checkBatcher("validation", valBatches); err != nil {
		return nil, err
	}

	defer func() {
		for _, cb := range callbacks {
			if c, ok := cb.(io.Closer); ok {
				if cerr := c.Close(); cerr != nil && err == nil {
					err = errors.Wrap(cerr, "trainer: close callback")
				}
			}
		}
	}()

	for _, cb := range callbacks {
		if err := cb.OnTrainBegin(model); err != nil {
			return nil, errors.Wrap(err, "trainer: train begin")
		}
	}

	history := make(History, 0, epochs)
	for epoch := 0; epoch < epochs; epoch++ {
		start := time.Now()

		avgLoss, err := trainEpoch(ctx, model, optimizer, lossFn, trainBatches)
		if err != nil {
			return history, errors.Wrapf(err, "trainer: epoch %d", epoch)
		}
		acc, err := Evaluate(ctx, model, valBatches)
		if err != nil {
			return history, errors.Wrapf(err, "trainer: validate epoch %d", epoch)
		}

		rec := EpochRecord{
			Epoch:       epoch,
			AvgLoss:     avgLoss,
			ValAccuracy: acc,
			Duration:    time.Since(start),
		}
		history = append(history, rec)

		for _, cb := range callbacks {
			if err := cb.OnEpochEnd(rec, model); err != nil {
				return history, errors.Wrapf(err, "trainer: epoch %d", epoch)
			}
		}
	}

	for _, cb := range callbacks {
		if err := cb.OnTrainEnd(history); err != nil {
			return history, errors.Wrap(err, "trainer: train end")
		}
	}
	return history, nil
}

func checkBatcher(name string, b *data.Batcher) error {
	if b == nil || b.Len() == 0 {
		return errors.Errorf("trainer: %s set is empty", name)
	}
	if !b.Dataset().Labeled() {
		return errors.Errorf("trainer: %s set has no labels", name)
	}
	return nil
}

// trainEpoch performs one optimizer step per batch and returns the mean batch loss.
func trainEpoch(ctx context.Context, model *net.Classifier, optimizer opt.Optimizer, lossFn loss.Loss, b *data.Batcher) (float64, error) {
	model.SetTraining(true)

	batches, err := b.Batches(ctx)
	if err != nil {
		return 0, err
	}

	var sum float64
	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		model.ZeroGrad()
		logits, _ := model.Forward(batch.X)
		sum += lossFn.Forward(logits, batch.Labels)
		model.Backward(lossFn.Backward(logits, batch.Labels))
		optimizer.Step(model.Params(), model.Gradients())
	}
	return sum / float64(len(batches)), nil
}

// Evaluate returns the accuracy of model on b in percent, with gradient
// tracking disabled. The model is left in evaluation mode.
func Evaluate(ctx context.Context, model *net.Classifier, b *data.Batcher) (float64, error) {
	model.SetTraining(false)

	batches, err := b.Batches(ctx)
	if err != nil {
		return 0, err
	}

	var correct, total int
	for _, batch := range batches {
		if batch.Labels == nil {
			return 0, errors.New("evaluate: batch has no labels")
		}
		logits, _ := model.Forward(batch.X)
		for i, p := range net.Argmax(logits) {
			if p == batch.Labels[i] {
				correct++
			}
		}
		total += batch.Size()
	}
	if total == 0 {
		return 0, errors.New("evaluate: no samples")
	}
	return 100 * float64(correct) / float64(total), nil
}
