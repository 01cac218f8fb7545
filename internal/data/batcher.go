package data

import (
	"context"
	"math/rand"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Batch is a group of samples in matrix form.
type Batch struct {
	// X has one sample per row.
	X *mat.Dense
	// Labels is nil for unlabeled data.
	Labels []int
	// Indices maps each row back to its position in the dataset.
	Indices []int
}

// Size returns the number of samples in the batch.
func (b Batch) Size() int {
	return len(b.Indices)
}

// BatcherOptions configures a Batcher.
type BatcherOptions struct {
	// Seed drives the per-epoch shuffle of training splits.
	Seed int64
	// Workers is the number of goroutines assembling batches. Values below 1 mean 1.
	Workers int
}

// Batcher partitions a dataset into mini-batches. Training splits get a fresh
// permutation on every call to Batches; other splits keep dataset order.
type Batcher struct {
	ds        *Dataset
	batchSize int
	shuffle   bool
	workers   int
	rng       *rand.Rand
}

// NewBatcher creates a batcher over ds.
func NewBatcher(ds *Dataset, batchSize int, opts BatcherOptions) (*Batcher, error) {
	if ds == nil {
		return nil, errors.New("batcher: nil dataset")
	}
	if batchSize <= 0 {
		return nil, errors.Errorf("batcher: batch size must be > 0 (got %d)", batchSize)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Batcher{
		ds:        ds,
		batchSize: batchSize,
		shuffle:   ds.Split.Shuffled(),
		workers:   opts.Workers,
		rng:       rand.New(rand.NewSource(opts.Seed)),
	}, nil
}

// Len returns the number of batches per epoch.
func (b *Batcher) Len() int {
	return (b.ds.Len() + b.batchSize - 1) / b.batchSize
}

// Dataset returns the underlying dataset.
func (b *Batcher) Dataset() *Dataset {
	return b.ds
}

// Batches returns one epoch of batches. Every sample appears exactly once;
// only the last batch may be smaller than the batch size.
func (b *Batcher) Batches(ctx context.Context) ([]Batch, error) {
	n := b.ds.Len()
	var order []int
	if b.shuffle {
		order = b.rng.Perm(n)
	} else {
		order = make([]int, n)
		for i := range order {
			order[i] = i
		}
	}

	batches := make([]Batch, b.Len())
	jobs := make(chan int, len(batches))
	for i := range batches {
		jobs <- i
	}
	close(jobs)

	workers := b.workers
	if workers > len(batches) {
		workers = len(batches)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					return
				}
				start := i * b.batchSize
				end := min(start+b.batchSize, n)
				batches[i] = b.assemble(order[start:end])
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

func (b *Batcher) assemble(indices []int) Batch {
	cols := len(b.ds.X[indices[0]])
	x := mat.NewDense(len(indices), cols, nil)
	var labels []int
	if b.ds.Labeled() {
		labels = make([]int, len(indices))
	}
	for r, idx := range indices {
		x.SetRow(r, b.ds.X[idx])
		if labels != nil {
			labels[r] = b.ds.Labels[idx]
		}
	}
	return Batch{
		X:       x,
		Labels:  labels,
		Indices: append([]int(nil), indices...),
	}
}
