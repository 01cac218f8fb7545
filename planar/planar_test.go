package planar

import (
	"context"
	"testing"

	"github.com/pkg/errors"
)

func TestTrainAndPredict(t *testing.T) {
	cfg := DefaultConfig()
	arch := cfg.Architecture()
	model, err := NewClassifier(arch, cfg.Seed)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}

	x := [][]float64{{1, 1}, {2, 1}, {1.5, 2}, {-1, -1}, {-2, -1}, {-1.5, -2}}
	y := []int{1, 1, 1, 0, 0, 0}
	train, err := NewDataset(TrainSplit, x, y, arch.InputSize, arch.NumClasses)
	if err != nil {
		t.Fatal(err)
	}
	val, err := NewDataset(ValidationSplit, x, y, arch.InputSize, arch.NumClasses)
	if err != nil {
		t.Fatal(err)
	}
	trainBatches, _ := NewBatcher(train, 2, cfg.Seed, 1)
	valBatches, _ := NewBatcher(val, 4, cfg.Seed, 1)

	store := NewStore(t.TempDir())
	h, err := Train(context.Background(), model, SGD(0.1, 0.1), trainBatches, valBatches, 3, Checkpointer(store, 1, 3))
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if len(h) != 3 {
		t.Fatalf("len(history) = %d, want 3", len(h))
	}

	logits, inter, err := NewPredictor(arch, store).Predict([][]float64{{0, 0}}, 2)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if r, c := logits.Dims(); r != 1 || c != arch.NumClasses {
		t.Errorf("logits dims = (%d, %d)", r, c)
	}
	if len(inter) != 3 {
		t.Errorf("%d intermediates, want 3", len(inter))
	}

	if _, _, err := NewPredictor(arch, store).Predict([][]float64{{0, 0}}, 999); !errors.Is(err, ErrCheckpointNotFound) {
		t.Errorf("Predict(999) error = %v, want ErrCheckpointNotFound", err)
	}
}
