package trainer

import (
	"bytes"
	"context"
	"encoding/csv"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/FlavioCFOliveira/planar/internal/data"
	"github.com/FlavioCFOliveira/planar/internal/loss"
	"github.com/FlavioCFOliveira/planar/internal/net"
	"github.com/FlavioCFOliveira/planar/internal/opt"
	"github.com/pkg/errors"
)

var arch = net.Architecture{InputSize: 2, Hidden1: 5, Hidden2: 3, NumClasses: 2}

// blobs places n points on rings around (2,2) (label 1) and (-2,-2) (label 0).
func blobs(t *testing.T, split data.Split, n int, phase float64) *data.Dataset {
	t.Helper()
	x := make([][]float64, n)
	y := make([]int, n)
	for i := range x {
		a := 2*math.Pi*float64(i)/float64(n) + phase
		r := 0.5 + 0.1*float64((i*7)%5)
		c := 1.0
		if i%2 == 1 {
			c = -1
		}
		x[i] = []float64{2*c + r*math.Cos(a), 2*c + r*math.Sin(a)}
		if c > 0 {
			y[i] = 1
		}
	}
	ds, err := data.New(split, x, y, 2, 2)
	if err != nil {
		t.Fatalf("data.New: %v", err)
	}
	return ds
}

type fixture struct {
	model *net.Classifier
	opt   opt.Optimizer
	train *data.Batcher
	val   *data.Batcher
}

func newFixture(t *testing.T, seed int64) fixture {
	t.Helper()
	model, err := net.New(arch, rand.New(rand.NewSource(seed)))
	if err != nil {
		t.Fatalf("net.New: %v", err)
	}
	train, err := data.NewBatcher(blobs(t, data.Train, 64, 0), 8, data.BatcherOptions{Seed: seed, Workers: 2})
	if err != nil {
		t.Fatalf("NewBatcher(train): %v", err)
	}
	val, err := data.NewBatcher(blobs(t, data.Validation, 20, 0.3), 8, data.BatcherOptions{Seed: seed})
	if err != nil {
		t.Fatalf("NewBatcher(val): %v", err)
	}
	return fixture{model: model, opt: opt.NewSGD(0.1, 0.1), train: train, val: val}
}

func (f fixture) run(epochs int, callbacks ...Callback) (History, error) {
	return Train(context.Background(), f.model, f.opt, loss.CrossEntropy{}, f.train, f.val, epochs, callbacks...)
}

func TestTrainHistory(t *testing.T) {
	f := newFixture(t, 3)
	h, err := f.run(20)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if len(h) != 20 {
		t.Fatalf("len(history) = %d, want 20", len(h))
	}
	for i, rec := range h {
		if rec.Epoch != i {
			t.Errorf("record %d has epoch %d", i, rec.Epoch)
		}
		if rec.AvgLoss < 0 || math.IsNaN(rec.AvgLoss) {
			t.Errorf("epoch %d: loss %v", i, rec.AvgLoss)
		}
		if rec.ValAccuracy < 0 || rec.ValAccuracy > 100 {
			t.Errorf("epoch %d: accuracy %v outside [0, 100]", i, rec.ValAccuracy)
		}
	}
	if h[len(h)-1].AvgLoss >= h[0].AvgLoss {
		t.Errorf("loss did not decrease: %v -> %v", h[0].AvgLoss, h[len(h)-1].AvgLoss)
	}
	if acc := h[len(h)-1].ValAccuracy; acc < 90 {
		t.Errorf("final validation accuracy = %v%%, want >= 90%%", acc)
	}
	if f.model.Training() {
		t.Error("model left in training mode after validation")
	}
	if len(h.Losses()) != len(h) || len(h.Accuracies()) != len(h) {
		t.Error("Losses or Accuracies length differs from history")
	}
}

func TestTrainDeterministic(t *testing.T) {
	a, err := newFixture(t, 7).run(5)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	b, err := newFixture(t, 7).run(5)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !reflect.DeepEqual(a.Losses(), b.Losses()) {
		t.Errorf("losses differ: %v vs %v", a.Losses(), b.Losses())
	}
	if !reflect.DeepEqual(a.Accuracies(), b.Accuracies()) {
		t.Errorf("accuracies differ: %v vs %v", a.Accuracies(), b.Accuracies())
	}
}

func TestTrainRejectsBadInputs(t *testing.T) {
	f := newFixture(t, 1)
	if _, err := f.run(0); err == nil {
		t.Error("zero epochs accepted")
	}

	empty, _ := data.New(data.Validation, nil, []int{}, 2, 2)
	emptyVal, _ := data.NewBatcher(empty, 8, data.BatcherOptions{})
	if _, err := Train(context.Background(), f.model, f.opt, loss.CrossEntropy{}, f.train, emptyVal, 1); err == nil {
		t.Error("empty validation set accepted")
	}

	unlabeled, _ := data.New(data.Test, [][]float64{{0, 0}}, nil, 2, 2)
	testBatches, _ := data.NewBatcher(unlabeled, 8, data.BatcherOptions{})
	if _, err := Train(context.Background(), f.model, f.opt, loss.CrossEntropy{}, testBatches, f.val, 1); err == nil {
		t.Error("unlabeled training set accepted")
	}
}

func TestTrainCheckpointsAndReload(t *testing.T) {
	store := net.NewStore(t.TempDir())
	f := newFixture(t, 3)
	h, err := f.run(5, NewCheckpointer(store, 3, 5))
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	epochs, err := store.Epochs()
	if err != nil {
		t.Fatalf("Epochs: %v", err)
	}
	if !reflect.DeepEqual(epochs, []int{0, 3, 4}) {
		t.Errorf("checkpointed epochs = %v, want [0 3 4]", epochs)
	}

	model, err := net.NewPredictor(arch, store).Load(4)
	if err != nil {
		t.Fatalf("Load(4): %v", err)
	}
	acc, err := Evaluate(context.Background(), model, f.val)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if acc != h[4].ValAccuracy {
		t.Errorf("reloaded accuracy = %v, want %v", acc, h[4].ValAccuracy)
	}
}

type failAt struct {
	BaseCallback
	epoch int
}

func (f failAt) OnEpochEnd(rec EpochRecord, _ *net.Classifier) error {
	if rec.Epoch == f.epoch {
		return errors.New("boom")
	}
	return nil
}

func TestTrainCallbackErrorAborts(t *testing.T) {
	store := net.NewStore(t.TempDir())
	f := newFixture(t, 1)
	h, err := f.run(10, NewCheckpointer(store, 1, 10), failAt{epoch: 2})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("Train error = %v, want boom", err)
	}
	if len(h) != 3 {
		t.Errorf("len(history) = %d, want 3", len(h))
	}
	// completed epochs stay loadable
	for _, epoch := range []int{0, 1, 2} {
		if _, err := store.Load(epoch); err != nil {
			t.Errorf("Load(%d): %v", epoch, err)
		}
	}
}

func TestTrainErrorClosesCSVLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")
	csvLogger := NewCSVLogger(path, false)
	f := newFixture(t, 1)
	if _, err := f.run(5, csvLogger, failAt{epoch: 1}); err == nil {
		t.Fatal("Train succeeded, want boom")
	}
	if csvLogger.file != nil || csvLogger.writer != nil {
		t.Error("history file left open after aborted run")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	// header plus epochs 0 and 1
	if rows := strings.Count(string(content), "\n"); rows != 3 {
		t.Errorf("history has %d rows, want 3:\n%s", rows, content)
	}
	if err := csvLogger.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestTrainCanceled(t *testing.T) {
	f := newFixture(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Train(ctx, f.model, f.opt, loss.CrossEntropy{}, f.train, f.val, 3)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Train error = %v, want context.Canceled", err)
	}
}

func TestLoggerCallback(t *testing.T) {
	var buf bytes.Buffer
	f := newFixture(t, 1)
	logger := Logger{Interval: 2, Epochs: 3, Out: log.New(&buf, "", 0)}
	if _, err := f.run(3, logger); err != nil {
		t.Fatalf("Train: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"training 2-5-3-2 classifier for 3 epochs", "epoch=0 ", "epoch=2 ", "training done"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "epoch=1 ") {
		t.Errorf("epoch 1 logged despite interval 2:\n%s", out)
	}
}

func TestCSVLoggerCallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")
	f := newFixture(t, 1)
	if _, err := f.run(3, NewCSVLogger(path, false)); err != nil {
		t.Fatalf("Train: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("history has %d rows, want 4", len(records))
	}
	if !reflect.DeepEqual(records[0], []string{"epoch", "loss", "val_accuracy", "time_seconds"}) {
		t.Errorf("header = %v", records[0])
	}
	if records[3][0] != "2" {
		t.Errorf("last row epoch = %q, want 2", records[3][0])
	}
}

func TestEvaluateRequiresLabels(t *testing.T) {
	f := newFixture(t, 1)
	unlabeled, _ := data.New(data.Test, [][]float64{{0, 0}}, nil, 2, 2)
	b, _ := data.NewBatcher(unlabeled, 4, data.BatcherOptions{})
	if _, err := Evaluate(context.Background(), f.model, b); err == nil {
		t.Error("Evaluate on unlabeled data succeeded")
	}
}
