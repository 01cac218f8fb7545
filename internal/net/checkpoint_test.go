package net

import (
	"bytes"
	"io/fs"
	"os"
	"reflect"
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

func TestStoreRoundTripIsBitIdentical(t *testing.T) {
	store := NewStore(t.TempDir())
	c := newClassifier(t, smallArch, 3)
	if err := store.Save(c, 7); err != nil {
		t.Fatalf("Save: %v", err)
	}

	st, err := store.Load(7)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(st, c.State()) {
		t.Error("loaded state differs from saved state")
	}

	restored := newClassifier(t, smallArch, 99)
	if err := restored.LoadState(st); err != nil {
		t.Fatalf("LoadState: %v", err)
	}

	x := mat.NewDense(3, 2, []float64{0, 0, 1, 1, -1, -1})
	want, _ := c.Forward(x)
	got, _ := restored.Forward(x)
	if !mat.Equal(want, got) {
		t.Errorf("restored logits %v, want %v", mat.Formatted(got), mat.Formatted(want))
	}
}

func TestStoreLoadMissingEpoch(t *testing.T) {
	store := NewStore(t.TempDir())
	st, err := store.Load(999)
	if !errors.Is(err, ErrCheckpointNotFound) {
		t.Errorf("Load(999) error = %v, want ErrCheckpointNotFound", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Load(999) error = %v, want fs.ErrNotExist", err)
	}
	if st != nil {
		t.Errorf("Load(999) returned state %v", st)
	}
}

func TestStoreOverwriteAndEpochs(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	for _, epoch := range []int{10, 2, 1} {
		if err := store.Save(newClassifier(t, smallArch, int64(epoch)), epoch); err != nil {
			t.Fatalf("Save(%d): %v", epoch, err)
		}
	}
	later := newClassifier(t, smallArch, 1234)
	if err := store.Save(later, 2); err != nil {
		t.Fatalf("Save overwrite: %v", err)
	}
	if err := os.WriteFile(dir+"/notes.txt", []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	epochs, err := store.Epochs()
	if err != nil {
		t.Fatalf("Epochs: %v", err)
	}
	if !reflect.DeepEqual(epochs, []int{1, 2, 10}) {
		t.Errorf("Epochs() = %v, want [1 2 10]", epochs)
	}

	st, err := store.Load(2)
	if err != nil {
		t.Fatalf("Load(2): %v", err)
	}
	if !reflect.DeepEqual(st, later.State()) {
		t.Error("overwritten checkpoint did not keep the latest parameters")
	}
}

func TestStoreEpochsMissingDir(t *testing.T) {
	epochs, err := NewStore(t.TempDir() + "/absent").Epochs()
	if err != nil || len(epochs) != 0 {
		t.Errorf("Epochs() = %v, %v; want empty, nil", epochs, err)
	}
}

func TestLoadStateShapeMismatch(t *testing.T) {
	trained := newClassifier(t, Architecture{InputSize: 2, Hidden1: 50, Hidden2: 30, NumClasses: 3}, 1)
	target := newClassifier(t, smallArch, 2)
	before := target.State()

	err := target.LoadState(trained.State())
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("LoadState error = %v, want ErrShapeMismatch", err)
	}
	if !reflect.DeepEqual(before, target.State()) {
		t.Error("failed LoadState modified the classifier")
	}

	st := target.State()
	delete(st, "out.bias")
	if err := target.LoadState(st); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("missing tensor error = %v, want ErrShapeMismatch", err)
	}

	st = target.State()
	st["extra.weight"] = Tensor{Rows: 1, Cols: 1, Data: []float64{1}}
	if err := target.LoadState(st); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("extra tensor error = %v, want ErrShapeMismatch", err)
	}
}

func TestEncodeDecode(t *testing.T) {
	c := newClassifier(t, smallArch, 5)
	var buf bytes.Buffer
	if err := c.Encode(&buf, 42); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	epoch, st, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if epoch != 42 {
		t.Errorf("epoch = %d, want 42", epoch)
	}
	if !reflect.DeepEqual(st, c.State()) {
		t.Error("decoded state differs")
	}

	if _, _, err := Decode(bytes.NewReader([]byte("not gob"))); err == nil {
		t.Error("Decode accepted garbage")
	}
}

func TestStoreSaveRejectsNegativeEpoch(t *testing.T) {
	if err := NewStore(t.TempDir()).Save(newClassifier(t, smallArch, 1), -1); err == nil {
		t.Error("negative epoch accepted")
	}
}
