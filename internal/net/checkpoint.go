package net

import (
	"encoding/gob"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrCheckpointNotFound reports a missing checkpoint. Errors carrying it
	// also match fs.ErrNotExist.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	// ErrShapeMismatch reports parameters or inputs whose shape disagrees with
	// the architecture in use.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// Tensor is a row-major parameter matrix. Bias vectors have Rows == 1.
type Tensor struct {
	Rows int
	Cols int
	Data []float64
}

// State maps parameter names ("fc1.weight", "fc1.bias", …) to values.
type State map[string]Tensor

// State returns a deep copy of the parameters.
func (c *Classifier) State() State {
	st := make(State, 2*len(c.layers))
	for i, l := range c.layers {
		name := layerNames[i]
		st[name+".weight"] = Tensor{
			Rows: l.InSize(),
			Cols: l.OutSize(),
			Data: append([]float64(nil), l.Weights().RawMatrix().Data...),
		}
		st[name+".bias"] = Tensor{
			Rows: 1,
			Cols: l.OutSize(),
			Data: append([]float64(nil), l.Biases()...),
		}
	}
	return st
}

// LoadState copies st into the classifier. Every parameter must be present
// with the classifier's exact shape, otherwise ErrShapeMismatch is returned
// and the classifier is left untouched.
func (c *Classifier) LoadState(st State) error {
	for i, l := range c.layers {
		name := layerNames[i]
		if err := checkTensor(st, name+".weight", l.InSize(), l.OutSize()); err != nil {
			return err
		}
		if err := checkTensor(st, name+".bias", 1, l.OutSize()); err != nil {
			return err
		}
	}
	if len(st) != 2*len(c.layers) {
		return errors.Wrapf(ErrShapeMismatch, "state has %d tensors, want %d", len(st), 2*len(c.layers))
	}

	for i, l := range c.layers {
		name := layerNames[i]
		copy(l.Weights().RawMatrix().Data, st[name+".weight"].Data)
		copy(l.Biases(), st[name+".bias"].Data)
	}
	return nil
}

func checkTensor(st State, key string, rows, cols int) error {
	t, ok := st[key]
	if !ok {
		return errors.Wrapf(ErrShapeMismatch, "missing %s", key)
	}
	if t.Rows != rows || t.Cols != cols || len(t.Data) != rows*cols {
		return errors.Wrapf(ErrShapeMismatch, "%s is %dx%d (%d values), want %dx%d",
			key, t.Rows, t.Cols, len(t.Data), rows, cols)
	}
	return nil
}

// checkpoint is the on-disk gob payload.
type checkpoint struct {
	Epoch  int
	Params State
}

// Encode writes the classifier state for epoch to w using gob encoding.
func (c *Classifier) Encode(w io.Writer, epoch int) error {
	if err := gob.NewEncoder(w).Encode(checkpoint{Epoch: epoch, Params: c.State()}); err != nil {
		return errors.Wrap(err, "failed to encode checkpoint")
	}
	return nil
}

// Decode reads a checkpoint written by Encode.
func Decode(r io.Reader) (int, State, error) {
	var ckpt checkpoint
	if err := gob.NewDecoder(r).Decode(&ckpt); err != nil {
		return 0, nil, errors.Wrap(err, "failed to decode checkpoint")
	}
	return ckpt.Epoch, ckpt.Params, nil
}

const (
	checkpointPrefix = "ckpt_"
	checkpointExt    = ".gob"
)

// Store persists classifier parameters as one file per epoch under Dir.
type Store struct {
	Dir string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// Path returns the file that holds the checkpoint for epoch.
func (s *Store) Path(epoch int) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s%d%s", checkpointPrefix, epoch, checkpointExt))
}

// Save writes the classifier's parameters for epoch, replacing any previous
// checkpoint for the same epoch. The file appears atomically.
func (s *Store) Save(c *Classifier, epoch int) error {
	if epoch < 0 {
		return errors.Errorf("checkpoint epoch must be >= 0 (got %d)", epoch)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create checkpoint dir")
	}

	tmp, err := os.CreateTemp(s.Dir, checkpointPrefix+"*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	defer os.Remove(tmp.Name())

	if err := c.Encode(tmp, epoch); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to flush checkpoint")
	}
	if err := os.Rename(tmp.Name(), s.Path(epoch)); err != nil {
		return errors.Wrapf(err, "failed to publish checkpoint %d", epoch)
	}
	return nil
}

// Load reads the parameters saved for epoch.
func (s *Store) Load(epoch int) (State, error) {
	path := s.Path(epoch)
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &notFoundError{epoch: epoch, path: path}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open checkpoint %d", epoch)
	}
	defer file.Close()

	stored, st, err := Decode(file)
	if err != nil {
		return nil, errors.Wrapf(err, "checkpoint %s", path)
	}
	if stored != epoch {
		return nil, errors.Errorf("checkpoint %s holds epoch %d", path, stored)
	}
	return st, nil
}

// Epochs lists the stored checkpoints in ascending order.
func (s *Store) Epochs() ([]int, error) {
	entries, err := os.ReadDir(s.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to list checkpoints")
	}

	var epochs []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, checkpointPrefix) || !strings.HasSuffix(name, checkpointExt) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, checkpointPrefix), checkpointExt))
		if err != nil || n < 0 {
			continue
		}
		epochs = append(epochs, n)
	}
	sort.Ints(epochs)
	return epochs, nil
}

type notFoundError struct {
	epoch int
	path  string
}

func (e *notFoundError) Error() string {
	return fmt.Sprintf("checkpoint for epoch %d not found at %s", e.epoch, e.path)
}

func (e *notFoundError) Is(target error) bool {
	return target == ErrCheckpointNotFound || target == fs.ErrNotExist
}
