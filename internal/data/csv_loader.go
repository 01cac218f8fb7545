// Package data loads labeled 2D-point datasets and produces mini-batches.
package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrMalformedRow reports a CSV row or header that cannot be parsed.
	ErrMalformedRow = errors.New("malformed csv row")
	// ErrLabelOutOfRange reports a label outside [0, numClasses).
	ErrLabelOutOfRange = errors.New("label out of range")
)

// LabelColumn is the header name of the class id column.
const LabelColumn = "label"

// Split identifies one partition of the dataset.
type Split int

const (
	Train Split = iota
	Validation
	Test
)

func (s Split) String() string {
	switch s {
	case Train:
		return "train"
	case Validation:
		return "val"
	case Test:
		return "test"
	default:
		return fmt.Sprintf("Split(%d)", int(s))
	}
}

// FileName is the CSV file holding the split.
func (s Split) FileName() string {
	switch s {
	case Train:
		return "train_t19.csv"
	case Validation:
		return "dev_t19.csv"
	case Test:
		return "test_t19.csv"
	default:
		return ""
	}
}

// Shuffled reports whether batches of the split are reshuffled every epoch.
func (s Split) Shuffled() bool { return s == Train }

// RequiresLabels reports whether the split's file must carry a label column.
func (s Split) RequiresLabels() bool { return s != Test }

// Dataset holds samples of one split as parallel feature and label slices.
type Dataset struct {
	Split Split
	X     [][]float64
	// Labels is nil when the source carried no label column.
	Labels []int
}

// New builds a dataset from in-memory samples, checking the sample invariants.
func New(split Split, x [][]float64, labels []int, inputSize, numClasses int) (*Dataset, error) {
	if labels != nil && len(labels) != len(x) {
		return nil, errors.Errorf("%d samples but %d labels", len(x), len(labels))
	}
	if labels == nil && split.RequiresLabels() {
		return nil, errors.Errorf("%s split requires labels", split)
	}
	for i, row := range x {
		if len(row) != inputSize {
			return nil, errors.Wrapf(ErrMalformedRow, "sample %d has %d features, want %d", i, len(row), inputSize)
		}
		for f, v := range row {
			if !finite(v) {
				return nil, errors.Wrapf(ErrMalformedRow, "sample %d feature %d is %v", i, f, v)
			}
		}
	}
	for i, y := range labels {
		if y < 0 || y >= numClasses {
			return nil, errors.Wrapf(ErrLabelOutOfRange, "sample %d: label %d not in [0, %d)", i, y, numClasses)
		}
	}
	return &Dataset{Split: split, X: x, Labels: labels}, nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.X)
}

// Labeled reports whether the dataset carries labels.
func (d *Dataset) Labeled() bool {
	return d.Labels != nil
}

// LoadSplit loads split from its conventional file name under dir.
func LoadSplit(dir string, split Split, inputSize, numClasses int) (*Dataset, error) {
	return LoadCSV(filepath.Join(dir, split.FileName()), split, inputSize, numClasses)
}

// LoadCSV reads a CSV file with a header row. Feature columns are located by
// name (x1 … x<inputSize>) and the label column by LabelColumn.
func LoadCSV(filename string, split Split, inputSize, numClasses int) (*Dataset, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s split", split)
	}
	defer file.Close()

	ds, err := ReadCSV(file, split, inputSize, numClasses)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", filename)
	}
	return ds, nil
}

// ReadCSV parses CSV content from r; see LoadCSV.
func ReadCSV(r io.Reader, split Split, inputSize, numClasses int) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.Wrap(ErrMalformedRow, "csv file is empty")
	}
	if err != nil {
		return nil, errors.Wrap(ErrMalformedRow, err.Error())
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}

	featureCols := make([]int, inputSize)
	for f := 0; f < inputSize; f++ {
		name := "x" + strconv.Itoa(f+1)
		col, ok := columns[name]
		if !ok {
			return nil, errors.Wrapf(ErrMalformedRow, "header has no %q column", name)
		}
		featureCols[f] = col
	}

	labelCol, hasLabel := columns[LabelColumn]
	if !hasLabel && split.RequiresLabels() {
		return nil, errors.Wrapf(ErrMalformedRow, "header has no %q column", LabelColumn)
	}

	ds := &Dataset{Split: split}
	if hasLabel {
		ds.Labels = []int{}
	}

	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedRow, "line %d: %v", line, err)
		}

		x := make([]float64, inputSize)
		for f, col := range featureCols {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
			if err != nil {
				return nil, errors.Wrapf(ErrMalformedRow, "line %d, column %s: %v", line, header[col], err)
			}
			if !finite(v) {
				return nil, errors.Wrapf(ErrMalformedRow, "line %d, column %s: value %v is not finite", line, header[col], v)
			}
			x[f] = v
		}
		ds.X = append(ds.X, x)

		if hasLabel {
			y, err := parseLabel(record[labelCol])
			if err != nil {
				return nil, errors.Wrapf(ErrMalformedRow, "line %d, column %s: %v", line, LabelColumn, err)
			}
			if y < 0 || y >= numClasses {
				return nil, errors.Wrapf(ErrLabelOutOfRange, "line %d: label %d not in [0, %d)", line, y, numClasses)
			}
			ds.Labels = append(ds.Labels, y)
		}
	}

	return ds, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// parseLabel accepts integer class ids, including integral floats such as "1.0".
func parseLabel(s string) (int, error) {
	s = strings.TrimSpace(s)
	if y, err := strconv.Atoi(s); err == nil {
		return y, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("label %q is not an integer", s)
	}
	return int(v), nil
}
