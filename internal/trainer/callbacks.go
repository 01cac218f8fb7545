package trainer

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/FlavioCFOliveira/planar/internal/net"
	"github.com/pkg/errors"
)

// Callback observes a training run. A non-nil error aborts the run.
type Callback interface {
	OnTrainBegin(model *net.Classifier) error
	OnEpochEnd(rec EpochRecord, model *net.Classifier) error
	OnTrainEnd(history History) error
}

// BaseCallback provides default empty implementations for Callback.
type BaseCallback struct{}

func (BaseCallback) OnTrainBegin(*net.Classifier) error             { return nil }
func (BaseCallback) OnEpochEnd(EpochRecord, *net.Classifier) error { return nil }
func (BaseCallback) OnTrainEnd(History) error                      { return nil }

// Logger logs training progress.
type Logger struct {
	BaseCallback
	// Interval logs every Interval epochs; the last epoch is always logged. Values below 1 mean 1.
	Interval int
	// Epochs is the planned run length, used to spot the last epoch.
	Epochs int
	// Out defaults to log.Default().
	Out *log.Logger
}

func (c Logger) logger() *log.Logger {
	if c.Out != nil {
		return c.Out
	}
	return log.Default()
}

func (c Logger) OnTrainBegin(model *net.Classifier) error {
	c.logger().Printf("training %s classifier for %d epochs", model.Architecture(), c.Epochs)
	return nil
}

func (c Logger) OnEpochEnd(rec EpochRecord, _ *net.Classifier) error {
	interval := max(c.Interval, 1)
	if rec.Epoch%interval == 0 || rec.Epoch == c.Epochs-1 {
		c.logger().Printf("epoch=%d loss=%.6f val_accuracy=%.2f%% elapsed=%s",
			rec.Epoch, rec.AvgLoss, rec.ValAccuracy, rec.Duration.Round(time.Microsecond))
	}
	return nil
}

func (c Logger) OnTrainEnd(h History) error {
	if len(h) == 0 {
		return nil
	}
	last := h[len(h)-1]
	c.logger().Printf("training done: final loss=%.6f val_accuracy=%.2f%%", last.AvgLoss, last.ValAccuracy)
	return nil
}

// Checkpointer saves the model to a Store after selected epochs.
type Checkpointer struct {
	BaseCallback
	Store *net.Store
	// Every saves every Every epochs (epoch % Every == 0). Values below 1 mean every epoch.
	Every int
	// Epochs is the planned run length; the last epoch is always saved when set.
	Epochs int
}

// NewCheckpointer creates a checkpointer saving every `every` epochs of an `epochs`-long run.
func NewCheckpointer(store *net.Store, every, epochs int) *Checkpointer {
	return &Checkpointer{Store: store, Every: every, Epochs: epochs}
}

func (c *Checkpointer) OnEpochEnd(rec EpochRecord, model *net.Classifier) error {
	every := max(c.Every, 1)
	if rec.Epoch%every != 0 && rec.Epoch != c.Epochs-1 {
		return nil
	}
	if err := c.Store.Save(model, rec.Epoch); err != nil {
		return errors.Wrapf(err, "checkpoint epoch %d", rec.Epoch)
	}
	return nil
}

// CSVLogger writes the training history to a CSV file, one row per epoch.
type CSVLogger struct {
	BaseCallback
	Filename string
	Append   bool

	file   *os.File
	writer *csv.Writer
	start  time.Time
}

// NewCSVLogger creates a new CSVLogger.
func NewCSVLogger(filename string, append bool) *CSVLogger {
	return &CSVLogger{
		Filename: filename,
		Append:   append,
	}
}

func (c *CSVLogger) OnTrainBegin(*net.Classifier) error {
	mode := os.O_CREATE | os.O_WRONLY
	if c.Append {
		mode |= os.O_APPEND
	} else {
		mode |= os.O_TRUNC
	}

	if err := os.MkdirAll(filepath.Dir(c.Filename), 0o755); err != nil {
		return errors.Wrap(err, "csv logger")
	}
	file, err := os.OpenFile(c.Filename, mode, 0o644)
	if err != nil {
		return errors.Wrap(err, "csv logger")
	}
	c.file = file
	c.writer = csv.NewWriter(file)
	c.start = time.Now()

	// Write header if not appending or if file is empty
	info, err := file.Stat()
	if err == nil && (info.Size() == 0 || !c.Append) {
		if err := c.writer.Write([]string{"epoch", "loss", "val_accuracy", "time_seconds"}); err != nil {
			return errors.Wrap(err, "csv logger")
		}
		c.writer.Flush()
	}
	return c.writer.Error()
}

func (c *CSVLogger) OnEpochEnd(rec EpochRecord, _ *net.Classifier) error {
	if c.writer == nil {
		return nil
	}

	elapsed := time.Since(c.start).Seconds()
	record := []string{
		strconv.Itoa(rec.Epoch),
		strconv.FormatFloat(rec.AvgLoss, 'g', -1, 64),
		strconv.FormatFloat(rec.ValAccuracy, 'g', -1, 64),
		fmt.Sprintf("%.2f", elapsed),
	}

	if err := c.writer.Write(record); err != nil {
		return errors.Wrap(err, "csv logger")
	}
	c.writer.Flush()
	return c.writer.Error()
}

func (c *CSVLogger) OnTrainEnd(History) error {
	return c.Close()
}

// Close flushes and closes the history file. It is safe to call more than once.
func (c *CSVLogger) Close() error {
	if c.file == nil {
		return nil
	}
	c.writer.Flush()
	werr := c.writer.Error()
	cerr := c.file.Close()
	c.file = nil
	c.writer = nil
	if werr != nil {
		return errors.Wrap(werr, "csv logger")
	}
	return errors.Wrap(cerr, "csv logger")
}
