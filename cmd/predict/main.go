package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/FlavioCFOliveira/planar/internal/config"
	"github.com/FlavioCFOliveira/planar/internal/data"
	"github.com/FlavioCFOliveira/planar/internal/net"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

func main() {
	cfgPath := flag.String("config", "", "Path to YAML config (defaults apply when empty)")
	dataDir := flag.String("data", "", "Override dataset directory")
	ckptDir := flag.String("checkpoints", "", "Override checkpoint directory")
	epoch := flag.Int("epoch", -1, "Checkpoint epoch to load (-1 loads the latest)")
	input := flag.String("input", "", "CSV of points to classify (defaults to the test split)")
	output := flag.String("out", "", "Write predictions CSV here (defaults to stdout)")
	withActivations := flag.Bool("activations", false, "Include hidden layer activations in the output")

	flag.Parse()

	cfg := config.Defaults()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	cfg.ApplyOverrides(config.Overrides{DataDir: *dataDir, CheckpointDir: *ckptDir})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	arch := cfg.Architecture()
	store := net.NewStore(cfg.CheckpointDir)

	if *epoch < 0 {
		epochs, err := store.Epochs()
		if err != nil {
			log.Fatalf("list checkpoints: %v", err)
		}
		if len(epochs) == 0 {
			log.Fatalf("no checkpoints in %s", cfg.CheckpointDir)
		}
		*epoch = epochs[len(epochs)-1]
	}

	var (
		ds  *data.Dataset
		err error
	)
	if *input != "" {
		ds, err = data.LoadCSV(*input, data.Test, arch.InputSize, arch.NumClasses)
	} else {
		ds, err = data.LoadSplit(cfg.DataDir, data.Test, arch.InputSize, arch.NumClasses)
	}
	if err != nil {
		log.Fatalf("load points: %v", err)
	}

	logits, inter, err := net.NewPredictor(arch, store).Predict(ds.X, *epoch)
	if err != nil {
		log.Fatalf("predict: %v", err)
	}
	preds := net.Argmax(logits)

	out := io.Writer(os.Stdout)
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("create output: %v", err)
		}
		defer f.Close()
		out = f
	}

	var hidden []*mat.Dense
	if *withActivations {
		hidden = inter[:2]
	}
	if err := writePredictions(out, ds.X, preds, logits, hidden); err != nil {
		log.Fatalf("write predictions: %v", err)
	}

	if ds.Labeled() {
		correct := 0
		for i, p := range preds {
			if p == ds.Labels[i] {
				correct++
			}
		}
		log.Printf("epoch=%d accuracy=%.2f%% (%d/%d)", *epoch, 100*float64(correct)/float64(len(preds)), correct, len(preds))
	} else {
		log.Printf("epoch=%d predicted %d points", *epoch, len(preds))
	}
}

// writePredictions writes one row per point: inputs, predicted class, logits
// and, when hidden is non-empty, the activations of each hidden layer.
func writePredictions(w io.Writer, x [][]float64, preds []int, logits *mat.Dense, hidden []*mat.Dense) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0)
	for j := range x[0] {
		header = append(header, fmt.Sprintf("x%d", j+1))
	}
	header = append(header, "pred")
	_, classes := logits.Dims()
	for j := 0; j < classes; j++ {
		header = append(header, fmt.Sprintf("logit%d", j))
	}
	for l, h := range hidden {
		_, cols := h.Dims()
		for j := 0; j < cols; j++ {
			header = append(header, fmt.Sprintf("h%d_%d", l+1, j))
		}
	}
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "header")
	}

	format := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for i, row := range x {
		record := make([]string, 0, len(header))
		for _, v := range row {
			record = append(record, format(v))
		}
		record = append(record, strconv.Itoa(preds[i]))
		for _, v := range logits.RawRowView(i) {
			record = append(record, format(v))
		}
		for _, h := range hidden {
			for _, v := range h.RawRowView(i) {
				record = append(record, format(v))
			}
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrapf(err, "row %d", i)
		}
	}
	cw.Flush()
	return cw.Error()
}
