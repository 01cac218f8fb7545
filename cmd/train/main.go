package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/FlavioCFOliveira/planar/internal/config"
	"github.com/FlavioCFOliveira/planar/internal/data"
	"github.com/FlavioCFOliveira/planar/internal/layer"
	"github.com/FlavioCFOliveira/planar/internal/loss"
	"github.com/FlavioCFOliveira/planar/internal/net"
	"github.com/FlavioCFOliveira/planar/internal/opt"
	"github.com/FlavioCFOliveira/planar/internal/trainer"
)

func main() {
	cfgPath := flag.String("config", "", "Path to YAML config (defaults apply when empty)")
	dataDir := flag.String("data", "", "Override dataset directory")
	ckptDir := flag.String("checkpoints", "", "Override checkpoint directory")
	history := flag.String("history", "", "Write per-epoch history CSV to this file")
	epochs := flag.Int("epochs", 0, "Number of epochs")
	batchSize := flag.Int("batch-size", 0, "Batch size")
	lr := flag.Float64("lr", 0, "Learning rate")
	optimizer := flag.String("optimizer", "", "Optimizer (sgd or adam)")
	numWorkers := flag.Int("num-workers", 0, "Number of batch assembly workers")
	seed := flag.Int64("seed", 0, "PRNG seed")

	flag.Parse()

	// -seed 0 is a valid seed, so only flags given on the command line override.
	var seedOverride *int64
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			seedOverride = seed
		}
	})

	cfg := config.Defaults()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	cfg.ApplyOverrides(config.Overrides{
		DataDir:       *dataDir,
		CheckpointDir: *ckptDir,
		HistoryFile:   *history,
		Epochs:        *epochs,
		BatchSize:     *batchSize,
		LearningRate:  *lr,
		Optimizer:     *optimizer,
		Seed:          seedOverride,
		NumWorkers:    *numWorkers,
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	device := layer.DetectDevice()
	log.Printf("device=%s", device)
	if cfg.NumWorkers == 0 {
		cfg.NumWorkers = device.Workers()
	}

	arch := cfg.Architecture()
	trainSet, err := data.LoadSplit(cfg.DataDir, data.Train, arch.InputSize, arch.NumClasses)
	if err != nil {
		log.Fatalf("load training data: %v", err)
	}
	valSet, err := data.LoadSplit(cfg.DataDir, data.Validation, arch.InputSize, arch.NumClasses)
	if err != nil {
		log.Fatalf("load validation data: %v", err)
	}
	log.Printf("train=%d val=%d samples from %s", trainSet.Len(), valSet.Len(), cfg.DataDir)

	opts := data.BatcherOptions{Seed: cfg.Seed, Workers: cfg.NumWorkers}
	trainBatches, err := data.NewBatcher(trainSet, cfg.BatchSize, opts)
	if err != nil {
		log.Fatalf("training batches: %v", err)
	}
	valBatches, err := data.NewBatcher(valSet, cfg.BatchSize, opts)
	if err != nil {
		log.Fatalf("validation batches: %v", err)
	}

	model, err := net.New(arch, rand.New(rand.NewSource(cfg.Seed)))
	if err != nil {
		log.Fatalf("build model: %v", err)
	}
	log.Print(model.Summary())

	optim, err := opt.New(cfg.Optimizer, cfg.LearningRate, cfg.Momentum)
	if err != nil {
		log.Fatalf("optimizer: %v", err)
	}

	callbacks := []trainer.Callback{
		trainer.Logger{Interval: cfg.LogEvery, Epochs: cfg.Epochs},
		trainer.NewCheckpointer(net.NewStore(cfg.CheckpointDir), cfg.CheckpointEvery, cfg.Epochs),
	}
	if cfg.HistoryFile != "" {
		callbacks = append(callbacks, trainer.NewCSVLogger(cfg.HistoryFile, false))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := trainer.Train(ctx, model, optim, loss.CrossEntropy{}, trainBatches, valBatches, cfg.Epochs, callbacks...); err != nil {
		log.Fatalf("training failed: %v", err)
	}
	log.Printf("checkpoints written to %s", cfg.CheckpointDir)
}
