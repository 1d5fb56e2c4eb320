package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"lightforge/internal/config"
	"lightforge/internal/dataset"
	"lightforge/internal/logging"
	"lightforge/internal/mode"
	"lightforge/internal/pooling"
	"lightforge/internal/trainer"
	"lightforge/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "lightforge: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("lightforge", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfgPath := fs.StringP("config", "c", "", "Path to YAML config")
	var o config.Overrides
	runMode := mode.Train
	fs.VarP(&runMode, "mode", "m", "Run mode: train, eval or predict")
	fs.StringVar(&o.Pooling, "pooling", "", fmt.Sprintf("Pooling method %v", pooling.Methods()))
	fs.StringArrayVarP(&o.Roots, "root", "r", nil, "Dataset root (repeatable)")
	fs.IntVar(&o.Steps, "steps", 0, "Number of training steps")
	fs.IntVar(&o.BatchSize, "batch-size", 0, "Batch size")
	fs.IntVar(&o.NumWorkers, "num-workers", 0, "Number of data loader workers")
	fs.Int64Var(&o.Seed, "seed", 0, "PRNG seed")
	fs.IntVar(&o.LogEvery, "log-every", 0, "Log every N steps")
	fs.IntVar(&o.EvalEvery, "eval-every", 0, "Evaluate the holdout split every N training steps")
	evalPercent := fs.Int("eval-percent", 0, "Percentage of samples held out for evaluation")
	fs.IntVar(&o.NumClasses, "num-classes", 0, "Number of output classes")
	fs.Float64Var(&o.LearningRate, "lr", 0, "Learning rate")
	fs.StringVar(&o.Checkpoint, "checkpoint", "", "Model checkpoint path")
	fs.CountVarP(&o.Verbose, "verbose", "v", "Verbosity: -v normal, -vv verbose, -vvv debug")

	var showVersion bool
	var versionFile string
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.StringVar(&versionFile, "version-file", "", "Print the version declared in a source file and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if showVersion {
		fmt.Fprintf(stdout, "lightforge %s\n", version.String())
		return nil
	}
	if versionFile != "" {
		v, err := version.Find(versionFile)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, v)
		return nil
	}
	if fs.Changed("mode") {
		o.Mode = runMode.String()
	}
	if fs.Changed("eval-percent") {
		o.EvalPercent = evalPercent
	}

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)
	cfg.ApplyOverrides(o)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	m, err := cfg.RunMode()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Verbose)
	logger.SetOutput(stderr)

	roots, err := dataset.DiscoverByRoot(cfg.Roots)
	if err != nil {
		return err
	}
	for _, root := range cfg.Roots {
		logger.Verbose("root=%s shards=%d", root, len(roots[root]))
	}
	logger.Info("mode=%s pooling=%s roots=%d", m, cfg.Pooling, len(roots))

	runCfg := trainer.RunConfig{
		Roots:        roots,
		Mode:         m,
		Pooling:      pooling.Method(cfg.Pooling),
		Steps:        cfg.Steps,
		BatchSize:    cfg.BatchSize,
		NumWorkers:   cfg.NumWorkers,
		LogEvery:     cfg.LogEvery,
		EvalEvery:    cfg.EvalEvery,
		EvalPercent:  cfg.EvalPercent,
		NumClasses:   cfg.NumClasses,
		LearningRate: cfg.LearningRate,
		Seed:         cfg.Seed,
		Checkpoint:   cfg.Checkpoint,
		Predictions:  stdout,
		Logger:       logger,
	}

	if err := trainer.Run(ctx, runCfg); err != nil {
		return fmt.Errorf("%s failed: %w", m, err)
	}
	return nil
}
