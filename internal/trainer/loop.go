package trainer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"lightforge/internal/collate"
	"lightforge/internal/dataset"
	lferrors "lightforge/internal/errors"
	"lightforge/internal/logging"
	"lightforge/internal/metrics"
	"lightforge/internal/mode"
	"lightforge/internal/model"
	"lightforge/internal/pooling"
)

// featureGrid is both the token count and the feature width per image.
const featureGrid = 16

type imagePipeline = collate.Collator[dataset.Sample, encoded, collated]

// RunConfig captures the knobs required by the training loop.
type RunConfig struct {
	Roots        map[string][]string
	Mode         mode.Mode
	Pooling      pooling.Method
	Steps        int
	BatchSize    int
	NumWorkers   int
	LogEvery     int
	EvalEvery    int
	EvalPercent  int
	NumClasses   int
	LearningRate float64
	Seed         int64
	Checkpoint   string
	// Predictions receives `key\tclass` lines in predict mode.
	Predictions io.Writer
	Logger      *logging.Logger
}

// Run executes the workload selected by cfg.Mode.
func Run(ctx context.Context, cfg RunConfig) error {
	if cfg.BatchSize <= 0 {
		return errors.New("trainer: batch size must be > 0")
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 50
	}
	if cfg.NumClasses <= 0 {
		cfg.NumClasses = 1000
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Predictions == nil {
		cfg.Predictions = os.Stdout
	}
	pool, err := pooling.Get(string(cfg.Pooling))
	if err != nil {
		return fmt.Errorf("trainer: %w", err)
	}

	switch cfg.Mode {
	case mode.Train:
		pipeline, err := newImageCollator(mode.Train, featureGrid, pool, cfg.NumClasses)
		if err != nil {
			return fmt.Errorf("trainer: %w", err)
		}
		return runTrain(ctx, cfg, pipeline)
	case mode.Eval, mode.Predict:
		mdl, err := loadCheckpoint(cfg)
		if err != nil {
			return err
		}
		cfg.NumClasses = mdl.NumClasses()
		pipeline, err := newImageCollator(cfg.Mode, featureGrid, pool, cfg.NumClasses)
		if err != nil {
			return fmt.Errorf("trainer: %w", err)
		}
		if cfg.Mode == mode.Predict {
			return predict(ctx, cfg, pipeline, mdl)
		}
		summary, err := evaluate(ctx, cfg, pipeline, mdl)
		if err != nil {
			return err
		}
		logSummary(cfg.Logger, "eval", summary)
		return nil
	default:
		return fmt.Errorf("trainer: %w", lferrors.Invalid("mode", cfg.Mode.String(), mode.Names()))
	}
}

func runTrain(ctx context.Context, cfg RunConfig, pipeline *imagePipeline) error {
	if cfg.Steps <= 0 {
		return errors.New("trainer: steps must be > 0")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	samples, samplesErr, err := dataset.StartSampler(ctx, dataset.SamplerOptions{
		Roots:         cfg.Roots,
		Seed:          cfg.Seed,
		NumWorkers:    cfg.NumWorkers,
		Shuffle:       true,
		RequireLabels: true,
		Filter:        dataset.HoldoutFilter(cfg.EvalPercent, false),
	})
	if err != nil {
		return err
	}

	mdl := model.NewLinear(cfg.NumClasses, featureGrid, cfg.LearningRate, cfg.Seed)
	evalPipeline := pipeline.WithMode(mode.Eval)
	var window metrics.Window

	for step := 1; step <= cfg.Steps; step++ {
		startData := time.Now()
		batch, err := dataset.NextBatch(ctx, samples, samplesErr, cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
		dataTime := time.Since(startData)

		startCollate := time.Now()
		out, err := pipeline.Collate(batch)
		if err != nil {
			return fmt.Errorf("step %d: collate: %w", step, err)
		}
		collateTime := time.Since(startCollate)

		startCompute := time.Now()
		loss := mdl.TrainStep(out.batch)
		computeTime := time.Since(startCompute)

		window.Record(metrics.Step{
			Examples: out.batch.Len(),
			Dropped:  out.dropped,
			Data:     dataTime,
			Collate:  collateTime,
			Compute:  computeTime,
			Loss:     loss,
		})

		if step%cfg.LogEvery == 0 {
			snap := window.Snapshot()
			cfg.Logger.Info("step=%d examples_per_sec=%.1f data_ms=%.2f collate_ms=%.2f compute_ms=%.2f dropped=%d loss=%.4f",
				step,
				snap.ExamplesPerSec,
				snap.AvgDataMS,
				snap.AvgCollateMS,
				snap.AvgComputeMS,
				snap.Dropped,
				snap.LastLoss,
			)
		}

		if cfg.EvalEvery > 0 && cfg.EvalPercent > 0 && step%cfg.EvalEvery == 0 {
			summary, err := evaluate(ctx, cfg, evalPipeline, mdl)
			if err != nil {
				return fmt.Errorf("step %d: %w", step, err)
			}
			logSummary(cfg.Logger, fmt.Sprintf("eval step=%d", step), summary)
		}
	}

	if cfg.Checkpoint != "" {
		if err := saveCheckpoint(cfg.Checkpoint, mdl); err != nil {
			return err
		}
		cfg.Logger.Info("checkpoint=%s saved", cfg.Checkpoint)
	}
	return nil
}

// evaluate makes one pass over the held-out split, or over everything when
// no split is configured.
func evaluate(ctx context.Context, cfg RunConfig, pipeline *imagePipeline, mdl model.Model) (metrics.Summary, error) {
	var filter func(dataset.Sample) bool
	if cfg.EvalPercent > 0 {
		filter = dataset.HoldoutFilter(cfg.EvalPercent, true)
	}
	var acc metrics.Accuracy
	err := onePass(ctx, cfg, filter, true, pipeline, func(out collated) error {
		b := out.batch
		if b.Len() == 0 {
			return nil
		}
		acc.Add(mdl.Loss(b), mdl.Predict(b.Inputs), b.Labels)
		return nil
	})
	if err != nil {
		return metrics.Summary{}, fmt.Errorf("eval: %w", err)
	}
	return acc.Summary(), nil
}

// predict labels every sample, holdout or not.
func predict(ctx context.Context, cfg RunConfig, pipeline *imagePipeline, mdl model.Model) error {
	written := 0
	err := onePass(ctx, cfg, nil, false, pipeline, func(out collated) error {
		b := out.batch
		if b.Len() == 0 {
			return nil
		}
		for i, class := range mdl.Predict(b.Inputs) {
			if _, err := fmt.Fprintf(cfg.Predictions, "%s\t%d\n", b.Keys[i], class); err != nil {
				return err
			}
			written++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("predict: %w", err)
	}
	cfg.Logger.Info("predictions=%d", written)
	return nil
}

func onePass(ctx context.Context, cfg RunConfig, filter func(dataset.Sample) bool, requireLabels bool, pipeline *imagePipeline, handle func(collated) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	samples, samplesErr, err := dataset.StartSampler(ctx, dataset.SamplerOptions{
		Roots:         cfg.Roots,
		Seed:          cfg.Seed,
		NumWorkers:    cfg.NumWorkers,
		Epochs:        1,
		RequireLabels: requireLabels,
		Filter:        filter,
	})
	if err != nil {
		return err
	}
	dropped := 0
	for {
		batch, err := dataset.NextBatch(ctx, samples, samplesErr, cfg.BatchSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		out, err := pipeline.Collate(batch)
		if err != nil {
			return fmt.Errorf("collate: %w", err)
		}
		dropped += out.dropped
		if err := handle(out); err != nil {
			return err
		}
	}
	if dropped > 0 {
		cfg.Logger.Warn("mode=%s dropped=%d undecodable samples", pipeline.Mode(), dropped)
	}
	return nil
}

func logSummary(logger *logging.Logger, label string, s metrics.Summary) {
	logger.Info("%s examples=%d accuracy=%.4f loss=%.4f", label, s.Examples, s.Accuracy, s.Loss)
}

func loadCheckpoint(cfg RunConfig) (*model.Linear, error) {
	if cfg.Checkpoint == "" {
		return nil, fmt.Errorf("trainer: %s mode: %w", cfg.Mode, lferrors.ErrNoCheckpoint)
	}
	f, err := os.Open(cfg.Checkpoint)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()
	mdl, err := model.Load(f, cfg.LearningRate)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", cfg.Checkpoint, err)
	}
	if mdl.InputSize() != featureGrid {
		return nil, fmt.Errorf("checkpoint %s: %w", cfg.Checkpoint,
			lferrors.Shapef("input size %d, want %d", mdl.InputSize(), featureGrid))
	}
	return mdl, nil
}

func saveCheckpoint(path string, mdl *model.Linear) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	if err := mdl.Save(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}
