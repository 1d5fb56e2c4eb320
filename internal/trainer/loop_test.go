package trainer

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	lferrors "lightforge/internal/errors"
	"lightforge/internal/logging"
	"lightforge/internal/mode"
	"lightforge/internal/pooling"
)

// writeImageShard writes count PNG samples whose label is the index mod 4.
func writeImageShard(t *testing.T, path, prefix string, count int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	for i := 0; i < count; i++ {
		key := fmt.Sprintf("%s%03d", prefix, i)
		shade := uint8(i * 60)
		img := pngBytes(t, 16, 16, func(x, _ int) uint8 { return shade + uint8(x) })
		addEntry(t, tw, key+".png", img)
		addEntry(t, tw, key+".cls", []byte(strconv.Itoa(i%4)))
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write shard: %v", err)
	}
}

func addEntry(t *testing.T, tw *tar.Writer, name string, data []byte) {
	t.Helper()
	if err := tw.WriteHeader(&tar.Header{Name: name, Size: int64(len(data)), Mode: 0o644}); err != nil {
		t.Fatalf("header: %v", err)
	}
	if _, err := tw.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func testRoots(t *testing.T) map[string][]string {
	dir := t.TempDir()
	rootA := filepath.Join(dir, "a")
	rootB := filepath.Join(dir, "b")
	shardA := filepath.Join(rootA, "shard-000000.tar")
	shardB := filepath.Join(rootB, "shard-000001.tar")
	writeImageShard(t, shardA, "a", 4)
	writeImageShard(t, shardB, "b", 4)
	return map[string][]string{rootA: {shardA}, rootB: {shardB}}
}

func bufferLogger(buf *bytes.Buffer) *logging.Logger {
	l := logging.New(1)
	l.SetOutput(buf)
	l.SetTimestamps(false)
	return l
}

func TestRunTrainEvalPredict(t *testing.T) {
	roots := testRoots(t)
	checkpoint := filepath.Join(t.TempDir(), "model.bin")
	ctx := context.Background()

	var logs bytes.Buffer
	base := RunConfig{
		Roots:        roots,
		Pooling:      pooling.Mean,
		Steps:        4,
		BatchSize:    3,
		NumWorkers:   2,
		LogEvery:     2,
		NumClasses:   4,
		LearningRate: 0.1,
		Seed:         5,
		Checkpoint:   checkpoint,
		Logger:       bufferLogger(&logs),
	}

	train := base
	train.Mode = mode.Train
	if err := Run(ctx, train); err != nil {
		t.Fatalf("train: %v", err)
	}
	if _, err := os.Stat(checkpoint); err != nil {
		t.Fatalf("checkpoint not written: %v", err)
	}
	if !strings.Contains(logs.String(), "step=4 ") {
		t.Fatalf("missing step log in %q", logs.String())
	}

	eval := base
	eval.Mode = mode.Eval
	if err := Run(ctx, eval); err != nil {
		t.Fatalf("eval: %v", err)
	}
	if !strings.Contains(logs.String(), "eval examples=8 ") {
		t.Fatalf("missing eval summary in %q", logs.String())
	}

	var preds bytes.Buffer
	predict := base
	predict.Mode = mode.Predict
	predict.Predictions = &preds
	if err := Run(ctx, predict); err != nil {
		t.Fatalf("predict: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(preds.String()), "\n")
	if len(lines) != 8 {
		t.Fatalf("expected 8 predictions, got %d: %q", len(lines), preds.String())
	}
	for _, line := range lines {
		parts := strings.Split(line, "\t")
		if len(parts) != 2 {
			t.Fatalf("malformed prediction %q", line)
		}
		class, err := strconv.Atoi(parts[1])
		if err != nil || class < 0 || class >= 4 {
			t.Fatalf("bad class in %q", line)
		}
	}
}

func TestRunTrainWithPeriodicEval(t *testing.T) {
	var logs bytes.Buffer
	cfg := RunConfig{
		Roots:       testRoots(t),
		Mode:        mode.Train,
		Pooling:     pooling.Max,
		Steps:       2,
		BatchSize:   2,
		LogEvery:    1,
		EvalEvery:   2,
		EvalPercent: 50,
		NumClasses:  4,
		Logger:      bufferLogger(&logs),
	}
	if err := Run(context.Background(), cfg); err != nil {
		t.Fatalf("train: %v", err)
	}
	if !strings.Contains(logs.String(), "eval step=2 examples=") {
		t.Fatalf("missing periodic eval in %q", logs.String())
	}
}

func TestRunEvalRequiresCheckpoint(t *testing.T) {
	cfg := RunConfig{Roots: testRoots(t), Mode: mode.Eval, Pooling: pooling.CLS, BatchSize: 2}
	if err := Run(context.Background(), cfg); !lferrors.Is(err, lferrors.ErrNoCheckpoint) {
		t.Fatalf("expected ErrNoCheckpoint, got %v", err)
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	roots := testRoots(t)
	tests := []struct {
		name string
		cfg  RunConfig
	}{
		{"batch size", RunConfig{Roots: roots, Pooling: pooling.Mean}},
		{"steps", RunConfig{Roots: roots, Pooling: pooling.Mean, BatchSize: 1}},
		{"mode", RunConfig{Roots: roots, Pooling: pooling.Mean, BatchSize: 1, Mode: mode.Mode(5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Run(context.Background(), tt.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := RunConfig{Roots: testRoots(t), Mode: mode.Train, Pooling: pooling.Mean, Steps: 10, BatchSize: 2}
	if err := Run(ctx, cfg); err == nil {
		t.Fatal("expected cancellation error")
	}
}
