package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	lferrors "lightforge/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func validConfig() *Config {
	cfg := Default()
	cfg.Roots = []string{"/data/a"}
	cfg.Steps = 10
	return cfg
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
# demo run
mode: eval
pooling: max
roots:
  - /data/a
  - /data/b
batch_size: 8
eval_percent: 10
checkpoint: "model.bin"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "eval" || cfg.Pooling != "max" || cfg.BatchSize != 8 || cfg.EvalPercent != 10 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Roots, []string{"/data/a", "/data/b"}) {
		t.Fatalf("unexpected roots %v", cfg.Roots)
	}
	if cfg.NumWorkers != 2 || cfg.LearningRate != 0.05 {
		t.Fatalf("defaults not kept: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadCommentsOnly(t *testing.T) {
	cfg, err := Load(writeConfig(t, "# nothing here\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	_, err := Load(writeConfig(t, "train_root_a: /x\n"))
	if err == nil || !strings.Contains(err.Error(), "train_root_a") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestLoadRejectsBadType(t *testing.T) {
	if _, err := Load(writeConfig(t, "steps: many\n")); err == nil {
		t.Fatal("expected type error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected open error")
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := validConfig()
	cfg.ApplyOverrides(Overrides{
		Mode:       "predict",
		Roots:      []string{"/override"},
		Steps:      0,
		BatchSize:  4,
		Checkpoint: "ckpt",
	})
	if cfg.Mode != "predict" || cfg.BatchSize != 4 || cfg.Checkpoint != "ckpt" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Steps != 10 {
		t.Fatalf("zero override replaced steps: %d", cfg.Steps)
	}
	if !reflect.DeepEqual(cfg.Roots, []string{"/override"}) {
		t.Fatalf("unexpected roots %v", cfg.Roots)
	}
}

func TestApplyOverridesZeroEvalPercent(t *testing.T) {
	cfg := validConfig()
	cfg.EvalPercent = 30
	cfg.ApplyOverrides(Overrides{})
	if cfg.EvalPercent != 30 {
		t.Fatalf("unset override changed eval_percent: %d", cfg.EvalPercent)
	}
	zero := 0
	cfg.ApplyOverrides(Overrides{EvalPercent: &zero})
	if cfg.EvalPercent != 0 {
		t.Fatalf("explicit zero not applied: %d", cfg.EvalPercent)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Config)
		field string
	}{
		{"mode", func(c *Config) { c.Mode = "test" }, "mode"},
		{"pooling", func(c *Config) { c.Pooling = "sum" }, "pooling"},
		{"roots", func(c *Config) { c.Roots = nil }, "roots"},
		{"steps", func(c *Config) { c.Steps = 0 }, "steps"},
		{"batch", func(c *Config) { c.BatchSize = 0 }, "batch_size"},
		{"workers", func(c *Config) { c.NumWorkers = -1 }, "num_workers"},
		{"eval percent", func(c *Config) { c.EvalPercent = 100 }, "eval_percent"},
		{"eval every", func(c *Config) { c.EvalEvery = -2 }, "eval_every"},
		{"classes", func(c *Config) { c.NumClasses = 0 }, "num_classes"},
		{"log every", func(c *Config) { c.LogEvery = 0 }, "log_every"},
		{"learning rate", func(c *Config) { c.LearningRate = -1 }, "learning_rate"},
		{"checkpoint", func(c *Config) { c.Mode = "eval" }, "checkpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.edit(cfg)
			err := cfg.Validate()
			var ce *lferrors.ConfigError
			if !lferrors.As(err, &ce) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if ce.Field != tt.field {
				t.Fatalf("field=%s want %s", ce.Field, tt.field)
			}
		})
	}
}

func TestValidatePoolingListsMethods(t *testing.T) {
	cfg := validConfig()
	cfg.Pooling = "avg"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "[cls mean max]") {
		t.Fatalf("expected pooling methods in error, got %v", err)
	}
}

func TestValidateDoesNotModify(t *testing.T) {
	cfg := validConfig()
	before := *cfg
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !reflect.DeepEqual(*cfg, before) {
		t.Fatalf("Validate modified config: %+v vs %+v", *cfg, before)
	}
	cfg.LogEvery = 0
	_ = cfg.Validate()
	if cfg.LogEvery != 0 {
		t.Fatalf("Validate filled log_every: %d", cfg.LogEvery)
	}
	var nilCfg *Config
	if err := nilCfg.Validate(); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestPredictWithoutSteps(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "predict"
	cfg.Steps = 0
	cfg.Checkpoint = "model.bin"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("predict should not need steps: %v", err)
	}
}

func TestLoadFromLookup(t *testing.T) {
	env := map[string]string{
		"LIGHTFORGE_MODE":        "eval",
		"LIGHTFORGE_ROOTS":       "/a" + string(os.PathListSeparator) + "/b",
		"LIGHTFORGE_BATCH_SIZE":  "16",
		"LIGHTFORGE_SEED":        "7",
		"LIGHTFORGE_NUM_WORKERS": "lots",
		"LIGHTFORGE_CHECKPOINT":  " ckpt.bin ",
	}
	cfg := Default()
	LoadFromLookup(cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if cfg.Mode != "eval" || cfg.BatchSize != 16 || cfg.Seed != 7 || cfg.Checkpoint != "ckpt.bin" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.NumWorkers != 2 {
		t.Fatalf("unparseable value should be ignored, got %d", cfg.NumWorkers)
	}
	if !reflect.DeepEqual(cfg.Roots, []string{"/a", "/b"}) {
		t.Fatalf("unexpected roots %v", cfg.Roots)
	}
}

func TestLoadFromLookupTrainingKnobs(t *testing.T) {
	env := map[string]string{
		"LIGHTFORGE_LOG_EVERY":     "5",
		"LIGHTFORGE_EVAL_EVERY":    "20",
		"LIGHTFORGE_EVAL_PERCENT":  "0",
		"LIGHTFORGE_NUM_CLASSES":   "10",
		"LIGHTFORGE_LEARNING_RATE": "0.2",
	}
	cfg := Default()
	cfg.EvalPercent = 25
	LoadFromLookup(cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if cfg.LogEvery != 5 || cfg.EvalEvery != 20 || cfg.NumClasses != 10 || cfg.LearningRate != 0.2 {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.EvalPercent != 0 {
		t.Fatalf("eval_percent=%d want 0", cfg.EvalPercent)
	}
}
