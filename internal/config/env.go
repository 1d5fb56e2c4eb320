package config

// env.go - configuration overlay from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (cmd/lightforge)
//   2. Environment variables  (this file)
//   3. YAML file  (config.go)
//   4. Defaults   (Default)

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Every supported env var uses the LIGHTFORGE_ prefix.
const envPrefix = "LIGHTFORGE_"

// LoadFromEnv overlays environment variables onto cfg. Only non-empty,
// parseable values override the existing value.
func LoadFromEnv(cfg *Config) {
	LoadFromLookup(cfg, os.LookupEnv)
}

// LoadFromLookup is LoadFromEnv with an injectable lookup.
func LoadFromLookup(cfg *Config, lookup func(string) (string, bool)) {
	get := func(key string) string {
		v, _ := lookup(envPrefix + key)
		return strings.TrimSpace(v)
	}
	if v := get("MODE"); v != "" {
		cfg.Mode = v
	}
	if v := get("POOLING"); v != "" {
		cfg.Pooling = v
	}
	if v := get("ROOTS"); v != "" {
		cfg.Roots = filepath.SplitList(v)
	}
	if v := envInt(get("STEPS")); v > 0 {
		cfg.Steps = v
	}
	if v := envInt(get("BATCH_SIZE")); v > 0 {
		cfg.BatchSize = v
	}
	if v := envInt(get("NUM_WORKERS")); v > 0 {
		cfg.NumWorkers = v
	}
	if v, err := strconv.ParseInt(get("SEED"), 10, 64); err == nil && v != 0 {
		cfg.Seed = v
	}
	if v := envInt(get("LOG_EVERY")); v > 0 {
		cfg.LogEvery = v
	}
	if v := envInt(get("EVAL_EVERY")); v > 0 {
		cfg.EvalEvery = v
	}
	if v, err := strconv.Atoi(get("EVAL_PERCENT")); err == nil && v >= 0 {
		cfg.EvalPercent = v
	}
	if v := envInt(get("NUM_CLASSES")); v > 0 {
		cfg.NumClasses = v
	}
	if v, err := strconv.ParseFloat(get("LEARNING_RATE"), 64); err == nil && v > 0 {
		cfg.LearningRate = v
	}
	if v := get("CHECKPOINT"); v != "" {
		cfg.Checkpoint = v
	}
	if v := envInt(get("VERBOSE")); v > 0 {
		cfg.Verbose = v
	}
}

func envInt(v string) int {
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
