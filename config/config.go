// Package config loads the YAML run configuration.
//
// A Config is a plain value threaded through the pipeline; nothing here is
// global. Zero values for budget-like settings mean "use the mode default",
// see Resolved.
package config

import (
	"bytes"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/immoeliza/pricetune/core/execution"
	"github.com/immoeliza/pricetune/diagnosis"
	"github.com/immoeliza/pricetune/ledger"
	"github.com/immoeliza/pricetune/pkg/errors"
	"github.com/immoeliza/pricetune/pkg/log"
)

// Mode selects the run size.
type Mode string

const (
	// ModeDev is a quick run on a small sample, marked as a test in the ledger.
	ModeDev Mode = "dev"
	// ModeFull is the real run.
	ModeFull Mode = "full"
)

// Sampler names accepted in search.sampler.
const (
	SamplerTPE    = "tpe"
	SamplerRandom = "random"
	SamplerGrid   = "grid"
)

type modeDefaults struct {
	trials        int
	rowLimit      int // 0 = unlimited
	maxIterations int
}

var defaults = map[Mode]modeDefaults{
	ModeDev:  {trials: 5, rowLimit: 1000, maxIterations: 500},
	ModeFull: {trials: 50, rowLimit: 0, maxIterations: 1000},
}

// DataConfig locates and shapes the training table.
type DataConfig struct {
	Path     string   `yaml:"path"`
	Dir      string   `yaml:"dir"`
	Target   string   `yaml:"target"`
	Features []string `yaml:"features"`
	TestSize float64  `yaml:"test_size"`
	Seed     uint64   `yaml:"seed"`
	RowLimit int      `yaml:"row_limit"`
}

// SearchConfig drives the hyperparameter search.
type SearchConfig struct {
	Trials              int    `yaml:"trials"`
	Sampler             string `yaml:"sampler"`
	StartupTrials       int    `yaml:"startup_trials"`
	GridLevels          int    `yaml:"grid_levels"`
	Seed                uint64 `yaml:"seed"`
	Folds               int    `yaml:"folds"`
	FoldSeed            uint64 `yaml:"fold_seed"`
	FoldWorkers         int    `yaml:"fold_workers"`
	EarlyStoppingRounds int    `yaml:"early_stopping_rounds"`
	MaxIterations       int    `yaml:"max_iterations"`
}

// ExecutionConfig holds the requested execution mode.
type ExecutionConfig struct {
	Mode string `yaml:"mode"`
}

// OutputConfig says where results go.
type OutputConfig struct {
	ModelsDir           string `yaml:"models_dir"`
	LedgerPath          string `yaml:"ledger_path"`
	PlotPath            string `yaml:"plot_path"`
	LeaderboardPlotPath string `yaml:"leaderboard_plot_path"`
}

// LedgerConfig tunes the ranking score.
type LedgerConfig struct {
	Weights ledger.Weights `yaml:"weights"`
}

// ExperimentConfig names the run in the ledger.
type ExperimentConfig struct {
	ModelName      string `yaml:"model_name"`
	ExperimentName string `yaml:"experiment_name"`
}

// LoggingConfig configures pkg/log.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the whole run configuration.
type Config struct {
	Mode       Mode                 `yaml:"mode"`
	Data       DataConfig           `yaml:"data"`
	Search     SearchConfig         `yaml:"search"`
	Execution  ExecutionConfig      `yaml:"execution"`
	Output     OutputConfig         `yaml:"output"`
	Ledger     LedgerConfig         `yaml:"ledger"`
	Diagnosis  diagnosis.Thresholds `yaml:"diagnosis"`
	Experiment ExperimentConfig     `yaml:"experiment"`
	Logging    LoggingConfig        `yaml:"logging"`
}

// Default returns the built-in configuration (dev mode).
func Default() Config {
	return Config{
		Mode: ModeDev,
		Data: DataConfig{
			Dir:      "data/ml_ready",
			Target:   "price",
			TestSize: 0.2,
			Seed:     42,
		},
		Search: SearchConfig{
			Sampler:             SamplerTPE,
			StartupTrials:       10,
			GridLevels:          3,
			Seed:                42,
			Folds:               3,
			FoldSeed:            42,
			FoldWorkers:         1,
			EarlyStoppingRounds: 50,
		},
		Execution: ExecutionConfig{Mode: string(execution.Standard)},
		Output: OutputConfig{
			ModelsDir:  "models",
			LedgerPath: "data/model_train_test_logs/metrics_train_test_log.csv",
		},
		Ledger:    LedgerConfig{Weights: ledger.DefaultWeights()},
		Diagnosis: diagnosis.DefaultThresholds(),
		Experiment: ExperimentConfig{
			ModelName:      "GBDT CV (All Features)",
			ExperimentName: "GBDT TPE (All Features)",
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults. An empty path returns Default().
// Unknown keys are rejected.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, errors.Wrap(err, "decode config")
	}
	return cfg, nil
}

// Validate reports the first invalid setting as a ValidationError.
func (c Config) Validate() error {
	if _, ok := defaults[c.Mode]; !ok {
		return errors.NewValidationError("mode", "must be dev or full", c.Mode)
	}
	if c.Data.Target == "" {
		return errors.NewValidationError("data.target", "must not be empty", c.Data.Target)
	}
	if c.Data.Path == "" && c.Data.Dir == "" {
		return errors.NewValidationError("data.dir", "either data.path or data.dir is required", "")
	}
	if !(c.Data.TestSize > 0 && c.Data.TestSize < 1) {
		return errors.NewValidationError("data.test_size", "must be in (0, 1)", c.Data.TestSize)
	}
	if c.Data.RowLimit < 0 {
		return errors.NewValidationError("data.row_limit", "must be >= 0", c.Data.RowLimit)
	}

	s := c.Search
	switch s.Sampler {
	case SamplerTPE, SamplerRandom, SamplerGrid:
	default:
		return errors.NewValidationError("search.sampler", "must be tpe, random or grid", s.Sampler)
	}
	switch {
	case s.Trials < 0:
		return errors.NewValidationError("search.trials", "must be >= 0", s.Trials)
	case s.StartupTrials < 1:
		return errors.NewValidationError("search.startup_trials", "must be >= 1", s.StartupTrials)
	case s.GridLevels < 1:
		return errors.NewValidationError("search.grid_levels", "must be >= 1", s.GridLevels)
	case s.Folds < 2:
		return errors.NewValidationError("search.folds", "must be >= 2", s.Folds)
	case s.FoldWorkers < 1:
		return errors.NewValidationError("search.fold_workers", "must be >= 1", s.FoldWorkers)
	case s.EarlyStoppingRounds < 0:
		return errors.NewValidationError("search.early_stopping_rounds", "must be >= 0", s.EarlyStoppingRounds)
	case s.MaxIterations < 0:
		return errors.NewValidationError("search.max_iterations", "must be >= 0", s.MaxIterations)
	}

	if _, err := execution.ParseMode(c.Execution.Mode); err != nil {
		return err
	}
	if c.Output.LedgerPath == "" {
		return errors.NewValidationError("output.ledger_path", "must not be empty", "")
	}
	w := c.Ledger.Weights
	for name, v := range map[string]float64{"ledger.weights.r2": w.R2, "ledger.weights.mae": w.MAE, "ledger.weights.rmse": w.RMSE} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.NewValidationError(name, "must be finite", v)
		}
	}
	d := c.Diagnosis
	for name, v := range map[string]float64{"diagnosis.mae_threshold": d.MAEThreshold, "diagnosis.r2_good": d.R2Good, "diagnosis.r2_poor": d.R2Poor} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.NewValidationError(name, "must be finite", v)
		}
	}
	if d.MAEThreshold < 0 {
		return errors.NewValidationError("diagnosis.mae_threshold", "must be >= 0", d.MAEThreshold)
	}
	if _, err := log.ToLogLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return errors.NewValidationError("logging.format", "must be json or console", c.Logging.Format)
	}
	return nil
}

// IsDev reports whether this is a dev run.
func (c Config) IsDev() bool { return c.Mode == ModeDev }

// TrialBudget is search.trials, or the mode default when zero.
func (c Config) TrialBudget() int {
	if c.Search.Trials > 0 {
		return c.Search.Trials
	}
	return defaults[c.Mode].trials
}

// RowLimit is data.row_limit, or the mode default when zero. 0 means no limit.
func (c Config) RowLimit() int {
	if c.Data.RowLimit > 0 {
		return c.Data.RowLimit
	}
	return defaults[c.Mode].rowLimit
}

// MaxIterations is search.max_iterations, or the mode default when zero.
func (c Config) MaxIterations() int {
	if c.Search.MaxIterations > 0 {
		return c.Search.MaxIterations
	}
	return defaults[c.Mode].maxIterations
}

// ExecutionMode parses execution.mode. Call Validate first.
func (c Config) ExecutionMode() execution.Mode {
	m, _ := execution.ParseMode(c.Execution.Mode)
	return m
}

// Resolved returns a copy with the mode defaults written in.
func (c Config) Resolved() Config {
	out := c
	out.Data.Features = append([]string(nil), c.Data.Features...)
	out.Search.Trials = c.TrialBudget()
	out.Data.RowLimit = c.RowLimit()
	out.Search.MaxIterations = c.MaxIterations()
	return out
}
