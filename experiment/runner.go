// Package experiment runs one end-to-end training experiment: load the data,
// search hyperparameters, refit, evaluate, diagnose, save the artifacts and
// append the run to the ledger.
package experiment

import (
	"context"
	"time"

	"github.com/immoeliza/pricetune/config"
	"github.com/immoeliza/pricetune/core/execution"
	"github.com/immoeliza/pricetune/dataset"
	"github.com/immoeliza/pricetune/diagnosis"
	"github.com/immoeliza/pricetune/gbdt"
	"github.com/immoeliza/pricetune/ledger"
	"github.com/immoeliza/pricetune/metrics"
	"github.com/immoeliza/pricetune/pkg/errors"
	"github.com/immoeliza/pricetune/pkg/log"
	"github.com/immoeliza/pricetune/report"
	"github.com/immoeliza/pricetune/tuning"
)

// TestSuffix marks model and experiment names of dev runs.
const TestSuffix = " [TEST]"

// Outcome is everything a run produced.
type Outcome struct {
	DataFile    string
	Rows        int
	Features    []string
	Capability  execution.Capability
	Search      *tuning.Result
	Train       metrics.Set
	Test        metrics.Set
	Diagnosis   diagnosis.Result
	Artifacts   gbdt.Artifacts
	Row         ledger.Row
	Leaderboard []ledger.Standing
}

// Runner executes experiments for one configuration.
type Runner struct {
	cfg    config.Config
	logger log.Logger
	prober *execution.Prober
	clock  func() time.Time
	space  *tuning.Space
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option { return func(r *Runner) { r.logger = l } }

// WithProber replaces the execution-mode prober.
func WithProber(p *execution.Prober) Option { return func(r *Runner) { r.prober = p } }

// WithClock sets the time source for artifact names and ledger timestamps.
func WithClock(clock func() time.Time) Option { return func(r *Runner) { r.clock = clock } }

// WithSpace replaces the default search space.
func WithSpace(s tuning.Space) Option { return func(r *Runner) { r.space = &s } }

// NewRunner validates cfg and applies its mode defaults.
func NewRunner(cfg config.Config, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{cfg: cfg.Resolved(), clock: time.Now}
	for _, o := range opts {
		o(r)
	}
	if r.logger == nil {
		r.logger = log.GetLoggerWithName("experiment")
	}
	if r.prober == nil {
		r.prober = execution.NewProber(gbdt.MicroFit)
	}
	return r, nil
}

// Config returns the resolved configuration.
func (r *Runner) Config() config.Config { return r.cfg }

// Names returns the model and experiment names written to the ledger.
func (r *Runner) Names() (model, experiment string) {
	model, experiment = r.cfg.Experiment.ModelName, r.cfg.Experiment.ExperimentName
	if r.cfg.IsDev() {
		model += TestSuffix
		experiment += TestSuffix
	}
	return model, experiment
}

// Run executes the whole pipeline once.
func (r *Runner) Run(ctx context.Context) (*Outcome, error) {
	cfg := r.cfg
	start := r.clock()
	out := &Outcome{}

	dataFile := cfg.Data.Path
	if dataFile == "" {
		latest, err := ledger.LatestDataFile(cfg.Data.Dir)
		if err != nil {
			return nil, err
		}
		dataFile = latest
	}
	out.DataFile = dataFile

	table, err := r.loadTable(dataFile)
	if err != nil {
		return nil, err
	}
	out.Rows, out.Features = table.NumRows(), table.Features()

	split, err := dataset.TrainTestSplit(table, cfg.Data.TestSize, cfg.Data.Seed)
	if err != nil {
		return nil, err
	}

	out.Capability = r.prober.Resolve(ctx, cfg.ExecutionMode(), r.logger)
	r.logger.Info("Execution mode resolved",
		log.ExecModeKey, string(out.Capability.Mode),
		"requested", string(out.Capability.Requested),
	)

	controller, err := r.newController(split.Train, out.Capability.Mode)
	if err != nil {
		return nil, err
	}
	res, err := controller.Run(ctx, split.Train)
	if err != nil {
		return nil, errors.Wrap(err, "hyperparameter search")
	}
	out.Search = res

	if out.Train, err = evaluate(res.Model, split.Train); err != nil {
		return nil, errors.Wrap(err, "train metrics")
	}
	if out.Test, err = evaluate(res.Model, split.Test); err != nil {
		return nil, errors.Wrap(err, "test metrics")
	}
	out.Diagnosis, err = diagnosis.Diagnose(out.Train.MAE, out.Test.MAE, out.Train.R2, out.Test.R2, cfg.Diagnosis)
	if err != nil {
		return nil, err
	}
	r.logger.Info("Final model evaluated",
		"train", out.Train,
		"test", out.Test,
		"diagnosis", out.Diagnosis,
	)

	out.Artifacts, err = gbdt.SaveArtifacts(res.Model, cfg.Output.ModelsDir, cfg.Experiment.ModelName, start, cfg.IsDev())
	if err != nil {
		return nil, err
	}
	r.logger.Info("Model saved", log.ArtifactKey, out.Artifacts.ModelPath)

	store := ledger.NewStore(cfg.Output.LedgerPath, cfg.Data.Dir,
		ledger.WithWeights(cfg.Ledger.Weights),
		ledger.WithThresholds(cfg.Diagnosis),
		ledger.WithClock(r.clock),
		ledger.WithLogger(r.logger),
	)
	model, experiment := r.Names()
	out.Row, err = store.Log(ctx, ledger.Entry{
		Model:         model,
		Experiment:    experiment,
		Train:         out.Train,
		Test:          out.Test,
		NFeatures:     len(out.Features),
		DataFile:      dataFile,
		TestMode:      cfg.IsDev(),
		ExecutionMode: string(out.Capability.Mode),
	})
	if err != nil {
		return nil, err
	}

	out.Leaderboard, err = store.Leaderboard(ledger.Options{SortByRanking: true})
	if err != nil {
		return nil, err
	}

	if p := cfg.Output.PlotPath; p != "" {
		if err := report.PlotHistory(res.History, p); err != nil {
			r.logger.Warn("Optimization history plot failed", err)
		}
	}
	if p := cfg.Output.LeaderboardPlotPath; p != "" {
		if err := report.PlotLeaderboard(out.Leaderboard, p); err != nil {
			r.logger.Warn("Leaderboard plot failed", err)
		}
	}

	r.logger.Info("Experiment finished",
		log.ModelNameKey, model,
		log.DurationMsKey, r.clock().Sub(start).Milliseconds(),
		log.BestScoreKey, res.Best.Score,
		"failed_trials", res.Failed(),
	)
	return out, nil
}

func (r *Runner) loadTable(path string) (dataset.Table, error) {
	cfg := r.cfg
	table, err := dataset.ReadCSV(path, cfg.Data.Target)
	if err != nil {
		return dataset.Table{}, err
	}
	table = table.DropMissingTarget()
	if len(cfg.Data.Features) > 0 {
		if table, err = table.Select(cfg.Data.Features); err != nil {
			return dataset.Table{}, err
		}
	}
	if n := cfg.Data.RowLimit; n > 0 {
		table = table.Head(n)
	}
	if table.NumRows() == 0 {
		return dataset.Table{}, errors.Wrapf(errors.ErrEmptyData, "no labelled rows in %s", path)
	}
	r.logger.Info("Data loaded",
		log.DataFileKey, path,
		log.SamplesKey, table.NumRows(),
		log.FeaturesKey, table.NumFeatures(),
	)
	return table, nil
}

func (r *Runner) newController(train dataset.Table, mode execution.Mode) (*tuning.Controller, error) {
	cfg := r.cfg
	base := gbdt.DefaultParams()
	base.Iterations = cfg.MaxIterations()
	base.EarlyStoppingRounds = cfg.Search.EarlyStoppingRounds
	base.Seed = cfg.Search.Seed
	base.Mode = mode

	space := tuning.DefaultSpace(cfg.MaxIterations())
	if r.space != nil {
		space = *r.space
	}

	var sampler tuning.Sampler
	switch cfg.Search.Sampler {
	case config.SamplerRandom:
		sampler = tuning.NewRandomSampler(space, cfg.Search.Seed)
	case config.SamplerGrid:
		g, err := tuning.NewGridSampler(space, cfg.Search.GridLevels)
		if err != nil {
			return nil, err
		}
		sampler = g
	default:
		opts := tuning.DefaultTPEOptions()
		opts.StartupTrials = cfg.Search.StartupTrials
		opts.Seed = cfg.Search.Seed
		tpe, err := tuning.NewTPESampler(space, opts)
		if err != nil {
			return nil, err
		}
		sampler = tpe
	}

	objective, err := tuning.NewCVObjective(train, base,
		dataset.NewKFold(cfg.Search.Folds, true, cfg.Search.FoldSeed),
		tuning.WithFoldWorkers(cfg.Search.FoldWorkers),
		tuning.WithObjectiveLogger(r.logger),
	)
	if err != nil {
		return nil, err
	}

	return tuning.NewController(sampler, objective, tuning.GBDTRefitter{Base: base}, cfg.TrialBudget(),
		tuning.WithLogger(r.logger),
		tuning.OnTransition(func(from, to tuning.State) {
			r.logger.Debug("Search state changed", log.StateKey, string(to), "from", string(from))
		}),
	)
}

func evaluate(m *gbdt.Model, t dataset.Table) (metrics.Set, error) {
	pred, err := m.Predict(t)
	if err != nil {
		return metrics.Set{}, err
	}
	return metrics.Compute(t.Target(), pred)
}
