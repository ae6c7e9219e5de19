package tuning

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/immoeliza/pricetune/dataset"
	"github.com/immoeliza/pricetune/gbdt"
	"github.com/immoeliza/pricetune/metrics"
	"github.com/immoeliza/pricetune/pkg/errors"
	"github.com/immoeliza/pricetune/pkg/log"
)

// Objective scores one configuration; lower is better.
type Objective interface {
	Evaluate(ctx context.Context, cfg Config) (float64, error)
}

type trialKey struct{}

// WithTrialIndex tags ctx with the index of the trial being evaluated.
func WithTrialIndex(ctx context.Context, trial int) context.Context {
	return context.WithValue(ctx, trialKey{}, trial)
}

// TrialIndex returns the trial index carried by ctx, or -1.
func TrialIndex(ctx context.Context) int {
	if v, ok := ctx.Value(trialKey{}).(int); ok {
		return v
	}
	return -1
}

type foldData struct {
	X, Xv *mat.Dense
	y, yv *mat.VecDense
}

// CVObjective is the mean held-out RMSE over k shuffled folds of the training
// split. Each fold trains with early stopping on its own held-out rows.
type CVObjective struct {
	base    gbdt.Params
	names   []string
	folds   []foldData
	workers int
	logger  log.Logger
}

// CVOption configures a CVObjective.
type CVOption func(*CVObjective)

// WithFoldWorkers trains up to n folds concurrently. Scores are stored per fold
// index so the mean does not depend on scheduling.
func WithFoldWorkers(n int) CVOption {
	return func(o *CVObjective) { o.workers = n }
}

// WithObjectiveLogger sets the logger.
func WithObjectiveLogger(l log.Logger) CVOption {
	return func(o *CVObjective) { o.logger = l }
}

// NewCVObjective precomputes the folds of train. base supplies everything a
// Config does not set (seed, execution mode, early stopping rounds, bins).
func NewCVObjective(train dataset.Table, base gbdt.Params, kfold dataset.KFold, opts ...CVOption) (*CVObjective, error) {
	if !train.HasTarget() {
		return nil, errors.NewValidationError("target", "training table has no target", nil)
	}
	splits, err := kfold.Split(train.NumRows())
	if err != nil {
		return nil, err
	}

	o := &CVObjective{base: base, names: train.Features(), workers: 1}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = log.GetLoggerWithName("tuning.cv")
	}

	o.folds = make([]foldData, len(splits))
	for i, s := range splits {
		tr, va := train.Rows(s.TrainIndices), train.Rows(s.ValidIndices)
		o.folds[i] = foldData{X: tr.Matrix(), y: tr.Target(), Xv: va.Matrix(), yv: va.Target()}
	}
	return o, nil
}

// NumFolds returns k.
func (o *CVObjective) NumFolds() int { return len(o.folds) }

// Evaluate implements Objective. Any fold failure, panic included, fails the
// whole trial with a TrialFailureError.
func (o *CVObjective) Evaluate(ctx context.Context, cfg Config) (float64, error) {
	trial := TrialIndex(ctx)
	params, err := gbdt.ParamsFromMap(o.base, cfg.Params())
	if err != nil {
		return math.NaN(), errors.NewTrialFailureError(trial, -1, err)
	}

	scores := make([]float64, len(o.folds))
	if o.workers > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.workers)
		for i := range o.folds {
			g.Go(func() error {
				s, err := o.runFold(gctx, trial, i, params)
				scores[i] = s
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return math.NaN(), err
		}
	} else {
		for i := range o.folds {
			s, err := o.runFold(ctx, trial, i, params)
			if err != nil {
				return math.NaN(), err
			}
			scores[i] = s
		}
	}

	mean := stat.Mean(scores, nil)
	o.logger.Debug("Cross-validation finished",
		log.TrialKey, trial,
		log.ScoreKey, mean,
		"fold_std", stat.PopStdDev(scores, nil),
	)
	return mean, nil
}

func (o *CVObjective) runFold(ctx context.Context, trial, fold int, params gbdt.Params) (score float64, err error) {
	ctx, span := startFoldSpan(ctx, fold)
	defer func() {
		endSpan(span, err)
		recordFold(ctx, err == nil)
	}()

	if err := ctx.Err(); err != nil {
		return math.NaN(), err
	}

	f := o.folds[fold]
	err = errors.SafeExecute("CVObjective.fold", func() error {
		m, ferr := gbdt.NewTrainer(params, gbdt.WithLogger(o.logger)).FitWithValidation(f.X, f.y, f.Xv, f.yv, o.names)
		if ferr != nil {
			return ferr
		}
		pred, ferr := m.PredictMatrix(f.Xv)
		if ferr != nil {
			return ferr
		}
		score, ferr = metrics.RMSE(f.yv, pred)
		if ferr != nil {
			return ferr
		}
		return errors.CheckScalar("fold_rmse", score, fold)
	})
	if err != nil {
		return math.NaN(), errors.NewTrialFailureError(trial, fold, err)
	}
	return score, nil
}
