package tuning

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/immoeliza/pricetune/dataset"
	"github.com/immoeliza/pricetune/gbdt"
	"github.com/immoeliza/pricetune/pkg/errors"
	"github.com/immoeliza/pricetune/pkg/log"
)

// State is a Controller lifecycle state.
type State string

const (
	StateInit       State = "INIT"
	StateSampling   State = "SAMPLING"
	StateEvaluating State = "EVALUATING"
	StateRefitting  State = "REFITTING"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
)

// Refitter trains the final model for the winning configuration.
type Refitter interface {
	Refit(ctx context.Context, cfg Config, train dataset.Table) (*gbdt.Model, error)
}

// GBDTRefitter refits on every training row without early stopping.
type GBDTRefitter struct {
	Base gbdt.Params
}

// Refit implements Refitter.
func (r GBDTRefitter) Refit(ctx context.Context, cfg Config, train dataset.Table) (*gbdt.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params, err := gbdt.ParamsFromMap(r.Base, cfg.Params())
	if err != nil {
		return nil, err
	}
	params.EarlyStoppingRounds = 0
	y := train.Target()
	if y == nil {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}
	return gbdt.NewTrainer(params).Fit(train.Matrix(), y, train.Features())
}

// Result is the outcome of a search.
type Result struct {
	Best    Trial
	Model   *gbdt.Model
	History []Trial
}

// Failed counts the failed trials in History.
func (r *Result) Failed() int {
	n := 0
	for _, t := range r.History {
		if !t.OK() {
			n++
		}
	}
	return n
}

// Controller runs a fixed budget of trials sequentially and refits the best one.
type Controller struct {
	sampler   Sampler
	objective Objective
	refitter  Refitter
	budget    int
	logger    log.Logger

	onTransition func(from, to State)
	onTrial      func(Trial)

	mu    sync.Mutex
	state State
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l log.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// OnTransition registers a hook called on every state change.
func OnTransition(fn func(from, to State)) ControllerOption {
	return func(c *Controller) { c.onTransition = fn }
}

// OnTrial registers a hook called after every trial, failed ones included.
func OnTrial(fn func(Trial)) ControllerOption {
	return func(c *Controller) { c.onTrial = fn }
}

// NewController creates a controller in the INIT state.
func NewController(sampler Sampler, objective Objective, refitter Refitter, budget int, opts ...ControllerOption) (*Controller, error) {
	if sampler == nil || objective == nil || refitter == nil {
		return nil, errors.NewValidationError("controller", "sampler, objective and refitter are required", nil)
	}
	if budget < 1 {
		return nil, errors.NewValidationError("trials", "budget must be >= 1", budget)
	}
	c := &Controller{
		sampler:   sampler,
		objective: objective,
		refitter:  refitter,
		budget:    budget,
		state:     StateInit,
	}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = log.GetLoggerWithName("tuning.controller")
	}
	return c, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) transition(to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()
	if c.onTransition != nil && from != to {
		c.onTransition(from, to)
	}
}

// Run executes the search on train. Cancellation is honoured between trials;
// a running trial always finishes. The first trial reaching the minimum score
// wins ties. If every trial fails the error matches errors.ErrNoValidTrial.
func (c *Controller) Run(ctx context.Context, train dataset.Table) (*Result, error) {
	if s := c.State(); s != StateInit {
		return nil, errors.Newf("controller already ran (state %s)", s)
	}

	history := make([]Trial, 0, c.budget)
	best := -1

	for i := 0; i < c.budget; i++ {
		if err := ctx.Err(); err != nil {
			c.transition(StateFailed)
			return nil, errors.Wrapf(err, "search interrupted before trial %d", i)
		}

		trial := c.runTrial(ctx, i, history)
		if err := ctx.Err(); err != nil && !trial.OK() {
			c.transition(StateFailed)
			return nil, errors.Wrapf(err, "search interrupted during trial %d", i)
		}
		history = append(history, trial)

		if trial.OK() {
			c.sampler.Report(i, trial.Score)
			if best < 0 || trial.Score < history[best].Score {
				best = len(history) - 1
			}
			c.logger.Info("Trial finished",
				log.TrialKey, i,
				log.ScoreKey, trial.Score,
				log.BestScoreKey, history[best].Score,
				log.HyperParamsKey, trial.Config,
				log.DurationMsKey, trial.Duration.Milliseconds(),
			)
		} else {
			c.logger.Warn("Trial failed", trial.Err, log.TrialKey, i)
		}
		if c.onTrial != nil {
			c.onTrial(trial)
		}
	}

	if best < 0 {
		c.transition(StateFailed)
		return nil, errors.Mark(errors.Newf("all %d trials failed", c.budget), errors.ErrNoValidTrial)
	}

	c.transition(StateRefitting)
	winner := history[best]
	c.logger.Info("Refitting best configuration",
		log.TrialKey, winner.Index,
		log.BestScoreKey, winner.Score,
		log.HyperParamsKey, winner.Config,
		log.SamplesKey, train.NumRows(),
	)
	m, err := c.refitter.Refit(ctx, winner.Config, train)
	if err != nil {
		c.transition(StateFailed)
		return nil, errors.Wrap(err, "refit best configuration")
	}

	c.transition(StateDone)
	return &Result{Best: winner, Model: m, History: history}, nil
}

func (c *Controller) runTrial(ctx context.Context, i int, history []Trial) Trial {
	start := time.Now()
	trial := Trial{Index: i, Score: math.NaN(), State: TrialFailed}

	c.transition(StateSampling)
	cfg, err := c.sampler.Suggest(i, history)
	if err != nil {
		trial.Err = errors.NewTrialFailureError(i, -1, err)
		trial.Duration = time.Since(start)
		recordTrial(ctx, trial.Duration, false)
		return trial
	}
	trial.Config = cfg

	c.transition(StateEvaluating)
	tctx, span := startTrialSpan(ctx, i, cfg)
	score, err := c.objective.Evaluate(WithTrialIndex(tctx, i), cfg)
	if err == nil && (math.IsNaN(score) || math.IsInf(score, 0)) {
		err = errors.NewTrialFailureError(i, -1, errors.Newf("objective returned %v", score))
	}
	if err != nil {
		var tErr *errors.TrialFailureError
		if !errors.As(err, &tErr) {
			err = errors.NewTrialFailureError(i, -1, err)
		}
	}
	endSpan(span, err)

	trial.Duration = time.Since(start)
	recordTrial(ctx, trial.Duration, err == nil)
	if err != nil {
		trial.Err = err
		return trial
	}
	trial.Score = score
	trial.State = TrialComplete
	return trial
}
