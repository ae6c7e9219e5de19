// Package tuning runs the hyperparameter search: a Sampler proposes
// configurations, an Objective scores them by cross-validation and the
// Controller keeps the best one and refits it on the whole training split.
package tuning

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/immoeliza/pricetune/pkg/errors"
)

// Kind is the type of a search dimension.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindCategorical
)

// Param is one dimension of a search space.
type Param struct {
	Name    string
	Kind    Kind
	Low     float64
	High    float64
	Log     bool
	Choices []string
}

// IntRange is an integer dimension over [low, high].
func IntRange(name string, low, high int) Param {
	return Param{Name: name, Kind: KindInt, Low: float64(low), High: float64(high)}
}

// FloatRange is a uniform float dimension over [low, high].
func FloatRange(name string, low, high float64) Param {
	return Param{Name: name, Kind: KindFloat, Low: low, High: high}
}

// LogFloatRange is a float dimension sampled uniformly in log space. low must be > 0.
func LogFloatRange(name string, low, high float64) Param {
	return Param{Name: name, Kind: KindFloat, Low: low, High: high, Log: true}
}

// Categorical is a dimension over a fixed set of strings.
func Categorical(name string, choices ...string) Param {
	return Param{Name: name, Kind: KindCategorical, Choices: append([]string(nil), choices...)}
}

func (p Param) validate() error {
	switch p.Kind {
	case KindCategorical:
		if len(p.Choices) == 0 {
			return errors.NewValidationError(p.Name, "categorical dimension needs at least one choice", p.Choices)
		}
	case KindInt, KindFloat:
		if math.IsNaN(p.Low) || math.IsNaN(p.High) || math.IsInf(p.Low, 0) || math.IsInf(p.High, 0) {
			return errors.NewValidationError(p.Name, "bounds must be finite", [2]float64{p.Low, p.High})
		}
		if p.Low > p.High {
			return errors.NewValidationError(p.Name, "low must not exceed high", [2]float64{p.Low, p.High})
		}
		if p.Log && p.Low <= 0 {
			return errors.NewValidationError(p.Name, "log scale needs a positive lower bound", p.Low)
		}
	default:
		return errors.NewValidationError(p.Name, "unknown kind", p.Kind)
	}
	return nil
}

// toInternal maps a value onto the axis the samplers work on (log for Log params).
func (p Param) toInternal(v float64) float64 {
	if p.Log {
		return math.Log(v)
	}
	return v
}

func (p Param) fromInternal(x float64) interface{} {
	if p.Log {
		x = math.Exp(x)
	}
	x = math.Min(math.Max(x, p.Low), p.High)
	if p.Kind == KindInt {
		return int(math.Round(x))
	}
	return x
}

func (p Param) internalBounds() (float64, float64) {
	return p.toInternal(p.Low), p.toInternal(p.High)
}

// sampleUniform draws one value uniformly (in internal space).
func (p Param) sampleUniform(r *rand.Rand) interface{} {
	if p.Kind == KindCategorical {
		return p.Choices[r.IntN(len(p.Choices))]
	}
	if p.Kind == KindInt && !p.Log {
		lo, hi := int(math.Ceil(p.Low)), int(math.Floor(p.High))
		return lo + r.IntN(hi-lo+1)
	}
	lo, hi := p.internalBounds()
	return p.fromInternal(lo + r.Float64()*(hi-lo))
}

// Space is an ordered set of search dimensions.
type Space struct {
	params []Param
}

// NewSpace validates the dimensions and keeps their order.
func NewSpace(params ...Param) (Space, error) {
	seen := make(map[string]struct{}, len(params))
	for _, p := range params {
		if _, dup := seen[p.Name]; dup {
			return Space{}, errors.NewValidationError(p.Name, "duplicate dimension", nil)
		}
		seen[p.Name] = struct{}{}
		if err := p.validate(); err != nil {
			return Space{}, err
		}
	}
	if len(params) == 0 {
		return Space{}, errors.NewValidationError("space", "needs at least one dimension", nil)
	}
	return Space{params: append([]Param(nil), params...)}, nil
}

// Params returns the dimensions in declaration order.
func (s Space) Params() []Param { return append([]Param(nil), s.params...) }

// DefaultSpace is the GBDT search space; maxIterations caps the iteration count.
// Caps below 100 collapse the iterations range to the cap itself.
func DefaultSpace(maxIterations int) Space {
	maxIterations = max(maxIterations, 1)
	s, err := NewSpace(
		IntRange("iterations", min(100, maxIterations), maxIterations),
		IntRange("depth", 4, 10),
		FloatRange("learning_rate", 0.01, 0.3),
		FloatRange("l2_leaf_reg", 1e-2, 10.0),
		FloatRange("random_strength", 1e-2, 10.0),
		FloatRange("bagging_temperature", 0.0, 1.0),
	)
	if err != nil {
		panic(err) // static space
	}
	return s
}

// Config is an immutable name→value hyperparameter assignment.
type Config struct {
	values map[string]interface{}
}

// NewConfig copies values into a Config.
func NewConfig(values map[string]interface{}) Config {
	c := Config{values: make(map[string]interface{}, len(values))}
	for k, v := range values {
		c.values[k] = v
	}
	return c
}

// Params returns a copy of the assignment.
func (c Config) Params() map[string]interface{} {
	out := make(map[string]interface{}, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Names returns the parameter names in sorted order.
func (c Config) Names() []string {
	names := make([]string, 0, len(c.values))
	for k := range c.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Int returns an integer parameter.
func (c Config) Int(name string) (int, bool) {
	v, ok := c.values[name].(int)
	return v, ok
}

// Float returns a numeric parameter as float64.
func (c Config) Float(name string) (float64, bool) {
	switch v := c.values[name].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// String returns a categorical parameter.
func (c Config) String(name string) (string, bool) {
	v, ok := c.values[name].(string)
	return v, ok
}

// Len is the number of parameters.
func (c Config) Len() int { return len(c.values) }

// Format renders "name=value" pairs in name order.
func (c Config) Format() string {
	parts := make([]string, 0, len(c.values))
	for _, k := range c.Names() {
		switch v := c.values[k].(type) {
		case float64:
			parts = append(parts, fmt.Sprintf("%s=%.6g", k, v))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return strings.Join(parts, " ")
}

// MarshalZerologObject adds every parameter to a zerolog event.
func (c Config) MarshalZerologObject(e *zerolog.Event) {
	for _, k := range c.Names() {
		e.Interface(k, c.values[k])
	}
}

// TrialState is the outcome of one trial.
type TrialState string

const (
	TrialComplete TrialState = "complete"
	TrialFailed   TrialState = "failed"
)

// Trial is one evaluated configuration.
type Trial struct {
	Index    int
	Config   Config
	Score    float64 // mean cross-validated RMSE, NaN when failed
	Err      error
	Duration time.Duration
	State    TrialState
}

// OK reports whether the trial produced a score.
func (t Trial) OK() bool { return t.State == TrialComplete }
