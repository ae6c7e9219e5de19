package gbdt

import (
	"fmt"
	"math"

	"github.com/immoeliza/pricetune/core/execution"
	"github.com/immoeliza/pricetune/pkg/errors"
)

// Params holds the boosting hyperparameters.
type Params struct {
	Iterations          int     `json:"iterations"`
	Depth               int     `json:"depth"`
	LearningRate        float64 `json:"learning_rate"`
	L2LeafReg           float64 `json:"l2_leaf_reg"`
	RandomStrength      float64 `json:"random_strength"`
	BaggingTemperature  float64 `json:"bagging_temperature"`
	MaxBin              int     `json:"border_count"`
	MinDataInLeaf       int     `json:"min_data_in_leaf"`
	EarlyStoppingRounds int     `json:"early_stopping_rounds"`
	Seed                uint64  `json:"random_seed"`

	Mode execution.Mode `json:"-"`
}

// DefaultParams mirrors the usual CatBoost regression defaults.
func DefaultParams() Params {
	return Params{
		Iterations:         1000,
		Depth:              6,
		LearningRate:       0.03,
		L2LeafReg:          3,
		RandomStrength:     1,
		BaggingTemperature: 1,
		MaxBin:             254,
		MinDataInLeaf:      1,
		Seed:               0,
		Mode:               execution.Standard,
	}
}

// Validate reports the first out-of-range parameter.
func (p Params) Validate() error {
	switch {
	case p.Iterations < 1:
		return errors.NewValidationError("iterations", "must be >= 1", p.Iterations)
	case p.Depth < 1 || p.Depth > 16:
		return errors.NewValidationError("depth", "must be in [1, 16]", p.Depth)
	case !(p.LearningRate > 0) || math.IsInf(p.LearningRate, 0):
		return errors.NewValidationError("learning_rate", "must be a positive finite number", p.LearningRate)
	case p.L2LeafReg < 0 || math.IsNaN(p.L2LeafReg) || math.IsInf(p.L2LeafReg, 0):
		return errors.NewValidationError("l2_leaf_reg", "must be a non-negative finite number", p.L2LeafReg)
	case p.RandomStrength < 0 || math.IsNaN(p.RandomStrength) || math.IsInf(p.RandomStrength, 0):
		return errors.NewValidationError("random_strength", "must be a non-negative finite number", p.RandomStrength)
	case p.BaggingTemperature < 0 || math.IsNaN(p.BaggingTemperature) || math.IsInf(p.BaggingTemperature, 0):
		return errors.NewValidationError("bagging_temperature", "must be a non-negative finite number", p.BaggingTemperature)
	case p.MaxBin < 1 || p.MaxBin > math.MaxUint16-1:
		return errors.NewValidationError("border_count", "must be in [1, 65534]", p.MaxBin)
	case p.MinDataInLeaf < 0:
		return errors.NewValidationError("min_data_in_leaf", "must be >= 0", p.MinDataInLeaf)
	case p.EarlyStoppingRounds < 0:
		return errors.NewValidationError("early_stopping_rounds", "must be >= 0", p.EarlyStoppingRounds)
	}
	return nil
}

// ToMap returns the parameters under their CatBoost-style names.
func (p Params) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"iterations":            p.Iterations,
		"depth":                 p.Depth,
		"learning_rate":         p.LearningRate,
		"l2_leaf_reg":           p.L2LeafReg,
		"random_strength":       p.RandomStrength,
		"bagging_temperature":   p.BaggingTemperature,
		"border_count":          p.MaxBin,
		"min_data_in_leaf":      p.MinDataInLeaf,
		"early_stopping_rounds": p.EarlyStoppingRounds,
		"random_seed":           p.Seed,
		"task_type":             string(p.Mode),
	}
}

// ParamsFromMap overlays a name→value mapping onto base. Unknown names are rejected.
// Integers may arrive as int, int64 or whole float64 values.
func ParamsFromMap(base Params, m map[string]interface{}) (Params, error) {
	p := base
	for k, v := range m {
		var err error
		switch k {
		case "iterations":
			p.Iterations, err = toInt(k, v)
		case "depth":
			p.Depth, err = toInt(k, v)
		case "learning_rate":
			p.LearningRate, err = toFloat(k, v)
		case "l2_leaf_reg":
			p.L2LeafReg, err = toFloat(k, v)
		case "random_strength":
			p.RandomStrength, err = toFloat(k, v)
		case "bagging_temperature":
			p.BaggingTemperature, err = toFloat(k, v)
		case "border_count", "max_bin":
			p.MaxBin, err = toInt(k, v)
		case "min_data_in_leaf":
			p.MinDataInLeaf, err = toInt(k, v)
		case "early_stopping_rounds":
			p.EarlyStoppingRounds, err = toInt(k, v)
		case "random_seed":
			var s int
			s, err = toInt(k, v)
			p.Seed = uint64(s)
		case "task_type":
			s, ok := v.(string)
			if !ok {
				return p, errors.NewValidationError(k, "must be a string", v)
			}
			p.Mode, err = execution.ParseMode(s)
		default:
			return p, errors.NewValidationError(k, "unknown parameter", v)
		}
		if err != nil {
			return p, err
		}
	}
	return p, p.Validate()
}

func toInt(name string, v interface{}) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case uint64:
		return int(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, errors.NewValidationError(name, "must be an integer", x)
		}
		return int(x), nil
	}
	return 0, errors.NewValidationError(name, fmt.Sprintf("unsupported type %T", v), v)
}

func toFloat(name string, v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	}
	return 0, errors.NewValidationError(name, fmt.Sprintf("unsupported type %T", v), v)
}
