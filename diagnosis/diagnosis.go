// Package diagnosis classifies how well a regression model generalizes from
// its train and test metrics.
//
// The classification is rule based and deterministic: the same six numbers
// always give the same Result.
package diagnosis

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/immoeliza/pricetune/pkg/errors"
)

// Status is the coarse generalization verdict.
type Status string

const (
	StatusGood         Status = "good generalization"
	StatusOverfitting  Status = "overfitting"
	StatusUnderfitting Status = "underfitting"
	StatusUnstable     Status = "unstable"
)

// Tier is the fine-grained label derived from the R² gap alone.
type Tier string

const (
	TierPossibleUnderfitting Tier = "possible underfitting"
	TierExcellent            Tier = "excellent generalization"
	TierGood                 Tier = "good generalization"
	TierModerateOverfitting  Tier = "moderate overfitting"
	TierStrongOverfitting    Tier = "strong overfitting"
)

const (
	r2DropThreshold = 0.15
	r2MinReasonable = 0.60
	r2RiseTolerance = 0.05
	epsilon         = 1e-6
)

// Thresholds tune the classifier.
//
// R2Good and R2Poor are validated and carried into the Result but no rule
// consults them; the decision uses MAEThreshold and fixed internal R² bounds.
type Thresholds struct {
	MAEThreshold float64 `yaml:"mae_threshold"`
	R2Good       float64 `yaml:"r2_good"`
	R2Poor       float64 `yaml:"r2_poor"`
}

// DefaultThresholds returns {MAEThreshold: 0.2, R2Good: 0.75, R2Poor: 0.3}.
func DefaultThresholds() Thresholds {
	return Thresholds{MAEThreshold: 0.2, R2Good: 0.75, R2Poor: 0.3}
}

// Result is the outcome of Diagnose together with its inputs.
type Result struct {
	Status     Status
	Tier       Tier
	MAEGap     float64
	R2Gap      float64
	MAETrain   float64
	MAETest    float64
	R2Train    float64
	R2Test     float64
	Thresholds Thresholds
}

// Interpretation is the short label stored in the ledger, e.g. "overfitting".
func (r Result) Interpretation() string { return string(r.Status) }

// MarshalZerologObject adds the diagnosis to a zerolog event.
func (r Result) MarshalZerologObject(e *zerolog.Event) {
	e.Str("status", string(r.Status)).
		Str("tier", string(r.Tier)).
		Float64("mae_gap", r.MAEGap).
		Float64("r2_gap", r.R2Gap).
		Float64("mae_train", r.MAETrain).
		Float64("mae_test", r.MAETest).
		Float64("r2_train", r.R2Train).
		Float64("r2_test", r.R2Test).
		Float64("mae_threshold", r.Thresholds.MAEThreshold)
}

// Diagnose classifies fit quality. Inputs are validated before any rule runs.
func Diagnose(maeTrain, maeTest, r2Train, r2Test float64, th Thresholds) (Result, error) {
	if err := validate(maeTrain, maeTest, r2Train, r2Test, th); err != nil {
		return Result{}, err
	}

	maeGap := math.Abs(maeTest-maeTrain) / math.Max(maeTrain, epsilon)
	r2Gap := r2Train - r2Test

	return Result{
		Status:     status(maeGap, r2Gap, maeTrain, maeTest, r2Test, th.MAEThreshold),
		Tier:       TierFor(r2Gap),
		MAEGap:     maeGap,
		R2Gap:      r2Gap,
		MAETrain:   maeTrain,
		MAETest:    maeTest,
		R2Train:    r2Train,
		R2Test:     r2Test,
		Thresholds: th,
	}, nil
}

// TierFor maps an R² gap to its fine-grained tier.
func TierFor(r2Gap float64) Tier {
	switch {
	case r2Gap < 0:
		return TierPossibleUnderfitting
	case r2Gap < 0.05:
		return TierExcellent
	case r2Gap < 0.08:
		return TierGood
	case r2Gap < 0.12:
		return TierModerateOverfitting
	default:
		return TierStrongOverfitting
	}
}

// status applies the rules in priority order; the first match wins.
func status(maeGap, r2Gap, maeTrain, maeTest, r2Test, maeThreshold float64) Status {
	switch {
	case r2Gap > r2DropThreshold || (maeGap > maeThreshold && maeTest > maeTrain):
		return StatusOverfitting
	case r2Gap < -r2RiseTolerance && r2Test < r2MinReasonable:
		return StatusUnderfitting
	case r2Test >= r2MinReasonable && maeGap <= maeThreshold:
		return StatusGood
	default:
		return StatusUnstable
	}
}

func validate(maeTrain, maeTest, r2Train, r2Test float64, th Thresholds) error {
	inputs := []struct {
		name string
		v    float64
	}{
		{"mae_train", maeTrain},
		{"mae_test", maeTest},
		{"r2_train", r2Train},
		{"r2_test", r2Test},
		{"mae_threshold", th.MAEThreshold},
		{"r2_good", th.R2Good},
		{"r2_poor", th.R2Poor},
	}
	for _, in := range inputs {
		if math.IsNaN(in.v) || math.IsInf(in.v, 0) {
			return errors.NewValidationError(in.name, "must be a finite number", in.v)
		}
	}
	if maeTrain < 0 {
		return errors.NewValidationError("mae_train", "must be non-negative", maeTrain)
	}
	if maeTest < 0 {
		return errors.NewValidationError("mae_test", "must be non-negative", maeTest)
	}
	if r2Train > 1 {
		return errors.NewValidationError("r2_train", "must not exceed 1", r2Train)
	}
	if r2Test > 1 {
		return errors.NewValidationError("r2_test", "must not exceed 1", r2Test)
	}
	if th.MAEThreshold < 0 {
		return errors.NewValidationError("mae_threshold", "must be non-negative", th.MAEThreshold)
	}
	return nil
}
