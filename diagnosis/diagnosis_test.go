package diagnosis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/immoeliza/pricetune/pkg/errors"
)

func TestDiagnoseScenarios(t *testing.T) {
	tests := []struct {
		name                               string
		maeTrain, maeTest, r2Train, r2Test float64
		wantStatus                         Status
		wantTier                           Tier
	}{
		{"small gaps generalize well", 10000, 10500, 0.80, 0.78, StatusGood, TierExcellent},
		{"large r2 drop overfits", 8000, 15000, 0.85, 0.60, StatusOverfitting, TierStrongOverfitting},
		{"mae blow-up overfits despite r2", 1000, 1300, 0.80, 0.79, StatusOverfitting, TierExcellent},
		{"test better than train with low r2 underfits", 5000, 5000, 0.40, 0.50, StatusUnderfitting, TierPossibleUnderfitting},
		{"low r2 with small gaps is unstable", 5000, 5100, 0.50, 0.48, StatusUnstable, TierExcellent},
		{"moderate tier", 5000, 5100, 0.80, 0.70, StatusGood, TierModerateOverfitting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Diagnose(tt.maeTrain, tt.maeTest, tt.r2Train, tt.r2Test, DefaultThresholds())
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantTier, got.Tier)
		})
	}
}

func TestDiagnoseGaps(t *testing.T) {
	got, err := Diagnose(10000, 10500, 0.80, 0.78, DefaultThresholds())
	require.NoError(t, err)
	assert.InDelta(t, 0.05, got.MAEGap, 1e-12)
	assert.InDelta(t, 0.02, got.R2Gap, 1e-12)
	assert.Equal(t, "good generalization", got.Interpretation())

	// mae_train of zero divides by epsilon instead
	got, err = Diagnose(0, 1, 1, 1, DefaultThresholds())
	require.NoError(t, err)
	assert.InDelta(t, 1e6, got.MAEGap, 1e-6)
	assert.Equal(t, StatusOverfitting, got.Status)
}

func TestDiagnoseR2DropBoundary(t *testing.T) {
	th := DefaultThresholds()

	// exactly 0.15 does not trip the r2 rule; equal MAE and low r2_test leave it unstable
	atBoundary, err := Diagnose(100, 100, 0.15, 0, th)
	require.NoError(t, err)
	assert.Equal(t, 0.15, atBoundary.R2Gap)
	assert.Equal(t, StatusUnstable, atBoundary.Status)

	above, err := Diagnose(100, 100, 0.1500001, 0, th)
	require.NoError(t, err)
	assert.Equal(t, StatusOverfitting, above.Status)
}

func TestDiagnoseIdempotent(t *testing.T) {
	a, err := Diagnose(8000, 15000, 0.85, 0.60, DefaultThresholds())
	require.NoError(t, err)
	b, err := Diagnose(8000, 15000, 0.85, 0.60, DefaultThresholds())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDiagnoseValidation(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		name      string
		args      [4]float64
		th        Thresholds
		wantParam string
	}{
		{"negative mae_train", [4]float64{-1, 1, 0.5, 0.5}, th, "mae_train"},
		{"negative mae_test", [4]float64{1, -1, 0.5, 0.5}, th, "mae_test"},
		{"r2 above one", [4]float64{1, 1, 1.01, 0.5}, th, "r2_train"},
		{"NaN r2_test", [4]float64{1, 1, 0.5, math.NaN()}, th, "r2_test"},
		{"infinite r2_test", [4]float64{1, 1, 0.5, math.Inf(-1)}, th, "r2_test"},
		{"NaN threshold", [4]float64{1, 1, 0.5, 0.5}, Thresholds{MAEThreshold: math.NaN()}, "mae_threshold"},
		{"NaN r2_good", [4]float64{1, 1, 0.5, 0.5}, Thresholds{MAEThreshold: 0.2, R2Good: math.NaN()}, "r2_good"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Diagnose(tt.args[0], tt.args[1], tt.args[2], tt.args[3], tt.th)
			var vErr *errors.ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.wantParam, vErr.ParamName)
		})
	}
}

func TestNegativeR2IsAccepted(t *testing.T) {
	got, err := Diagnose(100, 300, -0.2, -1.5, DefaultThresholds())
	require.NoError(t, err)
	assert.Equal(t, StatusOverfitting, got.Status)
}

func TestUnusedThresholdsDoNotChangeOutcome(t *testing.T) {
	base, err := Diagnose(5000, 5100, 0.80, 0.70, DefaultThresholds())
	require.NoError(t, err)
	other, err := Diagnose(5000, 5100, 0.80, 0.70, Thresholds{MAEThreshold: 0.2, R2Good: 0.99, R2Poor: 0.9})
	require.NoError(t, err)
	assert.Equal(t, base.Status, other.Status)
	assert.Equal(t, base.Tier, other.Tier)
}
