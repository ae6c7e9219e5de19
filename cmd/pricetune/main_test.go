package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/immoeliza/pricetune/gbdt"
	"github.com/immoeliza/pricetune/pkg/errors"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--log-level", "error", "--log-format", "json"))
	err := cmd.Execute()
	return out.String(), err
}

func TestDiagnoseCommand(t *testing.T) {
	out, err := run(t, "diagnose", "1000", "1500", "0.9", "0.6")
	require.NoError(t, err)
	assert.Contains(t, out, "status:  overfitting")
	assert.Contains(t, out, "strong overfitting")

	_, err = run(t, "diagnose", "1000", "abc", "0.9", "0.6")
	var vErr *errors.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "mae_test", vErr.ParamName)

	_, err = run(t, "diagnose", "1000", "1500", "1.2", "0.6")
	require.True(t, errors.As(err, &vErr))
}

func TestLeaderboardWithoutRuns(t *testing.T) {
	out, err := run(t, "leaderboard", "--ledger", filepath.Join(t.TempDir(), "log.csv"))
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded yet.")
}

func TestProbeStandard(t *testing.T) {
	out, err := run(t, "probe", "--mode", "standard")
	require.NoError(t, err)
	assert.Equal(t, "standard: available (1 workers)\n", out)

	_, err = run(t, "probe", "--mode", "gpu")
	assert.Error(t, err)
}

func TestPredictEnforcesSchema(t *testing.T) {
	dir := t.TempDir()
	X := mat.NewDense(6, 2, []float64{50, 1, 60, 2, 70, 2, 80, 3, 90, 3, 100, 4})
	y := mat.NewVecDense(6, []float64{100, 120, 140, 160, 180, 200})
	p := gbdt.DefaultParams()
	p.Iterations = 10
	p.Depth = 2
	m, err := gbdt.NewTrainer(p).Fit(X, y, []string{"habitableSurface", "bedroomCount"})
	require.NoError(t, err)
	art, err := gbdt.SaveArtifacts(m, dir, "GBDT", time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), false)
	require.NoError(t, err)

	good := filepath.Join(dir, "good.csv")
	require.NoError(t, os.WriteFile(good, []byte("habitableSurface,bedroomCount,price\n55,1,110\n95,4,190\n"), 0o644))
	out, err := run(t, "predict", "--model", art.ModelPath, "--data", good, "--target", "price")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "prediction", lines[0])

	swapped := filepath.Join(dir, "swapped.csv")
	require.NoError(t, os.WriteFile(swapped, []byte("bedroomCount,habitableSurface\n1,55\n"), 0o644))
	_, err = run(t, "predict", "--model", art.ModelPath, "--data", swapped)
	var sErr *errors.SchemaMismatchError
	require.True(t, errors.As(err, &sErr))
	assert.Equal(t, "prediction", sErr.Phase)
}
