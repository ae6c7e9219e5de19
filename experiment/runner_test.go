package experiment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/immoeliza/pricetune/config"
	"github.com/immoeliza/pricetune/core/execution"
	"github.com/immoeliza/pricetune/gbdt"
	"github.com/immoeliza/pricetune/ledger"
	"github.com/immoeliza/pricetune/pkg/errors"
	"github.com/immoeliza/pricetune/pkg/log"
	"github.com/immoeliza/pricetune/tuning"
)

// writeHousing writes a small labelled CSV with one unlabelled row and one
// column that is not selected.
func writeHousing(t *testing.T, dir, name string, n int) string {
	t.Helper()
	r := rand.New(rand.NewPCG(1, 1))
	var b strings.Builder
	b.WriteString("habitableSurface,bedroomCount,postCode,price\n")
	for i := 0; i < n; i++ {
		surface := 40 + 160*r.Float64()
		rooms := 1 + r.IntN(5)
		price := 2000*surface + 15000*float64(rooms) + 5000*r.NormFloat64()
		fmt.Fprintf(&b, "%.2f,%d,%d,%.2f\n", surface, rooms, 1000+r.IntN(9000), price)
	}
	b.WriteString("80,2,1000,\n")
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	root := t.TempDir()
	dataDir := filepath.Join(root, "ml_ready")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	writeHousing(t, dataDir, "immo_20250101_1200.csv", 40)
	writeHousing(t, dataDir, "immo_20250301_0900.csv", 120)

	cfg := config.Default()
	cfg.Data.Dir = dataDir
	cfg.Data.Features = []string{"habitableSurface", "bedroomCount"}
	cfg.Search.Trials = 2
	cfg.Search.Folds = 2
	cfg.Search.EarlyStoppingRounds = 5
	cfg.Search.MaxIterations = 30
	cfg.Execution.Mode = string(execution.Accelerated)
	cfg.Output.ModelsDir = filepath.Join(root, "models")
	cfg.Output.LedgerPath = filepath.Join(root, "logs", "metrics_train_test_log.csv")
	cfg.Output.PlotPath = filepath.Join(root, "plots", "history.png")
	return cfg
}

func smallSpace(t *testing.T) tuning.Space {
	t.Helper()
	s, err := tuning.NewSpace(
		tuning.IntRange("iterations", 20, 30),
		tuning.IntRange("depth", 2, 3),
		tuning.FloatRange("learning_rate", 0.1, 0.3),
	)
	require.NoError(t, err)
	return s
}

func TestRunnerEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	logger, _ := log.NewTestLogger(log.LevelDebug)
	stamp := time.Date(2025, 3, 2, 10, 30, 0, 0, time.Local)
	singleCPU := &execution.Prober{NumCPU: func() int { return 1 }, Check: gbdt.MicroFit}

	r, err := NewRunner(cfg,
		WithLogger(logger),
		WithProber(singleCPU),
		WithClock(func() time.Time { return stamp }),
		WithSpace(smallSpace(t)),
	)
	require.NoError(t, err)

	out, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cfg.Data.Dir, "immo_20250301_0900.csv"), out.DataFile)
	assert.Equal(t, 120, out.Rows)
	assert.Equal(t, []string{"habitableSurface", "bedroomCount"}, out.Features)

	assert.False(t, out.Capability.Available)
	assert.Equal(t, execution.Standard, out.Capability.Mode)
	assert.True(t, logger.ContainsMessage("Execution mode unavailable, falling back"))

	require.NotNil(t, out.Search)
	assert.Len(t, out.Search.History, 2)
	assert.Greater(t, out.Train.R2, 0.5)

	assert.Equal(t, "GBDT CV (All Features) [TEST]", out.Row.Model)
	assert.Equal(t, "GBDT TPE (All Features) [TEST]", out.Row.Experiment)
	assert.True(t, out.Row.TestMode)
	assert.Equal(t, "standard", out.Row.ExecutionMode)
	assert.Equal(t, 2, out.Row.NFeatures)
	assert.Equal(t, string(out.Diagnosis.Status), out.Row.Interpretation)

	assert.Equal(t, filepath.Join(cfg.Output.ModelsDir, "gbdt_cv_all_features_20250302_1030_TEST.gob"), out.Artifacts.ModelPath)
	m, err := gbdt.LoadArtifacts(out.Artifacts.ModelPath)
	require.NoError(t, err)
	assert.Equal(t, out.Features, m.FeatureNames)

	_, err = os.Stat(cfg.Output.PlotPath)
	assert.NoError(t, err)

	require.Len(t, out.Leaderboard, 1)
	assert.True(t, out.Leaderboard[0].Best)

	again, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, again.Leaderboard, 2)
	assert.Equal(t, out.Row.RankingScore, again.Row.RankingScore)

	rows, err := ledger.NewStore(cfg.Output.LedgerPath, cfg.Data.Dir, ledger.WithLogger(logger)).Rows()
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestRunnerFullModeNames(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = config.ModeFull
	r, err := NewRunner(cfg)
	require.NoError(t, err)

	model, experiment := r.Names()
	assert.Equal(t, "GBDT CV (All Features)", model)
	assert.Equal(t, "GBDT TPE (All Features)", experiment)
	assert.Equal(t, 0, r.Config().Data.RowLimit)
}

func TestRunnerMissingFeature(t *testing.T) {
	cfg := testConfig(t)
	cfg.Data.Features = []string{"habitableSurface", "gardenSurface"}
	logger, _ := log.NewTestLogger(log.LevelDebug)

	r, err := NewRunner(cfg, WithLogger(logger), WithSpace(smallSpace(t)))
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	var sErr *errors.SchemaMismatchError
	require.True(t, errors.As(err, &sErr))
	assert.Equal(t, []string{"gardenSurface"}, sErr.Missing)

	_, statErr := os.Stat(cfg.Output.LedgerPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunnerNoDataFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Data.Dir = t.TempDir()
	logger, _ := log.NewTestLogger(log.LevelDebug)

	r, err := NewRunner(cfg, WithLogger(logger))
	require.NoError(t, err)
	_, err = r.Run(context.Background())
	var nf *errors.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestNewRunnerRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Search.Sampler = "annealing"
	_, err := NewRunner(cfg)
	assert.Error(t, err)
}
