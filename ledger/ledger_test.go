package ledger

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/immoeliza/pricetune/metrics"
	"github.com/immoeliza/pricetune/pkg/errors"
	"github.com/immoeliza/pricetune/pkg/log"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "ml_ready")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	for _, name := range []string{"immo_20250101_1200.csv", "immo_20250301_0900.csv", "notes.csv"} {
		require.NoError(t, os.WriteFile(filepath.Join(dataDir, name), []byte("a,price\n1,2\n"), 0o644))
	}

	logger, _ := log.NewTestLogger(log.LevelDebug)
	clock := time.Date(2025, 3, 2, 10, 30, 0, 0, time.Local)
	s := NewStore(filepath.Join(dir, "logs", "metrics_train_test_log.csv"), dataDir,
		WithLogger(logger),
		WithClock(func() time.Time { return clock }),
	)
	return s, dataDir
}

func entry(name string, maeTest, rmseTest, r2Test float64) Entry {
	return Entry{
		Model:         name,
		Experiment:    name + " exp",
		Train:         metrics.Set{MAE: maeTest * 0.8, RMSE: rmseTest * 0.8, R2: r2Test + 0.02},
		Test:          metrics.Set{MAE: maeTest, RMSE: rmseTest, R2: r2Test},
		NFeatures:     12,
		ExecutionMode: "standard",
	}
}

func TestRankingScore(t *testing.T) {
	assert.InDelta(t, 2*0.8-0.1-0.2, RankingScore(0.1, 0.2, 0.8, DefaultWeights()), 1e-12)
	assert.InDelta(t, 0.8, RankingScore(0.1, 0.2, 0.8, Weights{R2: 1}), 1e-12)
}

func TestLatestDataFile(t *testing.T) {
	_, dataDir := newTestStore(t)

	got, err := LatestDataFile(dataDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dataDir, "immo_20250301_0900.csv"), got)

	_, err = LatestDataFile(t.TempDir())
	var nf *errors.NotFoundError
	assert.True(t, errors.As(err, &nf))

	_, err = LatestDataFile(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, errors.As(err, &nf))
}

func TestLogAppendsAndReturnsRow(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	row, err := s.Log(ctx, entry("GBDT", 0.1, 0.2, 0.8))
	require.NoError(t, err)

	assert.Equal(t, "immo_20250301_0900.csv", row.DataFile)
	assert.NotEmpty(t, row.DataFileTimestamp)
	assert.InDelta(t, 1.3, row.RankingScore, 1e-12)
	assert.InDelta(t, 0.02, row.R2Gap, 1e-12)
	assert.Equal(t, "excellent generalization", row.R2GapDiagnostic)
	assert.NotEmpty(t, row.Interpretation)
	assert.Len(t, row.RunID, 36)

	second, err := s.Log(ctx, entry("GBDT v2", 0.05, 0.1, 0.9))
	require.NoError(t, err)
	assert.NotEqual(t, row.RunID, second.RunID)

	rows, err := s.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, row, rows[0])
	assert.Equal(t, second, rows[1])

	raw, err := os.ReadFile(s.Path)
	require.NoError(t, err)
	header := strings.SplitN(string(raw), "\n", 2)[0]
	assert.Equal(t, strings.Join(Columns, ","), strings.ReplaceAll(header, `"interpretation (r2,mae_gap)"`, "interpretation (r2,mae_gap)"))
}

func TestLogRejectsInvalidMetricsWithoutWriting(t *testing.T) {
	s, _ := newTestStore(t)
	bad := entry("GBDT", 0.1, 0.2, 0.8)
	bad.Train.MAE = -1

	_, err := s.Log(context.Background(), bad)
	var vErr *errors.ValidationError
	require.True(t, errors.As(err, &vErr))

	bad = entry("GBDT", 0.1, math.NaN(), 0.8)
	_, err = s.Log(context.Background(), bad)
	require.True(t, errors.As(err, &vErr))

	_, statErr := os.Stat(s.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestLogWithoutSourceData(t *testing.T) {
	s, _ := newTestStore(t)
	s.DataDir = t.TempDir()

	_, err := s.Log(context.Background(), entry("GBDT", 0.1, 0.2, 0.8))
	var nf *errors.NotFoundError
	assert.True(t, errors.As(err, &nf))

	e := entry("GBDT", 0.1, 0.2, 0.8)
	e.DataFile = "/nonexistent/immo_20240101_0000.csv"
	row, err := s.Log(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, "immo_20240101_0000.csv", row.DataFile)
	assert.Empty(t, row.DataFileTimestamp)
}

func TestLegacyLedgerIsExtended(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path), 0o755))
	legacy := "timestamp,model,experiment,mae_train,rmse_train,r2_train,mae_test,rmse_test,r2_test,r2_gap,r2_gap_diagnostic,n_features,data_file,data_file_timestamp,test_mode,note\n" +
		"2024-06-01 09:00:00,CatBoost,old,1,2,0.9,1.5,2.5,0.85,0.05,Good generalization,41.0,immo_20240601_0800.csv,,True,kept\n"
	require.NoError(t, os.WriteFile(s.Path, []byte(legacy), 0o644))

	_, err := s.Log(context.Background(), entry("GBDT", 0.1, 0.2, 0.8))
	require.NoError(t, err)

	rows, err := s.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	old := rows[0]
	assert.Equal(t, "CatBoost", old.Model)
	assert.Equal(t, 41, old.NFeatures)
	assert.True(t, old.TestMode)
	assert.False(t, old.HasRankingScore())
	assert.Equal(t, map[string]string{"note": "kept"}, old.Extra)

	board, err := s.Leaderboard(Options{SortByRanking: true})
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "GBDT", board[0].Model)
	assert.Equal(t, "CatBoost", board[1].Model)
}

func TestLeaderboardOrdering(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for _, e := range []Entry{
		entry("a", 0.3, 0.4, 0.7),
		entry("b", 0.1, 0.2, 0.9),
		entry("c", 0.2, 0.3, 0.8),
		entry("d", 0.1, 0.2, 0.9),
	} {
		_, err := s.Log(ctx, e)
		require.NoError(t, err)
	}

	board, err := s.Leaderboard(Options{SortByRanking: true})
	require.NoError(t, err)
	require.Len(t, board, 4)

	var models []string
	for i, st := range board {
		models = append(models, st.Model)
		assert.Equal(t, i+1, st.Rank)
		assert.Equal(t, i == 0, st.Best)
		if i > 0 {
			assert.GreaterOrEqual(t, board[i-1].RankingScore, st.RankingScore)
		}
	}
	assert.Equal(t, []string{"b", "d", "c", "a"}, models)

	top, err := s.Leaderboard(Options{SortByRanking: true, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, top, 2)

	recent, err := s.Leaderboard(Options{})
	require.NoError(t, err)
	assert.Equal(t, "d", recent[0].Model)
	assert.True(t, recent[0].Best)
	assert.Equal(t, "a", recent[3].Model)
}

func TestRankWithoutRankingColumn(t *testing.T) {
	rows := []Row{{Model: "old", RankingScore: math.NaN()}, {Model: "new", RankingScore: math.NaN()}}
	board := Rank(rows, false, Options{SortByRanking: true})
	assert.Equal(t, "new", board[0].Model)
	assert.Equal(t, "old", board[1].Model)
}

func TestConcurrentLogKeepsEveryRow(t *testing.T) {
	s, _ := newTestStore(t)
	const writers = 8

	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Log(context.Background(), entry("GBDT", 0.1, 0.2, 0.8))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	rows, err := s.Rows()
	require.NoError(t, err)
	require.Len(t, rows, writers)
	ids := make(map[string]struct{})
	for _, r := range rows {
		ids[r.RunID] = struct{}{}
	}
	assert.Len(t, ids, writers)
}

func TestRenderFormatsForDisplayOnly(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Log(context.Background(), entry("GBDT", 41300, 52000, 0.8))
	require.NoError(t, err)

	board, err := s.Leaderboard(Options{SortByRanking: true})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, board))
	out := buf.String()
	assert.Contains(t, out, "Training Summary")
	assert.Contains(t, out, "41.3 k€")
	assert.Contains(t, out, BestMarker)
	assert.NotContains(t, out, ColDataFile)
	assert.NotContains(t, out, ColExperiment)

	rows, err := s.Rows()
	require.NoError(t, err)
	assert.Equal(t, 41300.0, rows[0].MAETest)

	buf.Reset()
	require.NoError(t, Render(&buf, nil))
	assert.Contains(t, buf.String(), "No runs recorded yet.")
}

func TestFormatKEuro(t *testing.T) {
	assert.Equal(t, "123.5 k€", FormatKEuro(123456))
	assert.Equal(t, "0.0 k€", FormatKEuro(0))
	assert.Equal(t, "", FormatKEuro(math.NaN()))
}
