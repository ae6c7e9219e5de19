package gbdt

import (
	"context"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/immoeliza/pricetune/core/execution"
	"github.com/immoeliza/pricetune/dataset"
	"github.com/immoeliza/pricetune/metrics"
	"github.com/immoeliza/pricetune/pkg/errors"
)

var testNames = []string{"surface", "bedrooms", "noise"}

// synthetic builds y = 3*surface + 10*bedrooms + small noise.
func synthetic(n int, seed uint64) (*mat.Dense, *mat.VecDense) {
	r := rand.New(rand.NewPCG(seed, seed))
	X := mat.NewDense(n, 3, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		surface := 50 + 150*r.Float64()
		bedrooms := float64(1 + r.IntN(5))
		X.Set(i, 0, surface)
		X.Set(i, 1, bedrooms)
		X.Set(i, 2, r.Float64())
		y.SetVec(i, 3*surface+10*bedrooms+r.NormFloat64())
	}
	return X, y
}

func smallParams() Params {
	p := DefaultParams()
	p.Iterations = 60
	p.Depth = 4
	p.LearningRate = 0.2
	p.Seed = 42
	return p
}

func TestFitLearnsSignal(t *testing.T) {
	X, y := synthetic(300, 1)
	m, err := NewTrainer(smallParams()).Fit(X, y, testNames)
	require.NoError(t, err)
	assert.Equal(t, 60, m.NumTrees())
	assert.Equal(t, -1, m.BestIteration)

	pred, err := m.PredictMatrix(X)
	require.NoError(t, err)
	set, err := metrics.Compute(y, pred)
	require.NoError(t, err)
	assert.Greater(t, set.R2, 0.9)
}

func TestFitDeterministicAcrossModes(t *testing.T) {
	X, y := synthetic(200, 2)

	p := smallParams()
	a, err := NewTrainer(p).Fit(X, y, testNames)
	require.NoError(t, err)
	b, err := NewTrainer(p).Fit(X, y, testNames)
	require.NoError(t, err)

	p.Mode = execution.Accelerated
	c, err := NewTrainer(p).Fit(X, y, testNames)
	require.NoError(t, err)

	pa, _ := a.PredictMatrix(X)
	pb, _ := b.PredictMatrix(X)
	pc, _ := c.PredictMatrix(X)
	assert.True(t, mat.Equal(pa, pb))
	assert.True(t, mat.Equal(pa, pc))
}

func TestFitDeterministicAcrossModesWideTable(t *testing.T) {
	base, y := synthetic(150, 4)
	r := rand.New(rand.NewPCG(9, 9))
	X := mat.NewDense(150, minParallelFeatures+4, nil)
	names := make([]string, minParallelFeatures+4)
	for j := range names {
		names[j] = "f" + string(rune('a'+j))
	}
	for i := 0; i < 150; i++ {
		for j := range names {
			if j < 3 {
				X.Set(i, j, base.At(i, j))
			} else {
				X.Set(i, j, r.Float64())
			}
		}
	}

	p := smallParams()
	a, err := NewTrainer(p).Fit(X, y, names)
	require.NoError(t, err)
	p.Mode = execution.Accelerated
	b, err := NewTrainer(p).Fit(X, y, names)
	require.NoError(t, err)

	pa, _ := a.PredictMatrix(X)
	pb, _ := b.PredictMatrix(X)
	assert.True(t, mat.Equal(pa, pb))
}

func TestSeedChangesModel(t *testing.T) {
	X, y := synthetic(200, 3)
	p := smallParams()
	a, err := NewTrainer(p).Fit(X, y, testNames)
	require.NoError(t, err)
	p.Seed = 43
	b, err := NewTrainer(p).Fit(X, y, testNames)
	require.NoError(t, err)

	pa, _ := a.PredictMatrix(X)
	pb, _ := b.PredictMatrix(X)
	assert.False(t, mat.Equal(pa, pb))
}

func TestFitWithValidationKeepsBestIteration(t *testing.T) {
	X, y := synthetic(300, 4)
	Xv, yv := synthetic(100, 5)

	p := smallParams()
	p.Iterations = 200
	p.EarlyStoppingRounds = 10

	m, err := NewTrainer(p).FitWithValidation(X, y, Xv, yv, testNames)
	require.NoError(t, err)
	require.GreaterOrEqual(t, m.BestIteration, 0)
	assert.Equal(t, m.BestIteration+1, m.NumTrees())

	pred, err := m.PredictMatrix(Xv)
	require.NoError(t, err)
	rmse, err := metrics.RMSE(yv, pred)
	require.NoError(t, err)
	assert.InDelta(t, m.BestScore, rmse, 1e-9)
}

func TestEarlyStoppingStopsOnDivergingValidation(t *testing.T) {
	X, y := synthetic(200, 4)
	Xv, yv := synthetic(50, 5)
	yv.ScaleVec(-1, yv)

	p := smallParams()
	p.Iterations = 400
	p.EarlyStoppingRounds = 5

	m, err := NewTrainer(p).FitWithValidation(X, y, Xv, yv, testNames)
	require.NoError(t, err)
	assert.Less(t, m.NumTrees(), 400)
	assert.Equal(t, m.BestIteration+1, m.NumTrees())
}

func TestEarlyStoppingTracker(t *testing.T) {
	es := NewEarlyStopping(2)
	assert.False(t, es.Update(0, 5))
	assert.False(t, es.Update(1, 4))
	assert.False(t, es.Update(2, 4))
	assert.True(t, es.Update(3, 4.5))
	assert.Equal(t, 1, es.BestIteration)

	off := NewEarlyStopping(0)
	for i := 0; i < 10; i++ {
		assert.False(t, off.Update(i, 1))
	}
	assert.Equal(t, 0, off.BestIteration)
}

func TestFitRejectsBadInput(t *testing.T) {
	X, y := synthetic(20, 6)

	_, err := NewTrainer(smallParams()).Fit(X, mat.NewVecDense(19, nil), testNames)
	var dErr *errors.DimensionError
	assert.True(t, errors.As(err, &dErr))

	_, err = NewTrainer(smallParams()).Fit(X, y, []string{"only_one"})
	assert.True(t, errors.As(err, &dErr))

	bad := mat.VecDenseCopyOf(y)
	bad.SetVec(3, math.NaN())
	_, err = NewTrainer(smallParams()).Fit(X, bad, testNames)
	var vErr *errors.ValidationError
	assert.True(t, errors.As(err, &vErr))

	p := smallParams()
	p.Depth = 0
	_, err = NewTrainer(p).Fit(X, y, testNames)
	assert.True(t, errors.As(err, &vErr))

	_, err = NewTrainer(smallParams()).FitWithValidation(X, y, nil, nil, testNames)
	assert.Error(t, err)
}

func TestConstantFeaturesPredictMean(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, 1, 1, 1})
	y := mat.NewVecDense(4, []float64{1, 2, 3, 6})
	p := smallParams()
	p.BaggingTemperature = 0
	m, err := NewTrainer(p).Fit(X, y, []string{"c"})
	require.NoError(t, err)
	for _, tree := range m.Trees {
		assert.Equal(t, 0, tree.Depth())
	}
	pred, err := m.PredictMatrix(X)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, pred.AtVec(0), 1e-9)
}

func TestPredictEnforcesSchema(t *testing.T) {
	X, y := synthetic(50, 7)
	m, err := NewTrainer(smallParams()).Fit(X, y, testNames)
	require.NoError(t, err)

	cols := [][]float64{make([]float64, 2), make([]float64, 2), make([]float64, 2)}

	reordered, err := dataset.New([]string{"bedrooms", "surface", "noise"}, cols, "", nil)
	require.NoError(t, err)
	_, err = m.Predict(reordered)
	var sErr *errors.SchemaMismatchError
	require.True(t, errors.As(err, &sErr))
	assert.Equal(t, testNames, sErr.Expected)

	ok, err := dataset.New(testNames, cols, "", nil)
	require.NoError(t, err)
	pred, err := m.Predict(ok)
	require.NoError(t, err)
	assert.Equal(t, 2, pred.Len())

	_, err = m.PredictMatrix(mat.NewDense(2, 2, nil))
	var dErr *errors.DimensionError
	assert.True(t, errors.As(err, &dErr))
}

func TestParamsFromMap(t *testing.T) {
	p, err := ParamsFromMap(DefaultParams(), map[string]interface{}{
		"iterations":          120.0,
		"depth":               5,
		"learning_rate":       0.05,
		"bagging_temperature": 0,
		"task_type":           "accelerated",
	})
	require.NoError(t, err)
	assert.Equal(t, 120, p.Iterations)
	assert.Equal(t, 5, p.Depth)
	assert.Equal(t, 0.0, p.BaggingTemperature)
	assert.Equal(t, execution.Accelerated, p.Mode)

	_, err = ParamsFromMap(DefaultParams(), map[string]interface{}{"num_leaves": 31})
	assert.Error(t, err)
	_, err = ParamsFromMap(DefaultParams(), map[string]interface{}{"depth": 4.5})
	assert.Error(t, err)
	_, err = ParamsFromMap(DefaultParams(), map[string]interface{}{"learning_rate": -1.0})
	assert.Error(t, err)
}

func TestBorders(t *testing.T) {
	assert.Equal(t, []float64{1.5, 2.5}, findBorders([]float64{3, 1, 2, math.NaN(), 2}, 10))
	assert.Nil(t, findBorders([]float64{4, 4, math.NaN()}, 10))

	many := make([]float64, 1000)
	for i := range many {
		many[i] = float64(i)
	}
	b := findBorders(many, 16)
	assert.LessOrEqual(t, len(b), 16)
	assert.IsIncreasing(t, b)

	borders := []float64{1.5, 2.5}
	assert.Equal(t, uint16(0), binOf(borders, 1))
	assert.Equal(t, uint16(0), binOf(borders, 1.5))
	assert.Equal(t, uint16(1), binOf(borders, 2))
	assert.Equal(t, uint16(2), binOf(borders, 9))
	assert.Equal(t, uint16(0), binOf(borders, math.NaN()))
}

func TestArtifactsRoundTrip(t *testing.T) {
	X, y := synthetic(80, 8)
	m, err := NewTrainer(smallParams()).Fit(X, y, testNames)
	require.NoError(t, err)

	dir := t.TempDir()
	stamp := time.Date(2025, 1, 2, 3, 4, 0, 0, time.UTC)
	a, err := SaveArtifacts(m, dir, "GBDT CV (All Features)", stamp, true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "gbdt_cv_all_features_20250102_0304_TEST.gob"), a.ModelPath)
	assert.Equal(t, filepath.Join(dir, "gbdt_cv_all_features_20250102_0304_TEST.json"), a.FeaturesPath)

	loaded, err := LoadArtifacts(a.ModelPath)
	require.NoError(t, err)
	assert.Equal(t, testNames, loaded.FeatureNames)

	want, _ := m.PredictMatrix(X)
	got, _ := loaded.PredictMatrix(X)
	assert.True(t, mat.Equal(want, got))

	require.NoError(t, os.WriteFile(a.FeaturesPath, []byte(`["surface","bedrooms"]`), 0o644))
	_, err = LoadArtifacts(a.ModelPath)
	var sErr *errors.SchemaMismatchError
	assert.True(t, errors.As(err, &sErr))
}

func TestRegressorRequiresFit(t *testing.T) {
	r := NewRegressor(smallParams(), testNames)
	_, err := r.PredictMatrix(mat.NewDense(1, 3, nil))
	var nf *errors.NotFittedError
	require.True(t, errors.As(err, &nf))

	X, y := synthetic(40, 9)
	require.NoError(t, r.Fit(X, y))
	assert.True(t, r.IsFitted())
	pred, err := r.PredictMatrix(X)
	require.NoError(t, err)
	assert.Equal(t, 40, pred.Len())
	assert.Equal(t, 60, r.GetParams()["iterations"])
}

func TestMicroFit(t *testing.T) {
	assert.NoError(t, MicroFit(context.Background(), execution.Accelerated))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, MicroFit(ctx, execution.Accelerated))
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "gbdt_tpe_all_features_test", Slug("GBDT TPE (All Features) [TEST]"))
	assert.Equal(t, "model", Slug("  ***  "))
}
