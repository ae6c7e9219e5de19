package gbdt

import (
	"context"
	"math"
	"math/rand/v2"
	"strconv"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/immoeliza/pricetune/core/parallel"
	"github.com/immoeliza/pricetune/metrics"
	"github.com/immoeliza/pricetune/pkg/errors"
	"github.com/immoeliza/pricetune/pkg/log"
)

// Trainer fits a Model with the L2 objective.
type Trainer struct {
	params Params
	logger log.Logger
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithLogger sets the logger used for training progress.
func WithLogger(l log.Logger) Option {
	return func(t *Trainer) { t.logger = l }
}

// NewTrainer creates a new trainer
func NewTrainer(params Params, opts ...Option) *Trainer {
	t := &Trainer{params: params}
	for _, o := range opts {
		o(t)
	}
	if t.logger == nil {
		t.logger = log.GetLoggerWithName("gbdt.trainer")
	}
	return t
}

// Fit trains for exactly Params.Iterations rounds. names labels the columns of X;
// nil names become f0, f1, ...
func (t *Trainer) Fit(X mat.Matrix, y mat.Vector, names []string) (*Model, error) {
	return t.train(X, y, nil, nil, names)
}

// FitWithValidation trains with early stopping on the validation RMSE and keeps
// only the trees up to the best validation iteration.
func (t *Trainer) FitWithValidation(X mat.Matrix, y mat.Vector, Xv mat.Matrix, yv mat.Vector, names []string) (*Model, error) {
	if Xv == nil || yv == nil {
		return nil, errors.NewValidationError("validation", "validation set is required", nil)
	}
	return t.train(X, y, Xv, yv, names)
}

// minParallelFeatures is the feature count at or below which split scoring
// stays on the calling goroutine even in accelerated mode.
const minParallelFeatures = 4

// trainState is the per-fit scratch space.
type trainState struct {
	params  Params
	bins    [][]uint16
	nBins   []int
	grads   []float64
	hess    []float64
	leafOf  []int
	workers int
}

func (t *Trainer) train(X mat.Matrix, y mat.Vector, Xv mat.Matrix, yv mat.Vector, names []string) (*Model, error) {
	p := t.params
	if err := p.Validate(); err != nil {
		return nil, err
	}

	cols, yv0, names, err := extract("Fit", X, y, names)
	if err != nil {
		return nil, err
	}
	n := len(yv0)

	var validCols [][]float64
	var validY []float64
	if Xv != nil {
		validCols, validY, _, err = extract("FitWithValidation", Xv, yv, names)
		if err != nil {
			return nil, err
		}
	}

	borders, bins := quantize(cols, p.MaxBin)
	st := &trainState{
		params:  p,
		bins:    bins,
		nBins:   make([]int, len(cols)),
		grads:   make([]float64, n),
		hess:    make([]float64, n),
		leafOf:  make([]int, n),
		workers: p.Mode.Workers(),
	}
	for f := range borders {
		st.nBins[f] = len(borders[f]) + 1
	}

	bias := stat.Mean(yv0, nil)
	pred := make([]float64, n)
	for i := range pred {
		pred[i] = bias
	}
	var validPred []float64
	if validY != nil {
		validPred = make([]float64, len(validY))
		for i := range validPred {
			validPred[i] = bias
		}
	}

	src := rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15)
	bootstrap := distuv.Exponential{Rate: 1, Src: src}
	noise := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	es := NewEarlyStopping(p.EarlyStoppingRounds)
	rawGrad := make([]float64, n)
	trees := make([]ObliviousTree, 0, p.Iterations)

	for iter := 0; iter < p.Iterations; iter++ {
		for i := range rawGrad {
			rawGrad[i] = pred[i] - yv0[i]
		}
		if err := errors.CheckNumericalStability("gbdt.gradients", rawGrad, iter); err != nil {
			return nil, err
		}

		for i := range rawGrad {
			w := 1.0
			if p.BaggingTemperature > 0 {
				w = math.Pow(bootstrap.Rand(), p.BaggingTemperature)
			}
			st.grads[i] = w * rawGrad[i]
			st.hess[i] = w
		}

		noiseScale := 0.0
		if p.RandomStrength > 0 && n > 1 {
			noiseScale = p.RandomStrength * stat.PopStdDev(rawGrad, nil) * (1 - float64(iter)/float64(p.Iterations))
		}

		tree := st.grow(borders, noiseScale, noise.Rand)
		for i, l := range st.leafOf {
			pred[i] += tree.Leaves[l]
		}
		trees = append(trees, tree)

		if validY != nil {
			for j := range validPred {
				validPred[j] += tree.predict(func(f int) float64 { return validCols[f][j] })
			}
			rmse, err := metrics.RMSE(mat.NewVecDense(len(validY), validY), mat.NewVecDense(len(validPred), validPred))
			if err != nil {
				return nil, err
			}
			if err := errors.CheckScalar("gbdt.validation_rmse", rmse, iter); err != nil {
				return nil, err
			}
			if es.Update(iter, rmse) {
				t.logger.Debug("Early stopping",
					log.IterationKey, iter,
					"best_iteration", es.BestIteration,
					"best_rmse", es.BestScore,
				)
				break
			}
		}

		if t.logger.Enabled(context.Background(), log.LevelDebug) && iter%100 == 0 {
			t.logger.Debug("Training progress", log.IterationKey, iter, log.ExecModeKey, string(p.Mode))
		}
	}

	m := &Model{
		FeatureNames:  names,
		Bias:          bias,
		Params:        p,
		BestIteration: -1,
		BestScore:     math.NaN(),
	}
	if validY != nil && es.BestIteration >= 0 {
		trees = trees[:es.BestIteration+1]
		m.BestIteration = es.BestIteration
		m.BestScore = es.BestScore
	}
	m.Trees = trees
	return m, nil
}

// grow builds one oblivious tree level by level and leaves each row's final
// leaf in st.leafOf.
func (st *trainState) grow(borders [][]float64, noiseScale float64, gauss func() float64) ObliviousTree {
	p := st.params
	for i := range st.leafOf {
		st.leafOf[i] = 0
	}

	var tree ObliviousTree
	for d := 0; d < p.Depth; d++ {
		nLeaves := 1 << d
		scores := make([][]float64, len(st.bins))
		score := func(start, end int) {
			for f := start; f < end; f++ {
				scores[f] = st.scoreFeature(f, nLeaves)
			}
		}
		parallel.ParallelizeWithThreshold(len(st.bins), minParallelFeatures, st.workers, score)

		// Noise is drawn in (feature, border) order after scoring so the
		// result does not depend on how scoring was scheduled.
		bestF, bestK, best := -1, -1, math.Inf(-1)
		for f, fs := range scores {
			for k, s := range fs {
				if math.IsInf(s, -1) {
					continue
				}
				if noiseScale > 0 {
					s += noiseScale * gauss()
				}
				if s > best {
					bestF, bestK, best = f, k, s
				}
			}
		}
		if bestF < 0 {
			break
		}

		tree.Features = append(tree.Features, bestF)
		tree.Thresholds = append(tree.Thresholds, borders[bestF][bestK])
		bit := 1 << d
		for i, b := range st.bins[bestF] {
			if int(b) > bestK {
				st.leafOf[i] |= bit
			}
		}
	}

	nLeaves := 1 << len(tree.Features)
	sumG := make([]float64, nLeaves)
	sumH := make([]float64, nLeaves)
	for i, l := range st.leafOf {
		sumG[l] += st.grads[i]
		sumH[l] += st.hess[i]
	}
	tree.Leaves = make([]float64, nLeaves)
	for l := range tree.Leaves {
		if den := sumH[l] + p.L2LeafReg; den > 0 {
			tree.Leaves[l] = -p.LearningRate * sumG[l] / den
		}
	}
	return tree
}

// scoreFeature returns, for every border k of feature f, the split score
// Σ_leaf GL²/(HL+λ) + GR²/(HR+λ). Candidates leaving fewer than MinDataInLeaf
// rows on either side score -Inf.
func (st *trainState) scoreFeature(f, nLeaves int) []float64 {
	nb := st.nBins[f]
	if nb < 2 {
		return nil
	}
	lambda := st.params.L2LeafReg
	minData := st.params.MinDataInLeaf
	if minData < 1 {
		minData = 1
	}

	hg := make([]float64, nLeaves*nb)
	hh := make([]float64, nLeaves*nb)
	hc := make([]int, nb)
	bins := st.bins[f]
	for i, b := range bins {
		idx := st.leafOf[i]*nb + int(b)
		hg[idx] += st.grads[i]
		hh[idx] += st.hess[i]
		hc[b]++
	}

	totG := make([]float64, nLeaves)
	totH := make([]float64, nLeaves)
	for l := 0; l < nLeaves; l++ {
		for b := 0; b < nb; b++ {
			totG[l] += hg[l*nb+b]
			totH[l] += hh[l*nb+b]
		}
	}

	term := func(g, h float64) float64 {
		if h+lambda <= 0 {
			return 0
		}
		return g * g / (h + lambda)
	}

	out := make([]float64, nb-1)
	leftG := make([]float64, nLeaves)
	leftH := make([]float64, nLeaves)
	leftCount := 0
	for k := 0; k < nb-1; k++ {
		leftCount += hc[k]
		s := 0.0
		for l := 0; l < nLeaves; l++ {
			leftG[l] += hg[l*nb+k]
			leftH[l] += hh[l*nb+k]
			s += term(leftG[l], leftH[l]) + term(totG[l]-leftG[l], totH[l]-leftH[l])
		}
		if leftCount < minData || len(bins)-leftCount < minData {
			out[k] = math.Inf(-1)
			continue
		}
		out[k] = s
	}
	return out
}

// extract copies X column-major and checks it against y and names.
func extract(op string, X mat.Matrix, y mat.Vector, names []string) ([][]float64, []float64, []string, error) {
	if X == nil || y == nil {
		return nil, nil, nil, errors.WithStack(errors.ErrEmptyData)
	}
	rows, nCols := X.Dims()
	if rows == 0 || nCols == 0 {
		return nil, nil, nil, errors.WithStack(errors.ErrEmptyData)
	}
	if y.Len() != rows {
		return nil, nil, nil, errors.NewDimensionError(op, rows, y.Len(), 0)
	}
	if names == nil {
		names = make([]string, nCols)
		for j := range names {
			names[j] = "f" + strconv.Itoa(j)
		}
	} else if len(names) != nCols {
		return nil, nil, nil, errors.NewDimensionError(op, len(names), nCols, 1)
	}

	cols := make([][]float64, nCols)
	for j := range cols {
		c := make([]float64, rows)
		for i := range c {
			c[i] = X.At(i, j)
		}
		cols[j] = c
	}
	target := make([]float64, rows)
	for i := range target {
		v := y.AtVec(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, nil, errors.NewValidationError("target", "must be finite", v)
		}
		target[i] = v
	}
	return cols, target, append([]string(nil), names...), nil
}
