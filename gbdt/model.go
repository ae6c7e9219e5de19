package gbdt

import (
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/immoeliza/pricetune/dataset"
	"github.com/immoeliza/pricetune/pkg/errors"
)

// Model is a fitted ensemble bound to the ordered feature names it was trained on.
type Model struct {
	FeatureNames []string
	Bias         float64
	Trees        []ObliviousTree
	Params       Params

	// BestIteration is the 0-based iteration kept by early stopping, -1 without validation.
	BestIteration int
	BestScore     float64
}

// NumTrees returns the ensemble size.
func (m *Model) NumTrees() int { return len(m.Trees) }

// Predict scores a table whose features match FeatureNames exactly, in order.
func (m *Model) Predict(t dataset.Table) (*mat.VecDense, error) {
	got := t.Features()
	if !slices.Equal(got, m.FeatureNames) {
		return nil, errors.NewSchemaMismatchError("prediction", m.FeatureNames, got)
	}
	if t.NumRows() == 0 {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}
	return m.PredictMatrix(t.Matrix())
}

// PredictMatrix scores the rows of X. Columns are taken to be in FeatureNames order.
func (m *Model) PredictMatrix(X mat.Matrix) (*mat.VecDense, error) {
	rows, cols := X.Dims()
	if cols != len(m.FeatureNames) {
		return nil, errors.NewDimensionError("Predict", len(m.FeatureNames), cols, 1)
	}
	if rows == 0 {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}

	out := make([]float64, rows)
	for i := range out {
		at := func(f int) float64 { return X.At(i, f) }
		v := m.Bias
		for _, tree := range m.Trees {
			v += tree.predict(at)
		}
		out[i] = v
	}
	return mat.NewVecDense(rows, out), nil
}

func (m *Model) validate() error {
	if len(m.FeatureNames) == 0 {
		return errors.NewValidationError("feature_names", "model has no features", nil)
	}
	for i, t := range m.Trees {
		if !t.wellFormed(len(m.FeatureNames)) {
			return errors.NewValidationError("trees", "malformed tree", i)
		}
	}
	return nil
}
