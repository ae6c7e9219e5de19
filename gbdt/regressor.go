package gbdt

import (
	"gonum.org/v1/gonum/mat"

	"github.com/immoeliza/pricetune/core/model"
	"github.com/immoeliza/pricetune/dataset"
	"github.com/immoeliza/pricetune/pkg/errors"
	"github.com/immoeliza/pricetune/pkg/log"
)

// Regressor adapts Trainer and Model to the core/model estimator interfaces.
type Regressor struct {
	model.BaseEstimator

	Params       Params
	FeatureNames []string
	Model        *Model

	logger log.Logger
}

var _ model.Regressor = (*Regressor)(nil)

// NewRegressor creates an unfitted regressor. names may be nil.
func NewRegressor(params Params, names []string) *Regressor {
	return &Regressor{
		Params:       params,
		FeatureNames: names,
		logger:       log.GetLoggerWithName("gbdt.regressor"),
	}
}

// Fit trains on all rows for Params.Iterations rounds.
func (r *Regressor) Fit(X mat.Matrix, y mat.Vector) error {
	r.Reset()
	m, err := NewTrainer(r.Params, WithLogger(r.logger)).Fit(X, y, r.FeatureNames)
	if err != nil {
		return err
	}
	r.Model = m
	r.FeatureNames = m.FeatureNames
	r.SetFitted()

	rows, cols := X.Dims()
	r.logger.Info("Model fitted",
		log.ModelNameKey, "GBDT",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
	)
	return nil
}

// FitTable trains on a table, binding the model to its feature names.
func (r *Regressor) FitTable(t dataset.Table) error {
	r.FeatureNames = t.Features()
	y := t.Target()
	if y == nil {
		return errors.NewValidationError("target", "table has no target rows", t.TargetName())
	}
	return r.Fit(t.Matrix(), y)
}

// PredictMatrix implements model.Predictor.
func (r *Regressor) PredictMatrix(X mat.Matrix) (*mat.VecDense, error) {
	if err := r.RequireFitted("GBDT", "Predict"); err != nil {
		return nil, err
	}
	return r.Model.PredictMatrix(X)
}

// Predict scores a table, enforcing the fit-time schema.
func (r *Regressor) Predict(t dataset.Table) (*mat.VecDense, error) {
	if err := r.RequireFitted("GBDT", "Predict"); err != nil {
		return nil, err
	}
	return r.Model.Predict(t)
}

// GetParams implements model.ParameterGetter.
func (r *Regressor) GetParams() map[string]interface{} {
	return r.Params.ToMap()
}
