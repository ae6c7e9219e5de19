package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能な回帰モデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X mat.Matrix, y mat.Vector) error
}

// Predictor は予測可能な回帰モデルのインターフェース
type Predictor interface {
	// PredictMatrix は入力データの各行に対する予測値を返す
	PredictMatrix(X mat.Matrix) (*mat.VecDense, error)
}

// Regressor は学習と予測の両方を提供する
type Regressor interface {
	Fitter
	Predictor
	IsFitted() bool
}

// ParameterGetter はハイパーパラメータを公開するモデルのインターフェース
type ParameterGetter interface {
	// GetParams はモデルのハイパーパラメータを返す
	GetParams() map[string]interface{}
}
