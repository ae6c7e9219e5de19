// Package metrics は回帰モデルの評価指標（MAE、RMSE、R²）を提供する
package metrics

import (
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/immoeliza/pricetune/pkg/errors"
)

// Set は1つのデータ分割に対する評価指標の組
type Set struct {
	MAE  float64
	RMSE float64
	R2   float64
}

// MarshalZerologObject はzerologのイベントに指標を追加する
func (s Set) MarshalZerologObject(e *zerolog.Event) {
	e.Float64("mae", s.MAE).Float64("rmse", s.RMSE).Float64("r2", s.R2)
}

// Compute はMAE、RMSE、R²をまとめて計算する
func Compute(yTrue, yPred *mat.VecDense) (Set, error) {
	mae, err := MAE(yTrue, yPred)
	if err != nil {
		return Set{}, err
	}
	rmse, err := RMSE(yTrue, yPred)
	if err != nil {
		return Set{}, err
	}
	r2, err := R2Score(yTrue, yPred)
	if err != nil {
		return Set{}, err
	}
	return Set{MAE: mae, RMSE: rmse, R2: r2}, nil
}

// ComputeSlices はスライス入力版のCompute
func ComputeSlices(yTrue, yPred []float64) (Set, error) {
	if err := checkLengths("Compute", len(yTrue), len(yPred)); err != nil {
		return Set{}, err
	}
	return Compute(mat.NewVecDense(len(yTrue), yTrue), mat.NewVecDense(len(yPred), yPred))
}

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := validate("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	// MSE = (1/n) * Σ(yTrue - yPred)²
	var sum float64
	for i := 0; i < n; i++ {
		diff := yTrue.AtVec(i) - yPred.AtVec(i)
		sum += diff * diff
	}
	return sum / float64(n), nil
}

// RMSE は平方根平均二乗誤差（Root Mean Squared Error）を計算する
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差（Mean Absolute Error）を計算する
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := validate("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(yTrue.AtVec(i) - yPred.AtVec(i))
	}
	return sum / float64(n), nil
}

// R2Score は決定係数（R²）を計算する
//
// yTrueの分散がゼロの場合は完全一致なら1.0、それ以外は0.0を返す。
func R2Score(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := validate("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	yMean := mat.Sum(yTrue) / float64(n)

	// 全変動（TSS）と残差変動（RSS）
	var tss, rss float64
	for i := 0; i < n; i++ {
		t := yTrue.AtVec(i)
		p := yPred.AtVec(i)
		tss += (t - yMean) * (t - yMean)
		rss += (t - p) * (t - p)
	}

	if tss == 0 {
		if rss == 0 {
			return 1, nil
		}
		return 0, nil
	}
	return 1 - rss/tss, nil
}

func validate(op string, yTrue, yPred *mat.VecDense) (int, error) {
	nTrue, nPred := vecLen(yTrue), vecLen(yPred)
	if err := checkLengths(op, nTrue, nPred); err != nil {
		return 0, err
	}
	return nTrue, nil
}

func checkLengths(op string, nTrue, nPred int) error {
	if nTrue != nPred {
		return errors.NewInvalidInputError(op, nTrue, nPred)
	}
	if nTrue == 0 {
		return errors.NewEmptyInputError(op)
	}
	return nil
}

func vecLen(v *mat.VecDense) int {
	if v == nil || v.IsEmpty() {
		return 0
	}
	return v.Len()
}
