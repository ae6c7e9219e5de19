package gbdt

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/immoeliza/pricetune/core/execution"
	"github.com/immoeliza/pricetune/pkg/errors"
)

// MicroFit trains a tiny model in mode and checks it matches the same model
// trained in the standard mode. It satisfies execution.Check.
func MicroFit(ctx context.Context, mode execution.Mode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	const rows = 64
	X := mat.NewDense(rows, 3, nil)
	y := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		a, b, c := float64(i%8), float64(i%5), float64(i)/rows
		X.Set(i, 0, a)
		X.Set(i, 1, b)
		X.Set(i, 2, c)
		y.SetVec(i, 3*a-2*b+c)
	}

	p := DefaultParams()
	p.Iterations = 5
	p.Depth = 3
	p.Seed = 7

	p.Mode = execution.Standard
	ref, err := NewTrainer(p).Fit(X, y, nil)
	if err != nil {
		return err
	}
	p.Mode = mode
	got, err := NewTrainer(p).Fit(X, y, nil)
	if err != nil {
		return err
	}

	want, _ := ref.PredictMatrix(X)
	have, _ := got.PredictMatrix(X)
	if !mat.Equal(want, have) {
		return errors.Newf("%s mode produced a different model", mode)
	}
	return nil
}
