package nn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Linear is Z = X.W + b with a single weight column.
type Linear struct{}

func (Linear) Name() string { return "linear" }

func (Linear) Width() int { return 1 }

func (Linear) Of(signal, weight mat.Matrix, bias float64) (*mat.VecDense, error) {
	batch, fanIn := signal.Dims()
	rows, cols := weight.Dims()
	if fanIn != rows || cols < 1 {
		return nil, fmt.Errorf("%w: signal %dx%d against weight %dx%d", ErrShapeMismatch, batch, fanIn, rows, cols)
	}

	column := mat.NewVecDense(rows, mat.Col(nil, 0, weight))
	transfer := mat.NewVecDense(batch, nil)
	transfer.MulVec(signal, column)
	for i := 0; i < batch; i++ {
		transfer.SetVec(i, transfer.AtVec(i)+bias)
	}
	return transfer, nil
}

func (Linear) Derivative(ctx *Context, byWeight bool) *mat.Dense {
	if byWeight {
		return mat.DenseCopyOf(ctx.Signal())
	}
	return mat.DenseCopyOf(ctx.Weight())
}
