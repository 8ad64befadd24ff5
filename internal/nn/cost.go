package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	logFloor         = 1e-15
	probabilityClamp = 1e-7
)

// MeanSquared is (a - y)^2 per sample; its derivative drops the factor 2.
type MeanSquared struct{}

func (MeanSquared) Name() string { return "mean_squared" }

func (MeanSquared) Of(ctx *Context, target mat.Matrix) (*mat.VecDense, error) {
	predicted, expected, err := costOperands(ctx, target)
	if err != nil {
		return nil, err
	}
	loss := mat.NewVecDense(predicted.Len(), nil)
	for i := 0; i < predicted.Len(); i++ {
		d := predicted.AtVec(i) - expected.AtVec(i)
		loss.SetVec(i, d*d)
	}
	return loss, nil
}

func (MeanSquared) Derivative(ctx *Context, target mat.Matrix) (*mat.VecDense, error) {
	predicted, expected, err := costOperands(ctx, target)
	if err != nil {
		return nil, err
	}
	prime := mat.NewVecDense(predicted.Len(), nil)
	prime.SubVec(predicted, expected)
	return prime, nil
}

// CrossEntropy is -sum(y*log(a)) over the layer, which makes the loss of a
// sample identical for every output cell.
type CrossEntropy struct{}

func (CrossEntropy) Name() string { return "cross_entropy" }

func (CrossEntropy) Of(ctx *Context, target mat.Matrix) (*mat.VecDense, error) {
	predicted, _, err := costOperands(ctx, target)
	if err != nil {
		return nil, err
	}
	if _, cols := target.Dims(); cols < ctx.Dimension() {
		return nil, fmt.Errorf("%w: target has %d columns for a layer of %d", ErrShapeMismatch, cols, ctx.Dimension())
	}

	loss := mat.NewVecDense(predicted.Len(), nil)
	for position := 0; position < ctx.Dimension(); position++ {
		activation := ctx.LayerActivation(position)
		if activation == nil || activation.Len() != predicted.Len() {
			return nil, fmt.Errorf("%w: sibling %d activation is stale", ErrShapeMismatch, position)
		}
		for sample := 0; sample < predicted.Len(); sample++ {
			y := target.At(sample, position)
			loss.SetVec(sample, loss.AtVec(sample)-y*math.Log(activation.AtVec(sample)+logFloor))
		}
	}
	return loss, nil
}

func (CrossEntropy) Derivative(ctx *Context, target mat.Matrix) (*mat.VecDense, error) {
	predicted, expected, err := costOperands(ctx, target)
	if err != nil {
		return nil, err
	}
	prime := mat.NewVecDense(predicted.Len(), nil)
	for i := 0; i < predicted.Len(); i++ {
		p := math.Min(math.Max(predicted.AtVec(i), probabilityClamp), 1-probabilityClamp)
		y := expected.AtVec(i)
		prime.SetVec(i, -y/p+(1-y)/(1-p))
	}
	return prime, nil
}

func costOperands(ctx *Context, target mat.Matrix) (mat.Vector, *mat.VecDense, error) {
	predicted := ctx.Activation()
	if predicted == nil {
		return nil, nil, fmt.Errorf("%w: cost without activation", ErrBrokenCell)
	}
	rows, cols := target.Dims()
	if rows != predicted.Len() {
		return nil, nil, fmt.Errorf("%w: target has %d rows for a batch of %d", ErrShapeMismatch, rows, predicted.Len())
	}
	if ctx.Position() >= cols {
		return nil, nil, fmt.Errorf("%w: target has %d columns, cell position is %d", ErrShapeMismatch, cols, ctx.Position())
	}
	return predicted, mat.NewVecDense(rows, mat.Col(nil, ctx.Position(), target)), nil
}
