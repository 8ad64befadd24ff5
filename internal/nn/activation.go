package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	leakyReLUSlope = 0.01
	eluAlpha       = 1.0
)

// elementwise is an activation applied to each transfer value on its own.
// The derivative receives both the transfer value and its activation.
type elementwise struct {
	name       string
	fn         func(z float64) float64
	derivative func(z, a float64) float64
}

func (e elementwise) Name() string { return e.name }

func (e elementwise) Of(ctx *Context) (*mat.VecDense, error) {
	transfer := ctx.Transfer()
	if transfer == nil {
		return nil, fmt.Errorf("%w: %s activation without transfer", ErrBrokenCell, e.name)
	}
	out := mat.NewVecDense(transfer.Len(), nil)
	for i := 0; i < transfer.Len(); i++ {
		out.SetVec(i, e.fn(transfer.AtVec(i)))
	}
	return out, nil
}

func (e elementwise) Derivative(ctx *Context) (*mat.VecDense, error) {
	transfer := ctx.Transfer()
	if transfer == nil {
		return nil, fmt.Errorf("%w: %s derivative without transfer", ErrBrokenCell, e.name)
	}
	out := mat.NewVecDense(transfer.Len(), nil)
	for i := 0; i < transfer.Len(); i++ {
		z := transfer.AtVec(i)
		out.SetVec(i, e.derivative(z, e.fn(z)))
	}
	return out, nil
}

func builtInActivations() []Activation {
	return []Activation{
		elementwise{
			name:       "sigmoid",
			fn:         sigmoid,
			derivative: func(_, a float64) float64 { return a * (1 - a) },
		},
		elementwise{
			name:       "tanh",
			fn:         math.Tanh,
			derivative: func(_, a float64) float64 { return 1 - a*a },
		},
		elementwise{
			name: "relu",
			fn: func(z float64) float64 {
				if z > 0 {
					return z
				}
				return 0
			},
			derivative: func(z, _ float64) float64 {
				if z > 0 {
					return 1
				}
				return 0
			},
		},
		elementwise{
			name: "leaky_relu",
			fn: func(z float64) float64 {
				if z > 0 {
					return z
				}
				return leakyReLUSlope * z
			},
			derivative: func(z, _ float64) float64 {
				if z > 0 {
					return 1
				}
				return leakyReLUSlope
			},
		},
		elementwise{
			name: "elu",
			fn: func(z float64) float64 {
				if z > 0 {
					return z
				}
				return eluAlpha * math.Expm1(z)
			},
			derivative: func(z, a float64) float64 {
				if z > 0 {
					return 1
				}
				return a + eluAlpha
			},
		},
		elementwise{
			name:       "soft_plus",
			fn:         softPlus,
			derivative: func(z, _ float64) float64 { return sigmoid(z) },
		},
		elementwise{
			name: "soft_sign",
			fn:   func(z float64) float64 { return z / (1 + math.Abs(z)) },
			derivative: func(z, _ float64) float64 {
				d := 1 + math.Abs(z)
				return 1 / (d * d)
			},
		},
		elementwise{
			name: "heaviside_step",
			fn: func(z float64) float64 {
				if z > 0 {
					return 1
				}
				return 0
			},
			derivative: func(_, _ float64) float64 { return 0 },
		},
		elementwise{
			name:       "transparent",
			fn:         func(z float64) float64 { return z },
			derivative: func(_, _ float64) float64 { return 1 },
		},
	}
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func softPlus(z float64) float64 {
	if z > 30 {
		return z
	}
	return math.Log1p(math.Exp(z))
}

// SoftMax normalises the exponentiated transfer of a cell by the sum over
// every cell of its layer.
type SoftMax struct{}

func (SoftMax) Name() string { return "soft_max" }

func (SoftMax) Of(ctx *Context) (*mat.VecDense, error) {
	transfer := ctx.Transfer()
	if transfer == nil || ctx.Dimension() == 0 {
		return nil, fmt.Errorf("%w: soft max without layer context", ErrBrokenCell)
	}
	out := mat.NewVecDense(transfer.Len(), nil)
	for sample := 0; sample < transfer.Len(); sample++ {
		out.SetVec(sample, softMaxAt(ctx, transfer, sample))
	}
	return out, nil
}

func (SoftMax) Derivative(ctx *Context) (*mat.VecDense, error) {
	transfer := ctx.Transfer()
	if transfer == nil || ctx.Dimension() == 0 {
		return nil, fmt.Errorf("%w: soft max without layer context", ErrBrokenCell)
	}
	out := mat.NewVecDense(transfer.Len(), nil)
	for sample := 0; sample < transfer.Len(); sample++ {
		s := softMaxAt(ctx, transfer, sample)
		out.SetVec(sample, s*(1-s))
	}
	return out, nil
}

// softMaxAt skips siblings whose transfer belongs to another batch; they have
// not fired this round yet and the value is recomputed once they have.
func softMaxAt(ctx *Context, own mat.Vector, sample int) float64 {
	peak := own.AtVec(sample)
	for i := 0; i < ctx.Dimension(); i++ {
		sibling := ctx.LayerTransfer(i)
		if sibling == nil || sibling.Len() != own.Len() {
			continue
		}
		peak = math.Max(peak, sibling.AtVec(sample))
	}

	total := 0.0
	for i := 0; i < ctx.Dimension(); i++ {
		sibling := ctx.LayerTransfer(i)
		if sibling == nil || sibling.Len() != own.Len() {
			continue
		}
		total += math.Exp(sibling.AtVec(sample) - peak)
	}
	return math.Exp(own.AtVec(sample)-peak) / total
}
