package nn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"cellnet/internal/model"
)

// Transfer combines a cell's signal with its weights. Of receives the signal
// as batch x fan-in and the weight as fan-in x Width.
type Transfer interface {
	Name() string
	Width() int
	Of(signal, weight mat.Matrix, bias float64) (*mat.VecDense, error)
	// Derivative returns dZ/dW (the signal) when byWeight is set and dZ/dX
	// (the weight) otherwise.
	Derivative(ctx *Context, byWeight bool) *mat.Dense
}

// Aggregation reduces a per-sample vector to a scalar.
type Aggregation interface {
	Name() string
	Of(v mat.Vector) float64
}

// Activation maps the transfer vector of a cell to its activation. It reads
// sibling state through the context for layer-wide functions.
type Activation interface {
	Name() string
	Of(ctx *Context) (*mat.VecDense, error)
	Derivative(ctx *Context) (*mat.VecDense, error)
}

// Cost compares the activation of an output cell with the matching target
// column. Of returns the per-sample loss.
type Cost interface {
	Name() string
	Of(ctx *Context, target mat.Matrix) (*mat.VecDense, error)
	Derivative(ctx *Context, target mat.Matrix) (*mat.VecDense, error)
}

// Optimizer applies a gradient to the weight and bias of one cell.
type Optimizer interface {
	Name() string
	Update(slot *OptimizerSlot, weight *mat.Dense, bias *float64, grad Gradient, learningRate float64)
}

// Kernel is the function set bound to a cell at creation.
type Kernel struct {
	Transfer    Transfer
	Aggregation Aggregation
	Activation  Activation
	Cost        Cost
	Optimizer   Optimizer
}

func (k Kernel) validate() error {
	switch {
	case k.Transfer == nil:
		return fmt.Errorf("%w: kernel transfer is required", ErrMalformedTopology)
	case k.Aggregation == nil:
		return fmt.Errorf("%w: kernel aggregation is required", ErrMalformedTopology)
	case k.Activation == nil:
		return fmt.Errorf("%w: kernel activation is required", ErrMalformedTopology)
	case k.Cost == nil:
		return fmt.Errorf("%w: kernel cost is required", ErrMalformedTopology)
	case k.Optimizer == nil:
		return fmt.Errorf("%w: kernel optimizer is required", ErrMalformedTopology)
	}
	if k.Transfer.Width() <= 0 {
		return fmt.Errorf("%w: transfer %s width must be > 0", ErrMalformedTopology, k.Transfer.Name())
	}
	return nil
}

// Spec reports the registry names of the kernel functions.
func (k Kernel) Spec() model.KernelSpec {
	return model.KernelSpec{
		Transfer:    NormalizeName(k.Transfer.Name()),
		Aggregation: NormalizeName(k.Aggregation.Name()),
		Activation:  NormalizeName(k.Activation.Name()),
		Cost:        NormalizeName(k.Cost.Name()),
		Optimizer:   NormalizeName(k.Optimizer.Name()),
	}
}

// KernelFromSpec resolves every named function through the registries.
// Empty names fall back to linear/average/sgd, and mean_squared for cost.
func KernelFromSpec(spec model.KernelSpec) (Kernel, error) {
	transferName := spec.Transfer
	if transferName == "" {
		transferName = "linear"
	}
	aggregationName := spec.Aggregation
	if aggregationName == "" {
		aggregationName = "average"
	}
	costName := spec.Cost
	if costName == "" {
		costName = "mean_squared"
	}
	optimizerName := spec.Optimizer
	if optimizerName == "" {
		optimizerName = "sgd"
	}

	transfer, err := GetTransfer(transferName)
	if err != nil {
		return Kernel{}, err
	}
	aggregation, err := GetAggregation(aggregationName)
	if err != nil {
		return Kernel{}, err
	}
	activation, err := GetActivation(spec.Activation)
	if err != nil {
		return Kernel{}, err
	}
	cost, err := GetCost(costName)
	if err != nil {
		return Kernel{}, err
	}
	optimizer, err := GetOptimizer(optimizerName)
	if err != nil {
		return Kernel{}, err
	}
	return Kernel{
		Transfer:    transfer,
		Aggregation: aggregation,
		Activation:  activation,
		Cost:        cost,
		Optimizer:   optimizer,
	}, nil
}
