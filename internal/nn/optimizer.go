package nn

import (
	"gonum.org/v1/gonum/mat"
)

const defaultMomentum = 0.9

// Gradient is C'(W) and the bias slope of one cell, averaged over the batch.
type Gradient struct {
	Weight *mat.Dense
	Bias   float64
}

// OptimizerSlot holds the optimizer memory of one cell.
type OptimizerSlot struct {
	Velocity     *mat.Dense
	BiasVelocity float64
}

// OptimizerState keeps per-cell optimizer memory for one network.
type OptimizerState struct {
	slots map[CellID]*OptimizerSlot
}

func newOptimizerState() *OptimizerState {
	return &OptimizerState{slots: make(map[CellID]*OptimizerSlot)}
}

func (s *OptimizerState) slot(id CellID) *OptimizerSlot {
	slot, ok := s.slots[id]
	if !ok {
		slot = &OptimizerSlot{}
		s.slots[id] = slot
	}
	return slot
}

// Reset drops all optimizer memory.
func (s *OptimizerState) Reset() {
	s.slots = make(map[CellID]*OptimizerSlot)
}

// SGD is plain gradient descent: W -= lr*C'(W), b -= lr*mean(E).
type SGD struct{}

func (SGD) Name() string { return "sgd" }

func (SGD) Update(_ *OptimizerSlot, weight *mat.Dense, bias *float64, grad Gradient, learningRate float64) {
	var delta mat.Dense
	delta.Scale(learningRate, grad.Weight)
	weight.Sub(weight, &delta)
	*bias -= learningRate * grad.Bias
}

// Momentum accumulates a decaying velocity of past gradients.
type Momentum struct {
	Beta float64
}

func (Momentum) Name() string { return "momentum" }

func (m Momentum) Update(slot *OptimizerSlot, weight *mat.Dense, bias *float64, grad Gradient, learningRate float64) {
	rows, cols := grad.Weight.Dims()
	if slot.Velocity == nil {
		slot.Velocity = mat.NewDense(rows, cols, nil)
	} else if r, c := slot.Velocity.Dims(); r != rows || c != cols {
		slot.Velocity = mat.NewDense(rows, cols, nil)
	}

	slot.Velocity.Scale(m.Beta, slot.Velocity)
	slot.Velocity.Add(slot.Velocity, grad.Weight)
	slot.BiasVelocity = m.Beta*slot.BiasVelocity + grad.Bias

	var delta mat.Dense
	delta.Scale(learningRate, slot.Velocity)
	weight.Sub(weight, &delta)
	*bias -= learningRate * slot.BiasVelocity
}
