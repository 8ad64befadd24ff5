package nn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Error fires signal and returns the loss against target: the aggregated
// per-sample cost of each output cell, averaged over the output cells.
func (n *Network) Error(signal, target mat.Matrix) (float64, error) {
	return n.computeError(signal, target)
}

// computeError leaves the per-sample cost in the error vector of every
// output cell and caches dC/dA in its prime for the feedback pass.
func (n *Network) computeError(signal, target mat.Matrix) (float64, error) {
	output, err := n.Fire(signal)
	if err != nil {
		return 0, err
	}
	if err := checkMatrix(target, "target"); err != nil {
		return 0, err
	}
	rows, cols := output.Dims()
	targetRows, targetCols := target.Dims()
	if rows != targetRows || cols != targetCols {
		return 0, fmt.Errorf("%w: output %dx%d against target %dx%d", ErrShapeMismatch, rows, cols, targetRows, targetCols)
	}

	total := 0.0
	last := n.layerCells(n.resolution.Layers - 1)
	for _, id := range last {
		cell := &n.cells[id]
		loss, err := cell.kernel.Cost.Of(cell.context, target)
		if err != nil {
			return 0, fmt.Errorf("cell %d:%d cost: %w", cell.coordinates.Layer, cell.coordinates.Position, err)
		}
		prime, err := cell.kernel.Cost.Derivative(cell.context, target)
		if err != nil {
			return 0, fmt.Errorf("cell %d:%d cost derivative: %w", cell.coordinates.Layer, cell.coordinates.Position, err)
		}
		if err := checkVector(loss, "loss"); err != nil {
			return 0, err
		}
		if err := checkVector(prime, "cost derivative"); err != nil {
			return 0, err
		}
		cell.loss = loss
		cell.context.Prime.Cost = prime
		total += cell.kernel.Aggregation.Of(loss)
	}
	return total / float64(len(last)), nil
}

// backPropagation runs one feedback pass from every output cell. It expects
// computeError to have run on the same batch.
func (n *Network) backPropagation(learningRate float64) error {
	n.clearJoins()
	for _, id := range n.layerCells(n.resolution.Layers - 1) {
		if err := n.backPropagate(id, learningRate); err != nil {
			return err
		}
	}
	return nil
}

// backPropagate updates the cell and reports to each predecessor.
func (n *Network) backPropagate(id CellID, learningRate float64) error {
	if err := n.gradient(id, learningRate); err != nil {
		return err
	}
	for _, predecessor := range n.cells[id].synapse {
		if err := n.errorImpulse(id, predecessor, learningRate); err != nil {
			return err
		}
	}
	return nil
}

// errorImpulse marks the axon slot of source on destination and
// back-propagates the destination once every successor has reported.
func (n *Network) errorImpulse(source, destination CellID, learningRate float64) error {
	target := &n.cells[destination]
	slot := indexOf(target.axon, source)
	if slot < 0 {
		return fmt.Errorf("%w: cell %d is not a successor of cell %d:%d",
			ErrBrokenCell, source, target.coordinates.Layer, target.coordinates.Position)
	}
	target.feedbackReady[slot] = true
	for _, ready := range target.feedbackReady {
		if !ready {
			return nil
		}
	}

	err := n.backPropagate(destination, learningRate)
	clear(target.feedbackReady)
	return err
}

// gradient computes E and C'(W) of one cell, caches them in the prime and
// applies the optimizer. Successors must already hold their prime: the
// weight column they cache is the one used before their own update.
func (n *Network) gradient(id CellID, learningRate float64) error {
	cell := &n.cells[id]
	ctx := cell.context
	batch := cell.transfer.Len()

	upstream := mat.NewVecDense(batch, nil)
	if n.isOutput(cell) {
		if ctx.Prime.Cost == nil || ctx.Prime.Cost.Len() != batch {
			return fmt.Errorf("%w: cell %d:%d has no cost derivative for this batch",
				ErrBrokenCell, cell.coordinates.Layer, cell.coordinates.Position)
		}
		upstream.CopyVec(ctx.Prime.Cost)
	} else {
		for _, successor := range cell.axon {
			next := &n.cells[successor]
			slot := indexOf(next.synapse, id)
			prime := next.context.Prime
			if slot < 0 || prime.Error == nil || prime.Transfer == nil || prime.Error.Len() != batch {
				return fmt.Errorf("%w: successor %d of cell %d:%d has not reported",
					ErrBrokenCell, successor, cell.coordinates.Layer, cell.coordinates.Position)
			}
			upstream.AddScaledVec(upstream, prime.Transfer.AtVec(slot), prime.Error)
		}
	}

	activationPrime, err := cell.kernel.Activation.Derivative(ctx)
	if err != nil {
		return fmt.Errorf("cell %d:%d activation derivative: %w", cell.coordinates.Layer, cell.coordinates.Position, err)
	}
	errorVec := mat.NewVecDense(batch, nil)
	errorVec.MulElemVec(upstream, activationPrime)
	if cell.mask != nil && cell.mask.Len() == batch {
		errorVec.MulElemVec(errorVec, cell.mask)
	}
	if err := checkVector(errorVec, "error"); err != nil {
		return fmt.Errorf("cell %d:%d: %w", cell.coordinates.Layer, cell.coordinates.Position, err)
	}

	bySignal := cell.kernel.Transfer.Derivative(ctx, true)
	byInput := cell.kernel.Transfer.Derivative(ctx, false)
	fanIn, width := cell.weight.Dims()
	if rows, cols := bySignal.Dims(); rows != batch || cols != fanIn {
		return fmt.Errorf("%w: cell %d:%d signal is %dx%d for batch %d and fan-in %d",
			ErrShapeMismatch, cell.coordinates.Layer, cell.coordinates.Position, rows, cols, batch, fanIn)
	}

	var slope mat.VecDense
	slope.MulVec(bySignal.T(), errorVec)
	slope.ScaleVec(1/float64(batch), &slope)
	weightGrad := mat.NewDense(fanIn, width, nil)
	weightGrad.SetCol(0, slope.RawVector().Data)
	biasGrad := mat.Sum(errorVec) / float64(batch)

	ctx.Prime = Prime{
		Signal:     bySignal,
		Transfer:   mat.NewVecDense(fanIn, mat.Col(nil, 0, byInput)),
		Activation: activationPrime,
		Weight:     weightGrad,
		Error:      errorVec,
		Cost:       ctx.Prime.Cost,
	}
	if !n.isOutput(cell) {
		cell.loss = errorVec
	}

	cell.kernel.Optimizer.Update(n.optimizer.slot(id), cell.weight, &cell.bias, Gradient{Weight: weightGrad, Bias: biasGrad}, learningRate)
	if err := checkMatrix(cell.weight, "weight"); err != nil {
		return fmt.Errorf("cell %d:%d: %w", cell.coordinates.Layer, cell.coordinates.Position, err)
	}
	if !finite(cell.bias) {
		return fmt.Errorf("%w: cell %d:%d bias=%v", ErrNonFinite, cell.coordinates.Layer, cell.coordinates.Position, cell.bias)
	}
	return nil
}
