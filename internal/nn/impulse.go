package nn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Fire runs a batch (one sample per row) through the network and returns the
// activations of the last layer as batch x output dimension.
func (n *Network) Fire(input mat.Matrix) (*mat.Dense, error) {
	if err := n.usable(); err != nil {
		return nil, err
	}
	if err := checkMatrix(input, "input"); err != nil {
		return nil, err
	}
	if _, cols := input.Dims(); n.inputs == 0 {
		n.sizeInputs(cols)
	} else if cols != n.inputs {
		return nil, fmt.Errorf("%w: network takes %d input columns, got %d", ErrShapeMismatch, n.inputs, cols)
	}

	n.clearJoins()
	for _, id := range n.layerCells(0) {
		if err := n.fire(id, mat.DenseCopyOf(input)); err != nil {
			return nil, err
		}
	}
	return n.output()
}

// sizeInputs fixes the input width on the first Fire of a network built
// without WithInputs and draws the first-layer weights.
func (n *Network) sizeInputs(cols int) {
	n.inputs = cols
	for _, id := range n.layerCells(0) {
		cell := &n.cells[id]
		cell.resizeWeight(cols)
		cell.seedWeight(n.rng)
	}
}

// clearJoins drops the join flags a failed cascade left set, so the next
// cascade starts with every slot unreported.
func (n *Network) clearJoins() {
	for i := range n.cells {
		clear(n.cells[i].impulseReady)
		clear(n.cells[i].feedbackReady)
	}
}

func weightRows(cell *Cell) int {
	rows, _ := cell.weight.Dims()
	return rows
}

// output forces activation of every last-layer cell so layer-wide functions
// see the final transfer of all siblings.
func (n *Network) output() (*mat.Dense, error) {
	last := n.layerCells(n.resolution.Layers - 1)
	for _, id := range last {
		if err := n.activate(id); err != nil {
			return nil, err
		}
	}

	batch := n.cells[last[0]].activation.Len()
	out := mat.NewDense(batch, len(last), nil)
	for position, id := range last {
		activation := n.cells[id].activation
		if activation.Len() != batch {
			return nil, fmt.Errorf("%w: output cell %d has %d samples, expected %d",
				ErrBrokenCell, position, activation.Len(), batch)
		}
		out.SetCol(position, activation.RawVector().Data)
	}
	return out, nil
}

// fire stores the signal, computes transfer and activation and cascades an
// impulse to every successor. The activation is marked provisional once the
// cascade returns because siblings fired later may change it.
func (n *Network) fire(id CellID, signal *mat.Dense) error {
	cell := &n.cells[id]
	if err := checkMatrix(signal, "signal"); err != nil {
		return fmt.Errorf("cell %d:%d: %w", cell.coordinates.Layer, cell.coordinates.Position, err)
	}
	cell.signal = signal
	if _, cols := signal.Dims(); cols != weightRows(cell) {
		cell.resizeWeight(cols)
	}
	if err := cell.computeTransfer(); err != nil {
		return err
	}
	cell.sampleMask(n.rng, n.training && !n.isOutput(cell))
	if err := n.activate(id); err != nil {
		return err
	}

	for _, successor := range cell.axon {
		if err := n.impulse(id, successor); err != nil {
			return err
		}
	}
	cell.activated = false
	clear(cell.impulseReady)
	return nil
}

// impulse marks the synapse slot of source on destination and fires the
// destination once every predecessor has reported.
func (n *Network) impulse(source, destination CellID) error {
	target := &n.cells[destination]
	slot := indexOf(target.synapse, source)
	if slot < 0 {
		return fmt.Errorf("%w: cell %d is not a predecessor of cell %d:%d",
			ErrBrokenCell, source, target.coordinates.Layer, target.coordinates.Position)
	}
	target.impulseReady[slot] = true
	for _, ready := range target.impulseReady {
		if !ready {
			return nil
		}
	}

	signal, err := n.collectSynapseSignal(destination)
	if err != nil {
		return err
	}
	return n.fire(destination, signal)
}

// collectSynapseSignal stacks the activations of every predecessor into a
// batch x fan-in matrix, activating predecessors whose value is provisional.
func (n *Network) collectSynapseSignal(id CellID) (*mat.Dense, error) {
	cell := &n.cells[id]
	if len(cell.synapse) == 0 {
		return nil, fmt.Errorf("%w: cell %d:%d has no synapse", ErrBrokenCell, cell.coordinates.Layer, cell.coordinates.Position)
	}

	var signal *mat.Dense
	for slot, predecessor := range cell.synapse {
		if !n.cells[predecessor].activated {
			if err := n.activate(predecessor); err != nil {
				return nil, err
			}
		}
		activation := n.cells[predecessor].activation
		if signal == nil {
			signal = mat.NewDense(activation.Len(), len(cell.synapse), nil)
		}
		if rows, _ := signal.Dims(); rows != activation.Len() {
			return nil, fmt.Errorf("%w: synapse %d of cell %d:%d carries %d samples, expected %d",
				ErrShapeMismatch, slot, cell.coordinates.Layer, cell.coordinates.Position, activation.Len(), rows)
		}
		signal.SetCol(slot, activation.RawVector().Data)
	}
	return signal, nil
}

// activate recomputes the activation of a cell from its transfer and the
// state of its layer, applying the dropout mask when one is drawn.
func (n *Network) activate(id CellID) error {
	cell := &n.cells[id]
	activation, err := cell.kernel.Activation.Of(cell.context)
	if err != nil {
		return fmt.Errorf("cell %d:%d activation: %w", cell.coordinates.Layer, cell.coordinates.Position, err)
	}
	if cell.mask != nil && cell.mask.Len() == activation.Len() {
		activation.MulElemVec(activation, cell.mask)
	}
	if err := checkVector(activation, "activation"); err != nil {
		return fmt.Errorf("cell %d:%d: %w", cell.coordinates.Layer, cell.coordinates.Position, err)
	}
	cell.activation = activation
	cell.activated = true
	return nil
}
