package nn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"cellnet/internal/model"
)

// Snapshot records the topology by function names and every cell's weight
// and bias.
func (n *Network) Snapshot(id string) (model.NetworkSnapshot, error) {
	if err := n.usable(); err != nil {
		return model.NetworkSnapshot{}, err
	}
	snapshot := model.NetworkSnapshot{
		ID:     id,
		Inputs: n.inputs,
		Layers: make([]model.LayerRecord, 0, len(n.layers)),
		Cells:  make([]model.CellRecord, 0, len(n.cells)),
	}
	for _, layer := range n.layers {
		record := model.LayerRecord{
			Kernel:    layer.Kernel.Spec(),
			Dimension: layer.Dimension,
			Dropout:   layer.Dropout,
		}
		if layer.Router != nil {
			record.Router = layer.Router.Name()
		}
		snapshot.Layers = append(snapshot.Layers, record)
	}
	for i := range n.cells {
		cell := &n.cells[i]
		rows, _ := cell.weight.Dims()
		weight := make([][]float64, rows)
		for r := range weight {
			weight[r] = mat.Row(nil, r, cell.weight)
		}
		snapshot.Cells = append(snapshot.Cells, model.CellRecord{
			Layer:    cell.coordinates.Layer,
			Position: cell.coordinates.Position,
			Bias:     cell.bias,
			Weight:   weight,
		})
	}
	return snapshot, nil
}

// LayerSpecs resolves the layer records of a snapshot through the registries.
func LayerSpecs(records []model.LayerRecord) ([]LayerSpec, error) {
	specs := make([]LayerSpec, 0, len(records))
	for i, record := range records {
		kernel, err := KernelFromSpec(record.Kernel)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		spec := LayerSpec{Kernel: kernel, Dimension: record.Dimension, Dropout: record.Dropout}
		if record.Router != "" {
			router, err := GetRouter(record.Router)
			if err != nil {
				return nil, fmt.Errorf("layer %d: %w", i, err)
			}
			spec.Router = router
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Restore rebuilds a network whose Fire output matches the snapshotted one.
func Restore(snapshot model.NetworkSnapshot, opts ...Option) (*Network, error) {
	specs, err := LayerSpecs(snapshot.Layers)
	if err != nil {
		return nil, err
	}
	n, err := New(specs, append(opts, WithInputs(snapshot.Inputs))...)
	if err != nil {
		return nil, err
	}
	if len(snapshot.Cells) != len(n.cells) {
		return nil, fmt.Errorf("%w: snapshot has %d cells, topology has %d", ErrMalformedTopology, len(snapshot.Cells), len(n.cells))
	}
	for _, record := range snapshot.Cells {
		id, err := n.Index(record.Layer, record.Position)
		if err != nil {
			return nil, err
		}
		cell := &n.cells[id]
		if len(record.Weight) == 0 {
			return nil, fmt.Errorf("%w: cell %d:%d has no weight", ErrMalformedTopology, record.Layer, record.Position)
		}
		cell.resizeWeight(len(record.Weight))
		_, width := cell.weight.Dims()
		flat := make([]float64, 0, len(record.Weight)*width)
		for r, row := range record.Weight {
			if len(row) != width {
				return nil, fmt.Errorf("%w: cell %d:%d weight row %d has %d columns, expected %d",
					ErrShapeMismatch, record.Layer, record.Position, r, len(row), width)
			}
			flat = append(flat, row...)
		}
		if err := cell.setWeight(mat.NewDense(len(record.Weight), width, flat), record.Bias); err != nil {
			return nil, err
		}
	}
	return n, nil
}
