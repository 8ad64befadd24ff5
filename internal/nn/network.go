package nn

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// LayerSpec describes one layer handed to New. Router wires the layer to the
// next one and may be nil on the last layer.
type LayerSpec struct {
	Kernel    Kernel
	Router    Router
	Dimension int
	Dropout   float64
}

// Resolution is the shape of a network.
type Resolution struct {
	Dimensions []int
	Layers     int
	Size       int
}

// Network owns every cell in a single arena. It is not safe for concurrent
// use.
type Network struct {
	cells      []Cell
	layers     []LayerSpec
	offsets    []int
	resolution Resolution
	inputs     int

	optimizer *OptimizerState
	rng       *rand.Rand
	training  bool
	deleted   bool
}

type config struct {
	rng    *rand.Rand
	inputs int
}

type Option func(*config)

// WithSeed seeds the generator used for biases, weights and dropout masks.
func WithSeed(seed int64) Option {
	return func(c *config) {
		c.rng = rand.New(rand.NewSource(seed))
	}
}

func WithRand(rng *rand.Rand) Option {
	return func(c *config) {
		if rng != nil {
			c.rng = rng
		}
	}
}

// WithInputs sizes the first layer for n input columns so its weights can be
// initialised before the first Fire.
func WithInputs(n int) Option {
	return func(c *config) {
		c.inputs = n
	}
}

// New builds the cells layer by layer, routes them in ascending layer order,
// initialises weights and builds one context per cell.
func New(specs []LayerSpec, opts ...Option) (*Network, error) {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.rng == nil {
		cfg.rng = rand.New(rand.NewSource(1))
	}
	if cfg.inputs < 0 {
		return nil, fmt.Errorf("%w: inputs must be >= 0", ErrMalformedTopology)
	}
	if err := validateSpecs(specs); err != nil {
		return nil, err
	}

	n := &Network{
		layers:    append([]LayerSpec(nil), specs...),
		offsets:   make([]int, len(specs)),
		inputs:    cfg.inputs,
		optimizer: newOptimizerState(),
		rng:       cfg.rng,
		resolution: Resolution{
			Dimensions: make([]int, len(specs)),
			Layers:     len(specs),
		},
	}
	for layer, spec := range specs {
		n.offsets[layer] = n.resolution.Size
		n.resolution.Dimensions[layer] = spec.Dimension
		n.resolution.Size += spec.Dimension
	}

	n.cells = make([]Cell, 0, n.resolution.Size)
	for layer, spec := range specs {
		for position := 0; position < spec.Dimension; position++ {
			cell := newCell(spec.Kernel, CellID(len(n.cells)), layer, position, n.rng)
			cell.dropout = spec.Dropout
			n.cells = append(n.cells, cell)
		}
	}

	for layer := 0; layer < n.resolution.Layers-1; layer++ {
		if err := specs[layer].Router.Route(n, layer); err != nil {
			return nil, err
		}
	}
	n.seal()
	n.InitWeights(n.rng)

	if err := n.buildContexts(); err != nil {
		return nil, err
	}
	for i := range n.cells {
		if err := n.cells[i].check(); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func validateSpecs(specs []LayerSpec) error {
	if len(specs) == 0 {
		return fmt.Errorf("%w: at least one layer is required", ErrMalformedTopology)
	}
	for layer, spec := range specs {
		if spec.Dimension <= 0 {
			return fmt.Errorf("%w: layer %d dimension must be > 0", ErrMalformedTopology, layer)
		}
		if spec.Dropout < 0 || spec.Dropout >= 1 {
			return fmt.Errorf("%w: layer %d dropout must be in [0, 1)", ErrMalformedTopology, layer)
		}
		if err := spec.Kernel.validate(); err != nil {
			return fmt.Errorf("layer %d: %w", layer, err)
		}
		if layer < len(specs)-1 && spec.Router == nil {
			return fmt.Errorf("%w: layer %d router is required", ErrMalformedTopology, layer)
		}
	}
	return nil
}

// seal sizes the join flags and weights to the adjacency the routers built.
func (n *Network) seal() {
	for i := range n.cells {
		cell := &n.cells[i]
		cell.impulseReady = make([]bool, len(cell.synapse))
		cell.feedbackReady = make([]bool, len(cell.axon))
		switch {
		case len(cell.synapse) > 0:
			cell.resizeWeight(len(cell.synapse))
		case cell.coordinates.Layer == 0 && n.inputs > 0:
			cell.resizeWeight(n.inputs)
		}
	}
}

// InitWeights redraws every sized weight from rng. First-layer cells are
// skipped until their fan-in is known.
func (n *Network) InitWeights(rng *rand.Rand) {
	for i := range n.cells {
		cell := &n.cells[i]
		if len(cell.synapse) == 0 && !(cell.coordinates.Layer == 0 && n.inputs > 0) {
			continue
		}
		cell.seedWeight(rng)
	}
	n.optimizer.Reset()
}

// Delete releases every context and cell. The network is unusable afterwards.
func (n *Network) Delete() {
	if n.deleted {
		return
	}
	for i := range n.cells {
		if n.cells[i].context != nil {
			n.cells[i].context.Delete()
		}
	}
	n.cells = nil
	n.optimizer.Reset()
	n.deleted = true
}

func (n *Network) Resolution() Resolution {
	return Resolution{
		Dimensions: append([]int(nil), n.resolution.Dimensions...),
		Layers:     n.resolution.Layers,
		Size:       n.resolution.Size,
	}
}

// Inputs is the input column count, 0 until the first Fire when the network
// was built without WithInputs.
func (n *Network) Inputs() int { return n.inputs }

func (n *Network) Layer(layer int) LayerSpec { return n.layers[layer] }

// Index maps coordinates to an arena id.
func (n *Network) Index(layer, position int) (CellID, error) {
	if n.deleted {
		return 0, ErrNetworkDeleted
	}
	if layer < 0 || layer >= n.resolution.Layers {
		return 0, fmt.Errorf("%w: layer %d out of %d", ErrMalformedTopology, layer, n.resolution.Layers)
	}
	if position < 0 || position >= n.resolution.Dimensions[layer] {
		return 0, fmt.Errorf("%w: position %d out of %d in layer %d",
			ErrMalformedTopology, position, n.resolution.Dimensions[layer], layer)
	}
	return CellID(n.offsets[layer] + position), nil
}

func (n *Network) Cell(id CellID) *Cell {
	if n.deleted || int(id) < 0 || int(id) >= len(n.cells) {
		return nil
	}
	return &n.cells[id]
}

// SetWeight replaces the weight (row-major, fan-in x width) and bias of one
// cell.
func (n *Network) SetWeight(layer, position int, weight []float64, bias float64) error {
	id, err := n.Index(layer, position)
	if err != nil {
		return err
	}
	cell := &n.cells[id]
	rows, cols := cell.weight.Dims()
	if len(weight) != rows*cols {
		return fmt.Errorf("%w: cell %d:%d expects %d weights, got %d", ErrShapeMismatch, layer, position, rows*cols, len(weight))
	}
	if err := cell.setWeight(mat.NewDense(rows, cols, append([]float64(nil), weight...)), bias); err != nil {
		return err
	}
	delete(n.optimizer.slots, id)
	return nil
}

func (n *Network) layerCells(layer int) []CellID {
	ids := make([]CellID, n.resolution.Dimensions[layer])
	for i := range ids {
		ids[i] = CellID(n.offsets[layer] + i)
	}
	return ids
}

func (n *Network) isOutput(cell *Cell) bool {
	return cell.coordinates.Layer == n.resolution.Layers-1
}

func (n *Network) usable() error {
	if n == nil || n.deleted {
		return ErrNetworkDeleted
	}
	return nil
}

// Accuracy is the share of samples whose prediction matches the target: by
// argmax for multi-column targets, by a 0.5 threshold for a single column.
func (n *Network) Accuracy(signal, target mat.Matrix) (float64, error) {
	output, err := n.Fire(signal)
	if err != nil {
		return 0, err
	}
	rows, cols := output.Dims()
	targetRows, targetCols := target.Dims()
	if rows != targetRows || cols != targetCols {
		return 0, fmt.Errorf("%w: output %dx%d against target %dx%d", ErrShapeMismatch, rows, cols, targetRows, targetCols)
	}

	hits := 0
	for i := 0; i < rows; i++ {
		if cols == 1 {
			if (output.At(i, 0) >= 0.5) == (target.At(i, 0) >= 0.5) {
				hits++
			}
			continue
		}
		if argMax(output.RawRowView(i)) == argMax(mat.Row(nil, i, target)) {
			hits++
		}
	}
	return float64(hits) / float64(rows), nil
}

func argMax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
