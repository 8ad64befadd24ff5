package nn

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// CellID addresses a cell in the network arena. Cells are stored layer-major
// so the id of (layer, position) is the sum of the preceding dimensions plus
// position.
type CellID int

type Coordinates struct {
	Layer    int
	Position int
}

// Cell is one neuron. It owns its numeric state; neighbours are referenced
// by id only and are never mutated through a cell.
type Cell struct {
	id          CellID
	kernel      Kernel
	coordinates Coordinates

	weight     *mat.Dense
	bias       float64
	signal     *mat.Dense
	transfer   *mat.VecDense
	activation *mat.VecDense
	loss       *mat.VecDense

	// activated is cleared once the cell has cascaded; the activation is then
	// provisional until every sibling has fired and is recomputed on demand.
	activated bool
	dropout   float64
	mask      *mat.VecDense

	synapse       []CellID
	axon          []CellID
	impulseReady  []bool
	feedbackReady []bool

	context *Context
}

func newCell(kernel Kernel, id CellID, layer, position int, rng *rand.Rand) Cell {
	return Cell{
		id:          id,
		kernel:      kernel,
		coordinates: Coordinates{Layer: layer, Position: position},
		weight:      mat.NewDense(1, kernel.Transfer.Width(), nil),
		bias:        rng.Float64()*2 - 1,
		signal:      mat.NewDense(1, 1, nil),
		transfer:    mat.NewVecDense(1, nil),
		activation:  mat.NewVecDense(1, nil),
		loss:        mat.NewVecDense(1, nil),
	}
}

func (c *Cell) ID() CellID { return c.id }

func (c *Cell) Coordinates() Coordinates { return c.coordinates }

func (c *Cell) Kernel() Kernel { return c.kernel }

func (c *Cell) Bias() float64 { return c.bias }

func (c *Cell) FanIn() int { return len(c.synapse) }

func (c *Cell) Weight() *mat.Dense { return mat.DenseCopyOf(c.weight) }

func (c *Cell) Signal() *mat.Dense { return mat.DenseCopyOf(c.signal) }

func (c *Cell) Transfer() *mat.VecDense { return copyVec(c.transfer) }

func (c *Cell) Activation() *mat.VecDense { return copyVec(c.activation) }

func (c *Cell) Error() *mat.VecDense { return copyVec(c.loss) }

func (c *Cell) Synapse() []CellID { return append([]CellID(nil), c.synapse...) }

func (c *Cell) Axon() []CellID { return append([]CellID(nil), c.axon...) }

func (c *Cell) Context() *Context { return c.context }

// resizeWeight grows or shrinks the weight to rows. Preserved rows keep their
// position at the head; added rows are zero and appended at the tail.
func (c *Cell) resizeWeight(rows int) {
	current, width := c.weight.Dims()
	if current == rows || rows <= 0 {
		return
	}
	resized := mat.NewDense(rows, width, nil)
	keep := min(current, rows)
	for i := 0; i < keep; i++ {
		for j := 0; j < width; j++ {
			resized.Set(i, j, c.weight.At(i, j))
		}
	}
	c.weight = resized
}

// rectifiers take He scaling and a small positive bias so that every unit
// starts inside its active region.
var rectifiers = map[string]bool{"relu": true, "leaky_relu": true, "elu": true}

func (c *Cell) rectified() bool {
	return c.kernel.Activation != nil && rectifiers[NormalizeName(c.kernel.Activation.Name())]
}

// seedWeight draws every weight uniformly from [-limit, limit] with
// limit = sqrt(6/fan-in) for rectifiers and sqrt(3/fan-in) otherwise.
// Rectifier biases are reset to 0.1; other cells keep their drawn bias.
func (c *Cell) seedWeight(rng *rand.Rand) {
	rows, cols := c.weight.Dims()
	gain := 3.0
	if c.rectified() {
		gain = 6
		c.bias = 0.1
	}
	limit := math.Sqrt(gain / float64(rows))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			c.weight.Set(i, j, (rng.Float64()*2-1)*limit)
		}
	}
}

func (c *Cell) setWeight(weight mat.Matrix, bias float64) error {
	rows, cols := weight.Dims()
	currentRows, currentCols := c.weight.Dims()
	if rows != currentRows || cols != currentCols {
		return fmt.Errorf("%w: cell %d:%d weight is %dx%d, got %dx%d",
			ErrShapeMismatch, c.coordinates.Layer, c.coordinates.Position, currentRows, currentCols, rows, cols)
	}
	if err := checkMatrix(weight, "weight"); err != nil {
		return err
	}
	if math.IsNaN(bias) || math.IsInf(bias, 0) {
		return fmt.Errorf("%w: bias=%v", ErrNonFinite, bias)
	}
	c.weight = mat.DenseCopyOf(weight)
	c.bias = bias
	return nil
}

func (c *Cell) computeTransfer() error {
	transfer, err := c.kernel.Transfer.Of(c.signal, c.weight, c.bias)
	if err != nil {
		return fmt.Errorf("cell %d:%d transfer: %w", c.coordinates.Layer, c.coordinates.Position, err)
	}
	if err := checkVector(transfer, "transfer"); err != nil {
		return fmt.Errorf("cell %d:%d: %w", c.coordinates.Layer, c.coordinates.Position, err)
	}
	c.transfer = transfer
	return nil
}

// sampleMask draws an inverted dropout mask for the current batch. A cell
// without dropout, or outside training, carries no mask.
func (c *Cell) sampleMask(rng *rand.Rand, training bool) {
	if !training || c.dropout <= 0 {
		c.mask = nil
		return
	}
	batch := c.transfer.Len()
	keep := 1 - c.dropout
	c.mask = mat.NewVecDense(batch, nil)
	for i := 0; i < batch; i++ {
		if rng.Float64() < keep {
			c.mask.SetVec(i, 1/keep)
		}
	}
}

func (c *Cell) check() error {
	switch {
	case c.context == nil:
		return fmt.Errorf("%w: cell %d:%d has no context", ErrBrokenCell, c.coordinates.Layer, c.coordinates.Position)
	case len(c.impulseReady) != len(c.synapse):
		return fmt.Errorf("%w: cell %d:%d impulse join is %d for %d synapses",
			ErrBrokenCell, c.coordinates.Layer, c.coordinates.Position, len(c.impulseReady), len(c.synapse))
	case len(c.feedbackReady) != len(c.axon):
		return fmt.Errorf("%w: cell %d:%d feedback join is %d for %d axons",
			ErrBrokenCell, c.coordinates.Layer, c.coordinates.Position, len(c.feedbackReady), len(c.axon))
	}
	if rows, _ := c.weight.Dims(); len(c.synapse) > 0 && rows != len(c.synapse) {
		return fmt.Errorf("%w: cell %d:%d weight has %d rows for %d synapses",
			ErrBrokenCell, c.coordinates.Layer, c.coordinates.Position, rows, len(c.synapse))
	}
	return nil
}

func copyVec(v *mat.VecDense) *mat.VecDense {
	if v == nil {
		return nil
	}
	out := mat.NewVecDense(v.Len(), nil)
	out.CopyVec(v)
	return out
}

func indexOf(ids []CellID, id CellID) int {
	for i, candidate := range ids {
		if candidate == id {
			return i
		}
	}
	return -1
}
