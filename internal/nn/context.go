package nn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Prime caches the derivatives of the last backward step of a cell.
type Prime struct {
	Signal     *mat.Dense    // dZ/dW
	Transfer   *mat.VecDense // dZ/dX, one value per synapse
	Activation *mat.VecDense // R'(Z)
	Weight     *mat.Dense    // C'(W)
	Error      *mat.VecDense // E = Eo * R'(Z)
	Cost       *mat.VecDense // dC/dA, output cells only
}

// Context is the view a kernel function gets of a cell: the cell's own state
// and read-only access to the state of every cell of the same layer. It
// borrows cells by id from the network arena and owns nothing but the id list
// and the prime cache.
type Context struct {
	network *Network
	cell    CellID
	layer   []CellID

	Prime Prime
}

func newContext(n *Network, id CellID, layer []CellID) *Context {
	return &Context{
		network: n,
		cell:    id,
		layer:   append([]CellID(nil), layer...),
	}
}

// Valid reports whether every borrowed id still resolves in a live network.
func (c *Context) Valid() bool {
	if c == nil || c.network == nil || c.network.deleted {
		return false
	}
	size := len(c.network.cells)
	if int(c.cell) < 0 || int(c.cell) >= size {
		return false
	}
	for _, id := range c.layer {
		if int(id) < 0 || int(id) >= size {
			return false
		}
	}
	return true
}

// Delete drops the sibling list. The vectors it pointed at belong to the
// sibling cells and are left untouched.
func (c *Context) Delete() {
	c.layer = nil
	c.network = nil
	c.Prime = Prime{}
}

func (c *Context) owner() *Cell {
	return &c.network.cells[c.cell]
}

func (c *Context) Cell() CellID { return c.cell }

func (c *Context) Layer() int { return c.owner().coordinates.Layer }

func (c *Context) Position() int { return c.owner().coordinates.Position }

func (c *Context) Signal() mat.Matrix { return c.owner().signal }

func (c *Context) Weight() mat.Matrix { return c.owner().weight }

func (c *Context) Bias() float64 { return c.owner().bias }

func (c *Context) Transfer() mat.Vector { return vectorView(c.owner().transfer) }

func (c *Context) Activation() mat.Vector { return vectorView(c.owner().activation) }

func (c *Context) Error() mat.Vector { return vectorView(c.owner().loss) }

// Dimension is the number of cells in the layer, the owner included.
func (c *Context) Dimension() int { return len(c.layer) }

// Siblings returns the ids of the layer in position order.
func (c *Context) Siblings() []CellID { return append([]CellID(nil), c.layer...) }

func (c *Context) LayerTransfer(i int) mat.Vector {
	return vectorView(c.network.cells[c.layer[i]].transfer)
}

func (c *Context) LayerActivation(i int) mat.Vector {
	return vectorView(c.network.cells[c.layer[i]].activation)
}

func (c *Context) LayerError(i int) mat.Vector {
	return vectorView(c.network.cells[c.layer[i]].loss)
}

func vectorView(v *mat.VecDense) mat.Vector {
	if v == nil {
		return nil
	}
	return v
}

// cellLayer derives the layer of a cell from the wiring alone: one hop out
// through the synapse (or the axon when the cell has no synapse) and one hop
// back through the neighbour's opposite terminal. Every distinct cell reached
// shares the neighbours of the starting cell.
func (n *Network) cellLayer(id CellID) ([]CellID, error) {
	cell := &n.cells[id]
	terminal := cell.synapse
	forward := false
	if len(terminal) == 0 {
		terminal = cell.axon
		forward = true
	}
	if len(terminal) == 0 {
		return n.layerCells(cell.coordinates.Layer), nil
	}

	seen := make(map[CellID]struct{})
	layer := make([]CellID, 0, n.resolution.Dimensions[cell.coordinates.Layer])
	for _, neighbour := range terminal {
		if int(neighbour) < 0 || int(neighbour) >= len(n.cells) {
			return nil, fmt.Errorf("%w: cell %d:%d references missing cell %d",
				ErrBrokenCell, cell.coordinates.Layer, cell.coordinates.Position, neighbour)
		}
		back := n.cells[neighbour].axon
		if forward {
			back = n.cells[neighbour].synapse
		}
		for _, sibling := range back {
			if _, ok := seen[sibling]; ok {
				continue
			}
			seen[sibling] = struct{}{}
			layer = append(layer, sibling)
		}
	}
	if _, ok := seen[id]; !ok {
		return nil, fmt.Errorf("%w: cell %d:%d is not reachable from its own neighbours",
			ErrBrokenCell, cell.coordinates.Layer, cell.coordinates.Position)
	}
	sortByPosition(n, layer)
	return layer, nil
}

func sortByPosition(n *Network, ids []CellID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && n.cells[ids[j]].coordinates.Position < n.cells[ids[j-1]].coordinates.Position; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}

func (n *Network) buildContexts() error {
	for i := range n.cells {
		layer, err := n.cellLayer(CellID(i))
		if err != nil {
			return err
		}
		n.cells[i].context = newContext(n, CellID(i), layer)
	}
	return nil
}
