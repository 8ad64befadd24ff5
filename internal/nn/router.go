package nn

import (
	"fmt"
)

// Router wires the cells of one layer to the cells of the next.
type Router interface {
	Name() string
	Route(n *Network, layer int) error
}

type routerFunc struct {
	name  string
	route func(n *Network, layer int) error
}

func (r routerFunc) Name() string { return r.name }

func (r routerFunc) Route(n *Network, layer int) error { return r.route(n, layer) }

// routeAny connects every cell of layer to every cell of layer+1. Sources are
// appended in position order so synapse slot i is the predecessor at
// position i.
func routeAny(n *Network, layer int) error {
	if layer < 0 || layer+1 >= n.resolution.Layers {
		return fmt.Errorf("%w: cannot route layer %d of %d", ErrMalformedTopology, layer, n.resolution.Layers)
	}
	sources := n.layerCells(layer)
	targets := n.layerCells(layer + 1)

	for _, id := range sources {
		source := &n.cells[id]
		if source.axon == nil {
			source.axon = make([]CellID, 0, len(targets))
		}
		source.axon = append(source.axon, targets...)
	}
	for _, id := range targets {
		target := &n.cells[id]
		if target.synapse == nil {
			target.synapse = make([]CellID, 0, len(sources))
		}
		target.synapse = append(target.synapse, sources...)
	}
	return nil
}

func unimplementedRouter(name string) Router {
	return routerFunc{
		name: name,
		route: func(_ *Network, layer int) error {
			return fmt.Errorf("%w: %s (layer %d)", ErrRouterUnimplemented, name, layer)
		},
	}
}
