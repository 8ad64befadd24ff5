package nn

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrFunctionExists   = errors.New("kernel function already registered")
	ErrFunctionNotFound = errors.New("kernel function not found")
)

type named interface {
	Name() string
}

type registry[T named] struct {
	kind string

	mu sync.RWMutex
	m  map[string]T
}

func newRegistry[T named](kind string) *registry[T] {
	return &registry[T]{kind: kind, m: make(map[string]T)}
}

// register stores fn under the normalized form of its name.
func (r *registry[T]) register(fn T) error {
	if any(fn) == nil {
		return fmt.Errorf("%s function is required", r.kind)
	}
	name := NormalizeName(fn.Name())
	if name == "" {
		return fmt.Errorf("%s name is required", r.kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.m[name]; exists {
		return fmt.Errorf("%w: %s %s", ErrFunctionExists, r.kind, name)
	}
	r.m[name] = fn
	return nil
}

// get looks name up as given, then by its normalized form.
func (r *registry[T]) get(name string) (T, error) {
	r.mu.RLock()
	fn, ok := r.m[name]
	if !ok {
		fn, ok = r.m[NormalizeName(name)]
	}
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s %q", ErrFunctionNotFound, r.kind, name)
	}
	return fn, nil
}

func (r *registry[T]) list() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.m))
	for name := range r.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *registry[T]) reset() {
	r.mu.Lock()
	r.m = make(map[string]T)
	r.mu.Unlock()
}

var (
	transferRegistry    = newRegistry[Transfer]("transfer")
	aggregationRegistry = newRegistry[Aggregation]("aggregation")
	activationRegistry  = newRegistry[Activation]("activation")
	costRegistry        = newRegistry[Cost]("cost")
	optimizerRegistry   = newRegistry[Optimizer]("optimizer")
	routerRegistry      = newRegistry[Router]("router")
)

func init() {
	initializeBuiltIns()
}

func initializeBuiltIns() {
	MustRegisterTransfer(Linear{})

	MustRegisterAggregation(aggregationFunc{name: "sum", fn: sum})
	MustRegisterAggregation(aggregationFunc{name: "average", fn: average})
	MustRegisterAggregation(aggregationFunc{name: "mean", fn: average})
	MustRegisterAggregation(aggregationFunc{name: "median", fn: median})

	for _, activation := range builtInActivations() {
		MustRegisterActivation(activation)
	}
	MustRegisterActivation(SoftMax{})

	MustRegisterCost(MeanSquared{})
	MustRegisterCost(CrossEntropy{})

	MustRegisterOptimizer(SGD{})
	MustRegisterOptimizer(Momentum{Beta: defaultMomentum})

	MustRegisterRouter(routerFunc{name: "any", route: routeAny})
	for _, name := range []string{"near", "one", "recurrent", "whole", "random"} {
		MustRegisterRouter(unimplementedRouter(name))
	}
}

func RegisterTransfer(fn Transfer) error { return transferRegistry.register(fn) }

func MustRegisterTransfer(fn Transfer) {
	if err := RegisterTransfer(fn); err != nil {
		panic(err)
	}
}

func GetTransfer(name string) (Transfer, error) { return transferRegistry.get(name) }

func ListTransfers() []string { return transferRegistry.list() }

func RegisterAggregation(fn Aggregation) error { return aggregationRegistry.register(fn) }

func MustRegisterAggregation(fn Aggregation) {
	if err := RegisterAggregation(fn); err != nil {
		panic(err)
	}
}

func GetAggregation(name string) (Aggregation, error) { return aggregationRegistry.get(name) }

func ListAggregations() []string { return aggregationRegistry.list() }

func RegisterActivation(fn Activation) error { return activationRegistry.register(fn) }

func MustRegisterActivation(fn Activation) {
	if err := RegisterActivation(fn); err != nil {
		panic(err)
	}
}

func GetActivation(name string) (Activation, error) { return activationRegistry.get(name) }

func ListActivations() []string { return activationRegistry.list() }

func RegisterCost(fn Cost) error { return costRegistry.register(fn) }

func MustRegisterCost(fn Cost) {
	if err := RegisterCost(fn); err != nil {
		panic(err)
	}
}

func GetCost(name string) (Cost, error) { return costRegistry.get(name) }

func ListCosts() []string { return costRegistry.list() }

func RegisterOptimizer(fn Optimizer) error { return optimizerRegistry.register(fn) }

func MustRegisterOptimizer(fn Optimizer) {
	if err := RegisterOptimizer(fn); err != nil {
		panic(err)
	}
}

func GetOptimizer(name string) (Optimizer, error) { return optimizerRegistry.get(name) }

func ListOptimizers() []string { return optimizerRegistry.list() }

func RegisterRouter(r Router) error { return routerRegistry.register(r) }

func MustRegisterRouter(r Router) {
	if err := RegisterRouter(r); err != nil {
		panic(err)
	}
}

func GetRouter(name string) (Router, error) { return routerRegistry.get(name) }

func ListRouters() []string { return routerRegistry.list() }

func resetRegistriesForTests() {
	transferRegistry.reset()
	aggregationRegistry.reset()
	activationRegistry.reset()
	costRegistry.reset()
	optimizerRegistry.reset()
	routerRegistry.reset()
	initializeBuiltIns()
}
