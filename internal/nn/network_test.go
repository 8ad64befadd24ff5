package nn

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"cellnet/internal/model"
)

func testKernel(t *testing.T, activation, cost string) Kernel {
	t.Helper()
	kernel, err := KernelFromSpec(model.KernelSpec{Activation: activation, Cost: cost})
	if err != nil {
		t.Fatalf("kernel %s/%s: %v", activation, cost, err)
	}
	return kernel
}

func testRouter(t *testing.T, name string) Router {
	t.Helper()
	router, err := GetRouter(name)
	if err != nil {
		t.Fatalf("router %s: %v", name, err)
	}
	return router
}

// testLayers builds fully connected layers; the last activation belongs to
// the output layer.
func testLayers(t *testing.T, dims []int, activations []string, cost string) []LayerSpec {
	t.Helper()
	specs := make([]LayerSpec, len(dims))
	for i, dim := range dims {
		specs[i] = LayerSpec{Kernel: testKernel(t, activations[i], cost), Dimension: dim}
		if i < len(dims)-1 {
			specs[i].Router = testRouter(t, "any")
		}
	}
	return specs
}

func xorData() (*mat.Dense, *mat.Dense) {
	return mat.NewDense(4, 2, []float64{0, 0, 0, 1, 1, 0, 1, 1}),
		mat.NewDense(4, 1, []float64{0, 1, 1, 0})
}

func TestNewResolution(t *testing.T) {
	n, err := New(testLayers(t, []int{2, 3, 1}, []string{"transparent", "relu", "sigmoid"}, "mean_squared"))
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	res := n.Resolution()
	if res.Layers != 3 || res.Size != 6 {
		t.Fatalf("unexpected resolution: %+v", res)
	}
	if res.Dimensions[0] != 2 || res.Dimensions[1] != 3 || res.Dimensions[2] != 1 {
		t.Fatalf("unexpected dimensions: %v", res.Dimensions)
	}
	id, err := n.Index(1, 2)
	if err != nil || id != 4 {
		t.Fatalf("expected cell 1:2 at id 4, got %d (%v)", id, err)
	}
	if _, err := n.Index(3, 0); !errors.Is(err, ErrMalformedTopology) {
		t.Fatalf("expected out of range layer to fail, got: %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	good := testLayers(t, []int{2, 1}, []string{"relu", "sigmoid"}, "")

	if _, err := New(nil); !errors.Is(err, ErrMalformedTopology) {
		t.Fatalf("expected empty topology to fail, got: %v", err)
	}

	zero := append([]LayerSpec(nil), good...)
	zero[1].Dimension = 0
	if _, err := New(zero); !errors.Is(err, ErrMalformedTopology) {
		t.Fatalf("expected zero dimension to fail, got: %v", err)
	}

	noRouter := append([]LayerSpec(nil), good...)
	noRouter[0].Router = nil
	if _, err := New(noRouter); !errors.Is(err, ErrMalformedTopology) {
		t.Fatalf("expected missing router to fail, got: %v", err)
	}

	noActivation := append([]LayerSpec(nil), good...)
	noActivation[1].Kernel.Activation = nil
	if _, err := New(noActivation); !errors.Is(err, ErrMalformedTopology) {
		t.Fatalf("expected incomplete kernel to fail, got: %v", err)
	}

	dropout := append([]LayerSpec(nil), good...)
	dropout[0].Dropout = 1
	if _, err := New(dropout); !errors.Is(err, ErrMalformedTopology) {
		t.Fatalf("expected dropout of 1 to fail, got: %v", err)
	}
}

func TestUnimplementedRouters(t *testing.T) {
	for _, name := range []string{"near", "one", "recurrent", "whole", "random"} {
		specs := testLayers(t, []int{2, 1}, []string{"relu", "sigmoid"}, "")
		specs[0].Router = testRouter(t, name)
		if _, err := New(specs); !errors.Is(err, ErrRouterUnimplemented) {
			t.Fatalf("%s: expected ErrRouterUnimplemented, got: %v", name, err)
		}
	}
}

func TestWiringInvariant(t *testing.T) {
	n, err := New(testLayers(t, []int{3, 4, 2}, []string{"tanh", "relu", "soft_max"}, "cross_entropy"), WithInputs(5))
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	for i := range n.cells {
		cell := &n.cells[i]
		rows, _ := cell.weight.Dims()
		switch cell.coordinates.Layer {
		case 0:
			if rows != 5 || len(cell.synapse) != 0 || len(cell.axon) != 4 {
				t.Fatalf("cell %d: unexpected first layer wiring rows=%d synapse=%d axon=%d", i, rows, len(cell.synapse), len(cell.axon))
			}
		default:
			if rows != len(cell.synapse) || len(cell.impulseReady) != len(cell.synapse) {
				t.Fatalf("cell %d: weight rows %d, synapse %d, join %d", i, rows, len(cell.synapse), len(cell.impulseReady))
			}
		}
		if len(cell.feedbackReady) != len(cell.axon) {
			t.Fatalf("cell %d: feedback join %d for %d axons", i, len(cell.feedbackReady), len(cell.axon))
		}
		for slot, predecessor := range cell.synapse {
			if indexOf(n.cells[predecessor].axon, cell.id) < 0 {
				t.Fatalf("cell %d: predecessor %d does not list it as successor", i, predecessor)
			}
			if n.cells[predecessor].coordinates.Position != slot {
				t.Fatalf("cell %d: synapse slot %d holds position %d", i, slot, n.cells[predecessor].coordinates.Position)
			}
		}
	}
}

func TestContextLayer(t *testing.T) {
	n, err := New(testLayers(t, []int{2, 3, 1}, []string{"relu", "relu", "sigmoid"}, ""))
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	for layer, dim := range n.resolution.Dimensions {
		for _, id := range n.layerCells(layer) {
			ctx := n.cells[id].Context()
			if !ctx.Valid() || ctx.Dimension() != dim || ctx.Layer() != layer {
				t.Fatalf("cell %d: unexpected context layer=%d dimension=%d", id, ctx.Layer(), ctx.Dimension())
			}
			for position, sibling := range ctx.Siblings() {
				if n.cells[sibling].coordinates != (Coordinates{Layer: layer, Position: position}) {
					t.Fatalf("cell %d: sibling %d is %+v", id, position, n.cells[sibling].coordinates)
				}
			}
		}
	}

	single, err := New(testLayers(t, []int{3}, []string{"soft_max"}, "cross_entropy"))
	if err != nil {
		t.Fatalf("new single layer network: %v", err)
	}
	if got := single.cells[1].Context().Dimension(); got != 3 {
		t.Fatalf("expected single layer context of 3, got %d", got)
	}
}

func TestFireShapes(t *testing.T) {
	n, err := New(testLayers(t, []int{2, 3, 2}, []string{"transparent", "tanh", "sigmoid"}, ""), WithSeed(3))
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	out, err := n.Fire(mat.NewDense(5, 4, nil))
	if err != nil {
		t.Fatalf("fire: %v", err)
	}
	if rows, cols := out.Dims(); rows != 5 || cols != 2 {
		t.Fatalf("expected 5x2 output, got %dx%d", rows, cols)
	}
	if n.Inputs() != 4 {
		t.Fatalf("expected inputs sized on first fire, got %d", n.Inputs())
	}

	out, err = n.Fire(mat.NewDense(3, 4, nil))
	if err != nil {
		t.Fatalf("fire smaller batch: %v", err)
	}
	if rows, _ := out.Dims(); rows != 3 {
		t.Fatalf("expected 3 output rows, got %d", rows)
	}
	for i := range n.cells {
		if n.cells[i].transfer.Len() != 3 || n.cells[i].activation.Len() != 3 {
			t.Fatalf("cell %d kept a stale batch", i)
		}
	}

	if _, err := n.Fire(mat.NewDense(3, 2, nil)); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected input width mismatch, got: %v", err)
	}
	if _, err := n.Fire(mat.NewDense(1, 4, []float64{math.NaN(), 0, 0, 0})); !errors.Is(err, ErrNonFinite) {
		t.Fatalf("expected non-finite input to fail, got: %v", err)
	}
}

func TestFireDeterministic(t *testing.T) {
	specs := testLayers(t, []int{3, 4, 2}, []string{"tanh", "leaky_relu", "soft_max"}, "cross_entropy")
	input := mat.NewDense(3, 2, []float64{0.1, -0.4, 0.7, 0.2, -1, 1})

	a, err := New(specs, WithSeed(11), WithInputs(2))
	if err != nil {
		t.Fatalf("new network a: %v", err)
	}
	b, err := New(specs, WithSeed(11), WithInputs(2))
	if err != nil {
		t.Fatalf("new network b: %v", err)
	}
	first, err := a.Fire(input)
	if err != nil {
		t.Fatalf("fire a: %v", err)
	}
	second, err := b.Fire(input)
	if err != nil {
		t.Fatalf("fire b: %v", err)
	}
	again, err := a.Fire(input)
	if err != nil {
		t.Fatalf("fire a again: %v", err)
	}
	if !mat.Equal(first, second) || !mat.Equal(first, again) {
		t.Fatalf("expected identical outputs:\n%v\n%v\n%v", mat.Formatted(first), mat.Formatted(second), mat.Formatted(again))
	}
}

func TestFireOrderIndependent(t *testing.T) {
	specs := testLayers(t, []int{3, 3, 3}, []string{"soft_max", "sigmoid", "soft_max"}, "cross_entropy")
	input := mat.NewDense(2, 2, []float64{0.5, -0.5, 1, 2})

	forward, err := New(specs, WithSeed(5), WithInputs(2))
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	reverse, err := New(specs, WithSeed(5), WithInputs(2))
	if err != nil {
		t.Fatalf("new network: %v", err)
	}

	want, err := forward.Fire(input)
	if err != nil {
		t.Fatalf("fire: %v", err)
	}
	first := reverse.layerCells(0)
	for i := len(first) - 1; i >= 0; i-- {
		if err := reverse.fire(first[i], mat.DenseCopyOf(input)); err != nil {
			t.Fatalf("fire cell %d: %v", first[i], err)
		}
	}
	got, err := reverse.output()
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	if !mat.EqualApprox(want, got, 1e-12) {
		t.Fatalf("firing order changed the output:\n%v\n%v", mat.Formatted(want), mat.Formatted(got))
	}
}

func TestFireRecoversAfterFailedCascade(t *testing.T) {
	build := func() *Network {
		n, err := New(testLayers(t, []int{3, 2, 1}, []string{"transparent", "transparent", "sigmoid"}, "mean_squared"), WithInputs(1))
		if err != nil {
			t.Fatalf("new network: %v", err)
		}
		for position := 0; position < 3; position++ {
			if err := n.SetWeight(0, position, []float64{1}, 0); err != nil {
				t.Fatalf("set weight: %v", err)
			}
		}
		for position := 0; position < 2; position++ {
			if err := n.SetWeight(1, position, []float64{1, 1, 1}, 0); err != nil {
				t.Fatalf("set weight: %v", err)
			}
		}
		if err := n.SetWeight(2, 0, []float64{1, -1}, 0); err != nil {
			t.Fatalf("set weight: %v", err)
		}
		return n
	}

	n := build()
	if _, err := n.Fire(mat.NewDense(1, 1, []float64{1e308})); !errors.Is(err, ErrNonFinite) {
		t.Fatalf("expected overflowing input to fail, got: %v", err)
	}
	input := mat.NewDense(2, 1, []float64{0.5, -2})
	got, err := n.Fire(input)
	if err != nil {
		t.Fatalf("fire after failure: %v", err)
	}
	want, err := build().Fire(input)
	if err != nil {
		t.Fatalf("fire fresh network: %v", err)
	}
	if !mat.Equal(want, got) {
		t.Fatalf("failed cascade changed the next output:\n%v\n%v", mat.Formatted(want), mat.Formatted(got))
	}
	for i := range n.cells {
		for slot, ready := range n.cells[i].impulseReady {
			if ready {
				t.Fatalf("cell %d slot %d left reported", i, slot)
			}
		}
	}
}

func TestSoftMaxOutputSumsToOne(t *testing.T) {
	n, err := New(testLayers(t, []int{2, 4, 3}, []string{"transparent", "relu", "soft_max"}, "cross_entropy"), WithSeed(9))
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	out, err := n.Fire(mat.NewDense(4, 3, []float64{1, 2, 3, -1, 0, 1, 5, 5, 5, 0, 0, 0}))
	if err != nil {
		t.Fatalf("fire: %v", err)
	}
	rows, _ := out.Dims()
	for i := 0; i < rows; i++ {
		if total := mat.Sum(out.RowView(i)); math.Abs(total-1) > 1e-5 {
			t.Fatalf("row %d sums to %v", i, total)
		}
	}
}

func TestDelete(t *testing.T) {
	n, err := New(testLayers(t, []int{2, 1}, []string{"relu", "sigmoid"}, ""))
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	ctx := n.cells[0].Context()
	n.Delete()
	if ctx.Valid() {
		t.Fatal("expected context to be invalid after delete")
	}
	if _, err := n.Fire(mat.NewDense(1, 1, nil)); !errors.Is(err, ErrNetworkDeleted) {
		t.Fatalf("expected ErrNetworkDeleted, got: %v", err)
	}
	n.Delete()
}

func TestSetWeight(t *testing.T) {
	n, err := New(testLayers(t, []int{2, 1}, []string{"transparent", "transparent"}, ""), WithInputs(2))
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	for _, w := range []struct {
		layer, position int
		weight          []float64
		bias            float64
	}{
		{0, 0, []float64{1, 0}, 0},
		{0, 1, []float64{0, 1}, 0},
		{1, 0, []float64{2, 3}, 1},
	} {
		if err := n.SetWeight(w.layer, w.position, w.weight, w.bias); err != nil {
			t.Fatalf("set weight %d:%d: %v", w.layer, w.position, err)
		}
	}
	out, err := n.Fire(mat.NewDense(1, 2, []float64{1, 2}))
	if err != nil {
		t.Fatalf("fire: %v", err)
	}
	if got := out.At(0, 0); got != 9 {
		t.Fatalf("expected 2*1+3*2+1=9, got %v", got)
	}
	if err := n.SetWeight(1, 0, []float64{1}, 0); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got: %v", err)
	}
	if err := n.SetWeight(1, 0, []float64{1, math.Inf(1)}, 0); !errors.Is(err, ErrNonFinite) {
		t.Fatalf("expected ErrNonFinite, got: %v", err)
	}
}

func TestResizeWeightKeepsHead(t *testing.T) {
	n, err := New(testLayers(t, []int{1}, []string{"transparent"}, ""), WithInputs(2))
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	cell := &n.cells[0]
	if err := cell.setWeight(mat.NewDense(2, 1, []float64{4, 5}), 0); err != nil {
		t.Fatalf("set weight: %v", err)
	}
	cell.resizeWeight(3)
	if got := mat.Col(nil, 0, cell.weight); got[0] != 4 || got[1] != 5 || got[2] != 0 {
		t.Fatalf("unexpected grown weight: %v", got)
	}
	cell.resizeWeight(1)
	if got := mat.Col(nil, 0, cell.weight); len(got) != 1 || got[0] != 4 {
		t.Fatalf("unexpected shrunk weight: %v", got)
	}
}

func TestAccuracy(t *testing.T) {
	n, err := New(testLayers(t, []int{2}, []string{"transparent"}, ""), WithInputs(2))
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	if err := n.SetWeight(0, 0, []float64{1, 0}, 0); err != nil {
		t.Fatalf("set weight: %v", err)
	}
	if err := n.SetWeight(0, 1, []float64{0, 1}, 0); err != nil {
		t.Fatalf("set weight: %v", err)
	}
	input := mat.NewDense(3, 2, []float64{1, 0, 0, 1, 2, 1})
	target := mat.NewDense(3, 2, []float64{1, 0, 0, 1, 0, 1})
	accuracy, err := n.Accuracy(input, target)
	if err != nil {
		t.Fatalf("accuracy: %v", err)
	}
	if math.Abs(accuracy-2.0/3) > 1e-12 {
		t.Fatalf("expected accuracy 2/3, got %v", accuracy)
	}
}
