package nn

import (
	"errors"
	"testing"

	"cellnet/internal/model"
)

func TestRegisterAndGetActivation(t *testing.T) {
	resetRegistriesForTests()
	t.Cleanup(resetRegistriesForTests)

	quad := elementwise{
		name:       "quad",
		fn:         func(z float64) float64 { return z * z },
		derivative: func(z, _ float64) float64 { return 2 * z },
	}
	if err := RegisterActivation(quad); err != nil {
		t.Fatalf("register activation: %v", err)
	}
	fn, err := GetActivation("quad")
	if err != nil {
		t.Fatalf("get activation: %v", err)
	}
	if fn.Name() != "quad" {
		t.Fatalf("unexpected activation: %s", fn.Name())
	}
}

func TestRegisterValidation(t *testing.T) {
	resetRegistriesForTests()
	t.Cleanup(resetRegistriesForTests)

	if err := RegisterActivation(nil); err == nil {
		t.Fatal("expected nil function error")
	}
	if err := RegisterActivation(elementwise{}); err == nil {
		t.Fatal("expected empty name error")
	}
	if err := RegisterCost(MeanSquared{}); !errors.Is(err, ErrFunctionExists) {
		t.Fatalf("expected ErrFunctionExists, got: %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	if _, err := GetActivation("missing"); !errors.Is(err, ErrFunctionNotFound) {
		t.Fatalf("expected ErrFunctionNotFound, got: %v", err)
	}
	if _, err := GetRouter("missing"); !errors.Is(err, ErrFunctionNotFound) {
		t.Fatalf("expected ErrFunctionNotFound, got: %v", err)
	}
}

func TestBuiltInsListedSorted(t *testing.T) {
	cases := map[string][]string{
		"activation":  ListActivations(),
		"aggregation": ListAggregations(),
		"cost":        ListCosts(),
		"optimizer":   ListOptimizers(),
		"router":      ListRouters(),
		"transfer":    ListTransfers(),
	}
	want := map[string]int{"activation": 10, "aggregation": 4, "cost": 2, "optimizer": 2, "router": 6, "transfer": 1}
	for kind, names := range cases {
		if len(names) != want[kind] {
			t.Fatalf("%s: expected %d built-ins, got %v", kind, want[kind], names)
		}
		for i := 1; i < len(names); i++ {
			if names[i-1] > names[i] {
				t.Fatalf("%s: names are not sorted: %v", kind, names)
			}
		}
	}
}

func TestKernelFromSpecDefaults(t *testing.T) {
	kernel, err := KernelFromSpec(model.KernelSpec{Activation: "sigmoid"})
	if err != nil {
		t.Fatalf("kernel from spec: %v", err)
	}
	spec := kernel.Spec()
	if spec.Transfer != "linear" || spec.Aggregation != "average" || spec.Cost != "mean_squared" || spec.Optimizer != "sgd" {
		t.Fatalf("unexpected defaults: %+v", spec)
	}
	if _, err := KernelFromSpec(model.KernelSpec{}); !errors.Is(err, ErrFunctionNotFound) {
		t.Fatalf("expected missing activation to fail, got: %v", err)
	}
	if _, err := KernelFromSpec(model.KernelSpec{Activation: "relu", Cost: "hinge"}); !errors.Is(err, ErrFunctionNotFound) {
		t.Fatalf("expected unknown cost to fail, got: %v", err)
	}
}
