package nn

import (
	"errors"
	"math"
	"testing"

	"cellnet/internal/model"
)

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"sigmoid":                   "sigmoid",
		"Soft-Max":                  "soft_max",
		"softmax":                   "soft_max",
		"SoftPlus":                  "soft_plus",
		" leaky relu ":              "leaky_relu",
		"LeakyReLU":                 "leaky_relu",
		"heaviside":                 "heaviside_step",
		"identity":                  "transparent",
		"MSE":                       "mean_squared",
		"mean-squared-error":        "mean_squared",
		"CrossEntropy":              "cross_entropy",
		"categorical_cross_entropy": "cross_entropy",
		"avg":                       "average",
		"custom-kernel":             "custom_kernel",
		"__":                        "",
		"":                          "",
	}
	for in, want := range cases {
		if got := NormalizeName(in); got != want {
			t.Fatalf("NormalizeName(%q)=%q want=%q", in, got, want)
		}
	}
}

func TestLookupByAlias(t *testing.T) {
	activation, err := GetActivation("Soft-Max")
	if err != nil {
		t.Fatalf("get activation: %v", err)
	}
	if activation.Name() != "soft_max" {
		t.Fatalf("expected soft_max, got %s", activation.Name())
	}
	cost, err := GetCost("mse")
	if err != nil {
		t.Fatalf("get cost: %v", err)
	}
	if cost.Name() != "mean_squared" {
		t.Fatalf("expected mean_squared, got %s", cost.Name())
	}
	if _, err := GetOptimizer("SGD"); err != nil {
		t.Fatalf("get optimizer: %v", err)
	}
}

func TestRegisterStoresCanonicalName(t *testing.T) {
	resetRegistriesForTests()
	t.Cleanup(resetRegistriesForTests)

	cube := elementwise{
		name:       "Cube-Root",
		fn:         math.Cbrt,
		derivative: func(_, a float64) float64 { return 1 / (3 * a * a) },
	}
	if err := RegisterActivation(cube); err != nil {
		t.Fatalf("register activation: %v", err)
	}
	names := ListActivations()
	found := false
	for _, name := range names {
		if name == "Cube-Root" {
			t.Fatalf("expected canonical key, got %v", names)
		}
		found = found || name == "cube_root"
	}
	if !found {
		t.Fatalf("expected cube_root in %v", names)
	}

	kernel, err := KernelFromSpec(model.KernelSpec{Activation: "CUBE ROOT"})
	if err != nil {
		t.Fatalf("kernel: %v", err)
	}
	if got := kernel.Spec().Activation; got != "cube_root" {
		t.Fatalf("expected canonical spec name, got %q", got)
	}

	leaky := elementwise{name: "LeakyReLU", fn: math.Abs, derivative: func(_, _ float64) float64 { return 1 }}
	if err := RegisterActivation(leaky); !errors.Is(err, ErrFunctionExists) {
		t.Fatalf("expected LeakyReLU to collide with leaky_relu, got: %v", err)
	}
}
