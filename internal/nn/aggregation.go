package nn

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

type aggregationFunc struct {
	name string
	fn   func(values []float64) float64
}

func (a aggregationFunc) Name() string { return a.name }

func (a aggregationFunc) Of(v mat.Vector) float64 {
	values := make([]float64, v.Len())
	for i := range values {
		values[i] = v.AtVec(i)
	}
	return a.fn(values)
}

func sum(values []float64) float64 {
	return floats.Sum(values)
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sort.Float64s(values)
	return stat.Quantile(0.5, stat.Empirical, values, nil)
}
