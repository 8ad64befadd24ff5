package nn

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrShapeMismatch       = errors.New("shape mismatch")
	ErrBrokenCell          = errors.New("broken cell")
	ErrNonFinite           = errors.New("non-finite value")
	ErrMalformedTopology   = errors.New("malformed topology")
	ErrRouterUnimplemented = errors.New("router not implemented")
	ErrNetworkDeleted      = errors.New("network deleted")
)

func checkVector(v *mat.VecDense, what string) error {
	if v == nil {
		return fmt.Errorf("%w: %s is missing", ErrBrokenCell, what)
	}
	for i := 0; i < v.Len(); i++ {
		if x := v.AtVec(i); math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: %s[%d]=%v", ErrNonFinite, what, i, x)
		}
	}
	return nil
}

func checkMatrix(m mat.Matrix, what string) error {
	if m == nil {
		return fmt.Errorf("%w: %s is missing", ErrBrokenCell, what)
	}
	rows, cols := m.Dims()
	if rows == 0 || cols == 0 {
		return fmt.Errorf("%w: %s is empty", ErrShapeMismatch, what)
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if x := m.At(i, j); math.IsNaN(x) || math.IsInf(x, 0) {
				return fmt.Errorf("%w: %s[%d,%d]=%v", ErrNonFinite, what, i, j, x)
			}
		}
	}
	return nil
}
