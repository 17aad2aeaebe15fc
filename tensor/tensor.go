package tensor

import (
	"fmt"
)

// Tensor is a dense, row-major float32 array. Every kernel in this package
// works on contiguous data, so Strides always describe the canonical layout.
type Tensor struct {
	Shape    []int
	Strides  []int
	Data     []float32
	NumElems int
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, elements=%d)", t.Shape, t.NumElems)
}

func calculateStrides(shape []int) []int {
	if len(shape) == 0 {
		return []int{}
	}

	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func calculateNumElements(shape []int) int {
	if len(shape) == 0 {
		return 0
	}

	elements := 1
	for _, dim := range shape {
		elements *= dim
	}
	return elements
}

func validateShape(shape []int) error {
	if len(shape) == 0 {
		return fmt.Errorf("invalid shape: at least one dimension is required")
	}
	for i, dim := range shape {
		if dim <= 0 {
			return fmt.Errorf("invalid shape: dimension %d has size %d, must be positive", i, dim)
		}
	}
	return nil
}

// alloc creates a zeroed tensor for a shape the caller has already validated.
func alloc(shape []int) *Tensor {
	s := make([]int, len(shape))
	copy(s, shape)
	n := calculateNumElements(s)
	return &Tensor{
		Shape:    s,
		Strides:  calculateStrides(s),
		Data:     make([]float32, n),
		NumElems: n,
	}
}

// ShapesEqual reports whether two shapes have identical dimensions.
func ShapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
