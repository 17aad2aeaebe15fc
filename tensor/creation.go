package tensor

import (
	"fmt"
	"math"
	"math/rand"
)

// NewTensor wraps data in a tensor of the given shape. The slice is used
// directly, not copied.
func NewTensor(shape []int, data []float32) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	t := alloc(shape)
	if data != nil {
		if len(data) != t.NumElems {
			return nil, fmt.Errorf("data length %d does not match tensor size %d", len(data), t.NumElems)
		}
		t.Data = data
	}
	return t, nil
}

func Zeros(shape []int) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	return alloc(shape), nil
}

func Full(shape []int, value float32) (*Tensor, error) {
	t, err := Zeros(shape)
	if err != nil {
		return nil, err
	}
	for i := range t.Data {
		t.Data[i] = value
	}
	return t, nil
}

// RandomUniform fills a tensor with values drawn from [low, high).
func RandomUniform(shape []int, low, high float32, rng *rand.Rand) (*Tensor, error) {
	t, err := Zeros(shape)
	if err != nil {
		return nil, err
	}
	for i := range t.Data {
		t.Data[i] = low + rng.Float32()*(high-low)
	}
	return t, nil
}

// GlorotUniform draws from U(-limit, limit) with limit = sqrt(6 / (fanIn + fanOut)).
func GlorotUniform(shape []int, fanIn, fanOut int, rng *rand.Rand) (*Tensor, error) {
	if fanIn+fanOut <= 0 {
		return nil, fmt.Errorf("invalid fan sizes: in=%d out=%d", fanIn, fanOut)
	}
	limit := float32(math.Sqrt(6.0 / float64(fanIn+fanOut)))
	return RandomUniform(shape, -limit, limit, rng)
}

// Stack joins same-shaped tensors along a new leading axis.
func Stack(items []*Tensor) (*Tensor, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("cannot stack zero tensors")
	}
	inner := items[0].Shape
	shape := append([]int{len(items)}, inner...)
	out := alloc(shape)
	stride := items[0].NumElems
	for i, it := range items {
		if !ShapesEqual(it.Shape, inner) {
			return nil, fmt.Errorf("stack item %d has shape %v, expected %v", i, it.Shape, inner)
		}
		copy(out.Data[i*stride:(i+1)*stride], it.Data)
	}
	return out, nil
}
