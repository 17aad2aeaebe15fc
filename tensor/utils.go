package tensor

import (
	"fmt"
	"strings"
)

// Reshape returns a tensor sharing t's data under a new shape.
func (t *Tensor) Reshape(newShape []int) (*Tensor, error) {
	if err := validateShape(newShape); err != nil {
		return nil, err
	}
	if n := calculateNumElements(newShape); n != t.NumElems {
		return nil, fmt.Errorf("cannot reshape tensor of size %d into shape %v (size %d)", t.NumElems, newShape, n)
	}
	shape := make([]int, len(newShape))
	copy(shape, newShape)
	return &Tensor{
		Shape:    shape,
		Strides:  calculateStrides(shape),
		Data:     t.Data,
		NumElems: t.NumElems,
	}, nil
}

func (t *Tensor) Clone() *Tensor {
	c := alloc(t.Shape)
	copy(c.Data, t.Data)
	return c
}

// Len is the size of the leading (sample) axis.
func (t *Tensor) Len() int {
	if len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[0]
}

// SampleShape is the shape without the leading axis.
func (t *Tensor) SampleShape() []int {
	if len(t.Shape) < 2 {
		return []int{}
	}
	s := make([]int, len(t.Shape)-1)
	copy(s, t.Shape[1:])
	return s
}

// Rows returns samples [start, end) along the leading axis. The result
// shares memory with t.
func (t *Tensor) Rows(start, end int) (*Tensor, error) {
	n := t.Len()
	if start < 0 || end > n || start >= end {
		return nil, fmt.Errorf("row range [%d, %d) out of bounds for %d samples", start, end, n)
	}
	stride := t.NumElems / n
	shape := append([]int{end - start}, t.Shape[1:]...)
	return &Tensor{
		Shape:    shape,
		Strides:  calculateStrides(shape),
		Data:     t.Data[start*stride : end*stride],
		NumElems: (end - start) * stride,
	}, nil
}

// Gather copies the samples at indices into a new tensor, in order.
func (t *Tensor) Gather(indices []int) (*Tensor, error) {
	n := t.Len()
	if len(indices) == 0 {
		return nil, fmt.Errorf("gather needs at least one index")
	}
	stride := t.NumElems / n
	shape := append([]int{len(indices)}, t.Shape[1:]...)
	out := alloc(shape)
	for i, idx := range indices {
		if idx < 0 || idx >= n {
			return nil, fmt.Errorf("gather index %d out of range [0, %d)", idx, n)
		}
		copy(out.Data[i*stride:(i+1)*stride], t.Data[idx*stride:(idx+1)*stride])
	}
	return out, nil
}

// Fill sets every element to v.
func (t *Tensor) Fill(v float32) {
	for i := range t.Data {
		t.Data[i] = v
	}
}

func (t *Tensor) PrintData(maxElements int) string {
	var b strings.Builder
	b.WriteString(t.String())
	b.WriteString(" [")
	for i, v := range t.Data {
		if i >= maxElements {
			b.WriteString(" ...")
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%.4f", v)
	}
	b.WriteString("]")
	return b.String()
}
