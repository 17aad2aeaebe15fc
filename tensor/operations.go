package tensor

import (
	"fmt"
	"math"
)

func checkShapesMatch(t1, t2 *Tensor) error {
	if !ShapesEqual(t1.Shape, t2.Shape) {
		return fmt.Errorf("shape mismatch: %v vs %v", t1.Shape, t2.Shape)
	}
	return nil
}

func Add(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkShapesMatch(t1, t2); err != nil {
		return nil, err
	}
	out := alloc(t1.Shape)
	for i := range out.Data {
		out.Data[i] = t1.Data[i] + t2.Data[i]
	}
	return out, nil
}

// AddInPlace accumulates src into dst.
func AddInPlace(dst, src *Tensor) error {
	if err := checkShapesMatch(dst, src); err != nil {
		return err
	}
	for i, v := range src.Data {
		dst.Data[i] += v
	}
	return nil
}

func Sub(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkShapesMatch(t1, t2); err != nil {
		return nil, err
	}
	out := alloc(t1.Shape)
	for i := range out.Data {
		out.Data[i] = t1.Data[i] - t2.Data[i]
	}
	return out, nil
}

func Mul(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkShapesMatch(t1, t2); err != nil {
		return nil, err
	}
	out := alloc(t1.Shape)
	for i := range out.Data {
		out.Data[i] = t1.Data[i] * t2.Data[i]
	}
	return out, nil
}

func ReLU(t *Tensor) *Tensor {
	out := alloc(t.Shape)
	for i, v := range t.Data {
		if v > 0 {
			out.Data[i] = v
		}
	}
	return out
}

// ReLUBackward masks gradOut by the positive entries of the ReLU input.
func ReLUBackward(input, gradOut *Tensor) (*Tensor, error) {
	if err := checkShapesMatch(input, gradOut); err != nil {
		return nil, err
	}
	out := alloc(input.Shape)
	for i, v := range input.Data {
		if v > 0 {
			out.Data[i] = gradOut.Data[i]
		}
	}
	return out, nil
}

func Tanh(t *Tensor) *Tensor {
	out := alloc(t.Shape)
	for i, v := range t.Data {
		out.Data[i] = float32(math.Tanh(float64(v)))
	}
	return out
}

// TanhBackward takes the tanh output (not its input).
func TanhBackward(output, gradOut *Tensor) (*Tensor, error) {
	if err := checkShapesMatch(output, gradOut); err != nil {
		return nil, err
	}
	out := alloc(output.Shape)
	for i, y := range output.Data {
		out.Data[i] = gradOut.Data[i] * (1 - y*y)
	}
	return out, nil
}

// MulPerSample multiplies every sample of input [N, ...] elementwise by
// weight, whose shape equals the sample shape.
func MulPerSample(input, weight *Tensor) (*Tensor, error) {
	if !ShapesEqual(input.SampleShape(), weight.Shape) {
		return nil, fmt.Errorf("per-sample weight shape %v does not match sample shape %v", weight.Shape, input.SampleShape())
	}
	out := alloc(input.Shape)
	stride := weight.NumElems
	for n := 0; n < input.Len(); n++ {
		base := n * stride
		for i, w := range weight.Data {
			out.Data[base+i] = input.Data[base+i] * w
		}
	}
	return out, nil
}

// MulPerSampleBackward returns the input gradient and accumulates the
// weight gradient into gradWeight.
func MulPerSampleBackward(input, weight, gradOut, gradWeight *Tensor) (*Tensor, error) {
	if err := checkShapesMatch(input, gradOut); err != nil {
		return nil, err
	}
	if err := checkShapesMatch(weight, gradWeight); err != nil {
		return nil, err
	}
	gradIn := alloc(input.Shape)
	stride := weight.NumElems
	for n := 0; n < input.Len(); n++ {
		base := n * stride
		for i, w := range weight.Data {
			g := gradOut.Data[base+i]
			gradIn.Data[base+i] = g * w
			gradWeight.Data[i] += g * input.Data[base+i]
		}
	}
	return gradIn, nil
}

// SumSquares returns the sum of squared elements in float64.
func SumSquares(t *Tensor) float64 {
	var s float64
	for _, v := range t.Data {
		s += float64(v) * float64(v)
	}
	return s
}
