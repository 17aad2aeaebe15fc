package tensor

import "fmt"

// Dense computes input [N, I] x weight [I, O] + bias [O].
func Dense(input, weight, bias *Tensor) (*Tensor, error) {
	if len(input.Shape) != 2 || len(weight.Shape) != 2 || input.Shape[1] != weight.Shape[0] {
		return nil, fmt.Errorf("dense shape mismatch: input %v, weight %v", input.Shape, weight.Shape)
	}
	n, in, o := input.Shape[0], weight.Shape[0], weight.Shape[1]
	if bias != nil && (len(bias.Shape) != 1 || bias.Shape[0] != o) {
		return nil, fmt.Errorf("dense bias shape %v, expected [%d]", bias.Shape, o)
	}

	out := alloc([]int{n, o})
	for b := 0; b < n; b++ {
		row := out.Data[b*o : (b+1)*o]
		if bias != nil {
			copy(row, bias.Data)
		}
		for i := 0; i < in; i++ {
			x := input.Data[b*in+i]
			if x == 0 {
				continue
			}
			wrow := weight.Data[i*o : (i+1)*o]
			for j, wv := range wrow {
				row[j] += x * wv
			}
		}
	}
	return out, nil
}

// DenseBackward returns gradients for input, weight and bias of Dense.
func DenseBackward(input, weight, gradOut *Tensor) (gradIn, gradWeight, gradBias *Tensor, err error) {
	if len(input.Shape) != 2 || len(weight.Shape) != 2 || input.Shape[1] != weight.Shape[0] {
		return nil, nil, nil, fmt.Errorf("dense shape mismatch: input %v, weight %v", input.Shape, weight.Shape)
	}
	n, in, o := input.Shape[0], weight.Shape[0], weight.Shape[1]
	if !ShapesEqual(gradOut.Shape, []int{n, o}) {
		return nil, nil, nil, fmt.Errorf("dense gradient shape %v, expected [%d %d]", gradOut.Shape, n, o)
	}

	gradIn = alloc(input.Shape)
	gradWeight = alloc(weight.Shape)
	gradBias = alloc([]int{o})
	for b := 0; b < n; b++ {
		g := gradOut.Data[b*o : (b+1)*o]
		for j, gv := range g {
			gradBias.Data[j] += gv
		}
		for i := 0; i < in; i++ {
			x := input.Data[b*in+i]
			wrow := weight.Data[i*o : (i+1)*o]
			gwrow := gradWeight.Data[i*o : (i+1)*o]
			var acc float32
			for j, gv := range g {
				acc += gv * wrow[j]
				gwrow[j] += gv * x
			}
			gradIn.Data[b*in+i] = acc
		}
	}
	return gradIn, gradWeight, gradBias, nil
}
