package tensor

import "fmt"

// Conv2D computes a stride-1 2D convolution.
// input [N, C, H, W], weight [O, C, K, K], bias [O] or nil.
// Output is [N, O, H+2p-K+1, W+2p-K+1].
func Conv2D(input, weight, bias *Tensor, padding int) (*Tensor, error) {
	n, c, h, w, o, k, err := convDims(input, weight)
	if err != nil {
		return nil, err
	}
	if bias != nil && (len(bias.Shape) != 1 || bias.Shape[0] != o) {
		return nil, fmt.Errorf("conv2d bias shape %v, expected [%d]", bias.Shape, o)
	}
	ho, wo := h+2*padding-k+1, w+2*padding-k+1
	if ho <= 0 || wo <= 0 {
		return nil, fmt.Errorf("conv2d output would be empty for input %dx%d, kernel %d, padding %d", h, w, k, padding)
	}

	out := alloc([]int{n, o, ho, wo})
	inPlane, outPlane := h*w, ho*wo

	for b := 0; b < n; b++ {
		for oc := 0; oc < o; oc++ {
			dst := out.Data[(b*o+oc)*outPlane : (b*o+oc+1)*outPlane]
			if bias != nil {
				bv := bias.Data[oc]
				for i := range dst {
					dst[i] = bv
				}
			}
			for ic := 0; ic < c; ic++ {
				src := input.Data[(b*c+ic)*inPlane : (b*c+ic+1)*inPlane]
				kbase := (oc*c + ic) * k * k
				for ky := 0; ky < k; ky++ {
					dy := ky - padding
					y0, y1 := span(dy, ho, h)
					for kx := 0; kx < k; kx++ {
						wv := weight.Data[kbase+ky*k+kx]
						if wv == 0 {
							continue
						}
						dx := kx - padding
						x0, x1 := span(dx, wo, w)
						for y := y0; y < y1; y++ {
							// off+x is never negative: x >= x0 >= -dx
							off := (y+dy)*w + dx
							drow := dst[y*wo:]
							for x := x0; x < x1; x++ {
								drow[x] += wv * src[off+x]
							}
						}
					}
				}
			}
		}
	}
	return out, nil
}

// Conv2DBackward returns gradients for input, weight and bias of Conv2D.
func Conv2DBackward(input, weight, gradOut *Tensor, padding int) (gradIn, gradWeight, gradBias *Tensor, err error) {
	n, c, h, w, o, k, err := convDims(input, weight)
	if err != nil {
		return nil, nil, nil, err
	}
	ho, wo := h+2*padding-k+1, w+2*padding-k+1
	if !ShapesEqual(gradOut.Shape, []int{n, o, ho, wo}) {
		return nil, nil, nil, fmt.Errorf("conv2d gradient shape %v, expected %v", gradOut.Shape, []int{n, o, ho, wo})
	}

	gradIn = alloc(input.Shape)
	gradWeight = alloc(weight.Shape)
	gradBias = alloc([]int{o})
	inPlane, outPlane := h*w, ho*wo

	for b := 0; b < n; b++ {
		for oc := 0; oc < o; oc++ {
			g := gradOut.Data[(b*o+oc)*outPlane : (b*o+oc+1)*outPlane]
			var gb float32
			for _, v := range g {
				gb += v
			}
			gradBias.Data[oc] += gb

			for ic := 0; ic < c; ic++ {
				src := input.Data[(b*c+ic)*inPlane : (b*c+ic+1)*inPlane]
				gsrc := gradIn.Data[(b*c+ic)*inPlane : (b*c+ic+1)*inPlane]
				kbase := (oc*c + ic) * k * k
				for ky := 0; ky < k; ky++ {
					dy := ky - padding
					y0, y1 := span(dy, ho, h)
					for kx := 0; kx < k; kx++ {
						wv := weight.Data[kbase+ky*k+kx]
						dx := kx - padding
						x0, x1 := span(dx, wo, w)
						var gw float32
						for y := y0; y < y1; y++ {
							off := (y+dy)*w + dx
							orow := g[y*wo:]
							for x := x0; x < x1; x++ {
								gv := orow[x]
								gw += gv * src[off+x]
								gsrc[off+x] += gv * wv
							}
						}
						gradWeight.Data[kbase+ky*k+kx] += gw
					}
				}
			}
		}
	}
	return gradIn, gradWeight, gradBias, nil
}

func convDims(input, weight *Tensor) (n, c, h, w, o, k int, err error) {
	if len(input.Shape) != 4 {
		return 0, 0, 0, 0, 0, 0, fmt.Errorf("conv2d requires 4D input [batch, channels, height, width], got %v", input.Shape)
	}
	if len(weight.Shape) != 4 || weight.Shape[2] != weight.Shape[3] {
		return 0, 0, 0, 0, 0, 0, fmt.Errorf("conv2d requires square 4D weight [out, in, k, k], got %v", weight.Shape)
	}
	n, c, h, w = input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	o, k = weight.Shape[0], weight.Shape[2]
	if weight.Shape[1] != c {
		return 0, 0, 0, 0, 0, 0, fmt.Errorf("conv2d weight expects %d input channels, input has %d", weight.Shape[1], c)
	}
	return n, c, h, w, o, k, nil
}

// span returns the output range [lo, hi) whose rows (or columns) shifted by
// d stay inside an input of size size.
func span(d, out, size int) (int, int) {
	lo, hi := 0, out
	if -d > lo {
		lo = -d
	}
	if size-d < hi {
		hi = size - d
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}
