package stresnet

import (
	"fmt"

	"github.com/tsawler/go-stflow/layers"
	"github.com/tsawler/go-stflow/tensor"
)

// Backward propagates gradOut (d loss / d output) through the pass recorded
// in tr and accumulates parameter gradients. Call ZeroGrad between steps.
func (n *Network) Backward(tr *Trace, gradOut *tensor.Tensor) error {
	if tr == nil || tr.output == nil {
		return fmt.Errorf("backward requires a trace from Forward")
	}
	g, err := tensor.TanhBackward(tr.output, gradOut)
	if err != nil {
		return fmt.Errorf("output_tanh: %v", err)
	}

	for _, in := range n.spec.Inputs {
		if in.Name == layers.ExternalBranch {
			err = n.externalBackward(g, tr)
		} else {
			err = n.branchBackward(in.Name, g, tr)
		}
		if err != nil {
			return fmt.Errorf("%s branch: %v", in.Name, err)
		}
	}
	return nil
}

func (n *Network) branchBackward(branch string, g *tensor.Tensor, tr *Trace) error {
	specs := n.spec.LayersOf(branch)
	for i := len(specs) - 1; i >= 0; i-- {
		l := specs[i]
		cached, ok := tr.cache[l.Name]
		if !ok {
			return fmt.Errorf("no activations recorded for %s", l.Name)
		}

		var err error
		switch l.Type {
		case layers.Conv2D:
			g, err = n.convBackward(l, 0, cached[0], g)
		case layers.ReLU:
			g, err = tensor.ReLUBackward(cached[0], g)
		case layers.ResidualUnit:
			g, err = n.residualBackward(l, cached, g)
		case layers.Fusion:
			g, err = tensor.MulPerSampleBackward(cached[0], n.param(l, 0), g, n.grad(l, 0))
		default:
			err = fmt.Errorf("unexpected layer %s of type %s", l.Name, l.Type)
		}
		if err != nil {
			return fmt.Errorf("%s: %v", l.Name, err)
		}
	}
	return nil
}

// convBackward handles the convolution whose weight and bias are parameters
// first and first+1 of l, and returns the input gradient.
func (n *Network) convBackward(l layers.LayerSpec, first int, input, g *tensor.Tensor) (*tensor.Tensor, error) {
	gradIn, gradW, gradB, err := tensor.Conv2DBackward(input, n.param(l, first), g, padding)
	if err != nil {
		return nil, err
	}
	if err := tensor.AddInPlace(n.grad(l, first), gradW); err != nil {
		return nil, err
	}
	if err := tensor.AddInPlace(n.grad(l, first+1), gradB); err != nil {
		return nil, err
	}
	return gradIn, nil
}

func (n *Network) residualBackward(l layers.LayerSpec, cached []*tensor.Tensor, g *tensor.Tensor) (*tensor.Tensor, error) {
	x, r1, c1, r2 := cached[0], cached[1], cached[2], cached[3]

	gr2, err := n.convBackward(l, 2, r2, g)
	if err != nil {
		return nil, err
	}
	gc1, err := tensor.ReLUBackward(c1, gr2)
	if err != nil {
		return nil, err
	}
	gr1, err := n.convBackward(l, 0, r1, gc1)
	if err != nil {
		return nil, err
	}
	gx, err := tensor.ReLUBackward(x, gr1)
	if err != nil {
		return nil, err
	}
	// skip connection
	if err := tensor.AddInPlace(gx, g); err != nil {
		return nil, err
	}
	return gx, nil
}

func (n *Network) externalBackward(g *tensor.Tensor, tr *Trace) error {
	specs := n.spec.LayersOf(layers.ExternalBranch)
	flat, err := g.Reshape([]int{g.Len(), g.NumElems / g.Len()})
	if err != nil {
		return err
	}
	g = flat

	for i := len(specs) - 1; i >= 0; i-- {
		l := specs[i]
		cached, ok := tr.cache[l.Name]
		if !ok {
			return fmt.Errorf("no activations recorded for %s", l.Name)
		}
		switch l.Type {
		case layers.Dense:
			var gradW, gradB *tensor.Tensor
			g, gradW, gradB, err = tensor.DenseBackward(cached[0], n.param(l, 0), g)
			if err == nil {
				err = tensor.AddInPlace(n.grad(l, 0), gradW)
			}
			if err == nil {
				err = tensor.AddInPlace(n.grad(l, 1), gradB)
			}
		case layers.ReLU:
			g, err = tensor.ReLUBackward(cached[0], g)
		default:
			err = fmt.Errorf("unexpected layer %s of type %s", l.Name, l.Type)
		}
		if err != nil {
			return fmt.Errorf("%s: %v", l.Name, err)
		}
	}
	return nil
}
