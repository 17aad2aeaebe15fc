package stresnet

import (
	"fmt"

	"github.com/tsawler/go-stflow/layers"
	"github.com/tsawler/go-stflow/tensor"
)

// Trace records the activations of one forward pass so Backward can
// compute gradients. Keys are layer names.
type Trace struct {
	cache  map[string][]*tensor.Tensor
	output *tensor.Tensor
}

// Output is the network output recorded in the trace.
func (tr *Trace) Output() *tensor.Tensor { return tr.output }

func (tr *Trace) keep(name string, values ...*tensor.Tensor) {
	if tr != nil {
		tr.cache[name] = values
	}
}

// Forward runs the network and keeps the activations needed by Backward.
func (n *Network) Forward(inputs []*tensor.Tensor) (*tensor.Tensor, *Trace, error) {
	tr := &Trace{cache: make(map[string][]*tensor.Tensor)}
	out, err := n.forward(inputs, tr)
	if err != nil {
		return nil, nil, err
	}
	tr.output = out
	return out, tr, nil
}

// Predict runs the network without retaining intermediate activations.
func (n *Network) Predict(inputs []*tensor.Tensor) (*tensor.Tensor, error) {
	return n.forward(inputs, nil)
}

func (n *Network) forward(inputs []*tensor.Tensor, tr *Trace) (*tensor.Tensor, error) {
	if err := n.CheckInputs(inputs); err != nil {
		return nil, err
	}

	var sum *tensor.Tensor
	for i, in := range n.spec.Inputs {
		var out *tensor.Tensor
		var err error
		if in.Name == layers.ExternalBranch {
			out, err = n.externalForward(inputs[i], tr)
		} else {
			out, err = n.branchForward(in.Name, inputs[i], tr)
		}
		if err != nil {
			return nil, fmt.Errorf("%s branch: %v", in.Name, err)
		}
		if sum == nil {
			sum = out
			continue
		}
		if err := tensor.AddInPlace(sum, out); err != nil {
			return nil, fmt.Errorf("%s branch: %v", in.Name, err)
		}
	}

	return tensor.Tanh(sum), nil
}

func (n *Network) branchForward(branch string, x *tensor.Tensor, tr *Trace) (*tensor.Tensor, error) {
	var err error
	for _, l := range n.spec.LayersOf(branch) {
		in := x
		switch l.Type {
		case layers.Conv2D:
			x, err = tensor.Conv2D(in, n.param(l, 0), n.param(l, 1), padding)
			tr.keep(l.Name, in)
		case layers.ReLU:
			x = tensor.ReLU(in)
			tr.keep(l.Name, in)
		case layers.ResidualUnit:
			x, err = n.residualForward(l, in, tr)
		case layers.Fusion:
			x, err = tensor.MulPerSample(in, n.param(l, 0))
			tr.keep(l.Name, in)
		default:
			err = fmt.Errorf("unexpected layer %s of type %s", l.Name, l.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %v", l.Name, err)
		}
	}
	return x, nil
}

func (n *Network) residualForward(l layers.LayerSpec, x *tensor.Tensor, tr *Trace) (*tensor.Tensor, error) {
	r1 := tensor.ReLU(x)
	c1, err := tensor.Conv2D(r1, n.param(l, 0), n.param(l, 1), padding)
	if err != nil {
		return nil, err
	}
	r2 := tensor.ReLU(c1)
	c2, err := tensor.Conv2D(r2, n.param(l, 2), n.param(l, 3), padding)
	if err != nil {
		return nil, err
	}
	tr.keep(l.Name, x, r1, c1, r2)
	return tensor.Add(x, c2)
}

func (n *Network) externalForward(x *tensor.Tensor, tr *Trace) (*tensor.Tensor, error) {
	var err error
	for _, l := range n.spec.LayersOf(layers.ExternalBranch) {
		in := x
		switch l.Type {
		case layers.Dense:
			x, err = tensor.Dense(in, n.param(l, 0), n.param(l, 1))
		case layers.ReLU:
			x = tensor.ReLU(in)
		default:
			err = fmt.Errorf("unexpected layer %s of type %s", l.Name, l.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %v", l.Name, err)
		}
		tr.keep(l.Name, in)
	}
	return x.Reshape(append([]int{x.Len()}, n.spec.OutputShape...))
}

func (n *Network) param(l layers.LayerSpec, i int) *tensor.Tensor {
	return n.params[n.index[l.ParameterNames[i]]]
}

func (n *Network) grad(l layers.LayerSpec, i int) *tensor.Tensor {
	return n.grads[n.index[l.ParameterNames[i]]]
}
