// Package stresnet executes a compiled ST-ResNet model specification on the
// CPU: forward passes for prediction and loss, and backward passes that
// accumulate parameter gradients.
package stresnet

import (
	"fmt"
	"math/rand"

	"github.com/tsawler/go-stflow/layers"
	"github.com/tsawler/go-stflow/tensor"
)

const padding = 1

// Network holds the parameters of one ST-ResNet and their gradients, laid
// out in ModelSpec.ParameterNames order.
type Network struct {
	spec   *layers.ModelSpec
	names  []string
	params []*tensor.Tensor
	grads  []*tensor.Tensor
	index  map[string]int
}

// New allocates and initializes a network for spec. Convolution and dense
// kernels use Glorot-uniform, fusion weights are uniform in [0, 1) and
// biases start at zero.
func New(spec *layers.ModelSpec, rng *rand.Rand) (*Network, error) {
	if spec == nil || !spec.Compiled {
		return nil, fmt.Errorf("model spec must be compiled")
	}

	net := &Network{
		spec:  spec,
		names: spec.ParameterNames(),
		index: make(map[string]int),
	}

	for _, l := range spec.Layers {
		for i, name := range l.ParameterNames {
			shape := l.ParameterShapes[i]
			p, err := initParameter(l.Type, shape, rng)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize %s: %v", name, err)
			}
			g, err := tensor.Zeros(shape)
			if err != nil {
				return nil, err
			}
			net.index[name] = len(net.params)
			net.params = append(net.params, p)
			net.grads = append(net.grads, g)
		}
	}
	return net, nil
}

func initParameter(t layers.LayerType, shape []int, rng *rand.Rand) (*tensor.Tensor, error) {
	switch {
	case len(shape) == 1:
		return tensor.Zeros(shape)
	case t == layers.Fusion:
		return tensor.RandomUniform(shape, 0, 1, rng)
	case len(shape) == 4:
		receptive := shape[2] * shape[3]
		return tensor.GlorotUniform(shape, shape[1]*receptive, shape[0]*receptive, rng)
	case len(shape) == 2:
		return tensor.GlorotUniform(shape, shape[0], shape[1], rng)
	default:
		return nil, fmt.Errorf("unsupported parameter shape %v", shape)
	}
}

func (n *Network) Spec() *layers.ModelSpec { return n.spec }

// InputSignature returns the per-sample shape of each input, in input order.
func (n *Network) InputSignature() []layers.InputSpec { return n.spec.Inputs }

func (n *Network) ParameterNames() []string { return n.names }

func (n *Network) Parameters() []*tensor.Tensor { return n.params }

func (n *Network) Gradients() []*tensor.Tensor { return n.grads }

// Parameter returns the named parameter, or nil.
func (n *Network) Parameter(name string) *tensor.Tensor {
	i, ok := n.index[name]
	if !ok {
		return nil
	}
	return n.params[i]
}

func (n *Network) ZeroGrad() {
	for _, g := range n.grads {
		g.Fill(0)
	}
}

// SetParameters copies values into the network's parameters. The count and
// every shape must match.
func (n *Network) SetParameters(values []*tensor.Tensor) error {
	if len(values) != len(n.params) {
		return fmt.Errorf("expected %d parameters, got %d", len(n.params), len(values))
	}
	for i, v := range values {
		if !tensor.ShapesEqual(v.Shape, n.params[i].Shape) {
			return fmt.Errorf("parameter %s: expected shape %v, got %v", n.names[i], n.params[i].Shape, v.Shape)
		}
	}
	for i, v := range values {
		copy(n.params[i].Data, v.Data)
	}
	return nil
}

// CheckInputs verifies input arity and per-sample shapes, and that every
// input has the same number of samples.
func (n *Network) CheckInputs(inputs []*tensor.Tensor) error {
	if len(inputs) != len(n.spec.Inputs) {
		return fmt.Errorf("model expects %d inputs, got %d", len(n.spec.Inputs), len(inputs))
	}
	count := -1
	for i, in := range n.spec.Inputs {
		x := inputs[i]
		if x == nil {
			return fmt.Errorf("input %s is nil", in.Name)
		}
		if !tensor.ShapesEqual(x.SampleShape(), in.Shape) {
			return fmt.Errorf("input %s: expected sample shape %v, got %v", in.Name, in.Shape, x.SampleShape())
		}
		if count >= 0 && x.Len() != count {
			return fmt.Errorf("input %s has %d samples, expected %d", in.Name, x.Len(), count)
		}
		count = x.Len()
	}
	return nil
}
