package layers

import (
	"errors"
	"fmt"
	"strings"
)

// LayerType represents the type of a network layer
type LayerType int

const (
	Conv2D LayerType = iota
	ReLU
	ResidualUnit
	Fusion
	Dense
	Tanh
)

func (lt LayerType) String() string {
	switch lt {
	case Conv2D:
		return "Conv2D"
	case ReLU:
		return "ReLU"
	case ResidualUnit:
		return "ResidualUnit"
	case Fusion:
		return "Fusion"
	case Dense:
		return "Dense"
	case Tanh:
		return "Tanh"
	default:
		return "Unknown"
	}
}

// ErrNoActiveViews is returned when every temporal view is absent. A model
// with no spatial input cannot be built.
var ErrNoActiveViews = errors.New("at least one temporal view must be active")

// Branch names used for layers that do not belong to a temporal view.
const (
	ExternalBranch = "external"
	OutputBranch   = "output"
)

// LayerSpec defines layer configuration. This is pure configuration - no
// execution logic. Shapes are per sample (no batch axis).
type LayerSpec struct {
	Type       LayerType              `json:"type"`
	Name       string                 `json:"name"`
	Branch     string                 `json:"branch"`
	Parameters map[string]interface{} `json:"parameters"`

	InputShape  []int `json:"input_shape,omitempty"`
	OutputShape []int `json:"output_shape,omitempty"`

	ParameterNames  []string `json:"parameter_names,omitempty"`
	ParameterShapes [][]int  `json:"parameter_shapes,omitempty"`
	ParameterCount  int64    `json:"parameter_count,omitempty"`
}

// InputSpec names one model input and its per-sample shape.
type InputSpec struct {
	Name  string `json:"name"`
	Shape []int  `json:"shape"`
}

// ModelSpec is a compiled ST-ResNet configuration.
type ModelSpec struct {
	Inputs []InputSpec `json:"inputs"`
	Layers []LayerSpec `json:"layers"`

	Filters        int `json:"filters"`
	ResidualUnits  int `json:"residual_units"`
	ExternalDim    int `json:"external_dim"`
	ExternalHidden int `json:"external_hidden"`

	TotalParameters int64   `json:"total_parameters"`
	ParameterShapes [][]int `json:"parameter_shapes"`
	OutputShape     []int   `json:"output_shape"`
	Compiled        bool    `json:"compiled"`
}

// ParameterNames returns the flattened parameter names in the order of
// ParameterShapes.
func (ms *ModelSpec) ParameterNames() []string {
	var names []string
	for _, l := range ms.Layers {
		names = append(names, l.ParameterNames...)
	}
	return names
}

// LayersOf returns the layers belonging to a branch, in order.
func (ms *ModelSpec) LayersOf(branch string) []LayerSpec {
	var out []LayerSpec
	for _, l := range ms.Layers {
		if l.Branch == branch {
			out = append(out, l)
		}
	}
	return out
}

// Compatible reports whether two specs have identical parameter layouts,
// i.e. whether weights saved from one can be loaded into the other.
func (ms *ModelSpec) Compatible(other *ModelSpec) bool {
	if other == nil || len(ms.ParameterShapes) != len(other.ParameterShapes) {
		return false
	}
	for i, shape := range ms.ParameterShapes {
		o := other.ParameterShapes[i]
		if len(shape) != len(o) {
			return false
		}
		for j := range shape {
			if shape[j] != o[j] {
				return false
			}
		}
	}
	return true
}

// Summary returns a human-readable model summary
func (ms *ModelSpec) Summary() string {
	if !ms.Compiled {
		return "Model not compiled"
	}

	var b strings.Builder
	b.WriteString("Model Summary:\n")
	for _, in := range ms.Inputs {
		fmt.Fprintf(&b, "Input %-10s %v\n", in.Name, in.Shape)
	}
	fmt.Fprintf(&b, "Output Shape: %v\n", ms.OutputShape)
	fmt.Fprintf(&b, "Total Parameters: %d\n", ms.TotalParameters)
	fmt.Fprintf(&b, "Layers: %d\n\n", len(ms.Layers))

	for i, layer := range ms.Layers {
		fmt.Fprintf(&b, "Layer %d: %s (%s)\n", i+1, layer.Name, layer.Type.String())
		fmt.Fprintf(&b, "  Input:  %v\n", layer.InputShape)
		fmt.Fprintf(&b, "  Output: %v\n", layer.OutputShape)
		fmt.Fprintf(&b, "  Params: %d\n", layer.ParameterCount)
	}
	return b.String()
}
