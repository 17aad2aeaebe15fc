package layers

import (
	"fmt"
)

const (
	defaultFilters        = 64
	defaultExternalHidden = 10
	kernelSize            = 3
)

// STResNetBuilder assembles the configuration of a spatio-temporal residual
// network: one convolutional residual branch per active view, fused with
// learnable elementwise weights, plus an optional external-feature branch.
type STResNetBuilder struct {
	views          ViewConfigs
	residualUnits  int
	filters        int
	externalDim    int
	externalHidden int
}

// NewSTResNetBuilder creates a builder for the given number of residual
// units per branch.
func NewSTResNetBuilder(residualUnits int) *STResNetBuilder {
	return &STResNetBuilder{
		views:          ViewConfigs{},
		residualUnits:  residualUnits,
		filters:        defaultFilters,
		externalHidden: defaultExternalHidden,
	}
}

// AddView sets the configuration of one view. A nil config marks it absent.
func (b *STResNetBuilder) AddView(name ViewName, cfg *ViewConfig) *STResNetBuilder {
	b.views[name] = cfg
	return b
}

func (b *STResNetBuilder) AddViews(views ViewConfigs) *STResNetBuilder {
	for name, cfg := range views {
		b.AddView(name, cfg)
	}
	return b
}

// SetExternal wires an external feature input of dim values. Zero disables it.
func (b *STResNetBuilder) SetExternal(dim int) *STResNetBuilder {
	b.externalDim = dim
	return b
}

func (b *STResNetBuilder) SetFilters(filters int) *STResNetBuilder {
	b.filters = filters
	return b
}

func (b *STResNetBuilder) SetExternalHidden(hidden int) *STResNetBuilder {
	b.externalHidden = hidden
	return b
}

// Compile validates the configuration and computes shapes and parameter
// layouts for every layer.
func (b *STResNetBuilder) Compile() (*ModelSpec, error) {
	active := b.views.Active()
	if len(active) == 0 {
		return nil, ErrNoActiveViews
	}
	if b.residualUnits < 0 {
		return nil, fmt.Errorf("residual unit count must be non-negative, got %d", b.residualUnits)
	}
	if b.filters <= 0 {
		return nil, fmt.Errorf("filter count must be positive, got %d", b.filters)
	}
	if b.externalDim < 0 {
		return nil, fmt.Errorf("external dimension must be non-negative, got %d", b.externalDim)
	}
	if b.externalDim > 0 && b.externalHidden <= 0 {
		return nil, fmt.Errorf("external hidden size must be positive, got %d", b.externalHidden)
	}

	ref := b.views[active[0]]
	for _, name := range active {
		cfg := b.views[name]
		if cfg.Channels <= 0 || cfg.Height <= 0 || cfg.Width <= 0 {
			return nil, fmt.Errorf("view %s has invalid shape %dx%dx%d", name, cfg.Channels, cfg.Height, cfg.Width)
		}
		if cfg.Channels != ref.Channels || cfg.Height != ref.Height || cfg.Width != ref.Width {
			return nil, fmt.Errorf("view %s grid %dx%dx%d differs from view %s grid %dx%dx%d",
				name, cfg.Channels, cfg.Height, cfg.Width, active[0], ref.Channels, ref.Height, ref.Width)
		}
	}

	flows, h, w := ref.Channels, ref.Height, ref.Width
	model := &ModelSpec{
		Filters:        b.filters,
		ResidualUnits:  b.residualUnits,
		ExternalDim:    b.externalDim,
		ExternalHidden: b.externalHidden,
		OutputShape:    []int{flows, h, w},
	}

	for _, name := range active {
		cfg := b.views[name]
		model.Inputs = append(model.Inputs, InputSpec{Name: string(name), Shape: cfg.InputShape()})
		model.Layers = append(model.Layers, b.branchLayers(string(name), cfg)...)
	}

	if b.externalDim > 0 {
		model.Inputs = append(model.Inputs, InputSpec{Name: ExternalBranch, Shape: []int{b.externalDim}})
		model.Layers = append(model.Layers,
			denseSpec("external_dense1", b.externalDim, b.externalHidden),
			activationSpec(ReLU, "external_relu1", ExternalBranch, []int{b.externalHidden}),
			denseSpec("external_dense2", b.externalHidden, flows*h*w),
			activationSpec(ReLU, "external_relu2", ExternalBranch, []int{flows * h * w}),
		)
	}

	model.Layers = append(model.Layers, activationSpec(Tanh, "output_tanh", OutputBranch, []int{flows, h, w}))

	for _, l := range model.Layers {
		model.ParameterShapes = append(model.ParameterShapes, l.ParameterShapes...)
		model.TotalParameters += l.ParameterCount
	}
	model.Compiled = true
	return model, nil
}

func (b *STResNetBuilder) branchLayers(branch string, cfg *ViewConfig) []LayerSpec {
	in := cfg.InputShape()
	f := b.filters
	hidden := []int{f, cfg.Height, cfg.Width}
	grid := []int{cfg.Channels, cfg.Height, cfg.Width}

	specs := []LayerSpec{conv2DSpec(branch+"_conv1", branch, in, f)}
	for i := 1; i <= b.residualUnits; i++ {
		specs = append(specs, residualSpec(fmt.Sprintf("%s_resunit%d", branch, i), branch, hidden))
	}
	specs = append(specs,
		activationSpec(ReLU, branch+"_relu", branch, hidden),
		conv2DSpec(branch+"_conv2", branch, hidden, cfg.Channels),
		fusionSpec(branch+"_fusion", branch, grid),
	)
	return specs
}

func conv2DSpec(name, branch string, in []int, outChannels int) LayerSpec {
	weight := []int{outChannels, in[0], kernelSize, kernelSize}
	return LayerSpec{
		Type:   Conv2D,
		Name:   name,
		Branch: branch,
		Parameters: map[string]interface{}{
			"input_channels":  in[0],
			"output_channels": outChannels,
			"kernel_size":     kernelSize,
			"padding":         kernelSize / 2,
			"use_bias":        true,
		},
		InputShape:      in,
		OutputShape:     []int{outChannels, in[1], in[2]},
		ParameterNames:  []string{name + ".weight", name + ".bias"},
		ParameterShapes: [][]int{weight, {outChannels}},
		ParameterCount:  int64(product(weight) + outChannels),
	}
}

// residualSpec is ReLU -> Conv3x3 -> ReLU -> Conv3x3 added back onto its input.
func residualSpec(name, branch string, shape []int) LayerSpec {
	f := shape[0]
	weight := []int{f, f, kernelSize, kernelSize}
	return LayerSpec{
		Type:   ResidualUnit,
		Name:   name,
		Branch: branch,
		Parameters: map[string]interface{}{
			"filters":     f,
			"kernel_size": kernelSize,
			"padding":     kernelSize / 2,
		},
		InputShape:  shape,
		OutputShape: shape,
		ParameterNames: []string{
			name + ".conv1.weight", name + ".conv1.bias",
			name + ".conv2.weight", name + ".conv2.bias",
		},
		ParameterShapes: [][]int{weight, {f}, weight, {f}},
		ParameterCount:  int64(2 * (product(weight) + f)),
	}
}

// fusionSpec is the parametric-matrix fusion: output = input * W elementwise.
func fusionSpec(name, branch string, shape []int) LayerSpec {
	return LayerSpec{
		Type:            Fusion,
		Name:            name,
		Branch:          branch,
		Parameters:      map[string]interface{}{},
		InputShape:      shape,
		OutputShape:     shape,
		ParameterNames:  []string{name + ".weight"},
		ParameterShapes: [][]int{shape},
		ParameterCount:  int64(product(shape)),
	}
}

func denseSpec(name string, in, out int) LayerSpec {
	return LayerSpec{
		Type:   Dense,
		Name:   name,
		Branch: ExternalBranch,
		Parameters: map[string]interface{}{
			"input_size":  in,
			"output_size": out,
			"use_bias":    true,
		},
		InputShape:      []int{in},
		OutputShape:     []int{out},
		ParameterNames:  []string{name + ".weight", name + ".bias"},
		ParameterShapes: [][]int{{in, out}, {out}},
		ParameterCount:  int64(in*out + out),
	}
}

func activationSpec(t LayerType, name, branch string, shape []int) LayerSpec {
	return LayerSpec{
		Type:        t,
		Name:        name,
		Branch:      branch,
		Parameters:  map[string]interface{}{},
		InputShape:  shape,
		OutputShape: shape,
	}
}

func product(shape []int) int {
	p := 1
	for _, d := range shape {
		p *= d
	}
	return p
}
