package layers

import (
	"errors"
	"strings"
	"testing"
)

func TestCompileInputArity(t *testing.T) {
	grid := func(l int) *ViewConfig { return NewViewConfig(l, 2, 16, 8) }

	tests := []struct {
		name        string
		views       ViewConfigs
		externalDim int
		expected    []string
	}{
		{"closeness only", ViewConfigs{Closeness: grid(3)}, 0, []string{"closeness"}},
		{"closeness and period", ViewConfigs{Closeness: grid(3), Period: grid(1)}, 0, []string{"closeness", "period"}},
		{"period with external", ViewConfigs{Period: grid(2)}, 8, []string{"period", "external"}},
		{"all three with external", ViewConfigs{Closeness: grid(3), Period: grid(1), Trend: grid(1)}, 8, []string{"closeness", "period", "trend", "external"}},
		{"zero length trend is absent", ViewConfigs{Closeness: grid(3), Trend: grid(0)}, 0, []string{"closeness"}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			spec, err := NewSTResNetBuilder(2).SetFilters(4).AddViews(test.views).SetExternal(test.externalDim).Compile()
			if err != nil {
				t.Fatalf("Compile failed: %v", err)
			}
			if len(spec.Inputs) != len(test.expected) {
				t.Fatalf("Expected %d inputs, got %d", len(test.expected), len(spec.Inputs))
			}
			for i, name := range test.expected {
				if spec.Inputs[i].Name != name {
					t.Errorf("Input %d: expected %s, got %s", i, name, spec.Inputs[i].Name)
				}
			}
		})
	}
}

func TestCompileNoActiveViews(t *testing.T) {
	_, err := NewSTResNetBuilder(2).
		AddView(Closeness, nil).
		AddView(Trend, NewViewConfig(0, 1, 4, 4)).
		SetExternal(8).
		Compile()
	if !errors.Is(err, ErrNoActiveViews) {
		t.Fatalf("Expected ErrNoActiveViews, got %v", err)
	}
}

func TestCompileRejectsMismatchedGrids(t *testing.T) {
	_, err := NewSTResNetBuilder(1).
		AddView(Closeness, NewViewConfig(3, 1, 35, 11)).
		AddView(Period, NewViewConfig(1, 1, 16, 8)).
		Compile()
	if err == nil {
		t.Fatal("Expected error for views with different grids")
	}
}

func TestCompileParameterLayout(t *testing.T) {
	spec, err := NewSTResNetBuilder(2).
		SetFilters(4).
		AddView(Closeness, NewViewConfig(3, 1, 5, 4)).
		SetExternal(8).
		Compile()
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	// conv1 (4*3*9 + 4) + 2 res units 2*(4*4*9+4) + conv2 (1*4*9 + 1) + fusion 20
	// + dense1 (8*10 + 10) + dense2 (10*20 + 20)
	expected := int64((108 + 4) + 2*2*(144+4) + (36 + 1) + 20 + (80 + 10) + (200 + 20))
	if spec.TotalParameters != expected {
		t.Errorf("Expected %d parameters, got %d", expected, spec.TotalParameters)
	}
	if len(spec.ParameterNames()) != len(spec.ParameterShapes) {
		t.Errorf("Parameter names (%d) and shapes (%d) differ", len(spec.ParameterNames()), len(spec.ParameterShapes))
	}
	if got := spec.OutputShape; got[0] != 1 || got[1] != 5 || got[2] != 4 {
		t.Errorf("Unexpected output shape %v", got)
	}
	if !strings.Contains(spec.Summary(), "closeness_resunit2") {
		t.Error("Summary should list residual units")
	}

	other, _ := NewSTResNetBuilder(1).SetFilters(4).AddView(Closeness, NewViewConfig(3, 1, 5, 4)).SetExternal(8).Compile()
	if spec.Compatible(other) {
		t.Error("Specs with different residual unit counts should not be compatible")
	}
	if !spec.Compatible(spec) {
		t.Error("A spec should be compatible with itself")
	}
}
