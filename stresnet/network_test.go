package stresnet

import (
	"math"
	"math/rand"
	"testing"

	"github.com/tsawler/go-stflow/layers"
	"github.com/tsawler/go-stflow/tensor"
)

func smallSpec(t *testing.T, externalDim int) *layers.ModelSpec {
	t.Helper()
	spec, err := layers.NewSTResNetBuilder(1).
		SetFilters(2).
		SetExternalHidden(3).
		AddView(layers.Closeness, layers.NewViewConfig(2, 1, 4, 3)).
		AddView(layers.Period, layers.NewViewConfig(1, 1, 4, 3)).
		SetExternal(externalDim).
		Compile()
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return spec
}

func randomInputs(t *testing.T, spec *layers.ModelSpec, batch int, rng *rand.Rand) []*tensor.Tensor {
	t.Helper()
	var inputs []*tensor.Tensor
	for _, in := range spec.Inputs {
		x, err := tensor.RandomUniform(append([]int{batch}, in.Shape...), -1, 1, rng)
		if err != nil {
			t.Fatalf("Failed to create input %s: %v", in.Name, err)
		}
		inputs = append(inputs, x)
	}
	return inputs
}

func TestForwardShapeAndRange(t *testing.T) {
	spec := smallSpec(t, 8)
	rng := rand.New(rand.NewSource(1337))
	net, err := New(spec, rng)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	out, _, err := net.Forward(randomInputs(t, spec, 5, rng))
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	expected := []int{5, 1, 4, 3}
	if !tensor.ShapesEqual(out.Shape, expected) {
		t.Fatalf("Expected output shape %v, got %v", expected, out.Shape)
	}
	for i, v := range out.Data {
		if v < -1 || v > 1 {
			t.Fatalf("Output %d = %f outside tanh range", i, v)
		}
	}
}

func TestForwardRejectsBadInputs(t *testing.T) {
	spec := smallSpec(t, 8)
	rng := rand.New(rand.NewSource(1))
	net, _ := New(spec, rng)

	inputs := randomInputs(t, spec, 2, rng)
	if _, err := net.Predict(inputs[:2]); err == nil {
		t.Error("Expected error for missing external input")
	}

	wrong, _ := tensor.Zeros([]int{2, 3, 4, 3})
	if _, err := net.Predict([]*tensor.Tensor{wrong, inputs[1], inputs[2]}); err == nil {
		t.Error("Expected error for wrong closeness channel count")
	}

	short, _ := inputs[1].Rows(0, 1)
	if _, err := net.Predict([]*tensor.Tensor{inputs[0], short, inputs[2]}); err == nil {
		t.Error("Expected error for inputs with different sample counts")
	}
}

func TestInitialization(t *testing.T) {
	spec := smallSpec(t, 8)
	net, err := New(spec, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for _, l := range spec.Layers {
		for i, name := range l.ParameterNames {
			p := net.Parameter(name)
			if p == nil {
				t.Fatalf("Missing parameter %s", name)
			}
			for _, v := range p.Data {
				switch {
				case len(l.ParameterShapes[i]) == 1 && v != 0:
					t.Fatalf("Bias %s should start at zero, got %f", name, v)
				case l.Type == layers.Fusion && (v < 0 || v >= 1):
					t.Fatalf("Fusion weight %s = %f outside [0, 1)", name, v)
				}
			}
		}
	}
}

func TestSameSeedSameWeights(t *testing.T) {
	spec := smallSpec(t, 0)
	a, _ := New(spec, rand.New(rand.NewSource(42)))
	b, _ := New(spec, rand.New(rand.NewSource(42)))
	for i, p := range a.Parameters() {
		for j, v := range p.Data {
			if b.Parameters()[i].Data[j] != v {
				t.Fatalf("Parameter %s differs at %d", a.ParameterNames()[i], j)
			}
		}
	}
}

// loss is 0.5 * sum(out^2), so d loss / d out = out.
func halfSquaredLoss(t *testing.T, net *Network, inputs []*tensor.Tensor) float64 {
	out, err := net.Predict(inputs)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	return 0.5 * tensor.SumSquares(out)
}

func TestBackwardMatchesNumericGradient(t *testing.T) {
	spec := smallSpec(t, 4)
	rng := rand.New(rand.NewSource(3))
	net, err := New(spec, rng)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	// Move biases off zero so ReLU kinks are less likely to sit on a probe.
	for _, p := range net.Parameters() {
		if len(p.Shape) == 1 {
			for i := range p.Data {
				p.Data[i] = float32(rng.Float64()*0.2 - 0.1)
			}
		}
	}
	inputs := randomInputs(t, spec, 2, rng)

	net.ZeroGrad()
	out, tr, err := net.Forward(inputs)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if err := net.Backward(tr, out.Clone()); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	const eps = 1e-3
	checked := 0
	for pi, p := range net.Parameters() {
		name := net.ParameterNames()[pi]
		// probe a few entries per parameter
		for _, idx := range []int{0, p.NumElems / 2, p.NumElems - 1} {
			orig := p.Data[idx]
			p.Data[idx] = orig + eps
			plus := halfSquaredLoss(t, net, inputs)
			p.Data[idx] = orig - eps
			minus := halfSquaredLoss(t, net, inputs)
			p.Data[idx] = orig

			numeric := (plus - minus) / (2 * eps)
			analytic := float64(net.Gradients()[pi].Data[idx])
			tol := 2e-2 + 5e-2*math.Abs(numeric)
			if math.Abs(numeric-analytic) > tol {
				t.Errorf("%s[%d]: analytic %f, numeric %f", name, idx, analytic, numeric)
			}
			checked++
		}
	}
	if checked == 0 {
		t.Fatal("No gradients checked")
	}
}

func TestSetParameters(t *testing.T) {
	spec := smallSpec(t, 0)
	a, _ := New(spec, rand.New(rand.NewSource(1)))
	b, _ := New(spec, rand.New(rand.NewSource(2)))

	if err := b.SetParameters(a.Parameters()); err != nil {
		t.Fatalf("SetParameters failed: %v", err)
	}
	inputs := randomInputs(t, spec, 3, rand.New(rand.NewSource(5)))
	outA, _ := a.Predict(inputs)
	outB, _ := b.Predict(inputs)
	for i := range outA.Data {
		if outA.Data[i] != outB.Data[i] {
			t.Fatalf("Outputs differ at %d after copying parameters", i)
		}
	}

	if err := b.SetParameters(a.Parameters()[1:]); err == nil {
		t.Error("Expected error for wrong parameter count")
	}
}
