package training

import (
	"errors"
	"io"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/tsawler/go-stflow/checkpoints"
	"github.com/tsawler/go-stflow/layers"
	"github.com/tsawler/go-stflow/tensor"
)

const (
	gridH = 35
	gridW = 11
)

func bikeViews(closeness, period, trend int) layers.ViewConfigs {
	return layers.ViewConfigs{
		layers.Closeness: layers.NewViewConfig(closeness, 1, gridH, gridW),
		layers.Period:    layers.NewViewConfig(period, 1, gridH, gridW),
		layers.Trend:     layers.NewViewConfig(trend, 1, gridH, gridW),
	}
}

func TestBuildModelInputArity(t *testing.T) {
	tests := []struct {
		name                     string
		closeness, period, trend int
		externalDim              int
		expected                 int
	}{
		{"closeness only", 3, 0, 0, 0, 1},
		{"closeness period external", 3, 1, 0, 8, 3},
		{"all views external", 3, 1, 1, 8, 4},
		{"trend only", 0, 0, 2, 0, 1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m, err := BuildModel(test.externalDim, bikeViews(test.closeness, test.period, test.trend), 1, 0.0002, WithFilters(2))
			if err != nil {
				t.Fatalf("BuildModel failed: %v", err)
			}
			if got := len(m.InputSignature()); got != test.expected {
				t.Errorf("Expected %d inputs, got %d", test.expected, got)
			}
		})
	}
}

func TestBuildModelNoActiveViews(t *testing.T) {
	_, err := BuildModel(8, bikeViews(0, 0, 0), 2, 0.0002)
	if !errors.Is(err, layers.ErrNoActiveViews) {
		t.Fatalf("Expected ErrNoActiveViews, got %v", err)
	}
}

// bikeData builds n random samples for a closeness(3)+period(1)+external(8)
// model on the 35x11 grid, with targets in [-1, 1].
func bikeData(t *testing.T, n int, seed int64) *Data {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	mk := func(shape ...int) *tensor.Tensor {
		x, err := tensor.RandomUniform(shape, -1, 1, rng)
		if err != nil {
			t.Fatalf("Failed to create tensor: %v", err)
		}
		return x
	}
	ext := mk(n, 8)
	for i := range ext.Data {
		ext.Data[i] = float32(math.Round(float64(ext.Data[i]+1) / 2))
	}
	return &Data{
		X: []*tensor.Tensor{mk(n, 3, gridH, gridW), mk(n, 1, gridH, gridW), ext},
		Y: mk(n, 1, gridH, gridW),
	}
}

func tinyModel(t *testing.T) *Model {
	t.Helper()
	m, err := BuildModel(8, bikeViews(3, 1, 0), 1, 0.01, WithFilters(2), WithSeed(7))
	if err != nil {
		t.Fatalf("BuildModel failed: %v", err)
	}
	return m
}

func TestModelFitEpochReducesLoss(t *testing.T) {
	m := tinyModel(t)
	data := bikeData(t, 16, 1)
	rng := rand.New(rand.NewSource(1))

	before, err := m.Evaluate(data, 16)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	for i := 0; i < 15; i++ {
		logs, err := m.FitEpoch(data, 4, rng)
		if err != nil {
			t.Fatalf("FitEpoch failed: %v", err)
		}
		if math.Abs(logs[MetricRMSE]-math.Sqrt(logs[MetricLoss])) > 0.1 {
			t.Fatalf("rmse %f implausible for loss %f", logs[MetricRMSE], logs[MetricLoss])
		}
	}
	after, err := m.Evaluate(data, 16)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if after.Loss >= before.Loss {
		t.Errorf("Expected training to reduce loss: before %f, after %f", before.Loss, after.Loss)
	}
	if m.Optimizer().GetStepCount() != 60 {
		t.Errorf("Expected 60 optimizer steps, got %d", m.Optimizer().GetStepCount())
	}
}

func TestModelEvaluateBatchWeighting(t *testing.T) {
	m := tinyModel(t)
	data := bikeData(t, 10, 2)

	whole, err := m.Evaluate(data, 10)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	batched, err := m.Evaluate(data, 3)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	// Every sample has the same number of cells, so the weighted mean of
	// batch MSEs equals the MSE over all samples.
	if math.Abs(whole.Loss-batched.Loss) > 1e-6 {
		t.Errorf("Loss depends on batch size: %f vs %f", whole.Loss, batched.Loss)
	}
	if math.Abs(whole.RMSE-math.Sqrt(whole.Loss)) > 1e-9 {
		t.Errorf("Single-batch rmse should be sqrt(loss)")
	}
	if batched.RMSE > whole.RMSE+1e-9 {
		t.Errorf("Mean of batch rmse (%f) cannot exceed overall rmse (%f)", batched.RMSE, whole.RMSE)
	}
}

func TestModelRejectsMismatchedData(t *testing.T) {
	m := tinyModel(t)
	data := bikeData(t, 4, 3)
	data.X = data.X[:2]
	if _, err := m.Evaluate(data, 4); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
}

func TestModelCheckpointRestore(t *testing.T) {
	m := tinyModel(t)
	data := bikeData(t, 8, 4)
	ckpt, err := m.Checkpoint()
	if err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}
	before, _ := m.Evaluate(data, 8)

	if _, err := m.FitEpoch(data, 4, rand.New(rand.NewSource(1))); err != nil {
		t.Fatalf("FitEpoch failed: %v", err)
	}
	if err := m.Restore(ckpt); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	after, _ := m.Evaluate(data, 8)
	if before.Loss != after.Loss {
		t.Errorf("Restored model should score %f, got %f", before.Loss, after.Loss)
	}
	// Restore leaves the optimizer alone.
	if m.Optimizer().GetStepCount() != 2 {
		t.Errorf("Expected optimizer step count 2 after restore, got %d", m.Optimizer().GetStepCount())
	}
	if err := m.RestoreOptimizer(ckpt); err != nil {
		t.Fatalf("RestoreOptimizer failed: %v", err)
	}
	if m.Optimizer().GetStepCount() != 0 {
		t.Errorf("Expected optimizer step count 0 after RestoreOptimizer, got %d", m.Optimizer().GetStepCount())
	}

	other, _ := BuildModel(8, bikeViews(3, 1, 0), 2, 0.01, WithFilters(2))
	if err := other.Restore(ckpt); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch restoring into a different architecture, got %v", err)
	}
}

func TestModelSummary(t *testing.T) {
	var b strings.Builder
	tinyModel(t).Summary(&b)
	for _, want := range []string{"closeness_conv1", "period_fusion", "external_dense2", "Total parameters"} {
		if !strings.Contains(b.String(), want) {
			t.Errorf("Summary missing %q", want)
		}
	}
}

func runTinyOrchestration(t *testing.T, store *checkpoints.Store) (*Report, *recordingObserver) {
	t.Helper()
	m, err := BuildModel(8, bikeViews(3, 1, 0), 1, 0.01, WithFilters(2), WithSeed(DefaultSeed), WithProgress(io.Discard))
	if err != nil {
		t.Fatalf("BuildModel failed: %v", err)
	}
	obs := newRecordingObserver()
	config := orchestratorConfig(2, 1, obs)
	config.Hyperparams.Closeness, config.Hyperparams.Period, config.Hyperparams.ResidualUnits = 3, 1, 1
	config.Scale = 12.5

	o, err := NewOrchestrator(m, store, bikeData(t, 40, 10), bikeData(t, 8, 11), config)
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}
	report, err := o.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return report, obs
}

func TestEndToEndBikeGrid(t *testing.T) {
	store := testStore(t)
	report, obs := runTinyOrchestration(t, store)

	if report.Key != "c3.p1.t0.resunit1.lr0.0002" {
		t.Errorf("Unexpected key %s", report.Key)
	}
	for _, stage := range []checkpoints.Stage{checkpoints.StageInitial, checkpoints.StageCont} {
		for _, kind := range []checkpoints.Kind{checkpoints.KindBest, checkpoints.KindFinal} {
			c, err := store.Load(report.Key, stage, kind)
			if err != nil {
				t.Fatalf("Load %s/%s failed: %v", stage, kind, err)
			}
			if c.TrainingState.Stage != string(stage) {
				t.Errorf("Checkpoint %s/%s records stage %s", stage, kind, c.TrainingState.Stage)
			}
		}
	}

	for _, s := range []StageReport{report.Stage1, report.Stage2} {
		for _, score := range []Score{s.Train, s.Test} {
			if math.IsNaN(score.Loss) || math.IsNaN(score.RealRMSE) {
				t.Errorf("Score has NaN values: %+v", score)
			}
			if math.Abs(score.RealRMSE-score.RMSE*12.5) > 1e-9 {
				t.Errorf("Real rmse %f should be rmse %f scaled by 12.5", score.RealRMSE, score.RMSE)
			}
		}
	}
	if len(report.Stage1.History[MetricValRMSE]) != 2 || len(report.Stage2.History[MetricValRMSE]) != 1 {
		t.Errorf("Unexpected history lengths %d and %d", len(report.Stage1.History[MetricValRMSE]), len(report.Stage2.History[MetricValRMSE]))
	}
	if len(obs.scores) != 2 {
		t.Errorf("Expected two score reports, got %d", len(obs.scores))
	}
}

func TestRunsAreReproducible(t *testing.T) {
	first, _ := runTinyOrchestration(t, testStore(t))
	second, _ := runTinyOrchestration(t, testStore(t))

	for _, k := range first.Stage1.History.Keys() {
		a, b := first.Stage1.History[k], second.Stage1.History[k]
		for i := range a {
			if a[i] != b[i] {
				t.Errorf("%s epoch %d: %f vs %f", k, i, a[i], b[i])
			}
		}
	}
	if first.Stage2.Test.Loss != second.Stage2.Test.Loss {
		t.Errorf("Final test loss differs: %f vs %f", first.Stage2.Test.Loss, second.Stage2.Test.Loss)
	}
}
