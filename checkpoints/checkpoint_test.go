package checkpoints

import (
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tsawler/go-stflow/layers"
	"github.com/tsawler/go-stflow/tensor"
)

func testSpec(t *testing.T) *layers.ModelSpec {
	t.Helper()
	spec, err := layers.NewSTResNetBuilder(1).
		SetFilters(2).
		AddView(layers.Closeness, layers.NewViewConfig(2, 1, 3, 3)).
		SetExternal(4).
		Compile()
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return spec
}

func testParams(t *testing.T, spec *layers.ModelSpec, seed int64) []*tensor.Tensor {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	var params []*tensor.Tensor
	for _, shape := range spec.ParameterShapes {
		p, err := tensor.RandomUniform(shape, -1, 1, rng)
		if err != nil {
			t.Fatalf("Failed to create parameter: %v", err)
		}
		params = append(params, p)
	}
	return params
}

func testCheckpoint(t *testing.T) (*Checkpoint, []*tensor.Tensor) {
	t.Helper()
	spec := testSpec(t)
	params := testParams(t, spec, 1)
	weights, err := ExtractWeights(params, spec)
	if err != nil {
		t.Fatalf("ExtractWeights failed: %v", err)
	}
	return &Checkpoint{
		ModelSpec: spec,
		Weights:   weights,
		TrainingState: TrainingState{
			Stage:        string(StageInitial),
			Epoch:        3,
			Step:         120,
			LearningRate: 0.0002,
			Monitor:      "val_rmse",
			BestMetric:   0.125,
			TotalSteps:   120,
		},
		OptimizerState: &OptimizerState{
			Type:       "Adam",
			Parameters: map[string]interface{}{"beta1": 0.9, "step_count": 120},
			StateData: []OptimizerTensor{
				{Name: "m_0", Shape: []int{3}, Data: []float32{1, 2, 3}, StateType: "m"},
			},
		},
		Metadata: CheckpointMetadata{
			Description: "unit test",
			Tags:        []string{"a", "b"},
			CreatedAt:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
			Framework:   frameworkName,
			Version:     frameworkVersion,
		},
	}, params
}

func TestSaveLoadFormats(t *testing.T) {
	for _, format := range []CheckpointFormat{FormatProto, FormatJSON} {
		t.Run(format.String(), func(t *testing.T) {
			ckpt, params := testCheckpoint(t)
			path := filepath.Join(t.TempDir(), "model"+format.Extension())

			saver := NewCheckpointSaver(format)
			if err := saver.SaveCheckpoint(ckpt, path); err != nil {
				t.Fatalf("SaveCheckpoint failed: %v", err)
			}
			loaded, err := saver.LoadCheckpoint(path)
			if err != nil {
				t.Fatalf("LoadCheckpoint failed: %v", err)
			}

			if loaded.TrainingState.Epoch != 3 || loaded.TrainingState.Monitor != "val_rmse" || loaded.TrainingState.BestMetric != 0.125 {
				t.Errorf("Training state not preserved: %+v", loaded.TrainingState)
			}
			if !loaded.Metadata.CreatedAt.Equal(ckpt.Metadata.CreatedAt) {
				t.Errorf("CreatedAt: expected %v, got %v", ckpt.Metadata.CreatedAt, loaded.Metadata.CreatedAt)
			}
			if len(loaded.Metadata.Tags) != 2 {
				t.Errorf("Expected 2 tags, got %v", loaded.Metadata.Tags)
			}
			if loaded.ModelSpec == nil || !loaded.ModelSpec.Compatible(ckpt.ModelSpec) {
				t.Fatal("Model spec not preserved")
			}
			if loaded.OptimizerState == nil || loaded.OptimizerState.Type != "Adam" || len(loaded.OptimizerState.StateData) != 1 {
				t.Fatalf("Optimizer state not preserved: %+v", loaded.OptimizerState)
			}

			restored := testParams(t, ckpt.ModelSpec, 99)
			if err := LoadWeightsIntoTensors(loaded.Weights, restored, ckpt.ModelSpec.ParameterNames()); err != nil {
				t.Fatalf("LoadWeightsIntoTensors failed: %v", err)
			}
			for i := range params {
				for j := range params[i].Data {
					if params[i].Data[j] != restored[i].Data[j] {
						t.Fatalf("Weight %d differs at %d", i, j)
					}
				}
			}
		})
	}
}

func TestNonFiniteBestMetric(t *testing.T) {
	for _, format := range []CheckpointFormat{FormatProto, FormatJSON} {
		ckpt, _ := testCheckpoint(t)
		ckpt.TrainingState.BestMetric = math.Inf(1)
		path := filepath.Join(t.TempDir(), "inf"+format.Extension())
		saver := NewCheckpointSaver(format)
		if err := saver.SaveCheckpoint(ckpt, path); err != nil {
			t.Fatalf("%s: SaveCheckpoint failed: %v", format, err)
		}
		loaded, err := saver.LoadCheckpoint(path)
		if err != nil {
			t.Fatalf("%s: LoadCheckpoint failed: %v", format, err)
		}
		if !math.IsInf(loaded.TrainingState.BestMetric, 1) {
			t.Errorf("%s: expected +Inf best metric, got %f", format, loaded.TrainingState.BestMetric)
		}
	}
}

func TestLoadWeightsRejectsMismatch(t *testing.T) {
	spec := testSpec(t)
	weights, err := ExtractWeights(testParams(t, spec, 1), spec)
	if err != nil {
		t.Fatalf("ExtractWeights failed: %v", err)
	}

	other, _ := layers.NewSTResNetBuilder(2).
		SetFilters(2).
		AddView(layers.Closeness, layers.NewViewConfig(2, 1, 3, 3)).
		SetExternal(4).
		Compile()
	if err := LoadWeightsIntoTensors(weights, testParams(t, other, 1), other.ParameterNames()); err == nil {
		t.Error("Expected error loading weights into a different architecture")
	}

	params := testParams(t, spec, 2)
	weights[0].Shape = []int{1, 2, 3}
	if err := LoadWeightsIntoTensors(weights, params, nil); err == nil {
		t.Error("Expected error for mismatched weight shape")
	}
}

func TestUnmarshalProtoRejectsTruncated(t *testing.T) {
	ckpt, _ := testCheckpoint(t)
	data, err := MarshalProto(ckpt)
	if err != nil {
		t.Fatalf("MarshalProto failed: %v", err)
	}
	if _, err := UnmarshalProto(data[:len(data)/2]); err == nil {
		t.Error("Expected error decoding truncated data")
	}
}

func TestStorePaths(t *testing.T) {
	s := NewStore("RET", "MODEL", FormatProto)
	key := "c6.p4.t4.resunit4.lr0.0002"

	tests := []struct {
		stage    Stage
		kind     Kind
		expected string
	}{
		{StageInitial, KindBest, "MODEL/c6.p4.t4.resunit4.lr0.0002.best.pb"},
		{StageInitial, KindFinal, "MODEL/c6.p4.t4.resunit4.lr0.0002.pb"},
		{StageCont, KindBest, "MODEL/c6.p4.t4.resunit4.lr0.0002.cont.best.pb"},
		{StageCont, KindFinal, "MODEL/c6.p4.t4.resunit4.lr0.0002_cont.pb"},
	}
	for _, test := range tests {
		if got := s.Path(key, test.stage, test.kind); got != filepath.FromSlash(test.expected) {
			t.Errorf("Path(%s, %s): expected %s, got %s", test.stage, test.kind, test.expected, got)
		}
	}

	if got := s.HistoryPath(key, StageInitial); got != filepath.FromSlash("RET/"+key+".history.json") {
		t.Errorf("Unexpected initial history path %s", got)
	}
	if got := s.HistoryPath(key, StageCont); got != filepath.FromSlash("RET/"+key+".cont.history.json") {
		t.Errorf("Unexpected continuation history path %s", got)
	}
}

func TestStoreSaveLoad(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "RET"), filepath.Join(dir, "MODEL"), FormatProto)
	if err := s.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs failed: %v", err)
	}

	_, err := s.Load("k", StageInitial, KindBest)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if s.Exists("k", StageInitial, KindBest) {
		t.Fatal("Exists should be false before saving")
	}

	ckpt, _ := testCheckpoint(t)
	if err := s.Save("k", StageInitial, KindBest, ckpt); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	ckpt.TrainingState.Epoch = 4
	if err := s.Save("k", StageInitial, KindBest, ckpt); err != nil {
		t.Fatalf("Overwrite failed: %v", err)
	}

	loaded, err := s.Load("k", StageInitial, KindBest)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.TrainingState.Epoch != 4 {
		t.Errorf("Expected the overwritten checkpoint, got epoch %d", loaded.TrainingState.Epoch)
	}

	entries, _ := os.ReadDir(s.ModelsDir)
	if len(entries) != 1 {
		t.Errorf("Expected only the checkpoint file, found %d entries", len(entries))
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, dir, FormatProto)

	h := History{}
	h.Append(map[string]float64{"loss": 0.5, "val_rmse": 0.7})
	h.Append(map[string]float64{"loss": 0.4, "val_rmse": math.NaN()})
	if h.Epochs() != 2 {
		t.Fatalf("Expected 2 epochs, got %d", h.Epochs())
	}

	if err := s.SaveHistory("k", StageCont, h); err != nil {
		t.Fatalf("SaveHistory failed: %v", err)
	}
	loaded, err := s.LoadHistory("k", StageCont)
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if loaded["loss"][1] != 0.4 {
		t.Errorf("Expected loss 0.4, got %f", loaded["loss"][1])
	}
	if !math.IsNaN(loaded["val_rmse"][1]) {
		t.Errorf("Expected NaN to survive as null, got %f", loaded["val_rmse"][1])
	}
	if keys := loaded.Keys(); len(keys) != 2 || keys[0] != "loss" {
		t.Errorf("Unexpected keys %v", keys)
	}

	if _, err := s.LoadHistory("k", StageInitial); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing history, got %v", err)
	}
}
