package training

import (
	"math"
	"math/rand"
	"testing"

	"github.com/tsawler/go-stflow/checkpoints"
	"github.com/tsawler/go-stflow/layers"
	"github.com/tsawler/go-stflow/tensor"
)

// scriptedPredictor reports a fixed sequence of validation rmse values, one
// per trained epoch, and uses the epoch count as its only "weight".
type scriptedPredictor struct {
	script []float64

	epochs       int
	restored     float32
	fitLens      []int
	evalLens     []int
	evalBatches  []int
	restoreCalls int
}

func (sp *scriptedPredictor) InputSignature() []layers.InputSpec {
	return []layers.InputSpec{{Name: "closeness", Shape: []int{1, 2, 2}}}
}

func (sp *scriptedPredictor) FitEpoch(data *Data, batchSize int, rng *rand.Rand) (map[string]float64, error) {
	sp.fitLens = append(sp.fitLens, data.Len())
	v := sp.current()
	sp.epochs++
	return map[string]float64{MetricLoss: v * v, MetricRMSE: v}, nil
}

func (sp *scriptedPredictor) current() float64 {
	if sp.epochs < len(sp.script) {
		return sp.script[sp.epochs]
	}
	return sp.script[len(sp.script)-1]
}

func (sp *scriptedPredictor) Evaluate(data *Data, batchSize int) (Score, error) {
	sp.evalLens = append(sp.evalLens, data.Len())
	sp.evalBatches = append(sp.evalBatches, batchSize)
	idx := sp.epochs - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sp.script) {
		idx = len(sp.script) - 1
	}
	v := sp.script[idx]
	return Score{Loss: v * v, RMSE: v, RealRMSE: math.NaN()}, nil
}

func (sp *scriptedPredictor) Checkpoint() (*checkpoints.Checkpoint, error) {
	return &checkpoints.Checkpoint{
		Weights: []checkpoints.WeightTensor{{Name: "w", Shape: []int{1}, Data: []float32{float32(sp.epochs)}}},
	}, nil
}

func (sp *scriptedPredictor) Restore(c *checkpoints.Checkpoint) error {
	sp.restoreCalls++
	sp.restored = c.Weights[0].Data[0]
	return nil
}

func syntheticData(t *testing.T, n int, sampleShape []int, seed int64) *Data {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	shape := append([]int{n}, sampleShape...)
	x, err := tensor.RandomUniform(shape, -1, 1, rng)
	if err != nil {
		t.Fatalf("Failed to create inputs: %v", err)
	}
	y, err := tensor.RandomUniform(shape, -1, 1, rng)
	if err != nil {
		t.Fatalf("Failed to create targets: %v", err)
	}
	return &Data{X: []*tensor.Tensor{x}, Y: y}
}

func testStore(t *testing.T) *checkpoints.Store {
	t.Helper()
	dir := t.TempDir()
	return checkpoints.NewStore(dir+"/RET", dir+"/MODEL", checkpoints.FormatProto)
}

// recordingObserver keeps everything it is told.
type recordingObserver struct {
	NopObserver
	states []State
	saves  []string
	scores map[checkpoints.Stage][2]Score
	epochs map[checkpoints.Stage]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		states: []State{Idle},
		scores: make(map[checkpoints.Stage][2]Score),
		epochs: make(map[checkpoints.Stage]int),
	}
}

func (r *recordingObserver) StateChanged(from, to State) {
	r.states = append(r.states, to)
}

func (r *recordingObserver) EpochEnded(stage checkpoints.Stage, epoch int, logs map[string]float64) {
	r.epochs[stage]++
}

func (r *recordingObserver) CheckpointSaved(stage checkpoints.Stage, kind checkpoints.Kind, epoch int, path string) {
	r.saves = append(r.saves, string(stage)+"/"+string(kind))
}

func (r *recordingObserver) ScoresReported(stage checkpoints.Stage, train, test Score) {
	r.scores[stage] = [2]Score{train, test}
}
