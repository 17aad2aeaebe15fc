package checkpoints

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/tsawler/go-stflow/layers"
	"github.com/tsawler/go-stflow/tensor"
)

const (
	frameworkName    = "go-stflow"
	frameworkVersion = "1.0.0"
)

// CheckpointFormat defines the serialization format
type CheckpointFormat int

const (
	FormatProto CheckpointFormat = iota
	FormatJSON
)

func (cf CheckpointFormat) String() string {
	switch cf {
	case FormatProto:
		return "Proto"
	case FormatJSON:
		return "JSON"
	default:
		return "Unknown"
	}
}

// Extension is the file suffix used for the format.
func (cf CheckpointFormat) Extension() string {
	if cf == FormatJSON {
		return ".json"
	}
	return ".pb"
}

// Checkpoint represents a complete model state including weights, optimizer state, and training metadata
type Checkpoint struct {
	// Model architecture and weights
	ModelSpec *layers.ModelSpec `json:"model_spec"`
	Weights   []WeightTensor    `json:"weights"`

	TrainingState TrainingState `json:"training_state"`

	// Optimizer state (if available)
	OptimizerState *OptimizerState `json:"optimizer_state,omitempty"`

	Metadata CheckpointMetadata `json:"metadata"`
}

// WeightTensor represents a model parameter tensor with its data
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
	Layer string    `json:"layer"`
	Type  string    `json:"type"` // "weight" or "bias"
}

// TrainingState captures the training progress at the time of the snapshot
type TrainingState struct {
	Stage        string  `json:"stage"`
	Epoch        int     `json:"epoch"`
	Step         int     `json:"step"`
	LearningRate float32 `json:"learning_rate"`
	Monitor      string  `json:"monitor"`
	BestMetric   float64 `json:"best_metric"`
	TotalSteps   int     `json:"total_steps"`
}

// OptimizerState captures optimizer-specific state (moments, step count)
type OptimizerState struct {
	Type       string                 `json:"type"` // "Adam", "RMSProp", "Adagrad"
	Parameters map[string]interface{} `json:"parameters"`
	StateData  []OptimizerTensor      `json:"state_data"`
}

// OptimizerTensor represents one optimizer state buffer
type OptimizerTensor struct {
	Name      string    `json:"name"`
	Shape     []int     `json:"shape"`
	Data      []float32 `json:"data"`
	StateType string    `json:"state_type"` // "m", "v", "squared_grad_avg", ...
}

// CheckpointMetadata contains checkpoint metadata
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// CheckpointSaver handles saving model checkpoints in various formats
type CheckpointSaver struct {
	format CheckpointFormat
}

// NewCheckpointSaver creates a new checkpoint saver for the specified format
func NewCheckpointSaver(format CheckpointFormat) *CheckpointSaver {
	return &CheckpointSaver{
		format: format,
	}
}

func (cs *CheckpointSaver) Format() CheckpointFormat { return cs.format }

// SaveCheckpoint writes a complete model checkpoint to path
func (cs *CheckpointSaver) SaveCheckpoint(checkpoint *Checkpoint, path string) error {
	if checkpoint.Metadata.Framework == "" {
		checkpoint.Metadata.Framework = frameworkName
		checkpoint.Metadata.Version = frameworkVersion
		checkpoint.Metadata.CreatedAt = time.Now().UTC()
	}

	var data []byte
	var err error
	switch cs.format {
	case FormatProto:
		data, err = MarshalProto(checkpoint)
	case FormatJSON:
		data, err = json.MarshalIndent(checkpoint, "", "  ")
	default:
		return fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %v", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %v", err)
	}
	return nil
}

// LoadCheckpoint loads a model checkpoint
func (cs *CheckpointSaver) LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}

	switch cs.format {
	case FormatProto:
		return UnmarshalProto(data)
	case FormatJSON:
		var checkpoint Checkpoint
		if err := json.Unmarshal(data, &checkpoint); err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint: %v", err)
		}
		return &checkpoint, nil
	default:
		return nil, fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
}

// ExtractWeights copies parameter tensors into serializable weight records.
// params must be in modelSpec.ParameterNames order.
func ExtractWeights(params []*tensor.Tensor, modelSpec *layers.ModelSpec) ([]WeightTensor, error) {
	var weights []WeightTensor
	i := 0
	for _, l := range modelSpec.Layers {
		for j, name := range l.ParameterNames {
			if i >= len(params) {
				return nil, fmt.Errorf("model spec has more parameters than the %d tensors provided", len(params))
			}
			p := params[i]
			if !tensor.ShapesEqual(p.Shape, l.ParameterShapes[j]) {
				return nil, fmt.Errorf("parameter %s: tensor shape %v does not match spec shape %v", name, p.Shape, l.ParameterShapes[j])
			}

			kind := "weight"
			if len(p.Shape) == 1 {
				kind = "bias"
			}
			data := make([]float32, len(p.Data))
			copy(data, p.Data)
			shape := make([]int, len(p.Shape))
			copy(shape, p.Shape)

			weights = append(weights, WeightTensor{
				Name:  name,
				Shape: shape,
				Data:  data,
				Layer: l.Name,
				Type:  kind,
			})
			i++
		}
	}
	if i != len(params) {
		return nil, fmt.Errorf("model spec has %d parameters, got %d tensors", i, len(params))
	}
	return weights, nil
}

// LoadWeightsIntoTensors copies saved weights into params, matching by
// position and checking names and shapes.
func LoadWeightsIntoTensors(weights []WeightTensor, params []*tensor.Tensor, names []string) error {
	if len(weights) != len(params) {
		return fmt.Errorf("checkpoint has %d weight tensors, model has %d", len(weights), len(params))
	}
	for i, w := range weights {
		if names != nil && w.Name != names[i] {
			return fmt.Errorf("weight %d: expected %s, got %s", i, names[i], w.Name)
		}
		if !tensor.ShapesEqual(w.Shape, params[i].Shape) {
			return fmt.Errorf("weight %s: shape %v does not match model shape %v", w.Name, w.Shape, params[i].Shape)
		}
		if len(w.Data) != params[i].NumElems {
			return fmt.Errorf("weight %s: has %d values, expected %d", w.Name, len(w.Data), params[i].NumElems)
		}
	}
	for i, w := range weights {
		copy(params[i].Data, w.Data)
	}
	return nil
}

type trainingStateJSON struct {
	Stage        string   `json:"stage"`
	Epoch        int      `json:"epoch"`
	Step         int      `json:"step"`
	LearningRate float32  `json:"learning_rate"`
	Monitor      string   `json:"monitor"`
	BestMetric   *float64 `json:"best_metric"`
	TotalSteps   int      `json:"total_steps"`
}

// MarshalJSON writes a non-finite best metric as null.
func (ts TrainingState) MarshalJSON() ([]byte, error) {
	out := trainingStateJSON{
		Stage:        ts.Stage,
		Epoch:        ts.Epoch,
		Step:         ts.Step,
		LearningRate: ts.LearningRate,
		Monitor:      ts.Monitor,
		TotalSteps:   ts.TotalSteps,
	}
	if !math.IsInf(ts.BestMetric, 0) && !math.IsNaN(ts.BestMetric) {
		v := ts.BestMetric
		out.BestMetric = &v
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a null best metric as +Inf.
func (ts *TrainingState) UnmarshalJSON(data []byte) error {
	var in trainingStateJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*ts = TrainingState{
		Stage:        in.Stage,
		Epoch:        in.Epoch,
		Step:         in.Step,
		LearningRate: in.LearningRate,
		Monitor:      in.Monitor,
		BestMetric:   math.Inf(1),
		TotalSteps:   in.TotalSteps,
	}
	if in.BestMetric != nil {
		ts.BestMetric = *in.BestMetric
	}
	return nil
}
