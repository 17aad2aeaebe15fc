package training

import (
	"fmt"
	"io"
	"math"
	"math/rand"

	"github.com/tsawler/go-stflow/checkpoints"
	"github.com/tsawler/go-stflow/layers"
	"github.com/tsawler/go-stflow/optimizer"
	"github.com/tsawler/go-stflow/stresnet"
	"github.com/tsawler/go-stflow/tensor"
)

const DefaultSeed = 1337

// Model couples an ST-ResNet with its loss (MSE), optimizer and the rmse
// metric.
type Model struct {
	spec      *layers.ModelSpec
	net       *stresnet.Network
	optimizer optimizer.Optimizer
	criterion Loss
	progress  io.Writer
	name      string
}

type modelOptions struct {
	filters        int
	externalHidden int
	optimizer      string
	seed           int64
	progress       io.Writer
	name           string
}

// ModelOption customizes BuildModel.
type ModelOption func(*modelOptions)

// WithFilters sets the number of convolution filters per residual branch.
func WithFilters(filters int) ModelOption {
	return func(o *modelOptions) { o.filters = filters }
}

func WithExternalHidden(hidden int) ModelOption {
	return func(o *modelOptions) { o.externalHidden = hidden }
}

// WithOptimizer selects "adam" (default), "rmsprop" or "adagrad".
func WithOptimizer(name string) ModelOption {
	return func(o *modelOptions) { o.optimizer = name }
}

// WithSeed seeds weight initialization.
func WithSeed(seed int64) ModelOption {
	return func(o *modelOptions) { o.seed = seed }
}

// WithProgress renders per-batch progress bars to w.
func WithProgress(w io.Writer) ModelOption {
	return func(o *modelOptions) { o.progress = w }
}

func WithName(name string) ModelOption {
	return func(o *modelOptions) { o.name = name }
}

// BuildModel compiles an ST-ResNet for the given views and external
// feature size. A nil or zero-length view is left out of the inputs, so the
// model takes one input per active view plus one when externalDim > 0.
func BuildModel(externalDim int, views layers.ViewConfigs, residualUnits int, learningRate float64, opts ...ModelOption) (*Model, error) {
	o := modelOptions{
		filters:        64,
		externalHidden: 10,
		optimizer:      "adam",
		seed:           DefaultSeed,
		progress:       io.Discard,
		name:           "STResNet",
	}
	for _, opt := range opts {
		opt(&o)
	}

	if len(views.Active()) == 0 {
		return nil, layers.ErrNoActiveViews
	}
	if learningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %g", learningRate)
	}

	spec, err := layers.NewSTResNetBuilder(residualUnits).
		AddViews(views).
		SetExternal(externalDim).
		SetFilters(o.filters).
		SetExternalHidden(o.externalHidden).
		Compile()
	if err != nil {
		return nil, fmt.Errorf("failed to compile model: %w", err)
	}

	net, err := stresnet.New(spec, rand.New(rand.NewSource(o.seed)))
	if err != nil {
		return nil, fmt.Errorf("failed to create network: %v", err)
	}

	opt, err := optimizer.New(optimizer.Config{Type: o.optimizer, LearningRate: float32(learningRate)}, spec.ParameterShapes)
	if err != nil {
		return nil, fmt.Errorf("failed to create optimizer: %v", err)
	}

	return &Model{
		spec:      spec,
		net:       net,
		optimizer: opt,
		criterion: NewMSELoss("mean"),
		progress:  o.progress,
		name:      o.name,
	}, nil
}

func (m *Model) InputSignature() []layers.InputSpec { return m.net.InputSignature() }

// GetModelSpec returns the compiled configuration
func (m *Model) GetModelSpec() *layers.ModelSpec { return m.spec }

func (m *Model) Optimizer() optimizer.Optimizer { return m.optimizer }

// Summary writes the architecture table to w.
func (m *Model) Summary(w io.Writer) {
	NewModelArchitecturePrinter(m.name, w).PrintArchitecture(m.spec)
}

// FitEpoch trains on data for one epoch.
func (m *Model) FitEpoch(data *Data, batchSize int, rng *rand.Rand) (map[string]float64, error) {
	if err := ValidateData(m.InputSignature(), data); err != nil {
		return nil, err
	}

	loader := NewDataLoader(data, batchSize, rng != nil, rng)
	loader.Reset()
	bar := NewProgressBar(m.progress, "Training", loader.Len())
	logs := newRunningMean()

	for step := 1; ; step++ {
		batch, err := loader.Next()
		if err != nil {
			return nil, err
		}
		if batch == nil {
			break
		}

		loss, err := m.trainBatch(batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %v", step, err)
		}
		logs.add(batch.Size(), map[string]float64{
			MetricLoss: loss,
			MetricRMSE: math.Sqrt(loss),
		})
		bar.Update(step, logs.mean())
	}
	bar.Finish()
	return logs.mean(), nil
}

func (m *Model) trainBatch(batch *Batch) (float64, error) {
	m.net.ZeroGrad()
	out, trace, err := m.net.Forward(batch.Inputs)
	if err != nil {
		return 0, fmt.Errorf("forward pass failed: %v", err)
	}
	loss, err := m.criterion.Forward(out, batch.Targets)
	if err != nil {
		return 0, err
	}
	grad, err := m.criterion.Backward(out, batch.Targets)
	if err != nil {
		return 0, err
	}
	if err := m.net.Backward(trace, grad); err != nil {
		return 0, fmt.Errorf("backward pass failed: %v", err)
	}
	if err := m.optimizer.Step(m.net.Parameters(), m.net.Gradients()); err != nil {
		return 0, fmt.Errorf("optimizer step failed: %v", err)
	}
	return loss, nil
}

// Evaluate computes loss, rmse and mae as sample-weighted means of the
// per-batch values, visiting batches in order.
func (m *Model) Evaluate(data *Data, batchSize int) (Score, error) {
	if err := ValidateData(m.InputSignature(), data); err != nil {
		return Score{}, err
	}
	if batchSize <= 0 {
		return Score{}, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	loader := NewDataLoader(data, batchSize, false, nil)
	logs := newRunningMean()
	for {
		batch, err := loader.Next()
		if err != nil {
			return Score{}, err
		}
		if batch == nil {
			break
		}
		out, err := m.net.Predict(batch.Inputs)
		if err != nil {
			return Score{}, fmt.Errorf("forward pass failed: %v", err)
		}
		if !tensor.ShapesEqual(out.Shape, batch.Targets.Shape) {
			return Score{}, fmt.Errorf("%w: output %v, targets %v", ErrShapeMismatch, out.Shape, batch.Targets.Shape)
		}
		metrics := CalculateRegressionMetrics(out.Data, batch.Targets.Data)
		logs.add(batch.Size(), map[string]float64{
			MetricLoss: metrics.MSE,
			MetricRMSE: metrics.RMSE,
			"mae":      metrics.MAE,
		})
	}

	mean := logs.mean()
	return Score{
		Loss:     mean[MetricLoss],
		RMSE:     mean[MetricRMSE],
		MAE:      mean["mae"],
		RealRMSE: math.NaN(),
		Samples:  data.Len(),
	}, nil
}

// Predict runs inputs through the model.
func (m *Model) Predict(inputs []*tensor.Tensor) (*tensor.Tensor, error) {
	return m.net.Predict(inputs)
}

// Checkpoint snapshots weights and optimizer state. The caller fills in
// TrainingState.
func (m *Model) Checkpoint() (*checkpoints.Checkpoint, error) {
	weights, err := checkpoints.ExtractWeights(m.net.Parameters(), m.spec)
	if err != nil {
		return nil, fmt.Errorf("failed to extract weights: %v", err)
	}
	state, err := m.optimizer.GetState()
	if err != nil {
		return nil, fmt.Errorf("failed to extract optimizer state: %v", err)
	}
	return &checkpoints.Checkpoint{
		ModelSpec:      m.spec,
		Weights:        weights,
		OptimizerState: state,
		TrainingState: checkpoints.TrainingState{
			LearningRate: m.optimizer.GetLearningRate(),
			Step:         int(m.optimizer.GetStepCount()),
			TotalSteps:   int(m.optimizer.GetStepCount()),
		},
	}, nil
}

// Restore loads the checkpoint's weights. The optimizer keeps its current
// moments, so training continues from the restored weights with the
// optimizer as it was.
func (m *Model) Restore(c *checkpoints.Checkpoint) error {
	if c == nil {
		return fmt.Errorf("checkpoint is nil")
	}
	if c.ModelSpec != nil && !m.spec.Compatible(c.ModelSpec) {
		return fmt.Errorf("%w: checkpoint model architecture incompatible with current model", ErrShapeMismatch)
	}
	if err := checkpoints.LoadWeightsIntoTensors(c.Weights, m.net.Parameters(), m.net.ParameterNames()); err != nil {
		return fmt.Errorf("failed to load weights: %v", err)
	}
	return nil
}

// RestoreOptimizer loads the optimizer state saved in a checkpoint.
func (m *Model) RestoreOptimizer(c *checkpoints.Checkpoint) error {
	if c == nil || c.OptimizerState == nil {
		return fmt.Errorf("checkpoint has no optimizer state")
	}
	return m.optimizer.LoadState(c.OptimizerState)
}
