package optimizer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tsawler/go-stflow/checkpoints"
	"github.com/tsawler/go-stflow/tensor"
)

// Optimizer defines the common interface for all optimizers.
// State can be saved and restored so that a checkpoint resumes training
// with the same moments it was written with.
type Optimizer interface {
	// Step applies one update. params and grads are parallel slices and
	// must match the shapes the optimizer was created with.
	Step(params, grads []*tensor.Tensor) error

	// GetState copies optimizer state out for checkpointing
	GetState() (*OptimizerState, error)

	// LoadState restores optimizer state from a checkpoint
	LoadState(state *OptimizerState) error

	// GetStepCount returns the current optimization step number
	GetStepCount() uint64

	UpdateLearningRate(lr float32)

	GetLearningRate() float32
}

// OptimizerState is the serializable optimizer state stored in checkpoints.
type OptimizerState = checkpoints.OptimizerState

// Config selects and configures an optimizer by name.
type Config struct {
	Type         string  `json:"type" yaml:"type"` // "adam", "rmsprop", "adagrad"
	LearningRate float32 `json:"learning_rate" yaml:"learning_rate"`
}

// New creates the optimizer named by cfg.Type for parameters of the given
// shapes. Hyperparameters other than the learning rate take their defaults.
func New(cfg Config, weightShapes [][]int) (Optimizer, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "adam":
		c := DefaultAdamConfig()
		if cfg.LearningRate > 0 {
			c.LearningRate = cfg.LearningRate
		}
		return NewAdamOptimizer(c, weightShapes)
	case "rmsprop":
		c := DefaultRMSPropConfig()
		if cfg.LearningRate > 0 {
			c.LearningRate = cfg.LearningRate
		}
		return NewRMSPropOptimizer(c, weightShapes)
	case "adagrad":
		c := DefaultAdaGradConfig()
		if cfg.LearningRate > 0 {
			c.LearningRate = cfg.LearningRate
		}
		return NewAdaGradOptimizer(c, weightShapes)
	default:
		return nil, fmt.Errorf("unknown optimizer type: %s", cfg.Type)
	}
}

// extractBufferIndex extracts the buffer index from state tensor names like "m_0", "v_1", "squared_grad_avg_0"
func extractBufferIndex(name string) int {
	i := strings.LastIndex(name, "_")
	if i < 0 {
		return -1
	}
	idx, err := strconv.Atoi(name[i+1:])
	if err != nil {
		return -1
	}
	return idx
}

// validateStateType ensures the state type matches the optimizer
func validateStateType(optimizerType string, state *OptimizerState) error {
	if state == nil {
		return fmt.Errorf("optimizer state is nil")
	}
	if state.Type != optimizerType {
		return fmt.Errorf("state type mismatch: expected %s, got %s", optimizerType, state.Type)
	}
	return nil
}

func checkStep(params, grads []*tensor.Tensor, sizes []int) error {
	if len(params) != len(sizes) || len(grads) != len(sizes) {
		return fmt.Errorf("expected %d parameter and gradient tensors, got %d and %d", len(sizes), len(params), len(grads))
	}
	for i, p := range params {
		if p.NumElems != sizes[i] || grads[i].NumElems != sizes[i] {
			return fmt.Errorf("tensor %d: expected %d elements, got parameter %d and gradient %d", i, sizes[i], p.NumElems, grads[i].NumElems)
		}
	}
	return nil
}

// calculateTensorSize calculates the number of elements in a tensor
func calculateTensorSize(shape []int) int {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return size
}

func allocBuffers(sizes []int) [][]float32 {
	buffers := make([][]float32, len(sizes))
	for i, n := range sizes {
		buffers[i] = make([]float32, n)
	}
	return buffers
}

func bufferSizes(weightShapes [][]int) ([]int, error) {
	if len(weightShapes) == 0 {
		return nil, fmt.Errorf("no weight shapes provided")
	}
	sizes := make([]int, len(weightShapes))
	for i, shape := range weightShapes {
		sizes[i] = calculateTensorSize(shape)
		if sizes[i] <= 0 {
			return nil, fmt.Errorf("invalid shape %v for weight %d", shape, i)
		}
	}
	return sizes, nil
}
