package optimizer

import (
	"math"

	"github.com/tsawler/go-stflow/tensor"
)

// AdamOptimizerState holds Adam hyperparameters and per-parameter moments
type AdamOptimizerState struct {
	// Hyperparameters
	LearningRate float32
	Beta1        float32 // Momentum decay (typically 0.9)
	Beta2        float32 // Variance decay (typically 0.999)
	Epsilon      float32 // Small constant to prevent division by zero (typically 1e-8)
	WeightDecay  float32 // L2 regularization coefficient

	MomentumBuffers [][]float32 // First moment for each weight tensor
	VarianceBuffers [][]float32 // Second moment for each weight tensor

	// Step tracking for bias correction
	StepCount uint64

	bufferSizes []int
}

// AdamConfig holds configuration for Adam optimizer
type AdamConfig struct {
	LearningRate float32
	Beta1        float32
	Beta2        float32
	Epsilon      float32
	WeightDecay  float32
}

// DefaultAdamConfig returns default Adam optimizer configuration
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		LearningRate: 0.001,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		WeightDecay:  0.0,
	}
}

// NewAdamOptimizer creates an Adam optimizer with zeroed moments for
// tensors of the given shapes
func NewAdamOptimizer(config AdamConfig, weightShapes [][]int) (*AdamOptimizerState, error) {
	sizes, err := bufferSizes(weightShapes)
	if err != nil {
		return nil, err
	}
	return &AdamOptimizerState{
		LearningRate:    config.LearningRate,
		Beta1:           config.Beta1,
		Beta2:           config.Beta2,
		Epsilon:         config.Epsilon,
		WeightDecay:     config.WeightDecay,
		MomentumBuffers: allocBuffers(sizes),
		VarianceBuffers: allocBuffers(sizes),
		bufferSizes:     sizes,
	}, nil
}

// Step performs a single Adam update. The bias correction is folded into
// the step size: lr_t = lr * sqrt(1 - beta2^t) / (1 - beta1^t).
func (adam *AdamOptimizerState) Step(params, grads []*tensor.Tensor) error {
	if err := checkStep(params, grads, adam.bufferSizes); err != nil {
		return err
	}

	adam.StepCount++
	t := float64(adam.StepCount)
	b1, b2 := float64(adam.Beta1), float64(adam.Beta2)
	lrT := float32(float64(adam.LearningRate) * math.Sqrt(1-math.Pow(b2, t)) / (1 - math.Pow(b1, t)))

	for i, p := range params {
		m, v := adam.MomentumBuffers[i], adam.VarianceBuffers[i]
		g := grads[i].Data
		for j := range p.Data {
			gj := g[j]
			if adam.WeightDecay != 0 {
				gj += adam.WeightDecay * p.Data[j]
			}
			m[j] = adam.Beta1*m[j] + (1-adam.Beta1)*gj
			v[j] = adam.Beta2*v[j] + (1-adam.Beta2)*gj*gj
			p.Data[j] -= lrT * m[j] / (float32(math.Sqrt(float64(v[j]))) + adam.Epsilon)
		}
	}
	return nil
}

// UpdateLearningRate updates the learning rate (useful for learning rate scheduling)
func (adam *AdamOptimizerState) UpdateLearningRate(newLR float32) {
	adam.LearningRate = newLR
}

func (adam *AdamOptimizerState) GetLearningRate() float32 {
	return adam.LearningRate
}

// GetStepCount returns the current step count
func (adam *AdamOptimizerState) GetStepCount() uint64 {
	return adam.StepCount
}

// GetState copies the moments and step count for checkpointing
func (adam *AdamOptimizerState) GetState() (*OptimizerState, error) {
	stateData := extractBuffers(adam.MomentumBuffers, "m")
	stateData = append(stateData, extractBuffers(adam.VarianceBuffers, "v")...)

	return &OptimizerState{
		Type: "Adam",
		Parameters: map[string]interface{}{
			"learning_rate": adam.LearningRate,
			"beta1":         adam.Beta1,
			"beta2":         adam.Beta2,
			"epsilon":       adam.Epsilon,
			"weight_decay":  adam.WeightDecay,
			"step_count":    adam.StepCount,
		},
		StateData: stateData,
	}, nil
}

// LoadState restores moments and hyperparameters from a checkpoint
func (adam *AdamOptimizerState) LoadState(state *OptimizerState) error {
	if err := validateStateType("Adam", state); err != nil {
		return err
	}

	if err := restoreBuffers(state, map[string][][]float32{
		"m": adam.MomentumBuffers,
		"v": adam.VarianceBuffers,
	}); err != nil {
		return err
	}

	adam.LearningRate = extractFloat32Param(state.Parameters, "learning_rate", adam.LearningRate)
	adam.Beta1 = extractFloat32Param(state.Parameters, "beta1", adam.Beta1)
	adam.Beta2 = extractFloat32Param(state.Parameters, "beta2", adam.Beta2)
	adam.Epsilon = extractFloat32Param(state.Parameters, "epsilon", adam.Epsilon)
	adam.WeightDecay = extractFloat32Param(state.Parameters, "weight_decay", adam.WeightDecay)
	adam.StepCount = extractUint64Param(state.Parameters, "step_count", adam.StepCount)
	return nil
}
