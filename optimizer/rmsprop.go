package optimizer

import (
	"math"

	"github.com/tsawler/go-stflow/tensor"
)

// RMSPropOptimizerState holds RMSProp hyperparameters and running averages
type RMSPropOptimizerState struct {
	// Hyperparameters
	LearningRate float32
	Alpha        float32 // Smoothing constant
	Epsilon      float32
	WeightDecay  float32
	Momentum     float32 // 0 disables the momentum buffer
	Centered     bool    // Subtract the running mean of gradients

	SquaredGradAvgBuffers [][]float32
	MomentumBuffers       [][]float32
	GradientAvgBuffers    [][]float32

	StepCount uint64

	bufferSizes []int
}

// RMSPropConfig holds configuration for RMSProp optimizer
type RMSPropConfig struct {
	LearningRate float32
	Alpha        float32
	Epsilon      float32
	WeightDecay  float32
	Momentum     float32
	Centered     bool
}

// DefaultRMSPropConfig returns default RMSProp optimizer configuration
func DefaultRMSPropConfig() RMSPropConfig {
	return RMSPropConfig{
		LearningRate: 0.001,
		Alpha:        0.9,
		Epsilon:      1e-8,
		WeightDecay:  0.0,
		Momentum:     0.0,
		Centered:     false,
	}
}

// NewRMSPropOptimizer creates an RMSProp optimizer for tensors of the given shapes
func NewRMSPropOptimizer(config RMSPropConfig, weightShapes [][]int) (*RMSPropOptimizerState, error) {
	sizes, err := bufferSizes(weightShapes)
	if err != nil {
		return nil, err
	}
	return &RMSPropOptimizerState{
		LearningRate:          config.LearningRate,
		Alpha:                 config.Alpha,
		Epsilon:               config.Epsilon,
		WeightDecay:           config.WeightDecay,
		Momentum:              config.Momentum,
		Centered:              config.Centered,
		SquaredGradAvgBuffers: allocBuffers(sizes),
		MomentumBuffers:       allocBuffers(sizes),
		GradientAvgBuffers:    allocBuffers(sizes),
		bufferSizes:           sizes,
	}, nil
}

// Step performs a single RMSProp update
func (rmsprop *RMSPropOptimizerState) Step(params, grads []*tensor.Tensor) error {
	if err := checkStep(params, grads, rmsprop.bufferSizes); err != nil {
		return err
	}
	rmsprop.StepCount++

	a := rmsprop.Alpha
	for i, p := range params {
		sq := rmsprop.SquaredGradAvgBuffers[i]
		mom := rmsprop.MomentumBuffers[i]
		avg := rmsprop.GradientAvgBuffers[i]
		g := grads[i].Data
		for j := range p.Data {
			gj := g[j]
			if rmsprop.WeightDecay != 0 {
				gj += rmsprop.WeightDecay * p.Data[j]
			}
			sq[j] = a*sq[j] + (1-a)*gj*gj
			denom := sq[j]
			if rmsprop.Centered {
				avg[j] = a*avg[j] + (1-a)*gj
				denom -= avg[j] * avg[j]
				if denom < 0 {
					denom = 0
				}
			}
			update := gj / (float32(math.Sqrt(float64(denom))) + rmsprop.Epsilon)
			if rmsprop.Momentum > 0 {
				mom[j] = rmsprop.Momentum*mom[j] + update
				update = mom[j]
			}
			p.Data[j] -= rmsprop.LearningRate * update
		}
	}
	return nil
}

func (rmsprop *RMSPropOptimizerState) UpdateLearningRate(newLR float32) {
	rmsprop.LearningRate = newLR
}

func (rmsprop *RMSPropOptimizerState) GetLearningRate() float32 {
	return rmsprop.LearningRate
}

func (rmsprop *RMSPropOptimizerState) GetStepCount() uint64 {
	return rmsprop.StepCount
}

// GetState extracts optimizer state for checkpointing
func (rmsprop *RMSPropOptimizerState) GetState() (*OptimizerState, error) {
	stateData := extractBuffers(rmsprop.SquaredGradAvgBuffers, "squared_grad_avg")
	if rmsprop.Momentum > 0 {
		stateData = append(stateData, extractBuffers(rmsprop.MomentumBuffers, "momentum")...)
	}
	if rmsprop.Centered {
		stateData = append(stateData, extractBuffers(rmsprop.GradientAvgBuffers, "gradient_avg")...)
	}

	return &OptimizerState{
		Type: "RMSProp",
		Parameters: map[string]interface{}{
			"learning_rate": rmsprop.LearningRate,
			"alpha":         rmsprop.Alpha,
			"epsilon":       rmsprop.Epsilon,
			"weight_decay":  rmsprop.WeightDecay,
			"momentum":      rmsprop.Momentum,
			"centered":      rmsprop.Centered,
			"step_count":    rmsprop.StepCount,
		},
		StateData: stateData,
	}, nil
}

// LoadState restores optimizer state from checkpoint
func (rmsprop *RMSPropOptimizerState) LoadState(state *OptimizerState) error {
	if err := validateStateType("RMSProp", state); err != nil {
		return err
	}
	if err := restoreBuffers(state, map[string][][]float32{
		"squared_grad_avg": rmsprop.SquaredGradAvgBuffers,
		"momentum":         rmsprop.MomentumBuffers,
		"gradient_avg":     rmsprop.GradientAvgBuffers,
	}); err != nil {
		return err
	}

	rmsprop.LearningRate = extractFloat32Param(state.Parameters, "learning_rate", rmsprop.LearningRate)
	rmsprop.Alpha = extractFloat32Param(state.Parameters, "alpha", rmsprop.Alpha)
	rmsprop.Epsilon = extractFloat32Param(state.Parameters, "epsilon", rmsprop.Epsilon)
	rmsprop.WeightDecay = extractFloat32Param(state.Parameters, "weight_decay", rmsprop.WeightDecay)
	rmsprop.Momentum = extractFloat32Param(state.Parameters, "momentum", rmsprop.Momentum)
	rmsprop.Centered = extractBoolParam(state.Parameters, "centered", rmsprop.Centered)
	rmsprop.StepCount = extractUint64Param(state.Parameters, "step_count", rmsprop.StepCount)
	return nil
}
