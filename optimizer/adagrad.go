package optimizer

import (
	"math"

	"github.com/tsawler/go-stflow/tensor"
)

// AdaGradOptimizerState accumulates squared gradients per parameter
type AdaGradOptimizerState struct {
	LearningRate float32
	Epsilon      float32
	WeightDecay  float32

	SquaredGradSumBuffers [][]float32

	StepCount uint64

	bufferSizes []int
}

// AdaGradConfig holds configuration for AdaGrad optimizer
type AdaGradConfig struct {
	LearningRate float32
	Epsilon      float32
	WeightDecay  float32
}

// DefaultAdaGradConfig returns default AdaGrad optimizer configuration
func DefaultAdaGradConfig() AdaGradConfig {
	return AdaGradConfig{
		LearningRate: 0.01,
		Epsilon:      1e-10,
		WeightDecay:  0.0,
	}
}

func NewAdaGradOptimizer(config AdaGradConfig, weightShapes [][]int) (*AdaGradOptimizerState, error) {
	sizes, err := bufferSizes(weightShapes)
	if err != nil {
		return nil, err
	}
	return &AdaGradOptimizerState{
		LearningRate:          config.LearningRate,
		Epsilon:               config.Epsilon,
		WeightDecay:           config.WeightDecay,
		SquaredGradSumBuffers: allocBuffers(sizes),
		bufferSizes:           sizes,
	}, nil
}

// Step performs a single AdaGrad update
func (adagrad *AdaGradOptimizerState) Step(params, grads []*tensor.Tensor) error {
	if err := checkStep(params, grads, adagrad.bufferSizes); err != nil {
		return err
	}
	adagrad.StepCount++

	for i, p := range params {
		acc := adagrad.SquaredGradSumBuffers[i]
		g := grads[i].Data
		for j := range p.Data {
			gj := g[j]
			if adagrad.WeightDecay != 0 {
				gj += adagrad.WeightDecay * p.Data[j]
			}
			acc[j] += gj * gj
			p.Data[j] -= adagrad.LearningRate * gj / (float32(math.Sqrt(float64(acc[j]))) + adagrad.Epsilon)
		}
	}
	return nil
}

func (adagrad *AdaGradOptimizerState) UpdateLearningRate(newLR float32) {
	adagrad.LearningRate = newLR
}

func (adagrad *AdaGradOptimizerState) GetLearningRate() float32 {
	return adagrad.LearningRate
}

func (adagrad *AdaGradOptimizerState) GetStepCount() uint64 {
	return adagrad.StepCount
}

func (adagrad *AdaGradOptimizerState) GetState() (*OptimizerState, error) {
	return &OptimizerState{
		Type: "AdaGrad",
		Parameters: map[string]interface{}{
			"learning_rate": adagrad.LearningRate,
			"epsilon":       adagrad.Epsilon,
			"weight_decay":  adagrad.WeightDecay,
			"step_count":    adagrad.StepCount,
		},
		StateData: extractBuffers(adagrad.SquaredGradSumBuffers, "squared_grad_sum"),
	}, nil
}

func (adagrad *AdaGradOptimizerState) LoadState(state *OptimizerState) error {
	if err := validateStateType("AdaGrad", state); err != nil {
		return err
	}
	if err := restoreBuffers(state, map[string][][]float32{
		"squared_grad_sum": adagrad.SquaredGradSumBuffers,
	}); err != nil {
		return err
	}
	adagrad.LearningRate = extractFloat32Param(state.Parameters, "learning_rate", adagrad.LearningRate)
	adagrad.Epsilon = extractFloat32Param(state.Parameters, "epsilon", adagrad.Epsilon)
	adagrad.WeightDecay = extractFloat32Param(state.Parameters, "weight_decay", adagrad.WeightDecay)
	adagrad.StepCount = extractUint64Param(state.Parameters, "step_count", adagrad.StepCount)
	return nil
}
