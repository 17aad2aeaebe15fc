package training

import (
	"fmt"

	"github.com/tsawler/go-stflow/tensor"
)

// Loss interface defines methods that all loss functions must implement
type Loss interface {
	Forward(predicted, target *tensor.Tensor) (float64, error)
	Backward(predicted, target *tensor.Tensor) (*tensor.Tensor, error)
}

// MSELoss implements Mean Squared Error loss function
type MSELoss struct {
	reduction string // "mean" or "sum"
}

// NewMSELoss creates a new Mean Squared Error loss function
func NewMSELoss(reduction string) *MSELoss {
	if reduction == "" {
		reduction = "mean"
	}
	return &MSELoss{reduction: reduction}
}

// Forward computes the MSE loss: L = (1/N) * sum((y_pred - y_true)^2)
func (mse *MSELoss) Forward(predicted, target *tensor.Tensor) (float64, error) {
	diff, err := tensor.Sub(predicted, target)
	if err != nil {
		return 0, fmt.Errorf("predicted and target tensors must have the same shape: %v", err)
	}
	sum := tensor.SumSquares(diff)
	if mse.reduction == "sum" {
		return sum, nil
	}
	return sum / float64(diff.NumElems), nil
}

// Backward computes dL/dy_pred = 2 * (y_pred - y_true) / N
func (mse *MSELoss) Backward(predicted, target *tensor.Tensor) (*tensor.Tensor, error) {
	grad, err := tensor.Sub(predicted, target)
	if err != nil {
		return nil, fmt.Errorf("predicted and target tensors must have the same shape: %v", err)
	}
	scale := float32(2)
	if mse.reduction != "sum" {
		scale /= float32(grad.NumElems)
	}
	for i := range grad.Data {
		grad.Data[i] *= scale
	}
	return grad, nil
}
