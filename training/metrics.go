package training

import (
	"math"
)

// Metric names used in epoch logs and histories.
const (
	MetricLoss    = "loss"
	MetricRMSE    = "rmse"
	MetricValLoss = "val_loss"
	MetricValRMSE = "val_rmse"
)

// RegressionMetrics holds comprehensive regression evaluation metrics
type RegressionMetrics struct {
	MAE  float64 // Mean Absolute Error
	MSE  float64 // Mean Squared Error
	RMSE float64 // Root Mean Squared Error
	R2   float64 // R-squared
	NMAE float64 // Normalized Mean Absolute Error
}

// CalculateRegressionMetrics computes regression metrics over paired
// predictions and true values
func CalculateRegressionMetrics(predictions, trueValues []float32) *RegressionMetrics {
	n := len(predictions)
	if n == 0 || len(trueValues) != n {
		return &RegressionMetrics{}
	}

	meanTrue := 0.0
	for _, v := range trueValues {
		meanTrue += float64(v)
	}
	meanTrue /= float64(n)

	sumAbsErr := 0.0
	sumSqErr := 0.0
	sumSqTotal := 0.0
	minTrue := math.Inf(1)
	maxTrue := math.Inf(-1)

	for i := 0; i < n; i++ {
		pred := float64(predictions[i])
		actual := float64(trueValues[i])

		err := pred - actual
		sumAbsErr += math.Abs(err)
		sumSqErr += err * err
		sumSqTotal += (actual - meanTrue) * (actual - meanTrue)

		minTrue = math.Min(minTrue, actual)
		maxTrue = math.Max(maxTrue, actual)
	}

	mae := sumAbsErr / float64(n)
	mse := sumSqErr / float64(n)

	r2 := 0.0
	if sumSqTotal > 0 {
		r2 = 1.0 - (sumSqErr / sumSqTotal)
	}

	// Normalized MAE (scale by range)
	nmae := 0.0
	if maxTrue > minTrue {
		nmae = mae / (maxTrue - minTrue)
	}

	return &RegressionMetrics{
		MAE:  mae,
		MSE:  mse,
		RMSE: math.Sqrt(mse),
		R2:   r2,
		NMAE: nmae,
	}
}

// runningMean accumulates a sample-weighted mean of per-batch values.
type runningMean struct {
	sum   map[string]float64
	count int
}

func newRunningMean() *runningMean {
	return &runningMean{sum: make(map[string]float64)}
}

func (rm *runningMean) add(batchSize int, values map[string]float64) {
	for k, v := range values {
		rm.sum[k] += v * float64(batchSize)
	}
	rm.count += batchSize
}

func (rm *runningMean) mean() map[string]float64 {
	out := make(map[string]float64, len(rm.sum))
	for k, v := range rm.sum {
		if rm.count == 0 {
			out[k] = math.NaN()
			continue
		}
		out[k] = v / float64(rm.count)
	}
	return out
}
