package training

import (
	"fmt"
	"math"
)

// TrainEvalBatchSize is the batch size used to score the training set:
// n/24, at least 1.
func TrainEvalBatchSize(n int) int {
	if b := n / 24; b > 0 {
		return b
	}
	return 1
}

// TestEvalBatchSize scores the test set in a single batch.
func TestEvalBatchSize(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// Evaluate scores p on data. When scale is positive, RealRMSE = RMSE * scale;
// otherwise it is NaN.
func Evaluate(p Predictor, data *Data, batchSize int, scale float64) (Score, error) {
	if data.Len() == 0 {
		return Score{}, fmt.Errorf("cannot evaluate on an empty dataset")
	}
	score, err := p.Evaluate(data, batchSize)
	if err != nil {
		return Score{}, err
	}
	score.Samples = data.Len()
	score.RealRMSE = math.NaN()
	if scale > 0 {
		score.RealRMSE = score.RMSE * scale
	}
	return score, nil
}

// EvaluateSplits scores the training set with TrainEvalBatchSize and the test
// set with TestEvalBatchSize.
func EvaluateSplits(p Predictor, train, test *Data, scale float64) (trainScore, testScore Score, err error) {
	trainScore, err = Evaluate(p, train, TrainEvalBatchSize(train.Len()), scale)
	if err != nil {
		return Score{}, Score{}, fmt.Errorf("train evaluation failed: %w", err)
	}
	testScore, err = Evaluate(p, test, TestEvalBatchSize(test.Len()), scale)
	if err != nil {
		return Score{}, Score{}, fmt.Errorf("test evaluation failed: %w", err)
	}
	return trainScore, testScore, nil
}

// FormatScore renders a score the way the run log prints it.
func FormatScore(name string, s Score) string {
	line := fmt.Sprintf("%s score: %.6f rmse (norm): %.6f", name, s.Loss, s.RMSE)
	if !math.IsNaN(s.RealRMSE) {
		line += fmt.Sprintf(" rmse (real): %.6f", s.RealRMSE)
	}
	return line
}
