package training

import (
	"fmt"
	"math/rand"

	"github.com/tsawler/go-stflow/checkpoints"
)

// FitConfig holds configuration for one call to Fit
type FitConfig struct {
	Epochs    int
	BatchSize int

	// ValidationSplit holds out the last fraction of the training data
	// (split index int(n * (1 - ValidationSplit))). Ignored when
	// ValidationData is set.
	ValidationSplit float64
	ValidationData  *Data

	Callbacks []Callback

	// RNG shuffles the fit portion every epoch. Nil disables shuffling.
	RNG *rand.Rand

	// OnEpoch is called after the callbacks of every epoch.
	OnEpoch func(epoch int, logs map[string]float64)
}

// FitResult is the history of a Fit call.
type FitResult struct {
	History      checkpoints.History
	EpochsRun    int
	StoppedEarly bool
}

func validateFitConfig(config FitConfig) error {
	if config.Epochs < 0 {
		return fmt.Errorf("epochs must be non-negative, got %d", config.Epochs)
	}
	if config.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", config.BatchSize)
	}
	if config.ValidationSplit < 0 || config.ValidationSplit >= 1 {
		return fmt.Errorf("validation split must be in [0, 1), got %g", config.ValidationSplit)
	}
	return nil
}

// splitValidation separates the fit portion from the held-out tail.
func splitValidation(data *Data, split float64) (fit, val *Data, err error) {
	n := data.Len()
	at := int(float64(n) * (1 - split))
	if at <= 0 || at >= n {
		return nil, nil, fmt.Errorf("validation split %g of %d samples leaves an empty partition", split, n)
	}
	if fit, err = data.Slice(0, at); err != nil {
		return nil, nil, err
	}
	if val, err = data.Slice(at, n); err != nil {
		return nil, nil, err
	}
	return fit, val, nil
}

// Fit trains p on data. Each epoch logs loss and rmse of the fit portion
// and, when there is validation data, val_loss and val_rmse.
func Fit(p Predictor, data *Data, config FitConfig) (*FitResult, error) {
	if err := validateFitConfig(config); err != nil {
		return nil, err
	}

	fit, val := data, config.ValidationData
	if val == nil && config.ValidationSplit > 0 {
		var err error
		if fit, val, err = splitValidation(data, config.ValidationSplit); err != nil {
			return nil, err
		}
	}

	result := &FitResult{History: checkpoints.History{}}
	for epoch := 0; epoch < config.Epochs; epoch++ {
		logs, err := p.FitEpoch(fit, config.BatchSize, config.RNG)
		if err != nil {
			return nil, fmt.Errorf("training epoch %d failed: %w", epoch+1, err)
		}

		if val != nil {
			score, err := p.Evaluate(val, config.BatchSize)
			if err != nil {
				return nil, fmt.Errorf("validation epoch %d failed: %w", epoch+1, err)
			}
			logs[MetricValLoss] = score.Loss
			logs[MetricValRMSE] = score.RMSE
		}

		result.History.Append(logs)
		result.EpochsRun = epoch + 1

		stop := false
		for _, cb := range config.Callbacks {
			s, err := cb.OnEpochEnd(epoch, logs)
			if err != nil {
				return nil, fmt.Errorf("epoch %d callback failed: %w", epoch+1, err)
			}
			stop = stop || s
		}
		if config.OnEpoch != nil {
			config.OnEpoch(epoch, logs)
		}
		if stop {
			result.StoppedEarly = true
			break
		}
	}
	return result, nil
}
