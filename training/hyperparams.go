package training

import (
	"fmt"
	"strconv"
)

// Hyperparams is the training configuration of one run. The orchestrator
// takes a copy, so changes after construction have no effect.
type Hyperparams struct {
	Closeness     int     `json:"closeness" yaml:"closeness"`
	Period        int     `json:"period" yaml:"period"`
	Trend         int     `json:"trend" yaml:"trend"`
	ResidualUnits int     `json:"residual_units" yaml:"residual_units"`
	LearningRate  float64 `json:"learning_rate" yaml:"learning_rate"`
	BatchSize     int     `json:"batch_size" yaml:"batch_size"`
	Epochs        int     `json:"epochs" yaml:"epochs"`
	ContEpochs    int     `json:"cont_epochs" yaml:"cont_epochs"`
}

// Key identifies the run's artifacts: c{c}.p{p}.t{t}.resunit{r}.lr{lr},
// with lr in shortest decimal form (0.0002, 1e-05).
func (hp Hyperparams) Key() string {
	return fmt.Sprintf("c%d.p%d.t%d.resunit%d.lr%s",
		hp.Closeness, hp.Period, hp.Trend, hp.ResidualUnits,
		strconv.FormatFloat(hp.LearningRate, 'g', -1, 64))
}

func (hp Hyperparams) Validate() error {
	if hp.Closeness < 0 || hp.Period < 0 || hp.Trend < 0 {
		return fmt.Errorf("view lengths must be non-negative: closeness=%d period=%d trend=%d", hp.Closeness, hp.Period, hp.Trend)
	}
	if hp.ResidualUnits < 0 {
		return fmt.Errorf("residual units must be non-negative, got %d", hp.ResidualUnits)
	}
	if hp.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %g", hp.LearningRate)
	}
	if hp.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", hp.BatchSize)
	}
	if hp.Epochs < 0 || hp.ContEpochs < 0 {
		return fmt.Errorf("epoch counts must be non-negative: epochs=%d cont_epochs=%d", hp.Epochs, hp.ContEpochs)
	}
	return nil
}
