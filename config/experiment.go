package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Experiment holds the training and dataset settings of one run.
type Experiment struct {
	Dataset string `yaml:"dataset"`

	Epochs          int     `yaml:"nb_epoch"`
	ContEpochs      int     `yaml:"nb_epoch_cont"`
	BatchSize       int     `yaml:"batch_size"`
	LearningRate    float64 `yaml:"lr"`
	ValidationSplit float64 `yaml:"validation_split"`
	Patience        int     `yaml:"patience"`
	Seed            int64   `yaml:"seed"`

	T           int  `yaml:"T"`
	Closeness   int  `yaml:"len_closeness"`
	Period      int  `yaml:"len_period"`
	Trend       int  `yaml:"len_trend"`
	TrendActive bool `yaml:"trend_active"`

	ResidualUnits int `yaml:"nb_residual_unit"`
	Filters       int `yaml:"filters"`

	Flows    int  `yaml:"nb_flow"`
	DaysTest int  `yaml:"days_test"`
	Height   int  `yaml:"map_height"`
	Width    int  `yaml:"map_width"`
	Areas    int  `yaml:"nb_area"`
	Meta     bool `yaml:"meta_data"`

	// Normalization is the file name, under the results directory, the
	// fitted normalizer is stored as.
	Normalization string `yaml:"preprocess_name"`

	// Bounds is only needed when flows are rasterized from trip records.
	Bounds *Bounds `yaml:"bounds,omitempty"`
}

// Bounds is the lat/lng rectangle covered by the grid.
type Bounds struct {
	MinLat float64 `yaml:"min_lat"`
	MinLng float64 `yaml:"min_lng"`
	MaxLat float64 `yaml:"max_lat"`
	MaxLng float64 `yaml:"max_lng"`
}

// DefaultExperiment returns the BikeNYC settings.
func DefaultExperiment() Experiment {
	return Experiment{
		Dataset:         "BikeNYC",
		Epochs:          1,
		ContEpochs:      1,
		BatchSize:       32,
		LearningRate:    0.0002,
		ValidationSplit: 0.1,
		Patience:        5,
		Seed:            1337,
		T:               24,
		Closeness:       6,
		Period:          4,
		Trend:           4,
		ResidualUnits:   4,
		Filters:         64,
		Flows:           1,
		DaysTest:        10,
		Height:          35,
		Width:           11,
		Areas:           81,
		Meta:            true,
		Normalization:   "preprocessing.json",
	}
}

// LenTest is the number of test samples, T * days_test.
func (e Experiment) LenTest() int { return e.T * e.DaysTest }

// ActiveTrend is the trend length fed to the loader and model: Trend when
// the trend view is switched on, 0 otherwise.
func (e Experiment) ActiveTrend() int {
	if e.TrendActive {
		return e.Trend
	}
	return 0
}

// LoadExperiment overlays the YAML file at path on base. Keys missing from
// the file keep base's values; unknown keys are rejected.
func LoadExperiment(path string, base Experiment) (Experiment, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read experiment file: %w", err)
	}
	return ParseExperiment(raw, base)
}

// ParseExperiment is LoadExperiment over an in-memory document.
func ParseExperiment(raw []byte, base Experiment) (Experiment, error) {
	exp := base
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&exp); err != nil && !errors.Is(err, io.EOF) {
		return base, fmt.Errorf("failed to parse experiment file: %w", err)
	}
	return exp, nil
}

// Validate rejects settings no run can use.
func (e Experiment) Validate() error {
	switch {
	case e.T <= 0:
		return fmt.Errorf("T must be positive, got %d", e.T)
	case e.Height <= 0 || e.Width <= 0:
		return fmt.Errorf("grid size must be positive, got %dx%d", e.Height, e.Width)
	case e.BatchSize <= 0:
		return fmt.Errorf("batch size must be positive, got %d", e.BatchSize)
	case e.Flows <= 0:
		return fmt.Errorf("nb_flow must be positive, got %d", e.Flows)
	case e.Closeness < 0 || e.Period < 0 || e.Trend < 0:
		return fmt.Errorf("window lengths must not be negative")
	case e.Closeness == 0 && e.Period == 0 && e.ActiveTrend() == 0:
		return fmt.Errorf("at least one of closeness, period or trend must be active")
	case e.Epochs < 0 || e.ContEpochs < 0:
		return fmt.Errorf("epoch counts must not be negative")
	case e.DaysTest <= 0:
		return fmt.Errorf("days_test must be positive, got %d", e.DaysTest)
	case e.LearningRate <= 0:
		return fmt.Errorf("learning rate must be positive, got %g", e.LearningRate)
	case e.ValidationSplit <= 0 || e.ValidationSplit >= 1:
		return fmt.Errorf("validation_split must be in (0, 1), got %g", e.ValidationSplit)
	case e.Areas < 0:
		return fmt.Errorf("nb_area must not be negative")
	}
	if b := e.Bounds; b != nil && (b.MinLat >= b.MaxLat || b.MinLng >= b.MaxLng) {
		return fmt.Errorf("bounds are empty")
	}
	return nil
}
