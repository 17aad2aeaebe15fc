package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// MinMaxNormalizer maps [Min, Max] linearly onto [-1, 1].
type MinMaxNormalizer struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// FitMinMax fits a normalizer on frames.
func FitMinMax(frames [][]float32) (*MinMaxNormalizer, error) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, frame := range frames {
		for _, v := range frame {
			lo = math.Min(lo, float64(v))
			hi = math.Max(hi, float64(v))
		}
	}
	if math.IsInf(lo, 0) {
		return nil, fmt.Errorf("no values to fit")
	}
	if hi == lo {
		return nil, fmt.Errorf("all values equal %g, cannot normalize", lo)
	}
	return &MinMaxNormalizer{Min: lo, Max: hi}, nil
}

// Transform returns a normalized copy of frame.
func (n *MinMaxNormalizer) Transform(frame []float32) []float32 {
	out := make([]float32, len(frame))
	for i, v := range frame {
		out[i] = float32(2*(float64(v)-n.Min)/(n.Max-n.Min) - 1)
	}
	return out
}

func (n *MinMaxNormalizer) InverseTransform(frame []float32) []float32 {
	out := make([]float32, len(frame))
	for i, v := range frame {
		out[i] = float32((float64(v)+1)/2*(n.Max-n.Min) + n.Min)
	}
	return out
}

// Scale converts an rmse on normalized values into one on counts.
func (n *MinMaxNormalizer) Scale() float64 { return (n.Max - n.Min) / 2 }

// Save writes the normalizer as JSON.
func (n *MinMaxNormalizer) Save(path string) error {
	raw, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("failed to save normalizer: %w", err)
	}
	return nil
}

// LoadNormalizer reads a normalizer written by Save.
func LoadNormalizer(path string) (*MinMaxNormalizer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load normalizer: %w", err)
	}
	var n MinMaxNormalizer
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("failed to parse normalizer: %w", err)
	}
	if n.Max <= n.Min {
		return nil, fmt.Errorf("invalid normalizer range [%g, %g]", n.Min, n.Max)
	}
	return &n, nil
}
