package training

import (
	"math/rand"

	"github.com/tsawler/go-stflow/checkpoints"
	"github.com/tsawler/go-stflow/layers"
)

// Predictor is what the fit loop, the evaluator and the orchestrator need
// from a model. Model implements it over an ST-ResNet; tests substitute
// scripted fakes.
type Predictor interface {
	// InputSignature lists the model inputs in the order data.X must follow.
	InputSignature() []layers.InputSpec

	// FitEpoch runs one pass over data in batches of batchSize, shuffled
	// with rng, updating the weights. It returns the sample-weighted mean
	// of the per-batch loss and rmse.
	FitEpoch(data *Data, batchSize int, rng *rand.Rand) (map[string]float64, error)

	// Evaluate runs data through the model without updating it.
	Evaluate(data *Data, batchSize int) (Score, error)

	// Checkpoint snapshots the current weights and optimizer state.
	Checkpoint() (*checkpoints.Checkpoint, error)

	// Restore loads the weights of a checkpoint.
	Restore(c *checkpoints.Checkpoint) error
}

// Score is the result of evaluating a model on a dataset. Loss and RMSE are
// in normalized units, RealRMSE in flow units (NaN without a scale).
type Score struct {
	Loss     float64 `json:"loss"`
	RMSE     float64 `json:"rmse"`
	MAE      float64 `json:"mae"`
	RealRMSE float64 `json:"real_rmse"`
	Samples  int     `json:"samples"`
}
