package training

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/tsawler/go-stflow/layers"
	"github.com/tsawler/go-stflow/tensor"
)

// ErrShapeMismatch is returned when data does not fit a model's input
// signature.
var ErrShapeMismatch = errors.New("data does not match model inputs")

// Data is a set of samples: one tensor per model input, each with the
// samples on the leading axis, and the target grids.
type Data struct {
	X []*tensor.Tensor
	Y *tensor.Tensor
}

// Len is the number of samples.
func (d *Data) Len() int {
	if d == nil || d.Y == nil {
		return 0
	}
	return d.Y.Len()
}

// Slice returns samples [start, end), sharing memory with d.
func (d *Data) Slice(start, end int) (*Data, error) {
	out := &Data{X: make([]*tensor.Tensor, len(d.X))}
	var err error
	for i, x := range d.X {
		if out.X[i], err = x.Rows(start, end); err != nil {
			return nil, fmt.Errorf("input %d: %v", i, err)
		}
	}
	if out.Y, err = d.Y.Rows(start, end); err != nil {
		return nil, fmt.Errorf("targets: %v", err)
	}
	return out, nil
}

// Gather copies the samples at indices, in order.
func (d *Data) Gather(indices []int) (*Data, error) {
	out := &Data{X: make([]*tensor.Tensor, len(d.X))}
	var err error
	for i, x := range d.X {
		if out.X[i], err = x.Gather(indices); err != nil {
			return nil, fmt.Errorf("input %d: %v", i, err)
		}
	}
	if out.Y, err = d.Y.Gather(indices); err != nil {
		return nil, fmt.Errorf("targets: %v", err)
	}
	return out, nil
}

// ValidateData checks that data has one tensor per input with the declared
// per-sample shape, a consistent sample count, and targets.
func ValidateData(signature []layers.InputSpec, d *Data) error {
	if d == nil || d.Y == nil {
		return fmt.Errorf("%w: no targets", ErrShapeMismatch)
	}
	if len(d.X) != len(signature) {
		return fmt.Errorf("%w: model has %d inputs, data has %d", ErrShapeMismatch, len(signature), len(d.X))
	}
	n := d.Y.Len()
	for i, in := range signature {
		x := d.X[i]
		if x == nil || !tensor.ShapesEqual(x.SampleShape(), in.Shape) {
			var got []int
			if x != nil {
				got = x.SampleShape()
			}
			return fmt.Errorf("%w: input %s expects %v per sample, got %v", ErrShapeMismatch, in.Name, in.Shape, got)
		}
		if x.Len() != n {
			return fmt.Errorf("%w: input %s has %d samples, targets have %d", ErrShapeMismatch, in.Name, x.Len(), n)
		}
	}
	return nil
}

// DataLoader provides batching and per-epoch shuffling
type DataLoader struct {
	data      *Data
	batchSize int
	shuffle   bool
	rng       *rand.Rand
	indices   []int
	position  int
}

// NewDataLoader creates a new DataLoader. rng is required when shuffle is set.
func NewDataLoader(data *Data, batchSize int, shuffle bool, rng *rand.Rand) *DataLoader {
	indices := make([]int, data.Len())
	for i := range indices {
		indices[i] = i
	}
	return &DataLoader{
		data:      data,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rng,
		indices:   indices,
	}
}

// Batch represents a batch of inputs and targets
type Batch struct {
	Inputs  []*tensor.Tensor
	Targets *tensor.Tensor
}

func (b *Batch) Size() int { return b.Targets.Len() }

// Len returns the number of batches in an epoch
func (dl *DataLoader) Len() int {
	return (dl.data.Len() + dl.batchSize - 1) / dl.batchSize
}

// Reset rewinds the loader and reshuffles when shuffling is on
func (dl *DataLoader) Reset() {
	dl.position = 0
	if dl.shuffle {
		dl.rng.Shuffle(len(dl.indices), func(i, j int) {
			dl.indices[i], dl.indices[j] = dl.indices[j], dl.indices[i]
		})
	}
}

// Next returns the next batch, or nil when the epoch is complete. The last
// batch may be short.
func (dl *DataLoader) Next() (*Batch, error) {
	if dl.position >= len(dl.indices) {
		return nil, nil
	}
	end := dl.position + dl.batchSize
	if end > len(dl.indices) {
		end = len(dl.indices)
	}

	var part *Data
	var err error
	if dl.shuffle {
		part, err = dl.data.Gather(dl.indices[dl.position:end])
	} else {
		part, err = dl.data.Slice(dl.position, end)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to assemble batch at %d: %v", dl.position, err)
	}
	dl.position = end
	return &Batch{Inputs: part.X, Targets: part.Y}, nil
}
