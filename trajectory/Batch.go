package trajectory

import (
	"fmt"

	"gorgonia.org/tensor"
)

// Batch is one batch of trajectory data used as the model input for a
// single training step. All tensors share the same (batch, time)
// leading shape. LogProbs holds the log probability of each action
// under the policy that collected it and may be nil for algorithms
// that do not store old log probabilities. Mask is 1 for valid
// timesteps and 0 for padding.
//
// Batches are produced fresh for every training step and discarded
// after the loss and metric computation. They are never mutated.
type Batch struct {
	Observations *tensor.Dense
	Returns      *tensor.Dense
	Actions      *tensor.Dense
	LogProbs     *tensor.Dense
	Mask         *tensor.Dense
}

// Check verifies that all tensors in the batch agree on the (batch,
// time) leading shape.
func (b *Batch) Check() error {
	if b.Observations == nil {
		return fmt.Errorf("check: batch has no observations")
	}
	obsShape := b.Observations.Shape()
	if len(obsShape) < 2 {
		return fmt.Errorf("check: observations must have a (batch, "+
			"time) leading shape, got %v", obsShape)
	}

	fields := map[string]*tensor.Dense{
		"returns":   b.Returns,
		"actions":   b.Actions,
		"log probs": b.LogProbs,
		"mask":      b.Mask,
	}
	for name, field := range fields {
		if field == nil {
			continue
		}
		shape := field.Shape()
		if len(shape) < 2 || shape[0] != obsShape[0] ||
			shape[1] != obsShape[1] {
			return fmt.Errorf("check: %v shape %v does not share the "+
				"leading shape of observations %v", name, shape, obsShape)
		}
	}
	return nil
}

// Rows returns the total number of timesteps in the batch, i.e. the
// product of the batch and time extents.
func (b *Batch) Rows() int {
	shape := b.Observations.Shape()
	return shape[0] * shape[1]
}

// ExpandReturns returns a copy of the returns tensor with an extra
// trailing singleton dimension, so that regression targets match the
// shape of the model's value head output.
func (b *Batch) ExpandReturns() (*tensor.Dense, error) {
	shape := b.Returns.Shape()
	expanded := b.Returns.Clone().(*tensor.Dense)
	if err := expanded.Reshape(append(shape.Clone(), 1)...); err != nil {
		return nil, fmt.Errorf("expandReturns: %v", err)
	}
	return expanded, nil
}

// Stream is a lazy, effectively infinite, non-restartable sequence of
// batches. Next blocks until the upstream trajectory source can
// produce a batch; there is no cancellation primitive, so a stalled
// source blocks the caller indefinitely.
type Stream interface {
	Next() (*Batch, error)
}

// StreamFunc adapts an ordinary function to the Stream interface.
type StreamFunc func() (*Batch, error)

// Next implements the Stream interface.
func (f StreamFunc) Next() (*Batch, error) { return f() }

// Source produces batch streams from collected trajectories. The
// epochs argument selects which collection epochs to sample from; a
// value of -1 denotes the most recent epoch, and a nil slice samples
// from all epochs.
type Source interface {
	TrajectoryBatchStream(batchSize, maxSliceLength int, epochs []int) Stream
}
