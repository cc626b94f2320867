// Package model implements joint policy-value function approximators.
// A joint model maps observations to distribution parameters for the
// policy head and scalar value estimates for the value head.
package model

import (
	"github.com/kfurrow/jointrl/trajectory"
	"gorgonia.org/tensor"
)

// Mode selects the execution mode of a forward pass.
type Mode int

const (
	// Train runs the forward pass used for training steps.
	Train Mode = iota

	// Eval runs the forward pass used for action selection and
	// metric evaluation.
	Eval
)

// JointModel is a differentiable model producing both policy
// distribution parameters and value estimates. Weights are exchanged
// as an opaque blob of tensors: callers read and write them wholesale
// and never inspect their structure.
type JointModel interface {
	// Init initializes the model from an example batch, fixing the
	// observation feature count. It must be called once before any
	// forward pass.
	Init(example *trajectory.Batch) error

	// Forward runs the model on observations with a (batch, time)
	// leading shape and returns distribution parameters of shape
	// (batch, time, paramDims) and values of shape (batch, time, 1).
	Forward(mode Mode, observations *tensor.Dense) (distInputs,
		values *tensor.Dense, err error)

	// Weights returns an independent copy of the model weights.
	Weights() []*tensor.Dense

	// SetWeights overwrites the model weights with the given blob.
	SetWeights(weights []*tensor.Dense) error
}

// Trainable is a JointModel whose weights can additionally be read and
// written as a single flat vector, as required by gradient-based
// training engines.
type Trainable interface {
	JointModel

	// FlatWeights returns a copy of all weights concatenated into a
	// single vector.
	FlatWeights() []float64

	// SetFlatWeights overwrites all weights from a single flat
	// vector laid out as returned by FlatWeights.
	SetFlatWeights(weights []float64) error
}
