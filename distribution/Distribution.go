// Package distribution implements policy distributions over action
// spaces. A Distribution converts the parameters predicted by a joint
// policy-value model into sampled actions, per-action log
// probabilities, and entropies.
package distribution

import (
	"fmt"

	"gorgonia.org/tensor"
)

// Distribution is the capability interface through which a trainer
// consumes an action space. Params tensors have the distribution's
// parameter count as their trailing dimension; all other (leading)
// dimensions are preserved by every method.
type Distribution interface {
	// ParamDims returns the number of parameters the model must
	// predict per timestep.
	ParamDims() int

	// ActionDims returns the number of action dimensions per timestep.
	ActionDims() int

	// Sample draws one action per leading element of params.
	Sample(params *tensor.Dense) (*tensor.Dense, error)

	// LogProb returns the per-element log probability of the given
	// actions under the distribution described by params.
	LogProb(params, actions *tensor.Dense) (*tensor.Dense, error)

	// Entropy returns the per-element entropy of the distribution
	// described by params.
	Entropy(params *tensor.Dense) (*tensor.Dense, error)
}

// ActionSpace describes the action space of an environment. Discrete
// action spaces have NumActions > 0; continuous action spaces have
// NumActions == 0 and Dims > 0.
type ActionSpace struct {
	NumActions int
	Dims       int
}

// FromActionSpace constructs the policy distribution matching an
// action space description. It is called once at trainer construction.
func FromActionSpace(space ActionSpace, seed uint64) (Distribution, error) {
	if space.NumActions > 0 {
		return NewCategorical(space.NumActions, seed), nil
	}
	if space.Dims > 0 {
		return NewGaussian(space.Dims, seed), nil
	}
	return nil, fmt.Errorf("fromActionSpace: action space must be "+
		"discrete or continuous, got %+v", space)
}

// leadingRows returns the number of leading elements of a params
// tensor whose trailing dimension is expected to be dims, along with
// the leading shape itself.
func leadingRows(params *tensor.Dense, dims int) (int, []int, error) {
	shape := params.Shape()
	if len(shape) < 1 || shape[len(shape)-1] != dims {
		return 0, nil, fmt.Errorf("leadingRows: trailing dimension "+
			"\n\twant(%v)\n\thave(%v)", dims, shape)
	}
	rows := 1
	leading := shape[:len(shape)-1]
	for _, n := range leading {
		rows *= n
	}
	return rows, leading, nil
}
