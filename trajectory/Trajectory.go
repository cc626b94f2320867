// Package trajectory implements types for moving batches of
// environment interactions between a trajectory source and a trainer
package trajectory

import (
	"fmt"

	"gorgonia.org/tensor"
)

// Step packages together a single timestep of an agent-environment
// interaction, as recorded by a trajectory source.
type Step struct {
	Observation []float64
	Action      []float64
	LogProb     float64
	Reward      float64
	Return      float64
	Terminal    bool
}

// Trajectory is a sequence of timesteps from a single episode, ordered
// from oldest to most recent.
type Trajectory []Step

// Suffix returns the last n steps of the trajectory, or the whole
// trajectory if it is shorter than n.
func (t Trajectory) Suffix(n int) Trajectory {
	if len(t) <= n {
		return t
	}
	return t[len(t)-n:]
}

// ObservationTensor returns the observations of the trajectory as a
// (1, timesteps, features) tensor, ready to be used as a batch of size
// one for a model forward pass.
func (t Trajectory) ObservationTensor() (*tensor.Dense, error) {
	if len(t) == 0 {
		return nil, fmt.Errorf("observationTensor: empty trajectory")
	}

	features := len(t[0].Observation)
	backing := make([]float64, 0, len(t)*features)
	for i, step := range t {
		if len(step.Observation) != features {
			return nil, fmt.Errorf("observationTensor: observation %v "+
				"has length \n\twant(%v)\n\thave(%v)", i, features,
				len(step.Observation))
		}
		backing = append(backing, step.Observation...)
	}

	return tensor.NewDense(
		tensor.Float64,
		[]int{1, len(t), features},
		tensor.WithBacking(backing),
	), nil
}
