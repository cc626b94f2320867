// Package solver implements gradient-descent update rules applied to
// flattened model weights.
package solver

import "fmt"

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "Adam"
	Vanilla Type = "Vanilla"
	RMSProp Type = "RMSProp"
)

// Solver applies one gradient-descent update to a flat weight vector.
// The learning rate is supplied per step so that a schedule owned by
// the training engine can vary it over time. Implementations may keep
// per-weight state (moment estimates) keyed to the weight vector
// length.
type Solver interface {
	Step(weights, grad []float64, lr float64) error
}

// checkSizes verifies that weights and gradients agree in length.
func checkSizes(weights, grad []float64) error {
	if len(weights) != len(grad) {
		return fmt.Errorf("step: weights and gradient disagree in size"+
			"\n\twant(%v)\n\thave(%v)", len(weights), len(grad))
	}
	return nil
}
