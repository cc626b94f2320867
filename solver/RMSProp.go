package solver

import (
	"fmt"
	"math"
)

// RMSPropSolver implements the RMSProp update rule, scaling each
// gradient component by a running estimate of its magnitude.
type RMSPropSolver struct {
	decay   float64
	epsilon float64 // Smoothing factor

	cache []float64
}

// NewDefaultRMSProp returns a new RMSProp solver with default
// hyperparameters.
func NewDefaultRMSProp() *RMSPropSolver {
	return NewRMSProp(0.99, 1e-8)
}

// NewRMSProp returns a new RMSProp solver.
func NewRMSProp(decay, epsilon float64) *RMSPropSolver {
	return &RMSPropSolver{
		decay:   decay,
		epsilon: epsilon,
	}
}

// Step applies one RMSProp update to the weights.
func (r *RMSPropSolver) Step(weights, grad []float64, lr float64) error {
	if err := checkSizes(weights, grad); err != nil {
		return err
	}
	if r.cache == nil {
		r.cache = make([]float64, len(weights))
	}
	if len(r.cache) != len(weights) {
		return fmt.Errorf("step: weight vector changed size"+
			"\n\twant(%v)\n\thave(%v)", len(r.cache), len(weights))
	}

	for i := range weights {
		r.cache[i] = r.decay*r.cache[i] + (1-r.decay)*grad[i]*grad[i]
		weights[i] -= lr * grad[i] / (math.Sqrt(r.cache[i]) + r.epsilon)
	}
	return nil
}
