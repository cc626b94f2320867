package solver

import (
	"fmt"
	"math"
)

// AdamSolver implements the Adam update rule with bias-corrected first
// and second moment estimates.
type AdamSolver struct {
	epsilon float64 // Smoothing factor
	beta1   float64
	beta2   float64

	step int
	m    []float64
	v    []float64
}

// NewDefaultAdam returns a new Adam Solver with default hyperparameters
func NewDefaultAdam() *AdamSolver {
	return NewAdam(1e-8, 0.9, 0.999)
}

// NewAdam returns a new Adam Solver
func NewAdam(epsilon, beta1, beta2 float64) *AdamSolver {
	return &AdamSolver{
		epsilon: epsilon,
		beta1:   beta1,
		beta2:   beta2,
	}
}

// Step applies one Adam update to the weights. The moment estimates
// are sized on first use and must keep the same length afterwards.
func (a *AdamSolver) Step(weights, grad []float64, lr float64) error {
	if err := checkSizes(weights, grad); err != nil {
		return err
	}
	if a.m == nil {
		a.m = make([]float64, len(weights))
		a.v = make([]float64, len(weights))
	}
	if len(a.m) != len(weights) {
		return fmt.Errorf("step: weight vector changed size"+
			"\n\twant(%v)\n\thave(%v)", len(a.m), len(weights))
	}

	a.step++
	correction1 := 1 - math.Pow(a.beta1, float64(a.step))
	correction2 := 1 - math.Pow(a.beta2, float64(a.step))
	for i := range weights {
		a.m[i] = a.beta1*a.m[i] + (1-a.beta1)*grad[i]
		a.v[i] = a.beta2*a.v[i] + (1-a.beta2)*grad[i]*grad[i]
		mHat := a.m[i] / correction1
		vHat := a.v[i] / correction2
		weights[i] -= lr * mHat / (math.Sqrt(vHat) + a.epsilon)
	}
	return nil
}
