package solver

// VanillaSolver implements plain stochastic gradient descent.
type VanillaSolver struct{}

// NewVanilla returns a new vanilla SGD solver.
func NewVanilla() *VanillaSolver {
	return &VanillaSolver{}
}

// Step applies w <- w - lr * g.
func (v *VanillaSolver) Step(weights, grad []float64, lr float64) error {
	if err := checkSizes(weights, grad); err != nil {
		return err
	}
	for i := range weights {
		weights[i] -= lr * grad[i]
	}
	return nil
}
