// Package objective implements the numeric objectives and diagnostics
// used to train a joint policy-value model. All functions are pure and
// deterministic given their inputs: they read batch tensors and model
// outputs and produce scalars or fresh elementwise tensors, never
// mutating their arguments.
//
// Numeric degeneracies (stale ratios, zero-length batches) propagate
// as NaN/Inf rather than being recovered locally; the single defensive
// guard is the small constant added to the standard deviation during
// advantage normalization.
package objective

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gorgonia.org/tensor"
)

// LogProbFn returns the per-element log probability of actions under
// the distribution parameters predicted by the model. It is the
// log_prob capability of a policy distribution.
type LogProbFn func(distInputs, actions *tensor.Dense) (*tensor.Dense, error)

// EntropyFn returns the per-element entropy of the distribution
// parameters predicted by the model.
type EntropyFn func(distInputs *tensor.Dense) (*tensor.Dense, error)

// Advantages computes returns - values elementwise, squeezing any
// trailing singleton dimension. Every consumer of advantages in this
// package goes through this function so the squeeze convention is
// applied exactly once.
func Advantages(values, returns *tensor.Dense) ([]float64, error) {
	v := values.Data().([]float64)
	r := returns.Data().([]float64)
	if len(v) != len(r) {
		return nil, fmt.Errorf("advantages: values and returns disagree "+
			"in size \n\twant(%v)\n\thave(%v)", len(r), len(v))
	}

	adv := make([]float64, len(r))
	floats.SubTo(adv, r, v)
	return adv, nil
}

// AdvantageMean returns the mean advantage of the batch. Diagnostic
// only.
func AdvantageMean(values, returns *tensor.Dense) (float64, error) {
	adv, err := Advantages(values, returns)
	if err != nil {
		return 0, fmt.Errorf("advantageMean: %v", err)
	}
	return stat.Mean(adv, nil), nil
}

// AdvantageNorm returns the Euclidean norm of the advantages of the
// batch. Diagnostic only.
func AdvantageNorm(values, returns *tensor.Dense) (float64, error) {
	adv, err := Advantages(values, returns)
	if err != nil {
		return 0, fmt.Errorf("advantageNorm: %v", err)
	}
	return floats.Norm(adv, 2), nil
}

// ValueLoss returns coeff * mean((returns - values)^2). The
// coefficient scales the gradient contribution of the value head
// relative to the policy terms. Always finite for finite inputs.
func ValueLoss(values, returns *tensor.Dense, coeff float64) (float64,
	error) {
	adv, err := Advantages(values, returns)
	if err != nil {
		return 0, fmt.Errorf("valueLoss: %v", err)
	}

	loss := 0.0
	for _, a := range adv {
		loss += a * a
	}
	return coeff * loss / float64(len(adv)), nil
}

// ExplainedVariance returns 1 - var(returns - values) / var(returns),
// the fraction of return variance accounted for by the value
// estimates. The result is reported as-is: it exceeds [0, 1] when the
// model is worse than predicting the mean, and is NaN for
// zero-variance returns.
func ExplainedVariance(values, returns *tensor.Dense) (float64, error) {
	adv, err := Advantages(values, returns)
	if err != nil {
		return 0, fmt.Errorf("explainedVariance: %v", err)
	}

	return 1 - variance(adv)/variance(returns.Data().([]float64)), nil
}

// variance is the population variance, matching the convention of the
// batch statistics this package reports.
func variance(x []float64) float64 {
	mean := stat.Mean(x, nil)
	total := 0.0
	for _, v := range x {
		d := v - mean
		total += d * d
	}
	return total / float64(len(x))
}

// mean returns the arithmetic mean of x, NaN for empty input.
func mean(x []float64) float64 {
	return floats.Sum(x) / float64(len(x))
}
