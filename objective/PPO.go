package objective

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gorgonia.org/tensor"
)

// normalizeEps keeps advantage normalization finite on degenerate
// batches whose advantages are all equal.
const normalizeEps = 1e-8

// ProbsRatio returns exp(logProbFn(distInputs, actions) - oldLogProbs)
// elementwise: the ratio of the probability of each action under the
// current policy to its probability under the policy that collected
// it. The ratio itself is never clipped; clipping happens only in the
// clipped objective term.
func ProbsRatio(distInputs, actions, oldLogProbs *tensor.Dense,
	logProbFn LogProbFn) (*tensor.Dense, error) {
	newLogProbs, err := logProbFn(distInputs, actions)
	if err != nil {
		return nil, fmt.Errorf("probsRatio: %v", err)
	}

	newData := newLogProbs.Data().([]float64)
	oldData := oldLogProbs.Data().([]float64)
	if len(newData) != len(oldData) {
		return nil, fmt.Errorf("probsRatio: log probs disagree in size"+
			"\n\twant(%v)\n\thave(%v)", len(oldData), len(newData))
	}

	ratio := make([]float64, len(newData))
	for i := range ratio {
		ratio[i] = math.Exp(newData[i] - oldData[i])
	}
	return tensor.NewDense(tensor.Float64, newLogProbs.Shape(),
		tensor.WithBacking(ratio)), nil
}

// UnclippedObjective returns ratio * advantage elementwise.
func UnclippedObjective(ratio *tensor.Dense, advantages []float64) (
	*tensor.Dense, error) {
	r := ratio.Data().([]float64)
	if len(r) != len(advantages) {
		return nil, fmt.Errorf("unclippedObjective: ratio and advantages"+
			" disagree in size \n\twant(%v)\n\thave(%v)", len(advantages),
			len(r))
	}

	obj := make([]float64, len(r))
	for i := range obj {
		obj[i] = r[i] * advantages[i]
	}
	return tensor.NewDense(tensor.Float64, ratio.Shape(),
		tensor.WithBacking(obj)), nil
}

// ClippedObjective returns clamp(ratio, 1-epsilon, 1+epsilon) *
// advantage elementwise.
func ClippedObjective(ratio *tensor.Dense, advantages []float64,
	epsilon float64) (*tensor.Dense, error) {
	r := ratio.Data().([]float64)
	if len(r) != len(advantages) {
		return nil, fmt.Errorf("clippedObjective: ratio and advantages"+
			" disagree in size \n\twant(%v)\n\thave(%v)", len(advantages),
			len(r))
	}

	obj := make([]float64, len(r))
	for i := range obj {
		clipped := math.Min(r[i], 1+epsilon)
		clipped = math.Max(clipped, 1-epsilon)
		obj[i] = clipped * advantages[i]
	}
	return tensor.NewDense(tensor.Float64, ratio.Shape(),
		tensor.WithBacking(obj)), nil
}

// PPOObjective returns the elementwise minimum of the unclipped and
// clipped surrogate objectives: the conservative bound of the clipped
// surrogate policy-gradient method. When normalizeAdvantages is true,
// advantages are first normalized to zero mean and unit standard
// deviation over the batch.
func PPOObjective(distInputs, values, returns, actions,
	oldLogProbs *tensor.Dense, logProbFn LogProbFn, epsilon float64,
	normalizeAdvantages bool) (*tensor.Dense, error) {
	adv, err := Advantages(values, returns)
	if err != nil {
		return nil, fmt.Errorf("ppoObjective: %v", err)
	}
	if normalizeAdvantages {
		mean := stat.Mean(adv, nil)
		std := math.Sqrt(variance(adv))
		for i := range adv {
			adv[i] = (adv[i] - mean) / (std + normalizeEps)
		}
	}

	ratio, err := ProbsRatio(distInputs, actions, oldLogProbs, logProbFn)
	if err != nil {
		return nil, fmt.Errorf("ppoObjective: %v", err)
	}

	unclipped, err := UnclippedObjective(ratio, adv)
	if err != nil {
		return nil, fmt.Errorf("ppoObjective: %v", err)
	}
	clipped, err := ClippedObjective(ratio, adv, epsilon)
	if err != nil {
		return nil, fmt.Errorf("ppoObjective: %v", err)
	}

	u := unclipped.Data().([]float64)
	c := clipped.Data().([]float64)
	obj := make([]float64, len(u))
	for i := range obj {
		obj[i] = math.Min(u[i], c[i])
	}
	return tensor.NewDense(tensor.Float64, ratio.Shape(),
		tensor.WithBacking(obj)), nil
}

// EntropyLoss returns entropyCoeff * mean(entropyFn(distInputs)). The
// term is subtracted from the joint loss, so larger entropies are
// rewarded to discourage premature determinism. The actions and log
// prob arguments are accepted for signature parity with the other
// policy terms and are not consumed.
func EntropyLoss(distInputs, actions *tensor.Dense, logProbFn LogProbFn,
	entropyCoeff float64, entropyFn EntropyFn) (float64, error) {
	entropies, err := entropyFn(distInputs)
	if err != nil {
		return 0, fmt.Errorf("entropyLoss: %v", err)
	}
	return entropyCoeff * mean(entropies.Data().([]float64)), nil
}

// ApproximateKLDivergence returns mean(oldLogProbs - newLogProbs), a
// first-order estimate of the KL divergence between the old and new
// policies. The estimate is only valid for small policy updates; it is
// reported as a diagnostic and never acted upon.
func ApproximateKLDivergence(distInputs, actions,
	oldLogProbs *tensor.Dense, logProbFn LogProbFn) (float64, error) {
	newLogProbs, err := logProbFn(distInputs, actions)
	if err != nil {
		return 0, fmt.Errorf("approximateKLDivergence: %v", err)
	}

	newData := newLogProbs.Data().([]float64)
	oldData := oldLogProbs.Data().([]float64)
	if len(newData) != len(oldData) {
		return 0, fmt.Errorf("approximateKLDivergence: log probs "+
			"disagree in size \n\twant(%v)\n\thave(%v)", len(oldData),
			len(newData))
	}

	total := 0.0
	for i := range newData {
		total += oldData[i] - newData[i]
	}
	return total / float64(len(newData)), nil
}

// ClipFraction returns the fraction of elements whose probability
// ratio lies outside [1-epsilon, 1+epsilon]: a diagnostic of how often
// clipping binds.
func ClipFraction(distInputs, actions, oldLogProbs *tensor.Dense,
	logProbFn LogProbFn, epsilon float64) (float64, error) {
	ratio, err := ProbsRatio(distInputs, actions, oldLogProbs, logProbFn)
	if err != nil {
		return 0, fmt.Errorf("clipFraction: %v", err)
	}

	r := ratio.Data().([]float64)
	clipped := 0.0
	for _, v := range r {
		if math.Abs(v-1) > epsilon {
			clipped++
		}
	}
	return clipped / float64(len(r)), nil
}
