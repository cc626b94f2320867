package objective

import (
	"fmt"
	"math"

	"gorgonia.org/tensor"
)

// AWRLossFn computes the advantage-weighted regression loss of a batch
// of log probabilities and advantages. The baselines argument is
// size-checked but not consumed. Mask is 1 for valid timesteps and 0
// for padding; padded timesteps contribute nothing to the sum, but
// the mean is taken over every element in the batch.
type AWRLossFn func(logProbs, advantages, baselines,
	mask *tensor.Dense) (float64, error)

// AWRLoss returns the advantage-weighted regression loss function with
// temperature beta and maximum weight wMax:
//
//	-mean(mask * logProb * min(exp(advantage / beta), wMax))
//
// a weighted negative log likelihood whose exponential advantage
// weights are clipped at wMax, so arbitrarily large advantages cannot
// dominate an update.
func AWRLoss(beta, wMax float64) AWRLossFn {
	return func(logProbs, advantages, baselines, mask *tensor.Dense) (
		float64, error) {
		lp := logProbs.Data().([]float64)
		adv := advantages.Data().([]float64)
		base := baselines.Data().([]float64)
		m := mask.Data().([]float64)
		if len(adv) != len(lp) || len(base) != len(lp) ||
			len(m) != len(lp) {
			return 0, fmt.Errorf("awrLoss: inputs disagree in size: "+
				"logProbs(%v) advantages(%v) baselines(%v) mask(%v)",
				len(lp), len(adv), len(base), len(m))
		}

		total := 0.0
		for i := range lp {
			weight := math.Min(math.Exp(adv[i]/beta), wMax)
			total += m[i] * lp[i] * weight
		}
		return -total / float64(len(lp)), nil
	}
}
