package task

import (
	"math"

	"github.com/kfurrow/jointrl/trajectory"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// RandomDiscrete returns a policy that picks uniformly among
// numActions discrete actions. It is the usual initial policy of a
// Task before a trainer installs itself.
func RandomDiscrete(numActions int, seed uint64) PolicyFn {
	rng := rand.New(rand.NewSource(seed))
	logProb := -math.Log(float64(numActions))
	return func(trajectory.Trajectory) ([]float64, float64, error) {
		return []float64{float64(rng.Intn(numActions))}, logProb, nil
	}
}

// RandomGaussian returns a policy that samples each action dimension
// from a standard normal distribution.
func RandomGaussian(dims int, seed uint64) PolicyFn {
	dist := distuv.Normal{
		Mu:    0,
		Sigma: 1,
		Src:   rand.NewSource(seed),
	}
	return func(trajectory.Trajectory) ([]float64, float64, error) {
		action := make([]float64, dims)
		logProb := 0.0
		for i := range action {
			action[i] = dist.Rand()
			logProb += dist.LogProb(action[i])
		}
		return action, logProb, nil
	}
}
