package distribution

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	"gorgonia.org/tensor"
)

// Categorical is a policy distribution over a discrete action space.
// The model predicts one unnormalized logit per action.
type Categorical struct {
	numActions int
	source     rand.Source
}

// NewCategorical returns a new Categorical distribution over
// numActions discrete actions.
func NewCategorical(numActions int, seed uint64) *Categorical {
	return &Categorical{
		numActions: numActions,
		source:     rand.NewSource(seed),
	}
}

// ParamDims returns the number of model outputs per timestep, one
// logit per action.
func (c *Categorical) ParamDims() int { return c.numActions }

// ActionDims returns the number of action dimensions per timestep.
func (c *Categorical) ActionDims() int { return 1 }

// Sample draws one action index per leading element of params.
func (c *Categorical) Sample(params *tensor.Dense) (*tensor.Dense, error) {
	rows, leading, err := leadingRows(params, c.numActions)
	if err != nil {
		return nil, fmt.Errorf("sample: %v", err)
	}

	logits := params.Data().([]float64)
	actions := make([]float64, rows)
	for i := 0; i < rows; i++ {
		row := logits[i*c.numActions : (i+1)*c.numActions]
		lse := logSumExp(row)
		weights := make([]float64, c.numActions)
		for j, l := range row {
			weights[j] = math.Exp(l - lse)
		}
		dist := distuv.NewCategorical(weights, c.source)
		actions[i] = dist.Rand()
	}

	return tensor.NewDense(tensor.Float64, outShape(leading),
		tensor.WithBacking(actions)), nil
}

// LogProb returns the log probability of each action index under the
// softmax of the corresponding logits.
func (c *Categorical) LogProb(params, actions *tensor.Dense) (*tensor.Dense,
	error) {
	rows, leading, err := leadingRows(params, c.numActions)
	if err != nil {
		return nil, fmt.Errorf("logProb: %v", err)
	}

	logits := params.Data().([]float64)
	acts := actions.Data().([]float64)
	if len(acts) != rows {
		return nil, fmt.Errorf("logProb: invalid number of actions"+
			"\n\twant(%v)\n\thave(%v)", rows, len(acts))
	}

	logProbs := make([]float64, rows)
	for i := 0; i < rows; i++ {
		row := logits[i*c.numActions : (i+1)*c.numActions]
		a := int(acts[i])
		if a < 0 || a >= c.numActions {
			return nil, fmt.Errorf("logProb: action %v out of range "+
				"[0, %v)", a, c.numActions)
		}
		logProbs[i] = row[a] - logSumExp(row)
	}

	return tensor.NewDense(tensor.Float64, outShape(leading),
		tensor.WithBacking(logProbs)), nil
}

// Entropy returns the entropy of the softmax distribution of each
// leading element of params. Entropies of categorical distributions
// are always non-negative.
func (c *Categorical) Entropy(params *tensor.Dense) (*tensor.Dense, error) {
	rows, leading, err := leadingRows(params, c.numActions)
	if err != nil {
		return nil, fmt.Errorf("entropy: %v", err)
	}

	logits := params.Data().([]float64)
	entropies := make([]float64, rows)
	for i := 0; i < rows; i++ {
		row := logits[i*c.numActions : (i+1)*c.numActions]
		lse := logSumExp(row)
		entropy := 0.0
		for _, l := range row {
			logP := l - lse
			entropy -= math.Exp(logP) * logP
		}
		entropies[i] = entropy
	}

	return tensor.NewDense(tensor.Float64, outShape(leading),
		tensor.WithBacking(entropies)), nil
}

// logSumExp computes log(Σ exp(x)) with the usual max subtraction for
// numerical stability.
func logSumExp(x []float64) float64 {
	max := x[0]
	for _, v := range x {
		if v > max {
			max = v
		}
	}

	sum := 0.0
	for _, v := range x {
		sum += math.Exp(v - max)
	}
	return max + math.Log(sum)
}

// outShape returns the shape of a per-element output tensor for the
// given leading shape.
func outShape(leading []int) []int {
	if len(leading) == 0 {
		return []int{1}
	}
	out := make([]int, len(leading))
	copy(out, leading)
	return out
}
