package distribution

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	"gorgonia.org/tensor"
)

const halfLog2Pi = 0.9189385332046727 // 0.5 * log(2π)

// Gaussian is a diagonal Gaussian policy distribution over a
// continuous action space. The model predicts a mean and a log
// standard deviation per action dimension, concatenated along the
// trailing axis.
type Gaussian struct {
	dims   int
	source rand.Source
}

// NewGaussian returns a new diagonal Gaussian distribution over a
// continuous action space with the given number of dimensions.
func NewGaussian(dims int, seed uint64) *Gaussian {
	return &Gaussian{
		dims:   dims,
		source: rand.NewSource(seed),
	}
}

// ParamDims returns the number of model outputs per timestep: a mean
// and a log standard deviation for each action dimension.
func (g *Gaussian) ParamDims() int { return 2 * g.dims }

// ActionDims returns the number of action dimensions per timestep.
func (g *Gaussian) ActionDims() int { return g.dims }

// Sample draws one action vector per leading element of params.
func (g *Gaussian) Sample(params *tensor.Dense) (*tensor.Dense, error) {
	rows, leading, err := leadingRows(params, g.ParamDims())
	if err != nil {
		return nil, fmt.Errorf("sample: %v", err)
	}

	data := params.Data().([]float64)
	actions := make([]float64, rows*g.dims)
	for i := 0; i < rows; i++ {
		row := data[i*g.ParamDims() : (i+1)*g.ParamDims()]
		for j := 0; j < g.dims; j++ {
			dist := distuv.Normal{
				Mu:    row[j],
				Sigma: math.Exp(row[g.dims+j]),
				Src:   g.source,
			}
			actions[i*g.dims+j] = dist.Rand()
		}
	}

	return tensor.NewDense(tensor.Float64,
		append(outShape(leading), g.dims),
		tensor.WithBacking(actions)), nil
}

// LogProb returns the log density of each action vector under the
// diagonal Gaussian of the corresponding parameters, summed over
// action dimensions.
func (g *Gaussian) LogProb(params, actions *tensor.Dense) (*tensor.Dense,
	error) {
	rows, leading, err := leadingRows(params, g.ParamDims())
	if err != nil {
		return nil, fmt.Errorf("logProb: %v", err)
	}

	data := params.Data().([]float64)
	acts := actions.Data().([]float64)
	if len(acts) != rows*g.dims {
		return nil, fmt.Errorf("logProb: invalid number of actions"+
			"\n\twant(%v)\n\thave(%v)", rows*g.dims, len(acts))
	}

	logProbs := make([]float64, rows)
	for i := 0; i < rows; i++ {
		row := data[i*g.ParamDims() : (i+1)*g.ParamDims()]
		logProb := 0.0
		for j := 0; j < g.dims; j++ {
			mean, logStd := row[j], row[g.dims+j]
			z := (acts[i*g.dims+j] - mean) / math.Exp(logStd)
			logProb += -0.5*z*z - logStd - halfLog2Pi
		}
		logProbs[i] = logProb
	}

	return tensor.NewDense(tensor.Float64, outShape(leading),
		tensor.WithBacking(logProbs)), nil
}

// Entropy returns the entropy of the diagonal Gaussian of each leading
// element of params, summed over action dimensions.
func (g *Gaussian) Entropy(params *tensor.Dense) (*tensor.Dense, error) {
	rows, leading, err := leadingRows(params, g.ParamDims())
	if err != nil {
		return nil, fmt.Errorf("entropy: %v", err)
	}

	data := params.Data().([]float64)
	entropies := make([]float64, rows)
	for i := 0; i < rows; i++ {
		row := data[i*g.ParamDims() : (i+1)*g.ParamDims()]
		entropy := 0.0
		for j := 0; j < g.dims; j++ {
			entropy += 0.5 + halfLog2Pi + row[g.dims+j]
		}
		entropies[i] = entropy
	}

	return tensor.NewDense(tensor.Float64, outShape(leading),
		tensor.WithBacking(entropies)), nil
}
