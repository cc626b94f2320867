package actorcritic

import (
	"fmt"

	"github.com/kfurrow/jointrl/distribution"
	"github.com/kfurrow/jointrl/engine"
	"github.com/kfurrow/jointrl/model"
	"github.com/kfurrow/jointrl/objective"
	"github.com/kfurrow/jointrl/solver"
	"github.com/kfurrow/jointrl/tracker"
	"github.com/kfurrow/jointrl/trajectory"
	"gorgonia.org/tensor"
)

// AWRConfig configures an AWR joint trainer.
type AWRConfig struct {
	Config

	// Beta is the temperature of the exponential advantage weights.
	Beta float64

	// WMax is the maximum advantage weight.
	WMax float64

	// ValueLossCoeff scales the value loss against the policy term.
	ValueLossCoeff float64
}

// DefaultAWRConfig returns the default AWR configuration.
func DefaultAWRConfig() AWRConfig {
	return AWRConfig{
		Config:         DefaultConfig(),
		Beta:           1.0,
		WMax:           20.0,
		ValueLossCoeff: 0.1,
	}
}

// AWR trains a joint policy-and-value model with Advantage-Weighted
// Regression: weighted maximum likelihood on the taken actions, each
// action weighted by a clipped exponential of its advantage. AWR is a
// regression method, not a ratio method, so its batches carry no
// stored old log probabilities, and it samples trajectories from all
// collection epochs.
type AWR struct {
	*JointTrainer
	beta           float64
	wMax           float64
	valueLossCoeff float64
	awrLoss        objective.AWRLossFn
}

// NewAWR returns a new AWR joint trainer. Construction eagerly pulls
// one batch from the trajectory source to initialize the train and
// eval models; it blocks until the source can produce that batch.
func NewAWR(source trajectory.Source, dist distribution.Distribution,
	trainModel model.Trainable, evalModel model.JointModel,
	slv solver.Solver, schedule solver.Schedule, config AWRConfig,
	trackers ...tracker.Tracker) (*AWR, error) {
	base, err := newJointTrainer(source, dist, evalModel, config.Config)
	if err != nil {
		return nil, fmt.Errorf("newAWR: %v", err)
	}

	awr := &AWR{
		JointTrainer:   base,
		beta:           config.Beta,
		wMax:           config.WMax,
		valueLossCoeff: config.ValueLossCoeff,
		awrLoss:        objective.AWRLoss(config.Beta, config.WMax),
	}
	if err := base.finalize(awr, trainModel, slv, schedule,
		trackers...); err != nil {
		return nil, fmt.Errorf("newAWR: %v", err)
	}
	return awr, nil
}

// BatchesStream shapes source batches into AWR model inputs:
// observations, returns with an extra trailing depth dimension,
// actions, and the padding mask. Old log probabilities are dropped.
func (a *AWR) BatchesStream() trajectory.Stream {
	stream := a.source.TrajectoryBatchStream(a.config.BatchSize,
		a.config.MaxSliceLength, nil)
	return trajectory.StreamFunc(func() (*trajectory.Batch, error) {
		b, err := stream.Next()
		if err != nil {
			return nil, err
		}
		returns, err := b.ExpandReturns()
		if err != nil {
			return nil, err
		}
		return &trajectory.Batch{
			Observations: b.Observations,
			Returns:      returns,
			Actions:      b.Actions,
			Mask:         b.Mask,
		}, nil
	})
}

// JointLoss returns the advantage-weighted regression loss on the
// masked timesteps plus the coefficient-scaled value loss. The third
// input of the AWR loss is a zero tensor; the loss only size-checks
// it.
func (a *AWR) JointLoss() engine.LossFn {
	return func(b *trajectory.Batch, distInputs,
		values *tensor.Dense) (float64, error) {
		logProbs, err := a.dist.LogProb(distInputs, b.Actions)
		if err != nil {
			return 0, fmt.Errorf("jointLoss: %v", err)
		}

		adv, err := objective.Advantages(values, b.Returns)
		if err != nil {
			return 0, fmt.Errorf("jointLoss: %v", err)
		}
		advantages := tensor.NewDense(tensor.Float64,
			logProbs.Shape().Clone(), tensor.WithBacking(adv))
		zeros := tensor.NewDense(tensor.Float64,
			logProbs.Shape().Clone(),
			tensor.WithBacking(make([]float64, len(adv))))

		awrLoss, err := a.awrLoss(logProbs, advantages, zeros, b.Mask)
		if err != nil {
			return 0, fmt.Errorf("jointLoss: %v", err)
		}

		valueLoss, err := objective.ValueLoss(values, b.Returns,
			a.valueLossCoeff)
		if err != nil {
			return 0, fmt.Errorf("jointLoss: %v", err)
		}
		return awrLoss + valueLoss, nil
	}
}

// MetricNames enumerates the metrics the AWR variant publishes.
func (a *AWR) MetricNames() []string {
	return commonMetricNames()
}

// Metrics publishes the common metric table.
func (a *AWR) Metrics() map[string]engine.LossFn {
	metrics := a.commonMetrics(a.valueLossCoeff)
	metrics[MetricJointLoss] = a.JointLoss()
	return metrics
}
