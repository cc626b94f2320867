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
	"gonum.org/v1/gonum/stat"
	"gorgonia.org/tensor"
)

// Metric names specific to the PPO variant.
const (
	MetricEntropyLoss            = "entropy_loss"
	MetricProbsRatioMean         = "probs_ratio_mean"
	MetricUnclippedObjectiveMean = "unclipped_objective_mean"
	MetricClippedObjectiveMean   = "clipped_objective_mean"
	MetricPPOObjectiveMean       = "ppo_objective_mean"
	MetricClipFraction           = "clip_fraction"
	MetricApproximateKL          = "approximate_kl_divergence"
)

// PPOConfig configures a PPO joint trainer.
type PPOConfig struct {
	Config

	// Epsilon is the clipping range of the probability ratio.
	Epsilon float64

	// ValueLossCoeff scales the value loss against the policy terms.
	ValueLossCoeff float64

	// EntropyCoeff scales the entropy bonus.
	EntropyCoeff float64
}

// DefaultPPOConfig returns the default PPO configuration.
func DefaultPPOConfig() PPOConfig {
	return PPOConfig{
		Config:         DefaultConfig(),
		Epsilon:        0.2,
		ValueLossCoeff: 0.1,
		EntropyCoeff:   0.01,
	}
}

// PPO trains a joint policy-and-value model with the Proximal Policy
// Optimization algorithm: the clipped-surrogate policy gradient
// objective plus a value loss and an entropy bonus. PPO is on-policy,
// so its batch stream samples only the most recent collection epoch.
type PPO struct {
	*JointTrainer
	epsilon        float64
	valueLossCoeff float64
	entropyCoeff   float64
}

// NewPPO returns a new PPO joint trainer. Construction eagerly pulls
// one batch from the trajectory source to initialize the train and
// eval models; it blocks until the source can produce that batch.
func NewPPO(source trajectory.Source, dist distribution.Distribution,
	trainModel model.Trainable, evalModel model.JointModel,
	slv solver.Solver, schedule solver.Schedule, config PPOConfig,
	trackers ...tracker.Tracker) (*PPO, error) {
	base, err := newJointTrainer(source, dist, evalModel, config.Config)
	if err != nil {
		return nil, fmt.Errorf("newPPO: %v", err)
	}

	ppo := &PPO{
		JointTrainer:   base,
		epsilon:        config.Epsilon,
		valueLossCoeff: config.ValueLossCoeff,
		entropyCoeff:   config.EntropyCoeff,
	}
	if err := base.finalize(ppo, trainModel, slv, schedule,
		trackers...); err != nil {
		return nil, fmt.Errorf("newPPO: %v", err)
	}
	return ppo, nil
}

// BatchesStream shapes source batches into PPO model inputs:
// observations, returns with an extra trailing depth dimension so the
// targets match the value head output shape, actions, old log
// probabilities, and the padding mask.
func (p *PPO) BatchesStream() trajectory.Stream {
	stream := p.source.TrajectoryBatchStream(p.config.BatchSize,
		p.config.MaxSliceLength, []int{-1})
	return trajectory.StreamFunc(func() (*trajectory.Batch, error) {
		b, err := stream.Next()
		if err != nil {
			return nil, err
		}
		if b.LogProbs == nil {
			return nil, fmt.Errorf("batchesStream: source batch has no " +
				"old log probs")
		}
		returns, err := b.ExpandReturns()
		if err != nil {
			return nil, err
		}
		return &trajectory.Batch{
			Observations: b.Observations,
			Returns:      returns,
			Actions:      b.Actions,
			LogProbs:     b.LogProbs,
			Mask:         b.Mask,
		}, nil
	})
}

// JointLoss returns -mean(PPOObjective) + ValueLoss - EntropyLoss.
//
// The padding mask of the batch is accepted but not consumed here: the
// loss treats every timestep as valid, so padded timesteps dilute the
// batch statistics on variable-length slices. Known gap, kept so that
// results stay comparable across versions.
func (p *PPO) JointLoss() engine.LossFn {
	return func(b *trajectory.Batch, distInputs,
		values *tensor.Dense) (float64, error) {
		ppoObjective, err := objective.PPOObjective(distInputs, values,
			b.Returns, b.Actions, b.LogProbs, p.dist.LogProb, p.epsilon,
			p.config.NormalizeAdvantages)
		if err != nil {
			return 0, fmt.Errorf("jointLoss: %v", err)
		}

		entropyLoss, err := objective.EntropyLoss(distInputs, b.Actions,
			p.dist.LogProb, p.entropyCoeff, p.dist.Entropy)
		if err != nil {
			return 0, fmt.Errorf("jointLoss: %v", err)
		}

		valueLoss, err := objective.ValueLoss(values, b.Returns,
			p.valueLossCoeff)
		if err != nil {
			return 0, fmt.Errorf("jointLoss: %v", err)
		}

		mean := stat.Mean(ppoObjective.Data().([]float64), nil)
		return -mean + valueLoss - entropyLoss, nil
	}
}

// MetricNames enumerates the metrics the PPO variant publishes.
func (p *PPO) MetricNames() []string {
	return append(commonMetricNames(),
		MetricEntropyLoss,
		MetricProbsRatioMean,
		MetricUnclippedObjectiveMean,
		MetricClippedObjectiveMean,
		MetricPPOObjectiveMean,
		MetricClipFraction,
		MetricApproximateKL,
	)
}

// Metrics publishes every objective-library diagnostic alongside the
// common metric table.
func (p *PPO) Metrics() map[string]engine.LossFn {
	metrics := p.commonMetrics(p.valueLossCoeff)
	metrics[MetricJointLoss] = p.JointLoss()

	metrics[MetricEntropyLoss] = func(b *trajectory.Batch, distInputs,
		values *tensor.Dense) (float64, error) {
		return objective.EntropyLoss(distInputs, b.Actions,
			p.dist.LogProb, p.entropyCoeff, p.dist.Entropy)
	}

	metrics[MetricProbsRatioMean] = func(b *trajectory.Batch, distInputs,
		values *tensor.Dense) (float64, error) {
		ratio, err := objective.ProbsRatio(distInputs, b.Actions,
			b.LogProbs, p.dist.LogProb)
		if err != nil {
			return 0, err
		}
		return stat.Mean(ratio.Data().([]float64), nil), nil
	}

	metrics[MetricUnclippedObjectiveMean] = func(b *trajectory.Batch,
		distInputs, values *tensor.Dense) (float64, error) {
		adv, err := objective.Advantages(values, b.Returns)
		if err != nil {
			return 0, err
		}
		ratio, err := objective.ProbsRatio(distInputs, b.Actions,
			b.LogProbs, p.dist.LogProb)
		if err != nil {
			return 0, err
		}
		unclipped, err := objective.UnclippedObjective(ratio, adv)
		if err != nil {
			return 0, err
		}
		return stat.Mean(unclipped.Data().([]float64), nil), nil
	}

	metrics[MetricClippedObjectiveMean] = func(b *trajectory.Batch,
		distInputs, values *tensor.Dense) (float64, error) {
		adv, err := objective.Advantages(values, b.Returns)
		if err != nil {
			return 0, err
		}
		ratio, err := objective.ProbsRatio(distInputs, b.Actions,
			b.LogProbs, p.dist.LogProb)
		if err != nil {
			return 0, err
		}
		clipped, err := objective.ClippedObjective(ratio, adv, p.epsilon)
		if err != nil {
			return 0, err
		}
		return stat.Mean(clipped.Data().([]float64), nil), nil
	}

	metrics[MetricPPOObjectiveMean] = func(b *trajectory.Batch,
		distInputs, values *tensor.Dense) (float64, error) {
		ppoObjective, err := objective.PPOObjective(distInputs, values,
			b.Returns, b.Actions, b.LogProbs, p.dist.LogProb, p.epsilon,
			p.config.NormalizeAdvantages)
		if err != nil {
			return 0, err
		}
		return stat.Mean(ppoObjective.Data().([]float64), nil), nil
	}

	metrics[MetricClipFraction] = func(b *trajectory.Batch, distInputs,
		values *tensor.Dense) (float64, error) {
		return objective.ClipFraction(distInputs, b.Actions, b.LogProbs,
			p.dist.LogProb, p.epsilon)
	}

	metrics[MetricApproximateKL] = func(b *trajectory.Batch, distInputs,
		values *tensor.Dense) (float64, error) {
		return objective.ApproximateKLDivergence(distInputs, b.Actions,
			b.LogProbs, p.dist.LogProb)
	}

	return metrics
}
