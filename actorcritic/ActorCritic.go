// Package actorcritic implements joint policy-and-value trainers. A
// single differentiable model predicts both a policy distribution and
// a value estimate; algorithm variants compose the objective library
// into a scalar training loss and a table of named diagnostic metrics,
// and a shared base runs the epoch training loop with interleaved
// evaluation scheduling.
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

// Metric names shared by all algorithm variants.
const (
	MetricJointLoss         = "joint_loss"
	MetricAdvantageMean     = "advantage_mean"
	MetricAdvantageNorm     = "advantage_norm"
	MetricValueLoss         = "value_loss"
	MetricExplainedVariance = "explained_variance"
	MetricLogProbsMean      = "log_probs_mean"
	MetricPreferredMove     = "preferred_move"
)

// Algorithm supplies the algorithm-specific pieces of a joint trainer:
// the batch shaping, the scalar joint loss, and the metric table. Each
// variant is a concrete implementation selected at construction time.
type Algorithm interface {
	// BatchesStream returns the stream of shaped model-input batches.
	BatchesStream() trajectory.Stream

	// JointLoss returns the scalar training loss of the variant.
	JointLoss() engine.LossFn

	// Metrics returns the named metric table of the variant.
	Metrics() map[string]engine.LossFn

	// MetricNames enumerates the metric names the variant must
	// publish; the table returned by Metrics is checked against this
	// set at construction.
	MetricNames() []string
}

// Config holds the configuration shared by all joint trainers.
type Config struct {
	// BatchSize is the number of trajectory slices per batch.
	BatchSize int

	// TrainStepsPerEpoch is the number of gradient steps per epoch.
	TrainStepsPerEpoch int

	// EvalsPerEpoch is the number of evaluation checkpoints per
	// epoch; it must divide TrainStepsPerEpoch.
	EvalsPerEpoch int

	// EvalSteps is the number of evaluation batches per checkpoint.
	EvalSteps int

	// MaxSliceLength is the maximum trajectory slice length.
	MaxSliceLength int

	// NormalizeAdvantages selects batch advantage normalization;
	// currently consumed only by the PPO variant.
	NormalizeAdvantages bool
}

// DefaultConfig returns the default joint trainer configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:           64,
		TrainStepsPerEpoch:  500,
		EvalsPerEpoch:       1,
		EvalSteps:           1,
		MaxSliceLength:      1,
		NormalizeAdvantages: true,
	}
}

// validate checks the configuration for internal consistency.
func (c Config) validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("validate: batch size must be positive, got %v",
			c.BatchSize)
	}
	if c.TrainStepsPerEpoch < 1 {
		return fmt.Errorf("validate: train steps per epoch must be "+
			"positive, got %v", c.TrainStepsPerEpoch)
	}
	if c.EvalsPerEpoch < 1 ||
		c.TrainStepsPerEpoch%c.EvalsPerEpoch != 0 {
		return fmt.Errorf("validate: evals per epoch (%v) must divide "+
			"train steps per epoch (%v)", c.EvalsPerEpoch,
			c.TrainStepsPerEpoch)
	}
	if c.EvalSteps < 0 {
		return fmt.Errorf("validate: eval steps must be non-negative, "+
			"got %v", c.EvalSteps)
	}
	if c.MaxSliceLength < 1 {
		return fmt.Errorf("validate: max slice length must be positive, "+
			"got %v", c.MaxSliceLength)
	}
	return nil
}

// JointTrainer is the base of all joint policy-and-value trainers. It
// owns the configuration, the policy distribution capability, the
// evaluation-mode model, and the training engine, and runs the epoch
// loop. The algorithm-specific operations are abstract on the base:
// calling them panics, and a variant must supply them.
type JointTrainer struct {
	config    Config
	source    trajectory.Source
	dist      distribution.Distribution
	evalModel model.JointModel
	engine    *engine.Trainer
	epoch     int
}

// newJointTrainer returns a base trainer with its immediate fields
// populated. The engine and models are wired by finalize, after the
// variant embedding this base has been constructed.
func newJointTrainer(source trajectory.Source,
	dist distribution.Distribution, evalModel model.JointModel,
	config Config) (*JointTrainer, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if source == nil || dist == nil || evalModel == nil {
		return nil, fmt.Errorf("newJointTrainer: source, distribution, " +
			"and eval model are all required")
	}

	return &JointTrainer{
		config:    config,
		source:    source,
		dist:      dist,
		evalModel: evalModel,
	}, nil
}

// finalize wires the variant's loss and metrics into the training
// engine and performs the one-time eager probe of the batch stream:
// one batch is pulled to initialize the train and eval models before
// any epoch runs. The probe blocks until the trajectory source can
// produce a batch.
func (t *JointTrainer) finalize(alg Algorithm, m model.Trainable,
	slv solver.Solver, schedule solver.Schedule,
	trackers ...tracker.Tracker) error {
	metrics := alg.Metrics()
	names := alg.MetricNames()
	if len(metrics) != len(names) {
		return fmt.Errorf("finalize: metric table has %v entries, "+
			"variant declares %v", len(metrics), len(names))
	}
	for _, name := range names {
		if _, ok := metrics[name]; !ok {
			return fmt.Errorf("finalize: metric table is missing %q",
				name)
		}
	}

	eng, err := engine.New(m, slv, schedule, alg.JointLoss(),
		alg.BatchesStream(), metrics, trackers...)
	if err != nil {
		return fmt.Errorf("finalize: %v", err)
	}

	example, err := alg.BatchesStream().Next()
	if err != nil {
		return fmt.Errorf("finalize: could not probe batch stream: %v",
			err)
	}
	if err := m.Init(example); err != nil {
		return fmt.Errorf("finalize: could not initialize train "+
			"model: %v", err)
	}
	if err := t.evalModel.Init(example); err != nil {
		return fmt.Errorf("finalize: could not initialize eval "+
			"model: %v", err)
	}

	t.engine = eng
	return nil
}

// BatchesStream is abstract on the base trainer and must be supplied
// by an algorithm variant.
func (t *JointTrainer) BatchesStream() trajectory.Stream {
	panic("batchesStream: not implemented")
}

// JointLoss is abstract on the base trainer and must be supplied by an
// algorithm variant.
func (t *JointTrainer) JointLoss() engine.LossFn {
	panic("jointLoss: not implemented")
}

// Metrics is abstract on the base trainer and must be supplied by an
// algorithm variant.
func (t *JointTrainer) Metrics() map[string]engine.LossFn {
	panic("metrics: not implemented")
}

// MetricNames is abstract on the base trainer and must be supplied by
// an algorithm variant.
func (t *JointTrainer) MetricNames() []string {
	panic("metricNames: not implemented")
}

// Epoch returns the number of completed training epochs.
func (t *JointTrainer) Epoch() int { return t.epoch }

// Engine returns the underlying training engine.
func (t *JointTrainer) Engine() *engine.Trainer { return t.engine }

// Policy chooses an action to play after a trajectory. The last
// MaxSliceLength timesteps are run through the evaluation-mode model
// with the current trained weights, an action is sampled from the
// distribution parameters of the most recent timestep, and the action
// and its log probability are returned as independent copies.
//
// Policy must not be called concurrently with a training step unless
// the weight update is atomic.
func (t *JointTrainer) Policy(traj trajectory.Trajectory) (*tensor.Dense,
	float64, error) {
	obs, err := traj.Suffix(t.config.MaxSliceLength).ObservationTensor()
	if err != nil {
		return nil, 0, fmt.Errorf("policy: %v", err)
	}

	if err := t.evalModel.SetWeights(t.engine.Model().Weights()); err != nil {
		return nil, 0, fmt.Errorf("policy: could not copy weights: %v",
			err)
	}
	distInputs, _, err := t.evalModel.Forward(model.Eval, obs)
	if err != nil {
		return nil, 0, fmt.Errorf("policy: %v", err)
	}

	// Pick element 0 from the batch (the only one), last (current)
	// timestep.
	shape := distInputs.Shape()
	timesteps, paramDims := shape[1], shape[2]
	data := distInputs.Data().([]float64)
	backing := make([]float64, paramDims)
	copy(backing, data[(timesteps-1)*paramDims:])
	params := tensor.NewDense(tensor.Float64, []int{1, paramDims},
		tensor.WithBacking(backing))

	action, err := t.dist.Sample(params)
	if err != nil {
		return nil, 0, fmt.Errorf("policy: %v", err)
	}
	logProb, err := t.dist.LogProb(params, action)
	if err != nil {
		return nil, 0, fmt.Errorf("policy: %v", err)
	}
	return action, logProb.Data().([]float64)[0], nil
}

// TrainEpoch trains the joint model for one epoch, running the
// evaluation checkpoints that remain for the current epoch.
func (t *JointTrainer) TrainEpoch() error {
	t.epoch++
	n, err := RemainingEvals(t.engine.Step(), t.epoch,
		t.config.TrainStepsPerEpoch, t.config.EvalsPerEpoch)
	if err != nil {
		return fmt.Errorf("trainEpoch: %v", err)
	}

	for i := 0; i < n; i++ {
		err := t.engine.TrainEpoch(
			t.config.TrainStepsPerEpoch/t.config.EvalsPerEpoch,
			t.config.EvalSteps)
		if err != nil {
			return fmt.Errorf("trainEpoch: %v", err)
		}
	}
	return nil
}

// RemainingEvals returns how many evaluation checkpoints have not yet
// been executed for the current epoch. The epoch's
// trainStepsPerEpoch training steps are partitioned into evalsPerEpoch
// equal chunks keyed to the epoch boundary; curStep is the engine's
// global step counter and epoch counts from 1. The result is clamped
// to [0, evalsPerEpoch].
func RemainingEvals(curStep, epoch, trainStepsPerEpoch,
	evalsPerEpoch int) (int, error) {
	if epoch < 1 {
		return 0, fmt.Errorf("remainingEvals: epoch must be at least 1, "+
			"got %v", epoch)
	}
	if evalsPerEpoch < 1 || trainStepsPerEpoch%evalsPerEpoch != 0 {
		return 0, fmt.Errorf("remainingEvals: evals per epoch (%v) must "+
			"divide train steps per epoch (%v)", evalsPerEpoch,
			trainStepsPerEpoch)
	}

	prevSteps := (epoch - 1) * trainStepsPerEpoch
	doneThisEpoch := curStep - prevSteps
	if doneThisEpoch < 0 {
		return 0, fmt.Errorf("remainingEvals: current step (%v) is "+
			"before the epoch boundary (%v)", curStep, prevSteps)
	}

	stepsPerEval := trainStepsPerEpoch / evalsPerEpoch
	if doneThisEpoch%stepsPerEval != 0 {
		return 0, fmt.Errorf("remainingEvals: done steps this epoch "+
			"(%v) must be a multiple of steps per eval (%v)",
			doneThisEpoch, stepsPerEval)
	}

	remaining := evalsPerEpoch - doneThisEpoch/stepsPerEval
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// commonMetrics returns the metric table shared by all variants:
// advantage statistics, value loss, explained variance, the mean of
// the distribution parameters, and the mean sampled move.
func (t *JointTrainer) commonMetrics(
	valueLossCoeff float64) map[string]engine.LossFn {
	return map[string]engine.LossFn{
		MetricAdvantageMean: func(b *trajectory.Batch, distInputs,
			values *tensor.Dense) (float64, error) {
			return objective.AdvantageMean(values, b.Returns)
		},
		MetricAdvantageNorm: func(b *trajectory.Batch, distInputs,
			values *tensor.Dense) (float64, error) {
			return objective.AdvantageNorm(values, b.Returns)
		},
		MetricValueLoss: func(b *trajectory.Batch, distInputs,
			values *tensor.Dense) (float64, error) {
			return objective.ValueLoss(values, b.Returns, valueLossCoeff)
		},
		MetricExplainedVariance: func(b *trajectory.Batch, distInputs,
			values *tensor.Dense) (float64, error) {
			return objective.ExplainedVariance(values, b.Returns)
		},
		MetricLogProbsMean: func(b *trajectory.Batch, distInputs,
			values *tensor.Dense) (float64, error) {
			return stat.Mean(distInputs.Data().([]float64), nil), nil
		},
		MetricPreferredMove: func(b *trajectory.Batch, distInputs,
			values *tensor.Dense) (float64, error) {
			moves, err := t.dist.Sample(distInputs)
			if err != nil {
				return 0, err
			}
			return stat.Mean(moves.Data().([]float64), nil), nil
		},
	}
}

// commonMetricNames enumerates the names of the metrics returned by
// commonMetrics plus the joint loss every variant publishes.
func commonMetricNames() []string {
	return []string{
		MetricJointLoss,
		MetricAdvantageMean,
		MetricAdvantageNorm,
		MetricValueLoss,
		MetricExplainedVariance,
		MetricLogProbsMean,
		MetricPreferredMove,
	}
}
