// Package engine implements the supervised training engine that owns
// the optimizer side of joint policy-value training. The engine pulls
// batches from a lazy stream, computes the training loss through a
// caller-supplied loss function, applies gradient updates through a
// solver, and reports named metrics at evaluation checkpoints.
package engine

import (
	"fmt"

	"github.com/kfurrow/jointrl/model"
	"github.com/kfurrow/jointrl/solver"
	"github.com/kfurrow/jointrl/tracker"
	"github.com/kfurrow/jointrl/trajectory"
	"gonum.org/v1/gonum/diff/fd"
	"gorgonia.org/tensor"
)

// LossFn turns a batch and the model outputs for that batch into a
// scalar. The same signature serves both the training loss and the
// named diagnostic metrics.
type LossFn func(batch *trajectory.Batch, distInputs,
	values *tensor.Dense) (float64, error)

// Trainer trains a joint model by stochastic gradient descent with
// numerical gradients. Gradients of the loss with respect to the
// flattened model weights are estimated by finite differences, which
// keeps the loss functions free to be arbitrary numeric code.
//
// The Trainer runs a single-threaded, cooperative pull loop: one batch
// is pulled per step, and a stalled stream blocks the step
// indefinitely. Failures are fatal to the current step and propagate
// to the caller.
type Trainer struct {
	model    model.Trainable
	solver   solver.Solver
	schedule solver.Schedule
	lossFn   LossFn
	stream   trajectory.Stream
	metrics  map[string]LossFn
	trackers []tracker.Tracker

	step     int
	lastEval map[string]float64
}

// New returns a new Trainer. The metrics table is fixed at
// construction and never mutated afterwards.
func New(m model.Trainable, s solver.Solver, schedule solver.Schedule,
	lossFn LossFn, stream trajectory.Stream,
	metrics map[string]LossFn, trackers ...tracker.Tracker) (*Trainer,
	error) {
	if m == nil || s == nil || schedule == nil || lossFn == nil ||
		stream == nil {
		return nil, fmt.Errorf("new: model, solver, schedule, loss " +
			"function, and stream are all required")
	}
	for name, metric := range metrics {
		if metric == nil {
			return nil, fmt.Errorf("new: metric %q is nil", name)
		}
	}

	return &Trainer{
		model:    m,
		solver:   s,
		schedule: schedule,
		lossFn:   lossFn,
		stream:   stream,
		metrics:  metrics,
		trackers: trackers,
		lastEval: make(map[string]float64),
	}, nil
}

// Step returns the number of completed training steps.
func (t *Trainer) Step() int { return t.step }

// Model returns the model being trained.
func (t *Trainer) Model() model.Trainable { return t.model }

// LastEval returns a copy of the metric values reported at the most
// recent evaluation checkpoint.
func (t *Trainer) LastEval() map[string]float64 {
	out := make(map[string]float64, len(t.lastEval))
	for name, value := range t.lastEval {
		out[name] = value
	}
	return out
}

// TrainEpoch runs nSteps training steps followed by nEvalSteps metric
// evaluations.
func (t *Trainer) TrainEpoch(nSteps, nEvalSteps int) error {
	for i := 0; i < nSteps; i++ {
		if err := t.trainStep(); err != nil {
			return fmt.Errorf("trainEpoch: step %v: %v", t.step, err)
		}
	}
	for i := 0; i < nEvalSteps; i++ {
		if err := t.evalStep(); err != nil {
			return fmt.Errorf("trainEpoch: eval after step %v: %v",
				t.step, err)
		}
	}
	return nil
}

// trainStep pulls one batch and applies one gradient update.
func (t *Trainer) trainStep() error {
	batch, err := t.stream.Next()
	if err != nil {
		return fmt.Errorf("trainStep: %v", err)
	}

	weights := t.model.FlatWeights()
	var lossErr error
	loss := func(w []float64) float64 {
		if lossErr != nil {
			return 0
		}
		if err := t.model.SetFlatWeights(w); err != nil {
			lossErr = err
			return 0
		}
		distInputs, values, err := t.model.Forward(model.Train,
			batch.Observations)
		if err != nil {
			lossErr = err
			return 0
		}
		l, err := t.lossFn(batch, distInputs, values)
		if err != nil {
			lossErr = err
			return 0
		}
		return l
	}

	grad := make([]float64, len(weights))
	fd.Gradient(grad, loss, weights, nil)
	if lossErr != nil {
		return fmt.Errorf("trainStep: %v", lossErr)
	}

	if err := t.solver.Step(weights, grad, t.schedule(t.step)); err != nil {
		return fmt.Errorf("trainStep: %v", err)
	}
	if err := t.model.SetFlatWeights(weights); err != nil {
		return fmt.Errorf("trainStep: %v", err)
	}
	t.step++
	return nil
}

// evalStep pulls one batch, evaluates every named metric on it, and
// reports the values to the registered trackers.
func (t *Trainer) evalStep() error {
	batch, err := t.stream.Next()
	if err != nil {
		return fmt.Errorf("evalStep: %v", err)
	}

	distInputs, values, err := t.model.Forward(model.Eval,
		batch.Observations)
	if err != nil {
		return fmt.Errorf("evalStep: %v", err)
	}

	for name, metric := range t.metrics {
		value, err := metric(batch, distInputs, values)
		if err != nil {
			return fmt.Errorf("evalStep: metric %q: %v", name, err)
		}
		t.lastEval[name] = value
	}
	for _, tr := range t.trackers {
		tr.Track(t.step, t.lastEval)
	}
	return nil
}
