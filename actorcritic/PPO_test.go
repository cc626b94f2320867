package actorcritic

import (
	"math"
	"testing"

	"github.com/kfurrow/jointrl/distribution"
	"github.com/kfurrow/jointrl/trajectory"
	"gorgonia.org/tensor"
)

// uniformBatch is a shaped PPO model input of one trajectory with two
// timesteps, with old log probs matching a uniform two-action policy.
func uniformBatch(returns ...float64) *trajectory.Batch {
	logHalf := -math.Log(2)
	return &trajectory.Batch{
		Observations: tensor.NewDense(tensor.Float64, []int{1, 2, 1},
			tensor.WithBacking([]float64{0.1, 0.2})),
		Returns: tensor.NewDense(tensor.Float64, []int{1, 2, 1},
			tensor.WithBacking(returns)),
		Actions: tensor.NewDense(tensor.Float64, []int{1, 2},
			tensor.WithBacking([]float64{0, 1})),
		LogProbs: tensor.NewDense(tensor.Float64, []int{1, 2},
			tensor.WithBacking([]float64{logHalf, logHalf})),
		Mask: tensor.NewDense(tensor.Float64, []int{1, 2},
			tensor.WithBacking([]float64{1, 1})),
	}
}

// TestPPOJointLoss pins the joint loss of an unmoved uniform policy:
// the ratio is 1 everywhere, so the surrogate term reduces to the mean
// advantage, leaving -mean(adv) + valueLoss - entropyLoss.
func TestPPOJointLoss(t *testing.T) {
	config := smallConfig()
	config.NormalizeAdvantages = false
	p := &PPO{
		JointTrainer: &JointTrainer{
			config: config,
			dist:   distribution.NewCategorical(2, 1),
		},
		epsilon:        0.2,
		valueLossCoeff: 0.5,
		entropyCoeff:   0.1,
	}

	batch := uniformBatch(1, 2)
	distInputs := tensor.NewDense(tensor.Float64, []int{1, 2, 2},
		tensor.WithBacking(make([]float64, 4)))
	values := tensor.NewDense(tensor.Float64, []int{1, 2, 1},
		tensor.WithBacking(make([]float64, 2)))

	loss, err := p.JointLoss()(batch, distInputs, values)
	if err != nil {
		t.Fatalf("jointLoss: %v", err)
	}

	// mean advantage 1.5, value loss 0.5 * 2.5, entropy 0.1 * ln 2.
	want := -1.5 + 1.25 - 0.1*math.Log(2)
	if math.Abs(loss-want) > 1e-12 {
		t.Errorf("jointLoss \n\twant(%v)\n\thave(%v)", want, loss)
	}
}

func TestPPOMetricTableComplete(t *testing.T) {
	p := &PPO{
		JointTrainer: &JointTrainer{
			config: smallConfig(),
			dist:   distribution.NewCategorical(2, 1),
		},
		epsilon:        0.2,
		valueLossCoeff: 0.1,
		entropyCoeff:   0.01,
	}

	names := p.MetricNames()
	metrics := p.Metrics()
	if len(metrics) != len(names) {
		t.Fatalf("metric table size \n\twant(%v)\n\thave(%v)", len(names),
			len(metrics))
	}
	for _, name := range names {
		if _, ok := metrics[name]; !ok {
			t.Errorf("metric table is missing %q", name)
		}
	}
}

// TestPPOMetricsOnUnmovedPolicy evaluates the ratio diagnostics with
// old log probs equal to the current policy's: the ratio is 1, nothing
// clips, and the KL estimate is 0.
func TestPPOMetricsOnUnmovedPolicy(t *testing.T) {
	config := smallConfig()
	config.NormalizeAdvantages = false
	p := &PPO{
		JointTrainer: &JointTrainer{
			config: config,
			dist:   distribution.NewCategorical(2, 1),
		},
		epsilon:        0.2,
		valueLossCoeff: 0.5,
		entropyCoeff:   0.1,
	}
	metrics := p.Metrics()

	batch := uniformBatch(1, 2)
	distInputs := tensor.NewDense(tensor.Float64, []int{1, 2, 2},
		tensor.WithBacking(make([]float64, 4)))
	values := tensor.NewDense(tensor.Float64, []int{1, 2, 1},
		tensor.WithBacking(make([]float64, 2)))

	cases := map[string]float64{
		MetricProbsRatioMean:         1.0,
		MetricClipFraction:           0.0,
		MetricApproximateKL:          0.0,
		MetricUnclippedObjectiveMean: 1.5,
		MetricClippedObjectiveMean:   1.5,
		MetricPPOObjectiveMean:       1.5,
		MetricEntropyLoss:            0.1 * math.Log(2),
		MetricValueLoss:              1.25,
		MetricAdvantageMean:          1.5,
	}
	for name, want := range cases {
		got, err := metrics[name](batch, distInputs, values)
		if err != nil {
			t.Errorf("metric %q: %v", name, err)
			continue
		}
		if math.Abs(got-want) > 1e-12 {
			t.Errorf("metric %q \n\twant(%v)\n\thave(%v)", name, want,
				got)
		}
	}
}

// recordingSource records the epoch selector passed to it and serves
// batches without old log probs when stripLogProbs is set.
type recordingSource struct {
	fakeSource
	epochs        []int
	epochsSet     bool
	stripLogProbs bool
}

func (r *recordingSource) TrajectoryBatchStream(batchSize,
	maxSliceLength int, epochs []int) trajectory.Stream {
	r.epochs = epochs
	r.epochsSet = true
	inner := r.fakeSource.TrajectoryBatchStream(batchSize, maxSliceLength,
		epochs)
	return trajectory.StreamFunc(func() (*trajectory.Batch, error) {
		b, err := inner.Next()
		if err != nil {
			return nil, err
		}
		if r.stripLogProbs {
			b.LogProbs = nil
		}
		return b, nil
	})
}

func TestPPOBatchesStream(t *testing.T) {
	source := &recordingSource{}
	p := &PPO{
		JointTrainer: &JointTrainer{
			config: smallConfig(),
			source: source,
			dist:   distribution.NewCategorical(2, 1),
		},
		epsilon: 0.2,
	}

	batch, err := p.BatchesStream().Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}

	// PPO is on-policy: only the most recent collection epoch is
	// sampled.
	if !source.epochsSet || len(source.epochs) != 1 ||
		source.epochs[0] != -1 {
		t.Errorf("epoch selector \n\twant(%v)\n\thave(%v)", []int{-1},
			source.epochs)
	}

	// Returns gain a trailing depth dimension matching the value head.
	want := tensor.Shape{2, 3, 1}
	if !batch.Returns.Shape().Eq(want) {
		t.Errorf("returns shape \n\twant(%v)\n\thave(%v)", want,
			batch.Returns.Shape())
	}
	if batch.LogProbs == nil {
		t.Error("shaped batches must carry the old log probs")
	}
}

func TestPPOBatchesStreamRequiresLogProbs(t *testing.T) {
	source := &recordingSource{stripLogProbs: true}
	p := &PPO{
		JointTrainer: &JointTrainer{
			config: smallConfig(),
			source: source,
			dist:   distribution.NewCategorical(2, 1),
		},
		epsilon: 0.2,
	}

	if _, err := p.BatchesStream().Next(); err == nil {
		t.Error("stream should fail on source batches without old " +
			"log probs")
	}
}
