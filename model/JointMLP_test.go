package model

import (
	"math"
	"testing"

	"github.com/kfurrow/jointrl/trajectory"
	"gorgonia.org/tensor"
)

// exampleBatch returns a minimal consistent batch with the given
// (batch, time, features) shape.
func exampleBatch(batch, time, features int) *trajectory.Batch {
	obs := make([]float64, batch*time*features)
	for i := range obs {
		obs[i] = float64(i%7) / 7.0
	}
	flat := make([]float64, batch*time)
	return &trajectory.Batch{
		Observations: tensor.NewDense(tensor.Float64,
			[]int{batch, time, features}, tensor.WithBacking(obs)),
		Returns: tensor.NewDense(tensor.Float64, []int{batch, time},
			tensor.WithBacking(append([]float64(nil), flat...))),
		Actions: tensor.NewDense(tensor.Float64, []int{batch, time},
			tensor.WithBacking(append([]float64(nil), flat...))),
		Mask: tensor.NewDense(tensor.Float64, []int{batch, time},
			tensor.WithBacking(append([]float64(nil), flat...))),
	}
}

func initialized(t *testing.T, paramDims int, hidden []int,
	batch, time, features int) *JointMLP {
	t.Helper()
	m := NewJointMLP(paramDims, hidden)
	if err := m.Init(exampleBatch(batch, time, features)); err != nil {
		t.Fatalf("init: %v", err)
	}
	return m
}

func TestJointMLPForwardShapes(t *testing.T) {
	m := initialized(t, 3, []int{8}, 2, 4, 2)

	obs := exampleBatch(2, 4, 2).Observations
	distInputs, values, err := m.Forward(Train, obs)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}

	wantDist := tensor.Shape{2, 4, 3}
	if !distInputs.Shape().Eq(wantDist) {
		t.Errorf("distInputs shape \n\twant(%v)\n\thave(%v)", wantDist,
			distInputs.Shape())
	}
	wantValues := tensor.Shape{2, 4, 1}
	if !values.Shape().Eq(wantValues) {
		t.Errorf("values shape \n\twant(%v)\n\thave(%v)", wantValues,
			values.Shape())
	}
}

func TestJointMLPForwardDeterministic(t *testing.T) {
	m := initialized(t, 2, []int{4}, 1, 3, 2)
	obs := exampleBatch(1, 3, 2).Observations

	_, first, err := m.Forward(Eval, obs)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	_, second, err := m.Forward(Eval, obs)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}

	a := first.Data().([]float64)
	b := second.Data().([]float64)
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("value %v differs between identical passes "+
				"\n\twant(%v)\n\thave(%v)", i, a[i], b[i])
		}
	}
}

// TestJointMLPRebuildPreservesWeights runs a wide batch, then a batch
// of one timestep whose observation duplicates a row of the wide batch.
// The graph is rebuilt for the new leading shape but the outputs must
// match, proving the weights survive the rebuild.
func TestJointMLPRebuildPreservesWeights(t *testing.T) {
	m := initialized(t, 2, []int{4}, 2, 3, 2)

	wide := exampleBatch(2, 3, 2).Observations
	wideDist, wideVals, err := m.Forward(Train, wide)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}

	row := wide.Data().([]float64)[:2]
	single := tensor.NewDense(tensor.Float64, []int{1, 1, 2},
		tensor.WithBacking(append([]float64(nil), row...)))
	singleDist, singleVals, err := m.Forward(Eval, single)
	if err != nil {
		t.Fatalf("forward after rebuild: %v", err)
	}

	wantVal := wideVals.Data().([]float64)[0]
	haveVal := singleVals.Data().([]float64)[0]
	if math.Abs(wantVal-haveVal) > 1e-12 {
		t.Errorf("value after rebuild \n\twant(%v)\n\thave(%v)", wantVal,
			haveVal)
	}
	for i := 0; i < 2; i++ {
		want := wideDist.Data().([]float64)[i]
		have := singleDist.Data().([]float64)[i]
		if math.Abs(want-have) > 1e-12 {
			t.Errorf("distInput %v after rebuild \n\twant(%v)"+
				"\n\thave(%v)", i, want, have)
		}
	}
}

// TestJointMLPRepeatedRebuild alternates between two leading shapes so
// that every Forward call replaces the tape machine, releasing the old
// one. The model must stay runnable and keep producing the same output
// for the same observation across all rebuilds.
func TestJointMLPRepeatedRebuild(t *testing.T) {
	m := initialized(t, 2, []int{4}, 2, 3, 2)

	wide := exampleBatch(2, 3, 2).Observations
	row := wide.Data().([]float64)[:2]
	single := tensor.NewDense(tensor.Float64, []int{1, 1, 2},
		tensor.WithBacking(append([]float64(nil), row...)))

	_, firstVals, err := m.Forward(Eval, single)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	want := firstVals.Data().([]float64)[0]

	for i := 0; i < 3; i++ {
		if _, _, err := m.Forward(Train, wide); err != nil {
			t.Fatalf("wide forward %v: %v", i, err)
		}
		_, vals, err := m.Forward(Eval, single)
		if err != nil {
			t.Fatalf("single forward %v: %v", i, err)
		}
		have := vals.Data().([]float64)[0]
		if math.Abs(want-have) > 1e-12 {
			t.Errorf("value after rebuild %v \n\twant(%v)\n\thave(%v)",
				i, want, have)
		}
	}
}

func TestJointMLPFlatWeightsRoundTrip(t *testing.T) {
	m := initialized(t, 2, []int{4}, 1, 2, 3)

	flat := m.FlatWeights()
	for i := range flat {
		flat[i] += 0.25
	}
	if err := m.SetFlatWeights(flat); err != nil {
		t.Fatalf("setFlatWeights: %v", err)
	}

	got := m.FlatWeights()
	if len(got) != len(flat) {
		t.Fatalf("flat weight length \n\twant(%v)\n\thave(%v)", len(flat),
			len(got))
	}
	for i := range flat {
		if got[i] != flat[i] {
			t.Errorf("flat weight %v \n\twant(%v)\n\thave(%v)", i, flat[i],
				got[i])
		}
	}
}

func TestJointMLPSetFlatWeightsBadLength(t *testing.T) {
	m := initialized(t, 2, []int{4}, 1, 2, 3)
	flat := m.FlatWeights()

	if err := m.SetFlatWeights(flat[:len(flat)-1]); err == nil {
		t.Error("setFlatWeights should fail on a short weight vector")
	}
	if err := m.SetFlatWeights(append(flat, 0)); err == nil {
		t.Error("setFlatWeights should fail on a long weight vector")
	}
}

func TestJointMLPSetWeights(t *testing.T) {
	m := initialized(t, 2, []int{4}, 1, 2, 3)
	other := initialized(t, 2, []int{4}, 1, 2, 3)

	if err := other.SetWeights(m.Weights()); err != nil {
		t.Fatalf("setWeights: %v", err)
	}

	obs := exampleBatch(1, 2, 3).Observations
	_, wantVals, err := m.Forward(Eval, obs)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	_, haveVals, err := other.Forward(Eval, obs)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}

	want := wantVals.Data().([]float64)
	have := haveVals.Data().([]float64)
	for i := range want {
		if want[i] != have[i] {
			t.Errorf("value %v after weight copy \n\twant(%v)"+
				"\n\thave(%v)", i, want[i], have[i])
		}
	}

	if err := other.SetWeights(m.Weights()[:1]); err == nil {
		t.Error("setWeights should fail on a truncated weight blob")
	}
}

func TestJointMLPErrors(t *testing.T) {
	m := NewJointMLP(2, []int{4})

	obs := exampleBatch(1, 2, 3).Observations
	if _, _, err := m.Forward(Train, obs); err == nil {
		t.Error("forward should fail before initialization")
	}

	if err := m.Init(exampleBatch(1, 2, 3)); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := m.Init(exampleBatch(1, 2, 3)); err == nil {
		t.Error("init should fail on an already initialized model")
	}

	bad := tensor.NewDense(tensor.Float64, []int{2, 3},
		tensor.WithBacking(make([]float64, 6)))
	if _, _, err := m.Forward(Train, bad); err == nil {
		t.Error("forward should fail on observations without a " +
			"feature dimension")
	}

	wrongFeatures := exampleBatch(1, 2, 4).Observations
	if _, _, err := m.Forward(Train, wrongFeatures); err == nil {
		t.Error("forward should fail on a feature size mismatch")
	}
}
