package objective

import (
	"math"
	"testing"

	"gorgonia.org/tensor"
)

// identityLogProb treats the distribution parameters themselves as the
// per-element log probabilities, ignoring actions. Tests use it to pin
// log probs to exact values.
func identityLogProb(distInputs, actions *tensor.Dense) (*tensor.Dense,
	error) {
	return distInputs, nil
}

func TestProbsRatioIdentity(t *testing.T) {
	logProbs := vec(-0.5, -1.0, -2.5)

	ratio, err := ProbsRatio(logProbs, nil, logProbs, identityLogProb)
	if err != nil {
		t.Fatalf("probsRatio: %v", err)
	}

	for i, r := range ratio.Data().([]float64) {
		if math.Abs(r-1.0) > 1e-12 {
			t.Errorf("ratio %v of an unmoved policy \n\twant(%v)"+
				"\n\thave(%v)", i, 1.0, r)
		}
	}
}

// TestClippedSurrogateExample pins the surrogate terms on a single
// element with ratio 1.3, advantage 1, epsilon 0.2: the unclipped
// objective is 1.3, the clipped objective is 1.2, their minimum is
// 1.2, and the clip fraction is 1.
func TestClippedSurrogateExample(t *testing.T) {
	ratio := vec(1.3)
	adv := []float64{1.0}

	unclipped, err := UnclippedObjective(ratio, adv)
	if err != nil {
		t.Fatalf("unclippedObjective: %v", err)
	}
	if u := unclipped.Data().([]float64)[0]; math.Abs(u-1.3) > 1e-12 {
		t.Errorf("unclippedObjective \n\twant(%v)\n\thave(%v)", 1.3, u)
	}

	clipped, err := ClippedObjective(ratio, adv, 0.2)
	if err != nil {
		t.Fatalf("clippedObjective: %v", err)
	}
	if c := clipped.Data().([]float64)[0]; math.Abs(c-1.2) > 1e-12 {
		t.Errorf("clippedObjective \n\twant(%v)\n\thave(%v)", 1.2, c)
	}

	// Reproduce the same ratio through the full objective: old log
	// prob 0 and new log prob ln(1.3), values 0 against returns 1.
	distInputs := vec(math.Log(1.3))
	obj, err := PPOObjective(distInputs, vec(0), vec(1), nil, vec(0),
		identityLogProb, 0.2, false)
	if err != nil {
		t.Fatalf("ppoObjective: %v", err)
	}
	if o := obj.Data().([]float64)[0]; math.Abs(o-1.2) > 1e-12 {
		t.Errorf("ppoObjective \n\twant(%v)\n\thave(%v)", 1.2, o)
	}

	frac, err := ClipFraction(distInputs, nil, vec(0), identityLogProb,
		0.2)
	if err != nil {
		t.Fatalf("clipFraction: %v", err)
	}
	if frac != 1.0 {
		t.Errorf("clipFraction \n\twant(%v)\n\thave(%v)", 1.0, frac)
	}
}

// TestPPOObjectiveConservative checks that the minimum of the two
// surrogates never exceeds the unclipped term for positive advantages
// and never falls below it for negative ones.
func TestPPOObjectiveConservative(t *testing.T) {
	// Ratios 0.5, 1.0, 2.0 against advantages of both signs.
	newLP := vec(math.Log(0.5), 0, math.Log(2), math.Log(0.5), 0,
		math.Log(2))
	oldLP := vec(0, 0, 0, 0, 0, 0)
	values := vec(0, 0, 0, 0, 0, 0)
	returns := vec(1, 1, 1, -1, -1, -1)

	obj, err := PPOObjective(newLP, values, returns, nil, oldLP,
		identityLogProb, 0.2, false)
	if err != nil {
		t.Fatalf("ppoObjective: %v", err)
	}

	ratio, err := ProbsRatio(newLP, nil, oldLP, identityLogProb)
	if err != nil {
		t.Fatalf("probsRatio: %v", err)
	}
	adv, err := Advantages(values, returns)
	if err != nil {
		t.Fatalf("advantages: %v", err)
	}
	unclipped, err := UnclippedObjective(ratio, adv)
	if err != nil {
		t.Fatalf("unclippedObjective: %v", err)
	}

	o := obj.Data().([]float64)
	u := unclipped.Data().([]float64)
	for i := range o {
		if adv[i] > 0 && o[i] > u[i]+1e-12 {
			t.Errorf("objective %v exceeds the unclipped term on a "+
				"positive advantage \n\twant(<=%v)\n\thave(%v)", i, u[i],
				o[i])
		}
		if adv[i] < 0 && o[i] < u[i]-1e-12 {
			t.Errorf("objective %v falls below the unclipped term on a "+
				"negative advantage \n\twant(>=%v)\n\thave(%v)", i, u[i],
				o[i])
		}
	}
}

func TestPPOObjectiveNormalizesAdvantages(t *testing.T) {
	// With an unmoved policy the objective reduces to the normalized
	// advantages, whose mean is zero.
	oldLP := vec(0, 0, 0, 0)
	values := vec(0, 0, 0, 0)
	returns := vec(1, 2, 3, 4)

	obj, err := PPOObjective(oldLP, values, returns, nil, oldLP,
		identityLogProb, 0.2, true)
	if err != nil {
		t.Fatalf("ppoObjective: %v", err)
	}

	total := 0.0
	for _, o := range obj.Data().([]float64) {
		total += o
	}
	if math.Abs(total) > 1e-6 {
		t.Errorf("normalized objective sum of an unmoved policy "+
			"\n\twant(%v)\n\thave(%v)", 0.0, total)
	}
}

func TestClipFractionUnmovedPolicy(t *testing.T) {
	logProbs := vec(-0.1, -0.7, -1.3)

	frac, err := ClipFraction(logProbs, nil, logProbs, identityLogProb,
		0.2)
	if err != nil {
		t.Fatalf("clipFraction: %v", err)
	}
	if frac != 0.0 {
		t.Errorf("clipFraction of an unmoved policy \n\twant(%v)"+
			"\n\thave(%v)", 0.0, frac)
	}
}

func TestApproximateKLDivergence(t *testing.T) {
	newLP := vec(-1.0, -2.0)
	oldLP := vec(-0.5, -1.0)

	kl, err := ApproximateKLDivergence(newLP, nil, oldLP, identityLogProb)
	if err != nil {
		t.Fatalf("approximateKLDivergence: %v", err)
	}
	if math.Abs(kl-0.75) > 1e-12 {
		t.Errorf("approximateKLDivergence \n\twant(%v)\n\thave(%v)", 0.75,
			kl)
	}
}

func TestEntropyLoss(t *testing.T) {
	entropyFn := func(distInputs *tensor.Dense) (*tensor.Dense, error) {
		return distInputs, nil
	}

	loss, err := EntropyLoss(vec(1, 2, 3), nil, identityLogProb, 0.5,
		entropyFn)
	if err != nil {
		t.Fatalf("entropyLoss: %v", err)
	}
	if math.Abs(loss-1.0) > 1e-12 {
		t.Errorf("entropyLoss \n\twant(%v)\n\thave(%v)", 1.0, loss)
	}
}
