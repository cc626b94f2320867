package model

import (
	"fmt"

	"github.com/kfurrow/jointrl/trajectory"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// JointMLP is a multi-layered perceptron with a shared trunk and two
// output heads: a policy head predicting distribution parameters and a
// value head predicting a scalar value per timestep.
//
// The computational graph is built for a fixed number of input rows
// (batch * time). A forward pass with a different leading shape
// rebuilds the graph with the same weights, following the
// clone-with-batch approach used for networks whose batch size differs
// between training and action selection.
type JointMLP struct {
	paramDims   int
	hiddenSizes []int
	features    int
	rows        int
	initialized bool

	g          *G.ExprGraph
	input      *G.Node
	learnables G.Nodes
	policyVal  G.Value
	valueVal   G.Value
	vm         G.VM
}

// NewJointMLP returns a new joint policy-value MLP. The trunk has one
// tanh hidden layer per entry of hiddenSizes; paramDims is the number
// of distribution parameters the policy head predicts per timestep.
// The model must be initialized with an example batch before use.
func NewJointMLP(paramDims int, hiddenSizes []int) *JointMLP {
	return &JointMLP{
		paramDims:   paramDims,
		hiddenSizes: hiddenSizes,
	}
}

// Init initializes the model weights from an example batch. This is
// the single eager initialization step of a trainer construction.
func (m *JointMLP) Init(example *trajectory.Batch) error {
	if m.initialized {
		return fmt.Errorf("init: model already initialized")
	}
	if err := example.Check(); err != nil {
		return fmt.Errorf("init: %v", err)
	}

	shape := example.Observations.Shape()
	m.features = shape[len(shape)-1]
	if err := m.rebuild(shape[0]*shape[1], nil); err != nil {
		return fmt.Errorf("init: %v", err)
	}
	m.initialized = true
	return nil
}

// rebuild constructs the computational graph for the given number of
// input rows. If weights is non-nil the new learnables are set from
// it, otherwise they keep their freshly initialized values.
func (m *JointMLP) rebuild(rows int, weights []*tensor.Dense) error {
	g := G.NewGraph()
	input := G.NewMatrix(g, tensor.Float64,
		G.WithShape(rows, m.features),
		G.WithName("observations"),
		G.WithInit(G.Zeroes()),
	)

	var learnables G.Nodes
	pred := input
	prev := m.features
	for i, size := range m.hiddenSizes {
		w := G.NewMatrix(g, tensor.Float64,
			G.WithShape(prev, size),
			G.WithName(fmt.Sprintf("HiddenWeights%d", i)),
			G.WithInit(G.GlorotU(1.0)),
		)
		b := G.NewMatrix(g, tensor.Float64,
			G.WithShape(1, size),
			G.WithName(fmt.Sprintf("HiddenBias%d", i)),
			G.WithInit(G.Zeroes()),
		)
		pred = G.Must(G.Mul(pred, w))
		pred = G.Must(G.BroadcastAdd(pred, b, nil, []byte{0}))
		pred = G.Must(G.Tanh(pred))
		learnables = append(learnables, w, b)
		prev = size
	}

	policyW := G.NewMatrix(g, tensor.Float64,
		G.WithShape(prev, m.paramDims),
		G.WithName("PolicyWeights"),
		G.WithInit(G.GlorotU(1.0)),
	)
	policyB := G.NewMatrix(g, tensor.Float64,
		G.WithShape(1, m.paramDims),
		G.WithName("PolicyBias"),
		G.WithInit(G.Zeroes()),
	)
	policy := G.Must(G.Mul(pred, policyW))
	policy = G.Must(G.BroadcastAdd(policy, policyB, nil, []byte{0}))

	valueW := G.NewMatrix(g, tensor.Float64,
		G.WithShape(prev, 1),
		G.WithName("ValueWeights"),
		G.WithInit(G.GlorotU(1.0)),
	)
	valueB := G.NewMatrix(g, tensor.Float64,
		G.WithShape(1, 1),
		G.WithName("ValueBias"),
		G.WithInit(G.Zeroes()),
	)
	value := G.Must(G.Mul(pred, valueW))
	value = G.Must(G.BroadcastAdd(value, valueB, nil, []byte{0}))

	learnables = append(learnables, policyW, policyB, valueW, valueB)

	m.g = g
	m.input = input
	m.learnables = learnables
	G.Read(policy, &m.policyVal)
	G.Read(value, &m.valueVal)
	if m.vm != nil {
		m.vm.Close()
	}
	m.vm = G.NewTapeMachine(g)
	m.rows = rows

	if weights != nil {
		if err := m.SetWeights(weights); err != nil {
			return fmt.Errorf("rebuild: %v", err)
		}
	}
	return nil
}

// Forward runs the model on observations with a (batch, time, feature)
// shape, rebuilding the graph if the leading shape changed since the
// last pass.
func (m *JointMLP) Forward(mode Mode, observations *tensor.Dense) (
	*tensor.Dense, *tensor.Dense, error) {
	if !m.initialized {
		return nil, nil, fmt.Errorf("forward: model not initialized")
	}
	if mode != Train && mode != Eval {
		return nil, nil, fmt.Errorf("forward: invalid mode %v", mode)
	}

	shape := observations.Shape()
	if len(shape) != 3 || shape[2] != m.features {
		return nil, nil, fmt.Errorf("forward: invalid observations "+
			"shape \n\twant(batch, time, %v)\n\thave(%v)", m.features,
			shape)
	}

	rows := shape[0] * shape[1]
	if rows != m.rows {
		if err := m.rebuild(rows, m.Weights()); err != nil {
			return nil, nil, fmt.Errorf("forward: %v", err)
		}
	}

	backing := make([]float64, rows*m.features)
	copy(backing, observations.Data().([]float64))
	obs := tensor.NewDense(tensor.Float64, []int{rows, m.features},
		tensor.WithBacking(backing))
	if err := G.Let(m.input, obs); err != nil {
		return nil, nil, fmt.Errorf("forward: %v", err)
	}

	if err := m.vm.RunAll(); err != nil {
		return nil, nil, fmt.Errorf("forward: %v", err)
	}
	policyData := m.policyVal.Data().([]float64)
	valueData := m.valueVal.Data().([]float64)
	m.vm.Reset()

	distInputs := tensor.NewDense(tensor.Float64,
		[]int{shape[0], shape[1], m.paramDims},
		tensor.WithBacking(append([]float64(nil), policyData...)))
	values := tensor.NewDense(tensor.Float64,
		[]int{shape[0], shape[1], 1},
		tensor.WithBacking(append([]float64(nil), valueData...)))
	return distInputs, values, nil
}

// Weights returns an independent copy of the model weights.
func (m *JointMLP) Weights() []*tensor.Dense {
	weights := make([]*tensor.Dense, len(m.learnables))
	for i, learnable := range m.learnables {
		weights[i] = learnable.Value().(*tensor.Dense).Clone().(*tensor.Dense)
	}
	return weights
}

// SetWeights overwrites the model weights with the given blob.
func (m *JointMLP) SetWeights(weights []*tensor.Dense) error {
	if len(weights) != len(m.learnables) {
		return fmt.Errorf("setWeights: invalid number of weight tensors"+
			"\n\twant(%v)\n\thave(%v)", len(m.learnables), len(weights))
	}
	for i, learnable := range m.learnables {
		if !learnable.Shape().Eq(weights[i].Shape()) {
			return fmt.Errorf("setWeights: weight %v has shape %v, "+
				"model expects %v", i, weights[i].Shape(),
				learnable.Shape())
		}
		clone := weights[i].Clone().(*tensor.Dense)
		if err := G.Let(learnable, clone); err != nil {
			return fmt.Errorf("setWeights: %v", err)
		}
	}
	return nil
}

// FlatWeights returns a copy of all weights concatenated into a single
// vector, trunk first, then policy head, then value head.
func (m *JointMLP) FlatWeights() []float64 {
	var flat []float64
	for _, learnable := range m.learnables {
		flat = append(flat,
			learnable.Value().Data().([]float64)...)
	}
	return flat
}

// SetFlatWeights overwrites all weights from a single flat vector laid
// out as returned by FlatWeights.
func (m *JointMLP) SetFlatWeights(weights []float64) error {
	offset := 0
	for _, learnable := range m.learnables {
		size := learnable.Shape().TotalSize()
		if offset+size > len(weights) {
			return fmt.Errorf("setFlatWeights: weight vector too short"+
				"\n\twant(>=%v)\n\thave(%v)", offset+size, len(weights))
		}
		backing := make([]float64, size)
		copy(backing, weights[offset:offset+size])
		value := tensor.NewDense(tensor.Float64,
			learnable.Shape().Clone(),
			tensor.WithBacking(backing))
		if err := G.Let(learnable, value); err != nil {
			return fmt.Errorf("setFlatWeights: %v", err)
		}
		offset += size
	}
	if offset != len(weights) {
		return fmt.Errorf("setFlatWeights: weight vector too long"+
			"\n\twant(%v)\n\thave(%v)", offset, len(weights))
	}
	return nil
}
