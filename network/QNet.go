package network

import (
	"fmt"

	"github.com/samuelfneumann/btcrl/agent"
	"github.com/samuelfneumann/btcrl/solver"
	"github.com/samuelfneumann/btcrl/utils/op"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// HuberDelta is the threshold between the quadratic and linear regions
// of the Huber loss used to train a QNet
const HuberDelta = 1.0

// QNet is a trainable action-value function. It holds two copies of
// the same network on separate graphs: a training copy with dropout,
// a loss, and gradients, and an evaluation copy without dropout which
// is kept in sync with the training copy after every gradient step.
//
// The loss is the Huber loss between the predictions of the training
// copy and a batch of target vectors, averaged over all observations
// and actions. A target vector equals the prediction of the same
// forward pass everywhere except at the taken action, so the residual
// is (prediction - target) masked by a one-hot encoding of the taken
// actions. Untaken actions contribute exactly zero loss and gradient,
// whatever dropout masks the training copy draws.
type QNet struct {
	arch   Architecture
	solver *solver.Solver
	batch  int

	trainNet NeuralNet
	targets  *G.Node
	mask     *G.Node
	cost     *G.Node
	lossVal  G.Value
	trainVM  G.VM

	evalNet NeuralNet
	evalVM  G.VM
}

// NewQNet returns a new QNet with freshly initialized weights which
// evaluates and trains on batches of batch observations
func NewQNet(arch Architecture, batch int, s *solver.Solver) (*QNet, error) {
	if s == nil {
		return nil, fmt.Errorf("newqnet: nil solver")
	}

	// Training graph
	trainGraph := G.NewGraph()
	trainNet, err := arch.Build(trainGraph, batch, true)
	if err != nil {
		return nil, fmt.Errorf("newqnet: could not build training net: %v", err)
	}
	targets := G.NewMatrix(trainGraph, tensor.Float64,
		G.WithShape(batch, arch.Outputs()), G.WithName("targets"),
		G.WithInit(G.Zeroes()))

	mask := G.NewMatrix(trainGraph, tensor.Float64,
		G.WithShape(batch, arch.Outputs()), G.WithName("action_mask"),
		G.WithInit(G.Zeroes()))

	residual, err := G.Sub(trainNet.Prediction(), targets)
	if err != nil {
		return nil, fmt.Errorf("newqnet: could not compute residual: %v", err)
	}
	if residual, err = G.HadamardProd(residual, mask); err != nil {
		return nil, fmt.Errorf("newqnet: could not mask residual: %v", err)
	}
	huber, err := op.Huber(residual, HuberDelta)
	if err != nil {
		return nil, fmt.Errorf("newqnet: could not compute loss: %v", err)
	}
	cost, err := G.Mean(huber)
	if err != nil {
		return nil, fmt.Errorf("newqnet: could not compute mean loss: %v", err)
	}

	q := &QNet{
		arch:     arch,
		solver:   s,
		batch:    batch,
		trainNet: trainNet,
		targets:  targets,
		mask:     mask,
		cost:     cost,
	}
	G.Read(cost, &q.lossVal)

	if _, err := G.Grad(cost, trainNet.Learnables()...); err != nil {
		return nil, fmt.Errorf("newqnet: could not compute gradient: %v", err)
	}
	q.trainVM = G.NewTapeMachine(trainGraph,
		G.BindDualValues(trainNet.Learnables()...))

	// Evaluation graph
	evalGraph := G.NewGraph()
	evalNet, err := arch.Build(evalGraph, batch, false)
	if err != nil {
		return nil, fmt.Errorf("newqnet: could not build evaluation net: %v",
			err)
	}
	if err := evalNet.Set(trainNet); err != nil {
		return nil, fmt.Errorf("newqnet: could not sync networks: %v", err)
	}
	q.evalNet = evalNet
	q.evalVM = G.NewTapeMachine(evalGraph)

	return q, nil
}

// BatchSize returns the number of observations in each batch
func (q *QNet) BatchSize() int {
	return q.batch
}

// Features returns the number of values in a single observation
func (q *QNet) Features() int {
	return q.arch.Features()
}

// Outputs returns the number of action values per observation
func (q *QNet) Outputs() int {
	return q.arch.Outputs()
}

// Evaluate returns the action values of a batch of observations
func (q *QNet) Evaluate(obs []float64) ([]float64, error) {
	if err := q.evalNet.SetInput(obs); err != nil {
		return nil, fmt.Errorf("evaluate: %v", err)
	}
	defer q.evalVM.Reset()

	if err := q.evalVM.RunAll(); err != nil {
		return nil, fmt.Errorf("evaluate: could not run graph: %v", err)
	}

	out, ok := q.evalNet.Output().Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("evaluate: output is not float64")
	}
	return append([]float64(nil), out...), nil
}

// Step performs a single gradient step of the training network,
// moving the value of actions[i] in observation i towards targets[i],
// and copies the new weights into the evaluation network. The loss
// before the update is returned.
func (q *QNet) Step(obs []float64, actions []int,
	targets []float64) (float64, error) {
	if len(actions) != q.batch || len(targets) != q.batch {
		return 0, fmt.Errorf("step: invalid number of actions or targets"+
			"\n\twant(%v)\n\thave(%v, %v)", q.batch, len(actions),
			len(targets))
	}
	if err := q.trainNet.SetInput(obs); err != nil {
		return 0, fmt.Errorf("step: %v", err)
	}

	target, mask, err := actionTargets(actions, targets, q.Outputs())
	if err != nil {
		return 0, fmt.Errorf("step: %v", err)
	}
	shape := tensor.WithShape(q.batch, q.Outputs())
	if err := G.Let(q.targets, tensor.New(tensor.WithBacking(target),
		shape)); err != nil {
		return 0, fmt.Errorf("step: could not set targets: %v", err)
	}
	if err := G.Let(q.mask, tensor.New(tensor.WithBacking(mask),
		shape)); err != nil {
		return 0, fmt.Errorf("step: could not set action mask: %v", err)
	}

	if err := q.trainVM.RunAll(); err != nil {
		q.trainVM.Reset()
		return 0, fmt.Errorf("step: could not run graph: %v", err)
	}
	loss, ok := q.lossVal.Data().(float64)
	if !ok {
		q.trainVM.Reset()
		return 0, fmt.Errorf("step: loss is not float64")
	}

	if err := q.solver.Step(q.trainNet.Model()); err != nil {
		q.trainVM.Reset()
		return 0, fmt.Errorf("step: could not step solver: %v", err)
	}
	q.trainVM.Reset()

	if err := q.evalNet.Set(q.trainNet); err != nil {
		return 0, fmt.Errorf("step: could not sync networks: %v", err)
	}
	return loss, nil
}

// Params returns a copy of the weights of the QNet, one slice per
// learnable node
func (q *QNet) Params() [][]float64 {
	learnables := q.trainNet.Learnables()
	params := make([][]float64, len(learnables))
	for i, node := range learnables {
		params[i] = append([]float64(nil), node.Value().Data().([]float64)...)
	}
	return params
}

// SetParams sets the weights of the QNet
func (q *QNet) SetParams(params [][]float64) error {
	learnables := q.trainNet.Learnables()
	if len(params) != len(learnables) {
		return fmt.Errorf("setparams: invalid number of parameters"+
			"\n\twant(%v)\n\thave(%v)", len(learnables), len(params))
	}
	for i, node := range learnables {
		data := node.Value().Data().([]float64)
		if len(data) != len(params[i]) {
			return fmt.Errorf("setparams: invalid size of parameter %v"+
				"\n\twant(%v)\n\thave(%v)", i, len(data), len(params[i]))
		}
	}

	for i, node := range learnables {
		copy(node.Value().Data().([]float64), params[i])
	}
	return q.evalNet.Set(q.trainNet)
}

// CloneWithBatch returns a copy of the QNet with the same weights and
// a fresh solver which evaluates batches of size batch
func (q *QNet) CloneWithBatch(batch int) (agent.QFunction, error) {
	clone, err := NewQNet(q.arch, batch, q.solver.Clone())
	if err != nil {
		return nil, fmt.Errorf("clonewithbatch: %v", err)
	}
	if err := clone.SetParams(q.Params()); err != nil {
		return nil, fmt.Errorf("clonewithbatch: %v", err)
	}
	return clone, nil
}

// actionTargets expands one target per observation into a row-major
// (len(actions), outputs) target matrix holding each target at its
// action, and the one-hot mask selecting those entries
func actionTargets(actions []int, targets []float64,
	outputs int) (target, mask []float64, err error) {
	target = make([]float64, len(actions)*outputs)
	mask = make([]float64, len(actions)*outputs)
	for i, a := range actions {
		if a < 0 || a >= outputs {
			return nil, nil, fmt.Errorf("invalid action %v in row %v\n\t"+
				"want([0, %v))", a, i, outputs)
		}
		target[i*outputs+a] = targets[i]
		mask[i*outputs+a] = 1
	}
	return target, mask, nil
}
