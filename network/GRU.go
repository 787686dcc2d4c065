package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// gate holds the input weights, recurrent weights, and bias of a
// single GRU gate
type gate struct {
	w *G.Node
	u *G.Node
	b *G.Node
}

func newGate(g *G.ExprGraph, in, hidden int, init G.InitWFn,
	name string) gate {
	return gate{
		w: G.NewMatrix(g, tensor.Float64, G.WithShape(in, hidden),
			G.WithName(name+"_W"), G.WithInit(init)),
		u: G.NewMatrix(g, tensor.Float64, G.WithShape(hidden, hidden),
			G.WithName(name+"_U"), G.WithInit(init)),
		b: G.NewMatrix(g, tensor.Float64, G.WithShape(1, hidden),
			G.WithName(name+"_b"), G.WithInit(G.Zeroes())),
	}
}

// fwd computes x·W + h·U + b
func (gt gate) fwd(x, h *G.Node) (*G.Node, error) {
	xw, err := G.Mul(x, gt.w)
	if err != nil {
		return nil, err
	}
	hu, err := G.Mul(h, gt.u)
	if err != nil {
		return nil, err
	}
	sum, err := G.Add(xw, hu)
	if err != nil {
		return nil, err
	}
	return G.BroadcastAdd(sum, gt.b, nil, []byte{0})
}

func (gt gate) learnables() G.Nodes {
	return G.Nodes{gt.w, gt.u, gt.b}
}

// gruLayer implements a single layer of a gated recurrent unit:
//
//	z  = σ(x·Wz + h·Uz + bz)
//	r  = σ(x·Wr + h·Ur + br)
//	n  = tanh(x·Wn + (r ⊙ h)·Un + bn)
//	h' = (1 - z) ⊙ n + z ⊙ h
type gruLayer struct {
	update gate
	reset  gate
	cand   gate

	h0     *G.Node
	hidden int
}

// newGRULayer adds the weights of a new GRU layer to g. The initial
// hidden state of the layer is fixed at zero.
func newGRULayer(g *G.ExprGraph, batch, in, hidden int, init G.InitWFn,
	name string) *gruLayer {
	return &gruLayer{
		update: newGate(g, in, hidden, init, name+"_z"),
		reset:  newGate(g, in, hidden, init, name+"_r"),
		cand:   newGate(g, in, hidden, init, name+"_n"),
		h0: G.NewMatrix(g, tensor.Float64, G.WithShape(batch, hidden),
			G.WithName(name+"_h0"), G.WithInit(G.Zeroes())),
		hidden: hidden,
	}
}

// step computes the next hidden state given input x and the current
// hidden state h
func (l *gruLayer) step(x, h *G.Node) (*G.Node, error) {
	z, err := l.update.fwd(x, h)
	if err != nil {
		return nil, fmt.Errorf("step: update gate: %v", err)
	}
	if z, err = G.Sigmoid(z); err != nil {
		return nil, err
	}

	r, err := l.reset.fwd(x, h)
	if err != nil {
		return nil, fmt.Errorf("step: reset gate: %v", err)
	}
	if r, err = G.Sigmoid(r); err != nil {
		return nil, err
	}

	rh, err := G.HadamardProd(r, h)
	if err != nil {
		return nil, err
	}
	n, err := l.cand.fwd(x, rh)
	if err != nil {
		return nil, fmt.Errorf("step: candidate: %v", err)
	}
	if n, err = G.Tanh(n); err != nil {
		return nil, err
	}

	// h' = n + z ⊙ (h - n)
	diff, err := G.Sub(h, n)
	if err != nil {
		return nil, err
	}
	zDiff, err := G.HadamardProd(z, diff)
	if err != nil {
		return nil, err
	}
	return G.Add(n, zDiff)
}

// fwd runs the layer over a sequence of inputs, returning the hidden
// state at each step
func (l *gruLayer) fwd(xs []*G.Node) ([]*G.Node, error) {
	hs := make([]*G.Node, len(xs))
	h := l.h0
	var err error
	for i, x := range xs {
		if h, err = l.step(x, h); err != nil {
			return nil, fmt.Errorf("fwd: sequence step %v: %v", i, err)
		}
		hs[i] = h
	}
	return hs, nil
}

// learnables returns the learnable nodes of the layer. The initial
// hidden state is not learned.
func (l *gruLayer) learnables() G.Nodes {
	learnables := make(G.Nodes, 0, 9)
	learnables = append(learnables, l.update.learnables()...)
	learnables = append(learnables, l.reset.learnables()...)
	return append(learnables, l.cand.learnables()...)
}
