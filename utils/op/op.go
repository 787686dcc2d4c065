// Package op provides extended Gorgonia graph operations.
//
// Adapted from aunum/G.ld on GitHub
package op

import (
	G "gorgonia.org/gorgonia"
)

// scalar returns a named scalar node on the graph of n with the dtype
// of n
func scalar(n *G.Node, value float64, name string) *G.Node {
	switch n.Dtype() {
	case G.Float32:
		return G.NewScalar(n.Graph(), G.Float32, G.WithValue(float32(value)),
			G.WithName(name))
	default:
		return G.NewScalar(n.Graph(), G.Float64, G.WithValue(value),
			G.WithName(name))
	}
}

// Huber computes the elementwise Huber loss of the residuals in
// value:
//
//	0.5 * x²			if |x| <= delta
//	delta * (|x| - 0.5 * delta)	otherwise
//
// The comparison against delta is a mask and is not differentiated.
func Huber(value *G.Node, delta float64) (retVal *G.Node, err error) {
	deltaNode := scalar(value, delta, "huber_delta")
	half := scalar(value, 0.5, "huber_half")
	one := scalar(value, 1.0, "huber_one")

	abs, err := G.Abs(value)
	if err != nil {
		return nil, err
	}

	// Mask of residuals in the quadratic region
	quadMask, err := G.Lte(abs, deltaNode, true)
	if err != nil {
		return nil, err
	}
	linMask, err := G.Sub(one, quadMask)
	if err != nil {
		return nil, err
	}

	// 0.5 * x²
	quad, err := G.Square(value)
	if err != nil {
		return nil, err
	}
	quad, err = G.HadamardProd(half, quad)
	if err != nil {
		return nil, err
	}
	quad, err = G.HadamardProd(quad, quadMask)
	if err != nil {
		return nil, err
	}

	// delta * (|x| - 0.5 * delta)
	lin, err := G.Sub(abs, scalar(value, 0.5*delta, "huber_offset"))
	if err != nil {
		return nil, err
	}
	lin, err = G.HadamardProd(deltaNode, lin)
	if err != nil {
		return nil, err
	}
	lin, err = G.HadamardProd(lin, linMask)
	if err != nil {
		return nil, err
	}

	return G.Add(quad, lin)
}
