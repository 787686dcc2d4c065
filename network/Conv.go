package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// convLayer implements a 2D convolution with a 1 x kernel kernel over
// inputs of shape (batch, channels, 1, length). Inputs are zero padded
// along the length dimension so that the output length is as close
// to the input length as the kernel size allows.
type convLayer struct {
	filter  *G.Node
	kernel  int
	pad     int
	inChan  int
	outChan int
}

// newConvLayer adds the filter of a new convolutional layer to g
func newConvLayer(g *G.ExprGraph, inChan, outChan, kernel int,
	init G.InitWFn, name string) *convLayer {
	filter := G.NewTensor(
		g,
		tensor.Float64,
		4,
		G.WithShape(outChan, inChan, 1, kernel),
		G.WithName(fmt.Sprintf("%v_filter", name)),
		G.WithInit(init),
	)

	return &convLayer{
		filter:  filter,
		kernel:  kernel,
		pad:     (kernel - 1) / 2,
		inChan:  inChan,
		outChan: outChan,
	}
}

// outLen returns the length of the output of the layer given an input
// of length inLen
func (c *convLayer) outLen(inLen int) int {
	return inLen + 2*c.pad - c.kernel + 1
}

// fwd adds the forward pass of the convolution to the graph
func (c *convLayer) fwd(x *G.Node) (*G.Node, error) {
	return G.Conv2d(
		x,
		c.filter,
		tensor.Shape{1, c.kernel},
		[]int{0, c.pad},
		[]int{1, 1},
		[]int{1, 1},
	)
}

func (c *convLayer) learnables() G.Nodes {
	return G.Nodes{c.filter}
}
