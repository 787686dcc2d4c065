package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// DeepSenseConfig describes a DeepSense network. A window of
// WindowSize observations of NumFeatures features each is split into
// Stride consecutive chunks of WindowSize / Stride observations. A
// stack of convolutions, shared between chunks, extracts features
// from each chunk. The flattened convolution outputs are fed as a
// sequence of Stride inputs to a stacked GRU, and the final hidden
// state of the GRU is passed through a fully connected network to
// produce NumOutputs outputs.
type DeepSenseConfig struct {
	WindowSize  int
	NumFeatures int
	Stride      int

	// FilterSizes[i] is the number of output channels of convolution
	// i, which has a 1 x KernelSizes[i] kernel
	FilterSizes []int
	KernelSizes []int

	GRUCellSize int
	GRUNumCell  int

	// HiddenSizes are the sizes of the hidden layers between the GRU
	// and the output layer
	HiddenSizes []int
	NumOutputs  int

	// Output is the activation of the output layer, the identity if
	// nil
	Output *Activation

	DropoutConv   float64
	DropoutGRU    float64
	DropoutLinear float64

	Init G.InitWFn
}

// Validate checks whether the DeepSenseConfig describes a valid
// network
func (c DeepSenseConfig) Validate() error {
	if c.WindowSize < 1 || c.NumFeatures < 1 || c.NumOutputs < 1 {
		return fmt.Errorf("newdeepsense: window size, features, and outputs "+
			"must be positive\n\thave(%v, %v, %v)", c.WindowSize,
			c.NumFeatures, c.NumOutputs)
	}
	if c.Stride < 1 || c.WindowSize%c.Stride != 0 {
		return fmt.Errorf("newdeepsense: stride must evenly divide window "+
			"size\n\twindow(%v)\n\tstride(%v)", c.WindowSize, c.Stride)
	}
	if len(c.FilterSizes) != len(c.KernelSizes) {
		return fmt.Errorf("newdeepsense: invalid number of kernel sizes"+
			"\n\twant(%v)\n\thave(%v)", len(c.FilterSizes), len(c.KernelSizes))
	}
	if len(c.FilterSizes) == 0 {
		return fmt.Errorf("newdeepsense: at least one convolution required")
	}
	for i := range c.FilterSizes {
		if c.FilterSizes[i] < 1 || c.KernelSizes[i] < 1 {
			return fmt.Errorf("newdeepsense: convolution %v must have "+
				"positive filter and kernel sizes\n\thave(%v, %v)", i,
				c.FilterSizes[i], c.KernelSizes[i])
		}
	}
	if c.convOutLen() < 1 {
		return fmt.Errorf("newdeepsense: kernels too large for chunks of "+
			"length %v", c.WindowSize/c.Stride)
	}
	if c.GRUCellSize < 1 || c.GRUNumCell < 1 {
		return fmt.Errorf("newdeepsense: GRU cell size and number of cells "+
			"must be positive\n\thave(%v, %v)", c.GRUCellSize, c.GRUNumCell)
	}
	for i, size := range c.HiddenSizes {
		if size < 1 {
			return fmt.Errorf("newdeepsense: hidden layer %v must have "+
				"positive size\n\thave(%v)", i, size)
		}
	}
	for _, p := range []float64{c.DropoutConv, c.DropoutGRU, c.DropoutLinear} {
		if p < 0 || p >= 1 {
			return fmt.Errorf("newdeepsense: dropout must be in [0, 1)"+
				"\n\thave(%v)", p)
		}
	}
	if c.Init == nil {
		return fmt.Errorf("newdeepsense: nil weight initializer")
	}
	return nil
}

// chunkLen returns the number of observations in each chunk of the
// window
func (c DeepSenseConfig) chunkLen() int {
	return c.WindowSize / c.Stride
}

// convOutLen returns the length of each chunk after all convolutions
func (c DeepSenseConfig) convOutLen() int {
	l := c.chunkLen()
	for _, k := range c.KernelSizes {
		pad := (k - 1) / 2
		l = l + 2*pad - k + 1
	}
	return l
}

// Features returns the number of values in a single flattened
// observation window
func (c DeepSenseConfig) Features() int {
	return c.WindowSize * c.NumFeatures
}

// Outputs returns the number of outputs of the network
func (c DeepSenseConfig) Outputs() int {
	return c.NumOutputs
}

// Build implements the Architecture interface
func (c DeepSenseConfig) Build(g *G.ExprGraph, batch int,
	training bool) (NeuralNet, error) {
	return NewDeepSense(c, g, batch, training)
}

// deepSense implements the DeepSense network
type deepSense struct {
	g         *G.ExprGraph
	config    DeepSenseConfig
	batchSize int
	training  bool

	// One input node per chunk, each of shape
	// (batch, features, 1, chunk length)
	inputs []*G.Node

	conv []*convLayer
	gru  []*gruLayer
	fc   []*fcLayer

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value
}

// NewDeepSense creates and returns a new DeepSense network on the
// graph g which takes batches of batch observation windows.
func NewDeepSense(c DeepSenseConfig, g *G.ExprGraph, batch int,
	training bool) (NeuralNet, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if batch < 1 {
		return nil, fmt.Errorf("newdeepsense: batch size must be positive"+
			"\n\thave(%v)", batch)
	}

	inputs := make([]*G.Node, c.Stride)
	for i := range inputs {
		inputs[i] = G.NewTensor(g, tensor.Float64, 4,
			G.WithShape(batch, c.NumFeatures, 1, c.chunkLen()),
			G.WithName(fmt.Sprintf("input_%d", i)), G.WithInit(G.Zeroes()))
	}

	conv := make([]*convLayer, len(c.FilterSizes))
	inChan := c.NumFeatures
	for i := range conv {
		conv[i] = newConvLayer(g, inChan, c.FilterSizes[i], c.KernelSizes[i],
			c.Init, fmt.Sprintf("conv_%d", i))
		inChan = c.FilterSizes[i]
	}

	gru := make([]*gruLayer, c.GRUNumCell)
	in := c.FilterSizes[len(c.FilterSizes)-1] * c.convOutLen()
	for i := range gru {
		gru[i] = newGRULayer(g, batch, in, c.GRUCellSize, c.Init,
			fmt.Sprintf("gru_%d", i))
		in = c.GRUCellSize
	}

	fc := make([]*fcLayer, 0, len(c.HiddenSizes)+1)
	for i, size := range c.HiddenSizes {
		fc = append(fc, newFCLayer(g, in, size, true, LeakyReLU(), c.Init,
			fmt.Sprintf("fc_%d", i)))
		in = size
	}
	out := c.Output
	if out == nil {
		out = Identity()
	}
	fc = append(fc, newFCLayer(g, in, c.NumOutputs, true, out,
		c.Init, fmt.Sprintf("fc_%d", len(c.HiddenSizes))))

	net := &deepSense{
		g:         g,
		config:    c,
		batchSize: batch,
		training:  training,
		inputs:    inputs,
		conv:      conv,
		gru:       gru,
		fc:        fc,
	}
	if _, err := net.fwd(); err != nil {
		msg := "newdeepsense: could not compute forward pass: %v"
		return nil, fmt.Errorf(msg, err)
	}

	return net, nil
}

// fwd adds the forward pass of the network to the graph
func (d *deepSense) fwd() (*G.Node, error) {
	var err error
	flatLen := d.config.FilterSizes[len(d.config.FilterSizes)-1] *
		d.config.convOutLen()

	// Convolutions are shared between chunks
	seq := make([]*G.Node, len(d.inputs))
	for s, x := range d.inputs {
		for i, l := range d.conv {
			if x, err = l.fwd(x); err != nil {
				return nil, fmt.Errorf("fwd: convolution %v: %v", i, err)
			}
			if x, err = G.LeakyRelu(x, LeakyReLUSlope); err != nil {
				return nil, err
			}
			if d.training {
				if x, err = dropout(x, d.config.DropoutConv); err != nil {
					return nil, err
				}
			}
		}
		if seq[s], err = G.Reshape(x, tensor.Shape{d.batchSize, flatLen}); err != nil {
			return nil, fmt.Errorf("fwd: could not flatten chunk %v: %v", s, err)
		}
	}

	// Dropout is applied between GRU layers but not after the last
	for i, l := range d.gru {
		if seq, err = l.fwd(seq); err != nil {
			return nil, fmt.Errorf("fwd: gru layer %v: %v", i, err)
		}
		if d.training && i < len(d.gru)-1 {
			for s := range seq {
				if seq[s], err = dropout(seq[s], d.config.DropoutGRU); err != nil {
					return nil, err
				}
			}
		}
	}

	pred := seq[len(seq)-1]
	for i, l := range d.fc {
		if pred, err = l.fwd(pred); err != nil {
			return nil, fmt.Errorf("fwd: fully connected layer %v: %v", i, err)
		}
		if d.training && i < len(d.fc)-1 {
			if pred, err = dropout(pred, d.config.DropoutLinear); err != nil {
				return nil, err
			}
		}
	}

	d.prediction = pred
	G.Read(d.prediction, &d.predVal)
	return pred, nil
}

// Graph returns the computational graph of the network
func (d *deepSense) Graph() *G.ExprGraph {
	return d.g
}

// BatchSize returns the batch size of inputs to the network
func (d *deepSense) BatchSize() int {
	return d.batchSize
}

// Features returns the number of values in a single flattened
// observation window
func (d *deepSense) Features() int {
	return d.config.Features()
}

// Outputs returns the number of outputs from the network
func (d *deepSense) Outputs() int {
	return d.config.NumOutputs
}

// SetInput sets the input nodes of the network. The input should hold
// BatchSize() windows, each stored row-major as WindowSize rows of
// NumFeatures features. Window row w belongs to chunk w / chunk length.
func (d *deepSense) SetInput(input []float64) error {
	w, f := d.config.WindowSize, d.config.NumFeatures
	if len(input) != d.batchSize*w*f {
		return fmt.Errorf("setinput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", d.batchSize*w*f, len(input))
	}

	l := d.config.chunkLen()
	for s, node := range d.inputs {
		backing := make([]float64, d.batchSize*f*l)
		for b := 0; b < d.batchSize; b++ {
			for j := 0; j < l; j++ {
				row := b*w*f + (s*l+j)*f
				for k := 0; k < f; k++ {
					backing[(b*f+k)*l+j] = input[row+k]
				}
			}
		}
		value := tensor.New(
			tensor.WithBacking(backing),
			tensor.WithShape(node.Shape()...),
		)
		if err := G.Let(node, value); err != nil {
			return fmt.Errorf("setinput: chunk %v: %v", s, err)
		}
	}
	return nil
}

// Set sets the weights of the network to those of another network
func (d *deepSense) Set(source NeuralNet) error {
	return copyLearnables(d.Learnables(), source.Learnables())
}

// Learnables returns the learnable nodes of the network, ordered
// convolutions first, then GRU layers, then fully connected layers
func (d *deepSense) Learnables() G.Nodes {
	if d.learnables == nil {
		var learnables G.Nodes
		for _, l := range d.conv {
			learnables = append(learnables, l.learnables()...)
		}
		for _, l := range d.gru {
			learnables = append(learnables, l.learnables()...)
		}
		for _, l := range d.fc {
			learnables = append(learnables, l.learnables()...)
		}
		d.learnables = learnables
	}
	return d.learnables
}

// Model returns the learnables nodes with their gradients
func (d *deepSense) Model() []G.ValueGrad {
	if d.model == nil {
		d.model = model(d.Learnables())
	}
	return d.model
}

// Output returns the output of the network after the graph is run
func (d *deepSense) Output() G.Value {
	return d.predVal
}

// Prediction returns the output node of the network
func (d *deepSense) Prediction() *G.Node {
	return d.prediction
}
