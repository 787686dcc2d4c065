package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// MLPConfig describes a multi-layered perceptron which maps a
// flattened observation to one output per action.
//
// The MLP has number of layers equal to len(HiddenSizes) + 1. A final
// linear layer with a bias unit is always added so that the network
// has Outputs outputs. For index i, HiddenSizes[i] is the number of
// nodes in hidden layer i, Biases[i] is true if hidden layer i has a
// bias unit, and Activations[i] is the activation of hidden layer i.
type MLPConfig struct {
	NumInputs   int
	NumOutputs  int
	HiddenSizes []int
	Biases      []bool
	Activations []*Activation

	// Dropout is the probability of dropping the activations of each
	// hidden layer when training
	Dropout float64

	Init G.InitWFn
}

// Validate checks whether the MLPConfig describes a valid network
func (c MLPConfig) Validate() error {
	if c.NumInputs < 1 || c.NumOutputs < 1 {
		return fmt.Errorf("newmlp: inputs and outputs must be positive"+
			"\n\thave(%v, %v)", c.NumInputs, c.NumOutputs)
	}

	// Ensure we have one activation per layer
	if len(c.HiddenSizes) != len(c.Activations) {
		msg := "newmlp: invalid number of activations\n\twant(%d)\n\thave(%d)"
		return fmt.Errorf(msg, len(c.HiddenSizes), len(c.Activations))
	}

	// Ensure one bias bool per layer
	if len(c.HiddenSizes) != len(c.Biases) {
		msg := "newmlp: invalid number of biases\n\twant(%d)\n\thave(%d)"
		return fmt.Errorf(msg, len(c.HiddenSizes), len(c.Biases))
	}

	for i, size := range c.HiddenSizes {
		if size < 1 {
			return fmt.Errorf("newmlp: hidden layer %v must have positive "+
				"size\n\thave(%v)", i, size)
		}
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("newmlp: dropout must be in [0, 1)\n\thave(%v)",
			c.Dropout)
	}
	if c.Init == nil {
		return fmt.Errorf("newmlp: nil weight initializer")
	}
	return nil
}

// Features returns the number of inputs of the network
func (c MLPConfig) Features() int {
	return c.NumInputs
}

// Outputs returns the number of outputs of the network
func (c MLPConfig) Outputs() int {
	return c.NumOutputs
}

// Build implements the Architecture interface
func (c MLPConfig) Build(g *G.ExprGraph, batch int,
	training bool) (NeuralNet, error) {
	return NewMLP(c, g, batch, training)
}

// mlp implements a multi-layered perceptron
type mlp struct {
	g         *G.ExprGraph
	layers    []*fcLayer
	input     *G.Node
	config    MLPConfig
	batchSize int
	training  bool

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value
}

// NewMLP creates and returns a new multi-layered perceptron on the
// graph g which takes batches of batch inputs.
func NewMLP(c MLPConfig, g *G.ExprGraph, batch int,
	training bool) (NeuralNet, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if batch < 1 {
		return nil, fmt.Errorf("newmlp: batch size must be positive"+
			"\n\thave(%v)", batch)
	}

	// Set up the input node
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, c.NumInputs),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	// Add a final linear layer so that the network predicts one value
	// per output
	layers := make([]*fcLayer, 0, len(c.HiddenSizes)+1)
	in := c.NumInputs
	for i, size := range c.HiddenSizes {
		layers = append(layers, newFCLayer(g, in, size, c.Biases[i],
			c.Activations[i], c.Init, fmt.Sprintf("fc_%d", i)))
		in = size
	}
	layers = append(layers, newFCLayer(g, in, c.NumOutputs, true, Identity(),
		c.Init, fmt.Sprintf("fc_%d", len(c.HiddenSizes))))

	// Create the network and run the forward pass on the input node
	network := mlp{
		g:         g,
		layers:    layers,
		input:     input,
		config:    c,
		batchSize: batch,
		training:  training,
	}
	if _, err := network.fwd(input); err != nil {
		msg := "newmlp: could not compute forward pass: %v"
		return nil, fmt.Errorf(msg, err)
	}

	return &network, nil
}

// Graph returns the computational graph of the mlp.
func (e *mlp) Graph() *G.ExprGraph {
	return e.g
}

// BatchSize returns the batch size of inputs to the network
func (e *mlp) BatchSize() int {
	return e.batchSize
}

// Features returns the number of features in a single observation
// vector that the network takes as input.
func (e *mlp) Features() int {
	return e.config.NumInputs
}

// Outputs returns the number of outputs from the network
func (e *mlp) Outputs() int {
	return e.config.NumOutputs
}

// SetInput sets the value of the input node before running the forward
// pass.
func (e *mlp) SetInput(input []float64) error {
	if len(input) != e.config.NumInputs*e.batchSize {
		return fmt.Errorf("setinput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", e.config.NumInputs*e.batchSize, len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(append([]float64(nil), input...)),
		tensor.WithShape(e.input.Shape()...),
	)
	return G.Let(e.input, inputTensor)
}

// Set sets the weights of a mlp to be equal to the weights of another
// network
func (e *mlp) Set(source NeuralNet) error {
	return copyLearnables(e.Learnables(), source.Learnables())
}

// Learnables returns the learnable nodes in a mlp
func (e *mlp) Learnables() G.Nodes {
	// Lazy instantiation
	if e.learnables == nil {
		learnables := make(G.Nodes, 0, 2*len(e.layers))
		for i := range e.layers {
			learnables = append(learnables, e.layers[i].learnables()...)
		}
		e.learnables = learnables
	}
	return e.learnables
}

// Model returns the learnables nodes with their gradients.
func (e *mlp) Model() []G.ValueGrad {
	// Lazy instantiation
	if e.model == nil {
		e.model = model(e.Learnables())
	}
	return e.model
}

// fwd performs the forward pass of the mlp on the input node
func (e *mlp) fwd(input *G.Node) (*G.Node, error) {
	pred := input
	var err error
	for i, l := range e.layers {
		if pred, err = l.fwd(pred); err != nil {
			msg := "fwd: could not compute forward pass of layer %v: %v"
			return nil, fmt.Errorf(msg, i, err)
		}

		// No dropout on the output layer
		if e.training && i < len(e.layers)-1 {
			if pred, err = dropout(pred, e.config.Dropout); err != nil {
				return nil, fmt.Errorf("fwd: could not add dropout: %v", err)
			}
		}
	}

	e.prediction = pred
	G.Read(e.prediction, &e.predVal)

	return pred, nil
}

// Output returns the output of the mlp.
func (e *mlp) Output() G.Value {
	return e.predVal
}

// Prediction returns the node of the computational graph the stores
// the output of the mlp
func (e *mlp) Prediction() *G.Node {
	return e.prediction
}
