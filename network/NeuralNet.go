// Package network implements neural networks on Gorgonia computational
// graphs which map observations to action values.
package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// NeuralNet is a neural network whose forward pass has been added to
// a computational graph
type NeuralNet interface {
	Graph() *G.ExprGraph
	BatchSize() int
	Features() int
	Outputs() int

	// SetInput sets the value of the input node(s) of the network to a
	// batch of BatchSize() observations of Features() values each,
	// flattened row-major
	SetInput([]float64) error

	// Set sets the weights of the network to those of another network
	// with the same structure
	Set(NeuralNet) error

	Learnables() G.Nodes
	Model() []G.ValueGrad

	// Output returns the value of the prediction node after the graph
	// has been run
	Output() G.Value
	Prediction() *G.Node
}

// Architecture describes a network structure and can construct
// networks of that structure on computational graphs.
type Architecture interface {
	// Build adds a new network with freshly initialized weights to g.
	// If training is true, dropout is added to the forward pass.
	Build(g *G.ExprGraph, batch int, training bool) (NeuralNet, error)

	Features() int
	Outputs() int
}

// copyLearnables copies the values of the source learnables into the
// destination learnables in place
func copyLearnables(dest, source G.Nodes) error {
	if len(dest) != len(source) {
		return fmt.Errorf("set: invalid number of learnables\n\twant(%v)"+
			"\n\thave(%v)", len(dest), len(source))
	}

	for i := range dest {
		destData, ok := dest[i].Value().Data().([]float64)
		if !ok {
			return fmt.Errorf("set: learnable %v is not float64", dest[i])
		}
		sourceData, ok := source[i].Value().Data().([]float64)
		if !ok {
			return fmt.Errorf("set: learnable %v is not float64", source[i])
		}
		if len(destData) != len(sourceData) {
			return fmt.Errorf("set: invalid size of learnable %v\n\twant(%v)"+
				"\n\thave(%v)", dest[i], len(destData), len(sourceData))
		}
		copy(destData, sourceData)
	}
	return nil
}

// model returns the learnables with their gradients
func model(learnables G.Nodes) []G.ValueGrad {
	model := make([]G.ValueGrad, 0, len(learnables))
	for _, node := range learnables {
		model = append(model, node)
	}
	return model
}
