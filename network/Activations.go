package network

import (
	"fmt"
	"strings"

	G "gorgonia.org/gorgonia"
)

type activationType string

const (
	relu      activationType = "relu"
	leakyRelu activationType = "leakyrelu"
	identity  activationType = "identity"
	tanh      activationType = "tanh"
	sigmoid   activationType = "sigmoid"
	softmax   activationType = "softmax"
)

// LeakyReLUSlope is the slope of the leaky ReLU for negative inputs
const LeakyReLUSlope = 0.01

// Activation represents an activation function type
type Activation struct {
	activationType
	f func(x *G.Node) (*G.Node, error)
}

// Fwd performs the forward pass of an Activation
func (a *Activation) fwd(x *G.Node) (*G.Node, error) {
	return a.f(x)
}

// String implements the Stringer interface
func (a *Activation) String() string {
	return string(a.activationType)
}

// IsIdentity returns whether or not the Activation is the identity
// function.
func (a *Activation) IsIdentity() bool {
	return a.activationType == identity
}

// ParseActivation returns the Activation with the given name. The
// empty name is the identity.
func ParseActivation(name string) (*Activation, error) {
	switch activationType(strings.ToLower(name)) {
	case "":
		return Identity(), nil
	case relu:
		return ReLU(), nil
	case leakyRelu, "leaky_relu":
		return LeakyReLU(), nil
	case identity, "linear":
		return Identity(), nil
	case tanh:
		return TanH(), nil
	case sigmoid:
		return Sigmoid(), nil
	case softmax:
		return SoftMax(), nil
	}
	return nil, fmt.Errorf("parseactivation: illegal Activation type %q", name)
}

// Identity returns an identity *Activation
func Identity() *Activation {
	return &Activation{
		activationType: identity,
		f: func(x *G.Node) (*G.Node, error) {
			return x, nil
		},
	}
}

// ReLU returns a ReLU *Activation
func ReLU() *Activation {
	return &Activation{
		activationType: relu,
		f:              G.Rectify,
	}
}

// LeakyReLU returns a leaky ReLU *Activation with slope LeakyReLUSlope
func LeakyReLU() *Activation {
	return &Activation{
		activationType: leakyRelu,
		f: func(x *G.Node) (*G.Node, error) {
			return G.LeakyRelu(x, LeakyReLUSlope)
		},
	}
}

// TanH returns a tanh *Activation
func TanH() *Activation {
	return &Activation{
		activationType: tanh,
		f:              G.Tanh,
	}
}

// Sigmoid returns a sigmoid *Activation
func Sigmoid() *Activation {
	return &Activation{
		activationType: sigmoid,
		f:              G.Sigmoid,
	}
}

// SoftMax returns an *Activation which applies the softmax function
// along the last axis, normalizing the outputs of each observation
func SoftMax() *Activation {
	return &Activation{
		activationType: softmax,
		f: func(x *G.Node) (*G.Node, error) {
			return G.SoftMax(x)
		},
	}
}
