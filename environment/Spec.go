package environment

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SpecType determines what kind of specification a Spec is. A Spec can
// specify the layout of an acion or an observation
type SpecType int

const (
	Action SpecType = iota
	Observation
)

// Cardinality determines the cardinality of a number (discrete or continuous)
type Cardinality string

const (
	Continuous Cardinality = "Continuous"
	Discrete   Cardinality = "Discrete"
)

// Spec implements an environment specification, which tells the type,
// shape, and bounds of an action or observation in an environment
type Spec struct {
	Shape      mat.Vector
	Type       SpecType
	LowerBound mat.Vector
	UpperBound mat.Vector
	Cardinality
}

// NewSpec constructs a new environment specification
// The shape argument outlines the shape of the data described by the
// specification. The argument t outlines what the specification is
// describing (e.g. actions, observations, etc.). The cardinality
// arguments describes whether the values that the spec describes are
// continuous or discrete.
func NewSpec(shape mat.Vector, t SpecType, lowerBound,
	upperBound mat.Vector, cardinality Cardinality) Spec {
	if lowerBound.Len() != upperBound.Len() {
		panic(fmt.Sprintf("lower bounds length %v must match upper bounds "+
			"length %v", lowerBound.Len(), upperBound.Len()))
	}
	return Spec{shape, t, lowerBound, upperBound, cardinality}
}

// Size returns the number of values described by the Spec, which is
// the product of the dimensions of its shape
func (s Spec) Size() int {
	size := 1
	for i := 0; i < s.Shape.Len(); i++ {
		size *= int(s.Shape.AtVec(i))
	}
	return size
}

// NumActions returns the number of discrete actions described by an
// action Spec. Actions are enumerated from the lower bound to the
// upper bound inclusive.
func (s Spec) NumActions() int {
	if s.Cardinality != Discrete {
		return 0
	}
	return int(s.UpperBound.AtVec(0)-s.LowerBound.AtVec(0)) + 1
}
