// Package solver implements functionality to wrap Gorgonia Solvers
// so that they can be described by name in configuration files.
package solver

import (
	"fmt"
	"strings"

	G "gorgonia.org/gorgonia"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "Adam"
	RMSProp Type = "RMSProp"
	Vanilla Type = "Vanilla"
)

// Solver wraps Gorgonia Solvers together with the configuration they
// were created from, so that fresh Solvers with identical
// hyperparameters can be created for cloned networks.
type Solver struct {
	G.Solver
	Type
	Config
}

// newSolver returns a new solver with the given type and configuration.
func newSolver(t Type, c Config) (*Solver, error) {
	if !c.ValidType(t) {
		return nil, fmt.Errorf("newSolver: invalid solver type %v for "+
			"configuration %T", t, c)
	}
	solver := Solver{Type: t, Config: c}
	solver.Solver = solver.Config.Create()

	return &solver, nil
}

// New returns a Solver with default hyperparameters given the name
// of its type. Names are case insensitive.
func New(name string, stepSize float64, batchSize int) (*Solver, error) {
	switch strings.ToLower(name) {
	case "", strings.ToLower(string(RMSProp)):
		return NewDefaultRMSProp(stepSize, batchSize)
	case strings.ToLower(string(Adam)):
		return NewDefaultAdam(stepSize, batchSize)
	case strings.ToLower(string(Vanilla)):
		return NewVanilla(stepSize, batchSize, -1.0)
	}
	return nil, fmt.Errorf("new: unknown solver type %q", name)
}

// Clone returns a new Solver with the same configuration as s but
// with no accumulated state
func (s *Solver) Clone() *Solver {
	clone := Solver{Type: s.Type, Config: s.Config}
	clone.Solver = clone.Config.Create()
	return &clone
}

// Config implements a Gorgonia Solver configuration and can be used to
// create Gorgonia Solvers they describe.
type Config interface {
	Create() G.Solver

	// ValidType returns whether a specific Solver type can be created
	// with the Config
	ValidType(Type) bool
}
