// Package environment outlines the interfaces and structs needed to implement
// concrete environments
package environment

import (
	"errors"

	"github.com/samuelfneumann/btcrl/timestep"
)

// Errors reported by environments which are stepped out of order
var (
	// ErrEpisodeDone is returned when an environment is stepped after
	// its episode has ended and before it has been reset
	ErrEpisodeDone = errors.New("episode is done, environment must be reset")

	// ErrNotStarted is returned when an environment is stepped before
	// it has been reset for the first time
	ErrNotStarted = errors.New("environment must be reset before stepping")

	// ErrInvalidAction is returned when an action is outside of the
	// environment's action space
	ErrInvalidAction = errors.New("invalid action")
)

// Environment implements a simulated environment with discrete actions.
//
// An Environment starts in a ready state and must be Reset before it
// can be stepped. Step returns a Last TimeStep exactly once per
// episode, after which the Environment must be Reset again.
type Environment interface {
	// Reset starts a new episode and returns its First TimeStep
	Reset() (timestep.TimeStep, error)

	// Step takes an action in the environment and returns the next
	// TimeStep and whether or not the episode has ended
	Step(action int) (timestep.TimeStep, bool, error)

	ObservationSpec() Spec
	ActionSpec() Spec
}
