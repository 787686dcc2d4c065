package expreplay

import (
	"golang.org/x/exp/rand"
)

// Selector implements functionality for choosing which slots of an
// experience replay buffer should be sampled
type Selector interface {
	// choose selects n indices in [0, populated) at which data should
	// be sampled from the experience replay buffer
	choose(n, populated int) []int
}

// uniformSelector is a Selector which selects data from an experience
// replay buffer uniformly randomly with replacement
type uniformSelector struct {
	rng *rand.Rand
}

// NewUniformSelector returns a new Selector which selects data uniformly
// randomly from an experience replay buffer
func NewUniformSelector(seed uint64) Selector {
	source := rand.NewSource(seed)
	rng := rand.New(source)

	return &uniformSelector{rng: rng}
}

// choose selects a number of indices at which to draw data from the
// buffer
func (u *uniformSelector) choose(n, populated int) []int {
	selected := make([]int, n)
	for i := range selected {
		selected[i] = u.rng.Intn(populated)
	}
	return selected
}
