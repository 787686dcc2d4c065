package tracker

import (
	"gonum.org/v1/gonum/stat"

	ts "github.com/samuelfneumann/btcrl/timestep"
)

// EpisodeLength records the number of environment steps taken in each
// completed episode. With a frame length above one, an episode over a
// fixed price series can end in fewer steps than ticks, so lengths
// show how many decisions the agent made per pass over the series.
//
// Episodes cut short by cancellation have no Last TimeStep and are not
// recorded.
type EpisodeLength struct {
	lengths  []int
	filename string
}

// NewEpisodeLength returns an EpisodeLength Tracker which saves to
// filename
func NewEpisodeLength(filename string) *EpisodeLength {
	return &EpisodeLength{filename: filename}
}

// Track records the step number of the Last TimeStep of an episode
func (e *EpisodeLength) Track(step ts.TimeStep) {
	if step.Last() {
		e.lengths = append(e.lengths, step.Number)
	}
}

// Lengths returns the lengths of all completed episodes
func (e *EpisodeLength) Lengths() []int {
	return append([]int(nil), e.lengths...)
}

// Mean returns the mean length of all completed episodes
func (e *EpisodeLength) Mean() float64 {
	values := make([]float64, len(e.lengths))
	for i, l := range e.lengths {
		values[i] = float64(l)
	}
	return stat.Mean(values, nil)
}

// Save writes the recorded lengths to disk as a gob-encoded []int
func (e *EpisodeLength) Save() error {
	return saveGob(e.filename, e.lengths)
}
