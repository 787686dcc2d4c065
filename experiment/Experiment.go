// Package experiment implements functionality for running an experiment
package experiment

import (
	"context"

	"github.com/samuelfneumann/btcrl/experiment/tracker"
)

// Interface Experiment outlines structs that can run experiments.
// Experiments send each environment TimeStep to Trackers, which cache
// the data they need to later save it to disk. The Save() function
// will then take all cached data and save it to disk. This is usually
// performed after an experiment has been run. The Run() method will
// run all episodes until the episode limit is reached or the context
// is cancelled. The RunEpisode() function will run a single episode.
type Experiment interface {
	Run(ctx context.Context) error
	RunEpisode(ctx context.Context) (tracker.Episode, error)

	// Save all tracked data to disk
	Save() error

	// Adds a new tracker.Tracker to the (possibly already running)
	// experiment. Useful if you want to track data only after a
	// specified event.
	Register(t tracker.Tracker)
}

// Config represents a configuration of an experiment.
type Config struct {
	// Episodes is the number of episodes to run
	Episodes int `mapstructure:"episodes"`

	// Progress enables the progress bar
	Progress bool `mapstructure:"progress"`
}
