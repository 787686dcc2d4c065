// Package tracker implements Trackers, which track and save data in an
// experiment
package tracker

import (
	"encoding/gob"
	"fmt"
	"os"
	"time"

	ts "github.com/samuelfneumann/btcrl/timestep"
)

// Interface Tracker keeps track of experiment data and saves the data
// after the experiment has finished
type Tracker interface {
	Track(t ts.TimeStep)
	Save() error
}

// EpisodeTracker is a Tracker which is also given the summary of each
// completed episode
type EpisodeTracker interface {
	Tracker
	TrackEpisode(e Episode) error
}

// Episode summarizes a completed episode
type Episode struct {
	Number      int // Counted from 1
	Steps       int
	Trades      int
	Return      float64
	Profit      float64
	Exploration float64
	Loss        float64
	Duration    time.Duration
}

// LoadData loads and returns the data saved by a Tracker which saves
// float64 data
func LoadData(filename string) ([]float64, error) {
	var data []float64
	if err := loadGob(filename, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// LoadLengths loads and returns the data saved by an EpisodeLength
// Tracker
func LoadLengths(filename string) ([]int, error) {
	var data []int
	if err := loadGob(filename, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func loadGob(filename string, v interface{}) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("load: could not open data file: %w", err)
	}
	defer file.Close()

	if err := gob.NewDecoder(file).Decode(v); err != nil {
		return fmt.Errorf("load: could not decode data: %w", err)
	}
	return nil
}

func saveGob(filename string, v interface{}) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("save: could not open save file: %w", err)
	}

	if err := gob.NewEncoder(file).Encode(v); err != nil {
		file.Close()
		return fmt.Errorf("save: could not encode data: %w", err)
	}
	return file.Close()
}
