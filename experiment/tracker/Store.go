package tracker

import (
	"context"

	"github.com/samuelfneumann/btcrl/store"
	ts "github.com/samuelfneumann/btcrl/timestep"
)

// Store records the summary of each episode of a run in a store
type Store struct {
	ctx   context.Context
	store *store.Store
	runID string
}

// NewStore returns a new Store Tracker which records episodes of the
// run with ID runID
func NewStore(ctx context.Context, s *store.Store, runID string) *Store {
	return &Store{ctx: ctx, store: s, runID: runID}
}

// Track does nothing, only episode summaries are stored
func (s *Store) Track(ts.TimeStep) {}

// TrackEpisode records the summary of an episode
func (s *Store) TrackEpisode(e Episode) error {
	return s.store.RecordEpisode(s.ctx, store.Episode{
		RunID:       s.runID,
		Number:      e.Number,
		Steps:       e.Steps,
		Trades:      e.Trades,
		Return:      e.Return,
		Profit:      e.Profit,
		Exploration: e.Exploration,
		Loss:        e.Loss,
		Duration:    e.Duration,
	})
}

// Save does nothing, episodes are written as they complete
func (s *Store) Save() error {
	return nil
}
