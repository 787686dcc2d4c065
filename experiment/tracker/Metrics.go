package tracker

import (
	"github.com/samuelfneumann/btcrl/environment/trading"
	"github.com/samuelfneumann/btcrl/metrics"
	ts "github.com/samuelfneumann/btcrl/timestep"
)

// Metrics exports the data of an experiment as prometheus metrics
type Metrics struct {
	collector *metrics.Collector
}

// NewMetrics returns a new Metrics Tracker
func NewMetrics(c *metrics.Collector) *Metrics {
	return &Metrics{collector: c}
}

// Track records a single environment step
func (m *Metrics) Track(t ts.TimeStep) {
	if t.First() {
		return
	}
	m.collector.ObserveStep(t.Info[trading.InfoPosition])
}

// TrackEpisode records the summary of an episode
func (m *Metrics) TrackEpisode(e Episode) error {
	m.collector.ObserveEpisode(e.Trades, e.Return, e.Profit, e.Exploration,
		e.Loss, e.Duration)
	return nil
}

// Save does nothing, metrics are scraped while the experiment runs
func (m *Metrics) Save() error {
	return nil
}
