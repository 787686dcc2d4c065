// Package metrics exposes prometheus metrics of a training run.
//
// Exposed metrics:
//
//	btcrl_episodes_total            completed episodes
//	btcrl_steps_total               environment steps
//	btcrl_trades_total              position changes
//	btcrl_episode_return            return of the last episode
//	btcrl_episode_profit            profit of the last episode
//	btcrl_exploration_rate          exploration rate after the last episode
//	btcrl_loss                      loss of the last gradient step
//	btcrl_position                  currently held position (0 short, 1 long)
//	btcrl_episode_duration_seconds  wall time of episodes
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "btcrl"

// Config configures the metrics endpoint
type Config struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Collector holds the metrics of a training run on its own registry
type Collector struct {
	registry *prometheus.Registry

	episodes prometheus.Counter
	steps    prometheus.Counter
	trades   prometheus.Counter

	episodeReturn prometheus.Gauge
	profit        prometheus.Gauge
	exploration   prometheus.Gauge
	loss          prometheus.Gauge
	position      prometheus.Gauge

	duration prometheus.Histogram
}

// New returns a new Collector with all metrics registered
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		episodes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "episodes_total",
			Help:      "Completed training episodes",
		}),
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Environment steps taken",
		}),
		trades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Position changes",
		}),
		episodeReturn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "episode_return",
			Help:      "Return of the last completed episode",
		}),
		profit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "episode_profit",
			Help:      "Total profit of the last completed episode",
		}),
		exploration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exploration_rate",
			Help:      "Exploration rate after the last completed episode",
		}),
		loss: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loss",
			Help:      "Loss of the last gradient step",
		}),
		position: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "position",
			Help:      "Currently held position (0 short, 1 long)",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "episode_duration_seconds",
			Help:      "Wall time of training episodes",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}),
	}

	c.registry.MustRegister(c.episodes, c.steps, c.trades)
	c.registry.MustRegister(c.episodeReturn, c.profit, c.exploration, c.loss,
		c.position)
	c.registry.MustRegister(c.duration)
	return c
}

// Registry returns the registry holding the metrics
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveStep records a single environment step
func (c *Collector) ObserveStep(position float64) {
	c.steps.Inc()
	c.position.Set(position)
}

// ObserveEpisode records the summary of a completed episode
func (c *Collector) ObserveEpisode(trades int, ret, profit, exploration,
	loss float64, duration time.Duration) {
	c.episodes.Inc()
	c.trades.Add(float64(trades))
	c.episodeReturn.Set(ret)
	c.profit.Set(profit)
	c.exploration.Set(exploration)
	c.loss.Set(loss)
	c.duration.Observe(duration.Seconds())
}

// Handler returns an HTTP handler serving the metrics
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve serves the metrics at /metrics on addr until ctx is cancelled
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics: could not serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics: could not shut down: %w", err)
		}
		return nil
	}
}
