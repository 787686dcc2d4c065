package experiment

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/samuelfneumann/btcrl/agent"
	env "github.com/samuelfneumann/btcrl/environment"
	"github.com/samuelfneumann/btcrl/environment/trading"
	"github.com/samuelfneumann/btcrl/experiment/checkpointer"
	"github.com/samuelfneumann/btcrl/experiment/tracker"
	ts "github.com/samuelfneumann/btcrl/timestep"
	"github.com/samuelfneumann/btcrl/utils/intutils"
	"github.com/samuelfneumann/btcrl/utils/progressbar"
)

const progressWidth = 40

// learner reports the training progress of an agent
type learner interface {
	Exploration() float64
	LastLoss() float64
}

// resumer reports the number of episodes an agent completed before it
// was restored from a checkpoint
type resumer interface {
	Episode() int
}

// historian reports the trade log of a trading environment
type historian interface {
	History() trading.History
}

// Online is an Experiment that runs an agent online only. No offline
// evaluation is performed.
type Online struct {
	env   env.Environment
	agent agent.Agent

	config        Config
	episode       int
	trackers      []tracker.Tracker
	checkpointers []checkpointer.Checkpointer

	logger   *zap.Logger
	progress *progressbar.ManualProgressBar
}

// NewOnline creates and returns a new online experiment on a given
// environment with a given agent. Trackers determine what data is
// saved and checkpointers determine when the agent is saved. If
// progress is non-nil and enabled in the Config, a progress bar is
// written to it.
//
// An agent restored from a checkpoint which reports its completed
// episodes through an Episode method continues from that episode, so
// that episode numbers, target network synchronization, and
// checkpoints carry on where the saved run stopped.
func NewOnline(e env.Environment, a agent.Agent, c Config, logger *zap.Logger,
	progress io.Writer, t []tracker.Tracker,
	check []checkpointer.Checkpointer) (*Online, error) {
	if e == nil || a == nil {
		return nil, fmt.Errorf("newonline: nil environment or agent")
	}
	if c.Episodes < 1 {
		return nil, fmt.Errorf("newonline: number of episodes must be "+
			"positive\n\thave(%v)", c.Episodes)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Online{
		env:           e,
		agent:         a,
		config:        c,
		trackers:      t,
		checkpointers: check,
		logger:        logger,
	}
	if r, ok := a.(resumer); ok {
		o.episode = r.Episode()
	}
	if c.Progress && progress != nil {
		o.progress = progressbar.NewManualProgressBar(progress, progressWidth,
			c.Episodes)
		for i := 0; i < o.episode; i++ {
			o.progress.Increment()
		}
	}
	return o, nil
}

// Register registers a tracker.Tracker with an Experiment so that data
// generated during the experiment can be tracked and saved
func (o *Online) Register(t tracker.Tracker) {
	o.trackers = append(o.trackers, t)
}

// Episode returns the number of completed episodes, including those
// completed before the agent was restored
func (o *Online) Episode() int {
	return o.episode
}

// RunEpisode runs a single episode of the experiment and returns its
// summary. If ctx is cancelled during the episode, the episode is
// abandoned and not counted.
func (o *Online) RunEpisode(ctx context.Context) (tracker.Episode, error) {
	start := time.Now()

	step, err := o.env.Reset()
	if err != nil {
		return tracker.Episode{}, fmt.Errorf("runepisode: could not reset: %w",
			err)
	}
	o.track(step)

	var ret float64
	for !step.Last() {
		if err := ctx.Err(); err != nil {
			return tracker.Episode{}, err
		}

		// Select action, step in environment
		state := step.State()
		action, err := o.agent.Predict(state)
		if err != nil {
			return tracker.Episode{}, fmt.Errorf("runepisode: %w", err)
		}
		next, done, err := o.env.Step(action)
		if err != nil {
			return tracker.Episode{}, fmt.Errorf("runepisode: %w", err)
		}
		o.track(next)
		ret += next.Reward

		// Learn from the transition
		err = o.agent.Learn(state, action, next.State(), next.Reward, done)
		if err != nil {
			return tracker.Episode{}, fmt.Errorf("runepisode: %w", err)
		}
		step = next
	}

	o.episode++
	if err := o.agent.LearnEpisode(o.episode); err != nil {
		return tracker.Episode{}, fmt.Errorf("runepisode: %w", err)
	}

	summary := o.summarize(step, ret, time.Since(start))
	for _, t := range o.trackers {
		if et, ok := t.(tracker.EpisodeTracker); ok {
			if err := et.TrackEpisode(summary); err != nil {
				return summary, fmt.Errorf("runepisode: could not track "+
					"episode: %w", err)
			}
		}
	}
	for _, c := range o.checkpointers {
		if err := c.Checkpoint(o.episode); err != nil {
			return summary, fmt.Errorf("runepisode: could not checkpoint: %w",
				err)
		}
	}

	o.logger.Info("episode finished",
		zap.Int("episode", summary.Number),
		zap.Int("steps", summary.Steps),
		zap.Int("trades", summary.Trades),
		zap.Float64("return", summary.Return),
		zap.Float64("profit", summary.Profit),
		zap.Float64("exploration_rate", summary.Exploration),
		zap.Duration("duration", summary.Duration),
	)
	if o.progress != nil {
		o.progress.Increment()
		o.progress.SetStatus(fmt.Sprintf("profit %.4f", summary.Profit))
		if err := o.progress.Display(); err != nil {
			o.logger.Warn("could not display progress", zap.Error(err))
		}
	}

	return summary, nil
}

// summarize returns the summary of the episode ending in last
func (o *Online) summarize(last ts.TimeStep, ret float64,
	d time.Duration) tracker.Episode {
	summary := tracker.Episode{
		Number:   o.episode,
		Steps:    last.Number,
		Return:   ret,
		Profit:   last.Info[trading.InfoTotalProfit],
		Duration: d,
	}
	if h, ok := o.env.(historian); ok {
		summary.Trades = h.History().NumTrades()
	}
	if l, ok := o.agent.(learner); ok {
		summary.Exploration = l.Exploration()
		summary.Loss = l.LastLoss()
	}
	return summary
}

// Run runs episodes until the configured number of episodes have been
// completed. The context is checked between episodes and during each
// episode.
func (o *Online) Run(ctx context.Context) error {
	if o.progress != nil {
		defer o.progress.Close()
	}
	if o.episode > 0 {
		o.logger.Info("resuming experiment", zap.Int("episode", o.episode),
			zap.Int("remaining", intutils.Max(o.config.Episodes-o.episode, 0)))
	}

	for o.episode < o.config.Episodes {
		if err := ctx.Err(); err != nil {
			o.logger.Info("experiment cancelled", zap.Int("episode", o.episode))
			return err
		}
		if _, err := o.RunEpisode(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Save saves all the data cached by the Trackers to disk
func (o *Online) Save() error {
	var err error
	for _, t := range o.trackers {
		err = multierr.Append(err, t.Save())
	}
	return err
}

// track tracks the current timestep by caching its data in each Tracker
func (o *Online) track(t ts.TimeStep) {
	for _, tr := range o.trackers {
		tr.Track(t)
	}
}
