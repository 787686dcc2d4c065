// Package trading implements a single-asset trading environment over a
// historical price series.
package trading

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	env "github.com/samuelfneumann/btcrl/environment"
	ts "github.com/samuelfneumann/btcrl/timestep"
	"github.com/samuelfneumann/btcrl/utils/intutils"
)

const (
	// Discrete Actions
	Sell int = iota
	Buy

	MinDiscreteAction int = Sell
	MaxDiscreteAction int = Buy
)

// Keys of the diagnostic values in the Info map of each TimeStep
const (
	InfoTotalReward = "total_reward"
	InfoTotalProfit = "total_profit"
	InfoPosition    = "position"
	InfoTick        = "tick"
)

// ErrConfig is returned when a trading environment is constructed
// with an invalid configuration
var ErrConfig = errors.New("invalid trading environment configuration")

// Position is the market position held by the agent
type Position int

const (
	Short Position = iota
	Long
)

func (p Position) String() string {
	if p == Long {
		return "Long"
	}
	return "Short"
}

// opposite returns the position on the other side of the market
func (p Position) opposite() Position {
	if p == Long {
		return Short
	}
	return Long
}

// state is the lifecycle state of an episode
type state int

const (
	ready state = iota
	running
	done
)

// Config configures a trading environment.
type Config struct {
	// WindowSize is the number of consecutive frames in an observation
	WindowSize int `mapstructure:"window_size"`

	// FrameLen is the number of ticks the environment advances per step
	FrameLen int `mapstructure:"frame_len"`

	// Fractional fees paid when selling (bid) and buying (ask)
	TradeFeeBid float64 `mapstructure:"trade_fee_bid"`
	TradeFeeAsk float64 `mapstructure:"trade_fee_ask"`
}

// Validate checks that the Config is usable for a series of length n.
func (c Config) Validate(n int) error {
	var err error

	if c.WindowSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: window_size must be > 0"+
			"\n\thave(%v)", ErrConfig, c.WindowSize))
	}
	if c.FrameLen <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: frame_len must be > 0"+
			"\n\thave(%v)", ErrConfig, c.FrameLen))
	}
	if c.TradeFeeBid < 0 || c.TradeFeeBid >= 1 {
		err = multierr.Append(err, fmt.Errorf("%w: trade_fee_bid must be in "+
			"[0, 1)\n\thave(%v)", ErrConfig, c.TradeFeeBid))
	}
	if c.TradeFeeAsk < 0 || c.TradeFeeAsk >= 1 {
		err = multierr.Append(err, fmt.Errorf("%w: trade_fee_ask must be in "+
			"[0, 1)\n\thave(%v)", ErrConfig, c.TradeFeeAsk))
	}
	if n == 0 {
		err = multierr.Append(err, fmt.Errorf("%w: empty price series",
			ErrConfig))
	} else if c.WindowSize > n {
		err = multierr.Append(err, fmt.Errorf("%w: window_size larger than "+
			"series\n\twant(<=%v)\n\thave(%v)", ErrConfig, n, c.WindowSize))
	}

	return err
}

// Trading implements a trading environment. At each step the agent
// either sells or buys, and the environment advances through the
// price series by FrameLen ticks. Trades occur when the action
// opposes the currently held position:
//
//	Action	Position	Trade
//	 Sell	 Long		close the long position
//	 Buy	 Short		open a long position
//
// The reward of a step is the price difference between the current
// tick and the tick of the last trade when a long position is closed,
// and zero otherwise. Observations are the last WindowSize frames
// before the current tick, flattened row-major.
type Trading struct {
	config Config
	frames [][]float64
	prices []float64

	numFeatures int

	state         state
	currentTick   int
	lastTradeTick int
	position      Position
	totalReward   float64
	totalProfit   float64
	stepNumber    int

	history History
}

// New returns a new trading environment over a series. The frames
// are the per-tick features observed by the agent and prices are the
// per-tick prices used to compute rewards and profits. The
// environment is returned ready and must be Reset before stepping.
func New(c Config, frames [][]float64, prices []float64) (*Trading, error) {
	err := c.Validate(len(prices))
	if len(frames) != len(prices) {
		err = multierr.Append(err, fmt.Errorf("%w: frames and prices must "+
			"have the same length\n\twant(%v)\n\thave(%v)", ErrConfig,
			len(prices), len(frames)))
	}

	numFeatures := 0
	if len(frames) > 0 {
		numFeatures = len(frames[0])
	}
	if len(frames) > 0 && numFeatures == 0 {
		err = multierr.Append(err, fmt.Errorf("%w: frames must have at "+
			"least one feature", ErrConfig))
	}
	for i := range frames {
		if len(frames[i]) != numFeatures {
			err = multierr.Append(err, fmt.Errorf("%w: ragged frame %v"+
				"\n\twant(%v)\n\thave(%v)", ErrConfig, i, numFeatures,
				len(frames[i])))
			break
		}
	}
	for i, p := range prices {
		if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			err = multierr.Append(err, fmt.Errorf("%w: price at tick %v "+
				"must be positive and finite\n\thave(%v)", ErrConfig, i, p))
			break
		}
	}
	if err != nil {
		return nil, err
	}

	return &Trading{
		config:      c,
		frames:      frames,
		prices:      prices,
		numFeatures: numFeatures,
		state:       ready,
	}, nil
}

// Reset resets the environment to the start of the series and returns
// the first TimeStep of the new episode.
func (t *Trading) Reset() (ts.TimeStep, error) {
	t.state = running
	t.currentTick = t.config.WindowSize
	t.lastTradeTick = t.currentTick - 1
	t.position = Short
	t.totalReward = 0
	t.totalProfit = 1
	t.stepNumber = 0

	t.history = History{Prices: t.prices}
	t.history.record(t.priceTick(), t.position, false)

	return ts.New(ts.First, 0, t.observation(), 0, t.info()), nil
}

// Step takes one environmental step given an action and returns the
// next TimeStep and whether or not the episode has ended
func (t *Trading) Step(action int) (ts.TimeStep, bool, error) {
	switch t.state {
	case ready:
		return ts.TimeStep{}, false, fmt.Errorf("step: %w", env.ErrNotStarted)
	case done:
		return ts.TimeStep{}, true, fmt.Errorf("step: %w", env.ErrEpisodeDone)
	}
	if action < MinDiscreteAction || action > MaxDiscreteAction {
		return ts.TimeStep{}, false, fmt.Errorf("step: %w %v ∉ (%v, %v)",
			env.ErrInvalidAction, action, Sell, Buy)
	}

	n := len(t.prices)
	t.currentTick = intutils.Min(t.currentTick+t.config.FrameLen, n)
	finished := t.currentTick >= n

	trade := t.tradeHappened(action)

	reward := t.reward(trade)
	t.totalReward += reward
	if trade || finished {
		t.updateProfit()
	}

	if trade {
		t.position = t.position.opposite()
		t.lastTradeTick = t.priceTick()
	}
	t.history.record(t.priceTick(), t.position, trade)

	t.stepNumber++
	stepType := ts.Mid
	if finished {
		stepType = ts.Last
		t.state = done
	}

	step := ts.New(stepType, reward, t.observation(), t.stepNumber, t.info())
	return step, finished, nil
}

// tradeHappened returns whether the action trades against the
// currently held position
func (t *Trading) tradeHappened(action int) bool {
	return (action == Buy && t.position == Short) ||
		(action == Sell && t.position == Long)
}

// reward returns the reward for the current step. Only closing a
// long position is rewarded.
func (t *Trading) reward(trade bool) float64 {
	if !trade || t.position != Long {
		return 0
	}
	return t.prices[t.priceTick()] - t.prices[t.lastTradeTick]
}

// updateProfit updates the total profit when a long position is
// closed, accounting for the fees of the buy and the sell.
func (t *Trading) updateProfit() {
	if t.position != Long {
		return
	}
	currentPrice := t.prices[t.priceTick()]
	lastTradePrice := t.prices[t.lastTradeTick]

	shares := (t.totalProfit * (1 - t.config.TradeFeeAsk)) / lastTradePrice
	t.totalProfit = (shares * (1 - t.config.TradeFeeBid)) * currentPrice
}

// priceTick returns the tick whose price is current. Once the episode
// is finished the current tick is one past the end of the series, and
// the last price is used.
func (t *Trading) priceTick() int {
	return intutils.Min(t.currentTick, len(t.prices)-1)
}

// observation returns the WindowSize frames preceding the current tick
func (t *Trading) observation() *mat.VecDense {
	window := t.config.WindowSize
	obs := make([]float64, 0, window*t.numFeatures)
	for i := t.currentTick - window; i < t.currentTick; i++ {
		obs = append(obs, t.frames[i]...)
	}
	return mat.NewVecDense(len(obs), obs)
}

func (t *Trading) info() map[string]float64 {
	return map[string]float64{
		InfoTotalReward: t.totalReward,
		InfoTotalProfit: t.totalProfit,
		InfoPosition:    float64(t.position),
		InfoTick:        float64(t.currentTick),
	}
}

// History returns the trade log of the current episode
func (t *Trading) History() History {
	return t.history
}

// TotalProfit returns the total profit of the current episode as a
// multiple of the starting capital
func (t *Trading) TotalProfit() float64 {
	return t.totalProfit
}

// TotalReward returns the cumulative reward of the current episode
func (t *Trading) TotalReward() float64 {
	return t.totalReward
}

// Len returns the length of the underlying series
func (t *Trading) Len() int {
	return len(t.prices)
}

// ActionSpec returns the action specification of the environment
func (t *Trading) ActionSpec() env.Spec {
	shape := mat.NewVecDense(1, []float64{1})
	lowerBound := mat.NewVecDense(1, []float64{float64(MinDiscreteAction)})
	upperBound := mat.NewVecDense(1, []float64{float64(MaxDiscreteAction)})

	return env.NewSpec(shape, env.Action, lowerBound, upperBound,
		env.Discrete)
}

// ObservationSpec returns the observation specification of the
// environment. Observations have shape (WindowSize, features).
func (t *Trading) ObservationSpec() env.Spec {
	shape := mat.NewVecDense(2, []float64{float64(t.config.WindowSize),
		float64(t.numFeatures)})

	size := t.config.WindowSize * t.numFeatures
	lower := make([]float64, size)
	upper := make([]float64, size)
	for i := range lower {
		lower[i] = math.Inf(-1)
		upper[i] = math.Inf(1)
	}

	return env.NewSpec(shape, env.Observation, mat.NewVecDense(size, lower),
		mat.NewVecDense(size, upper), env.Continuous)
}
