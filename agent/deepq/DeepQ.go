// Package deepq implements a double deep Q-learning agent with
// experience replay and a target network which is synchronized with
// the learned network every fixed number of episodes.
package deepq

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/exp/rand"

	"github.com/samuelfneumann/btcrl/agent"
	"github.com/samuelfneumann/btcrl/experiment/checkpointer"
	"github.com/samuelfneumann/btcrl/expreplay"
	"github.com/samuelfneumann/btcrl/network"
	"github.com/samuelfneumann/btcrl/solver"
	ts "github.com/samuelfneumann/btcrl/timestep"
	"github.com/samuelfneumann/btcrl/utils/floatutils"
)

// logInterval is the number of gradient steps between debug logs of
// the training progress
const logInterval = 1000

// DeepQ implements the double deep Q-learning algorithm with a Huber
// loss.
//
// Three networks with the same weights structure are used. The
// validation network is trained on batches sampled from the replay
// memory. The target network provides the action values of the
// update target and is a copy of the validation network taken every
// ReplaceTarget episodes. The policy network is a copy of the
// validation network with batch size 1 which selects actions.
type DeepQ struct {
	validation agent.QFunction
	target     agent.QFunction
	policy     agent.QFunction

	memory *expreplay.Memory
	rng    *rand.Rand

	// Exploration schedule
	epsilon    float64
	epsDecay   float64
	epsMin     float64
	numActions int
	features   int

	batchSize     int
	gamma         float64
	replaceTarget int

	episode       int
	gradientSteps int
	lastLoss      float64

	logger *zap.Logger
}

// New creates and returns a new DeepQ agent which trains the
// validation QFunction. The batch size of validation must equal the
// batch size in the Config.
func New(c Config, validation agent.QFunction, seed uint64,
	logger *zap.Logger) (*DeepQ, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if validation == nil {
		return nil, fmt.Errorf("new: nil validation network")
	}
	if validation.BatchSize() != c.BatchSize {
		return nil, fmt.Errorf("%w: network batch size does not match "+
			"batch_size\n\twant(%v)\n\thave(%v)", ErrConfig, c.BatchSize,
			validation.BatchSize())
	}
	if validation.Features() != c.Features() {
		return nil, fmt.Errorf("%w: network features do not match "+
			"window_size * num_features\n\twant(%v)\n\thave(%v)", ErrConfig,
			c.Features(), validation.Features())
	}
	if validation.Outputs() != c.NumActions {
		return nil, fmt.Errorf("%w: network outputs do not match "+
			"num_actions\n\twant(%v)\n\thave(%v)", ErrConfig, c.NumActions,
			validation.Outputs())
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	target, err := validation.CloneWithBatch(c.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("new: could not create target network: %v", err)
	}
	policy, err := validation.CloneWithBatch(1)
	if err != nil {
		return nil, fmt.Errorf("new: could not create policy network: %v", err)
	}

	memory, err := expreplay.New(c.MaxMemSize, c.Features(), seed+1)
	if err != nil {
		return nil, fmt.Errorf("new: could not create replay memory: %v", err)
	}

	return &DeepQ{
		validation:    validation,
		target:        target,
		policy:        policy,
		memory:        memory,
		rng:           rand.New(rand.NewSource(seed)),
		epsilon:       c.ExplorationRate,
		epsDecay:      c.ExplorationDecay,
		epsMin:        c.ExplorationMin,
		numActions:    c.NumActions,
		features:      c.Features(),
		batchSize:     c.BatchSize,
		gamma:         c.Gamma,
		replaceTarget: c.ReplaceTarget,
		logger:        logger,
	}, nil
}

// NewDeepSense returns a new DeepQ agent whose networks are those
// described by the Config, by default DeepSense networks
func NewDeepSense(c Config, seed uint64, logger *zap.Logger) (*DeepQ, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	arch, err := c.Architecture()
	if err != nil {
		return nil, err
	}

	// The loss is already averaged over the batch
	s, err := solver.New(c.Optimizer, c.LR, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	validation, err := network.NewQNet(arch, c.BatchSize, s)
	if err != nil {
		return nil, fmt.Errorf("newdeepsense: could not create validation "+
			"network: %v", err)
	}
	return New(c, validation, seed, logger)
}

// Predict selects an action in state using an ε-greedy policy. Ties
// between greedy actions are broken by selecting the lowest action.
func (d *DeepQ) Predict(state []float64) (int, error) {
	if len(state) != d.features {
		return 0, fmt.Errorf("predict: invalid state size\n\twant(%v)"+
			"\n\thave(%v)", d.features, len(state))
	}

	if d.rng.Float64() < d.epsilon {
		return d.rng.Intn(d.numActions), nil
	}

	values, err := d.policy.Evaluate(state)
	if err != nil {
		return 0, fmt.Errorf("predict: %v", err)
	}
	return floatutils.Argmax(values), nil
}

// Learn adds a transition to the replay memory and, once the memory
// holds more than a batch of transitions, performs a single gradient
// step on a sampled batch
func (d *DeepQ) Learn(prev []float64, action int, next []float64,
	reward float64, terminal bool) error {
	if action < 0 || action >= d.numActions {
		return fmt.Errorf("learn: invalid action\n\twant([0, %v))"+
			"\n\thave(%v)", d.numActions, action)
	}

	t := ts.Transition{
		State:     prev,
		Action:    action,
		Reward:    reward,
		NextState: next,
		Terminal:  terminal,
	}
	if err := d.memory.Add(t); err != nil {
		return fmt.Errorf("learn: %w", err)
	}

	if d.memory.Len() <= d.batchSize {
		return nil
	}
	return d.step()
}

// step performs a single gradient step of the validation network
func (d *DeepQ) step() error {
	batch, err := d.memory.Sample(d.batchSize)
	if err != nil {
		return fmt.Errorf("step: %w", err)
	}

	nextValid, err := d.validation.Evaluate(batch.NextStates)
	if err != nil {
		return fmt.Errorf("step: could not predict next state values: %v", err)
	}
	nextTarget, err := d.target.Evaluate(batch.NextStates)
	if err != nil {
		return fmt.Errorf("step: could not predict target values: %v", err)
	}

	y := DoubleQTargets(batch.Rewards, batch.Terminals, nextValid,
		nextTarget, d.numActions, d.gamma)
	// Only the taken actions are regressed towards y
	loss, err := d.validation.Step(batch.States, batch.Actions, y)
	if err != nil {
		return fmt.Errorf("step: %v", err)
	}
	if err := d.policy.SetParams(d.validation.Params()); err != nil {
		return fmt.Errorf("step: could not update policy network: %v", err)
	}

	d.lastLoss = loss
	d.gradientSteps++
	d.epsilon = floatutils.Max(d.epsilon*d.epsDecay, d.epsMin)

	if d.gradientSteps%logInterval == 0 {
		d.logger.Debug("training",
			zap.Int("gradient_steps", d.gradientSteps),
			zap.Float64("exploration_rate", d.epsilon),
			zap.Float64("loss", loss),
		)
	}
	return nil
}

// LearnEpisode copies the validation network weights into the target
// network if episode is a multiple of ReplaceTarget
func (d *DeepQ) LearnEpisode(episode int) error {
	d.episode = episode
	if episode%d.replaceTarget != 0 {
		return nil
	}

	if err := d.target.SetParams(d.validation.Params()); err != nil {
		return fmt.Errorf("learnepisode: could not update target network: %v",
			err)
	}
	d.logger.Debug("target network synchronized",
		zap.Int("episode", episode),
		zap.Int("gradient_steps", d.gradientSteps),
	)
	return nil
}

// Episode returns the number of the last episode passed to
// LearnEpisode, restored by Load
func (d *DeepQ) Episode() int {
	return d.episode
}

// Exploration returns the current exploration rate ε
func (d *DeepQ) Exploration() float64 {
	return d.epsilon
}

// LastLoss returns the loss of the most recent gradient step
func (d *DeepQ) LastLoss() float64 {
	return d.lastLoss
}

// Steps returns the number of gradient steps taken
func (d *DeepQ) Steps() int {
	return d.gradientSteps
}

// MemoryLen returns the number of transitions in the replay memory
func (d *DeepQ) MemoryLen() int {
	return d.memory.Len()
}

// DoubleQTargets computes the double Q-learning update targets
//
//	y = r + γ * Q_target(s', argmax_a Q_validation(s', a)) * (1 - terminal)
//
// for a batch of transitions. The action values nextValid and
// nextTarget hold numActions values per transition.
func DoubleQTargets(rewards []float64, terminals []bool, nextValid,
	nextTarget []float64, numActions int, gamma float64) []float64 {
	y := make([]float64, len(rewards))
	for i := range rewards {
		y[i] = rewards[i]
		if terminals[i] {
			continue
		}
		row := i * numActions
		best := floatutils.Argmax(nextValid[row : row+numActions])
		y[i] += gamma * nextTarget[row+best]
	}
	return y
}

// snapshot is the checkpointed state of a DeepQ agent
type snapshot struct {
	Memory        *expreplay.Memory
	Episode       int
	GradientSteps int
	Epsilon       float64
	Validation    [][]float64
	Target        [][]float64
}

// Save saves the replay memory, counters, exploration rate, and
// network weights of the agent to a single checkpoint file
func (d *DeepQ) Save(path string) error {
	s := snapshot{
		Memory:        d.memory,
		Episode:       d.episode,
		GradientSteps: d.gradientSteps,
		Epsilon:       d.epsilon,
		Validation:    d.validation.Params(),
		Target:        d.target.Params(),
	}
	if err := checkpointer.Save(path, s); err != nil {
		return err
	}
	d.logger.Info("checkpoint saved", zap.String("path", path),
		zap.Int("episode", d.episode))
	return nil
}

// Load restores the state of the agent from a checkpoint file written
// by Save. The agent must have been constructed with the same
// configuration as the agent that was saved. The random number
// generators are not restored. If the checkpoint does not fit the
// agent, an error is returned and the agent is left unchanged.
func (d *DeepQ) Load(path string) error {
	s := snapshot{Memory: &expreplay.Memory{}}
	if err := checkpointer.Load(path, &s); err != nil {
		return err
	}
	if s.Memory.Features() != d.features {
		return fmt.Errorf("load: %w: replay memory feature size does not "+
			"match\n\twant(%v)\n\thave(%v)", checkpointer.ErrCorrupt,
			d.features, s.Memory.Features())
	}

	validation, target := d.validation.Params(), d.target.Params()
	if err := d.setParams(s.Validation, s.Target); err != nil {
		if rollback := d.setParams(validation, target); rollback != nil {
			d.logger.Error("could not restore networks after failed load",
				zap.Error(rollback))
		}
		return fmt.Errorf("load: %v", err)
	}

	d.memory.Replace(s.Memory)
	d.episode = s.Episode
	d.gradientSteps = s.GradientSteps
	d.epsilon = s.Epsilon
	return nil
}

// setParams sets the weights of the validation, policy, and target
// networks
func (d *DeepQ) setParams(validation, target [][]float64) error {
	if err := d.validation.SetParams(validation); err != nil {
		return fmt.Errorf("validation network: %v", err)
	}
	if err := d.policy.SetParams(validation); err != nil {
		return fmt.Errorf("policy network: %v", err)
	}
	if err := d.target.SetParams(target); err != nil {
		return fmt.Errorf("target network: %v", err)
	}
	return nil
}
