// Package expreplay implements a fixed-capacity experience replay
// buffer which overwrites its oldest transitions once full and samples
// batches of transitions uniformly at random.
package expreplay

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/samuelfneumann/btcrl/timestep"
)

// Batch is a batch of transitions sampled from a Memory. States and
// NextStates are flattened row-major with one row of Features()
// values per transition, and all other fields hold one value per
// transition.
type Batch struct {
	States     []float64
	Actions    []int
	Rewards    []float64
	NextStates []float64
	Terminals  []bool
}

// Size returns the number of transitions in the batch
func (b Batch) Size() int {
	return len(b.Actions)
}

// Memory is a circular experience replay buffer. Transitions are
// written at a cursor which wraps around once the buffer is full, so
// that the oldest transition is always the next to be overwritten.
type Memory struct {
	stateCache     []float64
	actionCache    []int
	rewardCache    []float64
	nextStateCache []float64
	terminalCache  []bool

	cursor int
	size   int

	sampler Selector

	capacity    int
	featureSize int
}

// New returns a new Memory which stores at most capacity transitions
// with states of featureSize values each. The seed determines the
// sequence of sampled indices.
func New(capacity, featureSize int, seed uint64) (*Memory, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("new: capacity must be >= 1\n\twant(>0)"+
			"\n\thave(%v)", capacity)
	}
	if featureSize < 1 {
		return nil, fmt.Errorf("new: feature size must be >= 1\n\twant(>0)"+
			"\n\thave(%v)", featureSize)
	}

	return &Memory{
		stateCache:     make([]float64, capacity*featureSize),
		actionCache:    make([]int, capacity),
		rewardCache:    make([]float64, capacity),
		nextStateCache: make([]float64, capacity*featureSize),
		terminalCache:  make([]bool, capacity),

		sampler: NewUniformSelector(seed),

		capacity:    capacity,
		featureSize: featureSize,
	}, nil
}

// Len returns the number of transitions currently stored
func (m *Memory) Len() int {
	return m.size
}

// Capacity returns the maximum number of transitions the Memory
// can hold
func (m *Memory) Capacity() int {
	return m.capacity
}

// Cursor returns the slot that the next transition will be written to
func (m *Memory) Cursor() int {
	return m.cursor
}

// Features returns the number of values in a single state
func (m *Memory) Features() int {
	return m.featureSize
}

// Add adds a transition to the Memory, overwriting the oldest stored
// transition if the Memory is full. The state slices are copied.
func (m *Memory) Add(t timestep.Transition) error {
	if len(t.State) != m.featureSize || len(t.NextState) != m.featureSize {
		return &ExpReplayError{
			Op: "add",
			Err: fmt.Errorf("%w\n\twant(%v)\n\thave(%v, %v)",
				errFeatureSize, m.featureSize, len(t.State),
				len(t.NextState)),
		}
	}

	index := m.cursor
	stateInd := index * m.featureSize
	copy(m.stateCache[stateInd:stateInd+m.featureSize], t.State)
	copy(m.nextStateCache[stateInd:stateInd+m.featureSize], t.NextState)

	m.actionCache[index] = t.Action
	m.rewardCache[index] = t.Reward
	m.terminalCache[index] = t.Terminal

	m.cursor = (m.cursor + 1) % m.capacity
	if m.size < m.capacity {
		m.size++
	}
	return nil
}

// Sample samples n transitions uniformly at random with replacement
// from the populated slots of the Memory.
func (m *Memory) Sample(n int) (Batch, error) {
	if m.size == 0 {
		return Batch{}, &ExpReplayError{Op: "sample", Err: errEmptyCache}
	}
	if n < 1 || n > m.size {
		return Batch{}, &ExpReplayError{
			Op: "sample",
			Err: fmt.Errorf("%w\n\twant(<=%v)\n\thave(%v)",
				errInsufficientSamples, m.size, n),
		}
	}

	indices := m.sampler.choose(n, m.size)
	batch := Batch{
		States:     make([]float64, n*m.featureSize),
		Actions:    make([]int, n),
		Rewards:    make([]float64, n),
		NextStates: make([]float64, n*m.featureSize),
		Terminals:  make([]bool, n),
	}

	for i, index := range indices {
		batchStartInd := i * m.featureSize
		expStartInd := index * m.featureSize
		copy(batch.States[batchStartInd:batchStartInd+m.featureSize],
			m.stateCache[expStartInd:expStartInd+m.featureSize])
		copy(batch.NextStates[batchStartInd:batchStartInd+m.featureSize],
			m.nextStateCache[expStartInd:expStartInd+m.featureSize])

		batch.Actions[i] = m.actionCache[index]
		batch.Rewards[i] = m.rewardCache[index]
		batch.Terminals[i] = m.terminalCache[index]
	}

	return batch, nil
}

// String returns the string representation of the Memory
func (m *Memory) String() string {
	baseStr := "Memory | Size: %v  |  Capacity: %v  |  Cursor: %v"
	return fmt.Sprintf(baseStr, m.size, m.capacity, m.cursor)
}

// Replace replaces the transitions, cursor, and capacity of the
// Memory with those of src. The sampler of the Memory is kept.
func (m *Memory) Replace(src *Memory) {
	sampler := m.sampler
	*m = *src
	m.sampler = sampler
}

// memoryState is the serialized form of a Memory
type memoryState struct {
	States     []float64
	Actions    []int
	Rewards    []float64
	NextStates []float64
	Terminals  []bool

	Cursor      int
	Size        int
	Capacity    int
	FeatureSize int
}

// GobEncode implements the gob.GobEncoder interface
func (m *Memory) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	state := memoryState{
		States:      m.stateCache,
		Actions:     m.actionCache,
		Rewards:     m.rewardCache,
		NextStates:  m.nextStateCache,
		Terminals:   m.terminalCache,
		Cursor:      m.cursor,
		Size:        m.size,
		Capacity:    m.capacity,
		FeatureSize: m.featureSize,
	}
	if err := enc.Encode(state); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode memory: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. The sampler of
// the receiver is kept if it has one, otherwise a sampler seeded with
// 0 is used.
func (m *Memory) GobDecode(in []byte) error {
	dec := gob.NewDecoder(bytes.NewReader(in))

	var state memoryState
	if err := dec.Decode(&state); err != nil {
		return fmt.Errorf("gobdecode: could not decode memory: %v", err)
	}

	if state.Capacity < 1 || state.FeatureSize < 1 ||
		state.Size < 0 || state.Size > state.Capacity ||
		state.Cursor < 0 || state.Cursor >= state.Capacity ||
		len(state.States) != state.Capacity*state.FeatureSize ||
		len(state.NextStates) != state.Capacity*state.FeatureSize ||
		len(state.Actions) != state.Capacity ||
		len(state.Rewards) != state.Capacity ||
		len(state.Terminals) != state.Capacity {
		return fmt.Errorf("gobdecode: inconsistent memory state")
	}

	sampler := m.sampler
	if sampler == nil {
		sampler = NewUniformSelector(0)
	}

	*m = Memory{
		stateCache:     state.States,
		actionCache:    state.Actions,
		rewardCache:    state.Rewards,
		nextStateCache: state.NextStates,
		terminalCache:  state.Terminals,
		cursor:         state.Cursor,
		size:           state.Size,
		sampler:        sampler,
		capacity:       state.Capacity,
		featureSize:    state.FeatureSize,
	}
	return nil
}
