// Package agent defines an agent interface
package agent

// Agent determines the implementation details of an agent or algorithm
// which learns online from the transitions it experiences.
type Agent interface {
	// Predict selects an action in a state
	Predict(state []float64) (int, error)

	// Learn records a transition and, when enough experience has been
	// gathered, performs an update
	Learn(prev []float64, action int, next []float64, reward float64,
		terminal bool) error

	// LearnEpisode performs bookkeeping at the end of episode number
	// episode, counted from 1
	LearnEpisode(episode int) error

	// Save saves the state of the Agent to a file
	Save(path string) error
}

// FeatureExtractor maps a batch of observations to one value per
// action for each observation in the batch.
type FeatureExtractor interface {
	// Evaluate returns the action values of a batch of BatchSize()
	// observations, each with Features() values, flattened row-major.
	// The returned slice holds Outputs() values per observation.
	Evaluate(obs []float64) ([]float64, error)

	BatchSize() int
	Features() int
	Outputs() int
}

// QFunction is a FeatureExtractor whose parameters can be trained,
// copied, and restored.
type QFunction interface {
	FeatureExtractor

	// Step performs a single gradient step which moves the value of
	// actions[i] in observation i towards targets[i] and leaves the
	// values of all other actions out of the loss. It returns the loss
	// before the step.
	Step(obs []float64, actions []int, targets []float64) (float64, error)

	// CloneWithBatch returns a copy of the QFunction with the same
	// parameters which evaluates batches of a different size
	CloneWithBatch(batch int) (QFunction, error)

	// Params returns a copy of the parameters of the QFunction
	Params() [][]float64

	// SetParams sets the parameters of the QFunction to a copy of
	// params
	SetParams(params [][]float64) error
}
