package deepq

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"go.uber.org/multierr"

	"github.com/samuelfneumann/btcrl/initwfn"
	"github.com/samuelfneumann/btcrl/network"
	"github.com/samuelfneumann/btcrl/solver"
)

// ErrConfig is returned when a DeepQ agent is configured with invalid
// hyperparameters
var ErrConfig = errors.New("invalid deepq configuration")

// Feature extractors that can be named in a Config
const (
	DeepSense = "deepsense"
	MLP       = "mlp"
)

// Config implements a configuration for a DeepQ agent. All fields
// without omitempty in their tag must be present in configuration
// files.
type Config struct {
	BatchSize   int `mapstructure:"batch_size"`
	NumFeatures int `mapstructure:"num_features"`
	WindowSize  int `mapstructure:"window_size"`

	// Network architecture
	Stride        int     `mapstructure:"stride"`
	FilterSizes   []int   `mapstructure:"filter_sizes"`
	KernelSizes   []int   `mapstructure:"kernel_sizes"`
	HiddenSize    []int   `mapstructure:"hidden_size"`
	DropoutConv   float64 `mapstructure:"dropout_conv"`
	DropoutGRU    float64 `mapstructure:"dropout_gru"`
	DropoutLinear float64 `mapstructure:"dropout_linear"`
	GRUCellSize   int     `mapstructure:"gru_cell_size"`
	GRUNumCell    int     `mapstructure:"gru_num_cell"`
	NumActions    int     `mapstructure:"num_actions"`

	LR    float64 `mapstructure:"lr"`
	Gamma float64 `mapstructure:"gamma"`

	MaxMemSize int `mapstructure:"max_mem_size"`

	// Exploration rate ε decays multiplicatively after each gradient
	// step down to ExplorationMin
	ExplorationRate  float64 `mapstructure:"exploration_rate"`
	ExplorationDecay float64 `mapstructure:"exploration_decay"`
	ExplorationMin   float64 `mapstructure:"exploration_min"`

	// ReplaceTarget is the number of episodes between target network
	// updates
	ReplaceTarget int `mapstructure:"replace_target"`

	Optimizer  string `mapstructure:"optimizer,omitempty"`
	Extractor  string `mapstructure:"extractor,omitempty"`
	WeightInit string `mapstructure:"weight_init,omitempty"`

	// OutputActivation is applied to the action values of the
	// DeepSense extractor, linear by default
	OutputActivation string `mapstructure:"output_activation,omitempty"`
}

// RequiredKeys returns the configuration keys which must be present
// when a Config is decoded from a file
func RequiredKeys() []string {
	t := reflect.TypeOf(Config{})
	keys := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("mapstructure")
		name, opts, _ := strings.Cut(tag, ",")
		if name == "" || strings.Contains(opts, "omitempty") {
			continue
		}
		keys = append(keys, name)
	}
	return keys
}

// Features returns the number of values in a flattened observation
func (c Config) Features() int {
	return c.WindowSize * c.NumFeatures
}

// Validate checks a Config to ensure it is a valid configuration of a
// DeepQ agent. All problems are reported together.
func (c Config) Validate() error {
	var err error
	positive := []struct {
		key   string
		value int
	}{
		{"batch_size", c.BatchSize},
		{"num_features", c.NumFeatures},
		{"window_size", c.WindowSize},
		{"num_actions", c.NumActions},
		{"max_mem_size", c.MaxMemSize},
		{"replace_target", c.ReplaceTarget},
	}
	for _, p := range positive {
		if p.value < 1 {
			err = multierr.Append(err, fmt.Errorf("%w: %v must be > 0"+
				"\n\thave(%v)", ErrConfig, p.key, p.value))
		}
	}

	if c.MaxMemSize <= c.BatchSize {
		err = multierr.Append(err, fmt.Errorf("%w: max_mem_size must be "+
			"greater than batch_size\n\twant(>%v)\n\thave(%v)", ErrConfig,
			c.BatchSize, c.MaxMemSize))
	}
	if c.LR <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: lr must be > 0"+
			"\n\thave(%v)", ErrConfig, c.LR))
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		err = multierr.Append(err, fmt.Errorf("%w: gamma must be in [0, 1]"+
			"\n\thave(%v)", ErrConfig, c.Gamma))
	}
	if c.ExplorationRate < 0 || c.ExplorationRate > 1 {
		err = multierr.Append(err, fmt.Errorf("%w: exploration_rate must be "+
			"in [0, 1]\n\thave(%v)", ErrConfig, c.ExplorationRate))
	}
	if c.ExplorationDecay <= 0 || c.ExplorationDecay > 1 {
		err = multierr.Append(err, fmt.Errorf("%w: exploration_decay must "+
			"be in (0, 1]\n\thave(%v)", ErrConfig, c.ExplorationDecay))
	}
	if c.ExplorationMin < 0 || c.ExplorationMin > c.ExplorationRate {
		err = multierr.Append(err, fmt.Errorf("%w: exploration_min must be "+
			"in [0, exploration_rate]\n\thave(%v)", ErrConfig,
			c.ExplorationMin))
	}

	if _, e := solver.New(c.Optimizer, 1.0, 1); e != nil {
		err = multierr.Append(err, fmt.Errorf("%w: %v", ErrConfig, e))
	}
	if _, e := initwfn.Parse(c.WeightInit, 1.0); e != nil {
		err = multierr.Append(err, fmt.Errorf("%w: %v", ErrConfig, e))
	}

	// Only check the network once its basic dimensions are known to be
	// valid
	if err == nil {
		if _, e := c.Architecture(); e != nil {
			err = multierr.Append(err, e)
		}
	}

	return err
}

// Architecture returns the network architecture of the validation and
// target networks described by the Config
func (c Config) Architecture() (network.Architecture, error) {
	init, err := initwfn.Parse(c.WeightInit, 1.0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	output, err := network.ParseActivation(c.OutputActivation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	var arch interface {
		network.Architecture
		Validate() error
	}
	switch strings.ToLower(c.Extractor) {
	case "", DeepSense:
		arch = network.DeepSenseConfig{
			WindowSize:    c.WindowSize,
			NumFeatures:   c.NumFeatures,
			Stride:        c.Stride,
			FilterSizes:   c.FilterSizes,
			KernelSizes:   c.KernelSizes,
			GRUCellSize:   c.GRUCellSize,
			GRUNumCell:    c.GRUNumCell,
			HiddenSizes:   c.HiddenSize,
			NumOutputs:    c.NumActions,
			Output:        output,
			DropoutConv:   c.DropoutConv,
			DropoutGRU:    c.DropoutGRU,
			DropoutLinear: c.DropoutLinear,
			Init:          init.InitWFn(),
		}

	case MLP:
		biases := make([]bool, len(c.HiddenSize))
		activations := make([]*network.Activation, len(c.HiddenSize))
		for i := range c.HiddenSize {
			biases[i] = true
			activations[i] = network.LeakyReLU()
		}
		arch = network.MLPConfig{
			NumInputs:   c.Features(),
			NumOutputs:  c.NumActions,
			HiddenSizes: c.HiddenSize,
			Biases:      biases,
			Activations: activations,
			Dropout:     c.DropoutLinear,
			Init:        init.InitWFn(),
		}

	default:
		return nil, fmt.Errorf("%w: unknown extractor %q", ErrConfig,
			c.Extractor)
	}

	if err := arch.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return arch, nil
}
