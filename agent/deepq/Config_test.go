package deepq

import (
	"errors"
	"testing"

	"github.com/samuelfneumann/btcrl/network"
	"go.uber.org/multierr"
)

func TestRequiredKeys(t *testing.T) {
	keys := RequiredKeys()
	if len(keys) != 20 {
		t.Fatalf("want(20) required keys have(%v): %v", len(keys), keys)
	}

	required := make(map[string]bool)
	for _, k := range keys {
		required[k] = true
	}
	for _, k := range []string{"batch_size", "replace_target", "lr",
		"exploration_min", "gru_num_cell"} {
		if !required[k] {
			t.Errorf("key %q not required", k)
		}
	}
	for _, k := range []string{"optimizer", "extractor", "weight_init",
		"output_activation"} {
		if required[k] {
			t.Errorf("optional key %q required", k)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	if err := testConfig().Validate(); err != nil {
		t.Fatal(err)
	}

	c := testConfig()
	c.BatchSize = 0
	c.Gamma = 2
	c.ExplorationMin = 2
	err := c.Validate()
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("want ErrConfig have(%v)", err)
	}
	if n := len(multierr.Errors(err)); n < 3 {
		t.Errorf("want all errors reported together, have(%v): %v", n, err)
	}

	tests := []func(*Config){
		func(c *Config) { c.MaxMemSize = c.BatchSize },
		func(c *Config) { c.ReplaceTarget = 0 },
		func(c *Config) { c.ExplorationDecay = 0 },
		func(c *Config) { c.Optimizer = "sgd-with-magic" },
		func(c *Config) { c.WeightInit = "ones" },
		func(c *Config) { c.Extractor = "transformer" },
		func(c *Config) { c.OutputActivation = "gelu" },
		func(c *Config) { c.Stride = 3 },
		func(c *Config) { c.KernelSizes = nil },
	}
	for i, modify := range tests {
		c := testConfig()
		modify(&c)
		if err := c.Validate(); !errors.Is(err, ErrConfig) {
			t.Errorf("test %v: want ErrConfig have(%v)", i, err)
		}
	}
}

func TestArchitecture(t *testing.T) {
	c := testConfig()
	arch, err := c.Architecture()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := arch.(network.DeepSenseConfig); !ok {
		t.Errorf("default extractor: want DeepSenseConfig have(%T)", arch)
	}
	if arch.Features() != c.WindowSize*c.NumFeatures {
		t.Errorf("features: want(%v) have(%v)", c.WindowSize*c.NumFeatures,
			arch.Features())
	}

	c.OutputActivation = "softmax"
	arch, err = c.Architecture()
	if err != nil {
		t.Fatal(err)
	}
	if out := arch.(network.DeepSenseConfig).Output; out.String() != "softmax" {
		t.Errorf("output activation: want(softmax) have(%v)", out)
	}

	c.Extractor = "MLP"
	arch, err = c.Architecture()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := arch.(network.MLPConfig); !ok {
		t.Errorf("mlp extractor: want MLPConfig have(%T)", arch)
	}
	if arch.Outputs() != c.NumActions {
		t.Errorf("outputs: want(%v) have(%v)", c.NumActions, arch.Outputs())
	}
}
