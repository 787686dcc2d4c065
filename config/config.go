// Package config loads the configuration of a training run from a
// YAML or JSON file and the environment
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/samuelfneumann/btcrl/agent/deepq"
	"github.com/samuelfneumann/btcrl/dataset"
	"github.com/samuelfneumann/btcrl/environment/trading"
	"github.com/samuelfneumann/btcrl/experiment"
	"github.com/samuelfneumann/btcrl/experiment/checkpointer"
	"github.com/samuelfneumann/btcrl/log"
	"github.com/samuelfneumann/btcrl/metrics"
	"github.com/samuelfneumann/btcrl/store"
	"github.com/samuelfneumann/btcrl/utils/intutils"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "btcrl"
)

// ErrConfig is returned when a configuration file is missing keys,
// has unknown keys, or holds invalid values
var ErrConfig = errors.New("invalid configuration")

// Config is the configuration of a training run
type Config struct {
	Run      RunConfig              `mapstructure:"run"`
	Data     dataset.Config         `mapstructure:"data"`
	Exchange dataset.ExchangeConfig `mapstructure:"exchange"`
	Env      trading.Config         `mapstructure:"env"`
	Agent    deepq.Config           `mapstructure:"agent"`
	Logging  log.Config             `mapstructure:"logging"`
	Metrics  metrics.Config         `mapstructure:"metrics"`
	Store    store.Config           `mapstructure:"store"`
}

// RunConfig configures the experiment driver and its outputs
type RunConfig struct {
	experiment.Config `mapstructure:",squash"`

	Name string `mapstructure:"name"`
	Seed uint64 `mapstructure:"seed"`

	// Agent checkpoints are written every CheckpointEvery episodes,
	// 0 disables checkpointing. Resume loads CheckpointPath before
	// training.
	CheckpointPath   string `mapstructure:"checkpoint_path"`
	CheckpointEvery  int    `mapstructure:"checkpoint_every"`
	CheckpointNaming string `mapstructure:"checkpoint_naming"`
	Resume           bool   `mapstructure:"resume"`

	// Optional output files, disabled when empty
	ReturnsPath string `mapstructure:"returns_path"`
	LengthsPath string `mapstructure:"lengths_path"`
	PlotPath    string `mapstructure:"plot_path"`
}

// Load reads the configuration file at path, overridden by BTCRL_*
// environment variables. Unknown keys and missing agent keys are
// errors.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("load: could not read config file %q: %w",
			path, err)
	}

	// The environment observes the same window as the agent unless
	// configured otherwise
	v.SetDefault("env.window_size", v.Get("agent.window_size"))

	var missing error
	for _, key := range deepq.RequiredKeys() {
		if !v.IsSet("agent." + key) {
			missing = multierr.Append(missing, fmt.Errorf("%w: missing key "+
				"agent.%v", ErrConfig, key))
		}
	}
	if missing != nil {
		return nil, missing
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("load: %w: %v", ErrConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("run.name", "btcrl")
	v.SetDefault("run.seed", 0)
	v.SetDefault("run.episodes", 100)
	v.SetDefault("run.progress", true)
	v.SetDefault("run.checkpoint_path", "checkpoints/agent.ckpt")
	v.SetDefault("run.checkpoint_every", 10)
	v.SetDefault("run.checkpoint_naming", "fixed")
	v.SetDefault("run.resume", false)
	v.SetDefault("run.returns_path", "")
	v.SetDefault("run.lengths_path", "")
	v.SetDefault("run.plot_path", "")

	v.SetDefault("data.path", "data/bitstamp.csv")
	v.SetDefault("data.limit", 0)
	v.SetDefault("data.indicators", false)
	v.SetDefault("data.normalize", true)

	v.SetDefault("exchange.market", "BTC/USDT:USDT")
	v.SetDefault("exchange.timeframe", "1h")
	v.SetDefault("exchange.limit", 1000)
	v.SetDefault("exchange.api_key", "")
	v.SetDefault("exchange.api_secret", "")
	v.SetDefault("exchange.use_sandbox", false)
	v.SetDefault("exchange.retry.max_attempts", 5)
	v.SetDefault("exchange.retry.min_delay", "500ms")
	v.SetDefault("exchange.retry.max_delay", "5s")

	v.SetDefault("env.frame_len", 1)
	v.SetDefault("env.trade_fee_bid", 0.01)
	v.SetDefault("env.trade_fee_ask", 0.005)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("store.path", "data/btcrl.db")
	v.SetDefault("store.in_memory", false)
	v.SetDefault("store.max_open_conns", 4)
	v.SetDefault("store.max_idle_conns", 4)
	v.SetDefault("store.conn_max_lifetime", "1h")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.ErrorUnused = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate checks the Config, reporting all problems together
func (c Config) Validate() error {
	var err error
	add := func(section string, e error) {
		if e != nil {
			err = multierr.Append(err, fmt.Errorf("%w: %v: %v", ErrConfig,
				section, e))
		}
	}

	if c.Run.Episodes < 1 {
		add("run", fmt.Errorf("episodes must be > 0\n\thave(%v)",
			c.Run.Episodes))
	}
	if c.Run.CheckpointEvery < 0 {
		add("run", fmt.Errorf("checkpoint_every must be >= 0\n\thave(%v)",
			c.Run.CheckpointEvery))
	}
	if (c.Run.CheckpointEvery > 0 || c.Run.Resume) && c.Run.CheckpointPath == "" {
		add("run", errors.New("checkpoint_path must be set to checkpoint "+
			"or resume"))
	}
	if _, e := checkpointer.Naming(c.Run.CheckpointNaming,
		c.Run.CheckpointPath, 0); e != nil {
		add("run", e)
	}

	add("data", c.Data.Validate())
	add("exchange", c.Exchange.Validate())

	// The series length is only known once the data is loaded
	add("env", c.Env.Validate(intutils.Max(c.Env.WindowSize, 1)))

	err = multierr.Append(err, c.Agent.Validate())

	if c.Agent.WindowSize != c.Env.WindowSize {
		add("agent", fmt.Errorf("window_size must equal env.window_size"+
			"\n\twant(%v)\n\thave(%v)", c.Env.WindowSize, c.Agent.WindowSize))
	}
	if c.Agent.NumFeatures != c.Data.NumFeatures() {
		add("agent", fmt.Errorf("num_features must equal the number of "+
			"data features\n\twant(%v)\n\thave(%v)", c.Data.NumFeatures(),
			c.Agent.NumFeatures))
	}
	if n := trading.MaxDiscreteAction - trading.MinDiscreteAction + 1; c.Agent.NumActions != n {
		add("agent", fmt.Errorf("num_actions must equal the number of "+
			"trading actions\n\twant(%v)\n\thave(%v)", n, c.Agent.NumActions))
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		add("metrics", errors.New("addr must be set when enabled"))
	}
	if !c.Store.InMemory && c.Store.Path == "" {
		add("store", errors.New("path must be set unless in_memory"))
	}
	return err
}
