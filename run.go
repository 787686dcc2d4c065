package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"

	"github.com/samuelfneumann/btcrl/agent/deepq"
	"github.com/samuelfneumann/btcrl/config"
	"github.com/samuelfneumann/btcrl/dataset"
	"github.com/samuelfneumann/btcrl/environment/trading"
	"github.com/samuelfneumann/btcrl/experiment"
	"github.com/samuelfneumann/btcrl/experiment/checkpointer"
	"github.com/samuelfneumann/btcrl/experiment/tracker"
	"github.com/samuelfneumann/btcrl/metrics"
	"github.com/samuelfneumann/btcrl/render"
	"github.com/samuelfneumann/btcrl/store"
)

// Size of the rendered trade log
const (
	plotWidth  = 1600
	plotHeight = 600
)

// newEnvironment loads the configured price series and returns a
// trading environment over it
func newEnvironment(cfg *config.Config, logger *zap.Logger) (*trading.Trading,
	error) {
	candles, err := dataset.ReadFile(cfg.Data.Path)
	if err != nil {
		return nil, err
	}
	series, err := dataset.Build(candles, cfg.Data)
	if err != nil {
		return nil, err
	}
	logger.Info("price series loaded",
		zap.String("path", cfg.Data.Path),
		zap.Int("candles", len(candles)),
		zap.Int("ticks", series.Len()),
		zap.Time("from", series.Timestamps[0]),
		zap.Time("to", series.Timestamps[series.Len()-1]),
	)

	return trading.New(cfg.Env, series.Frames, series.Prices)
}

// train trains a DeepQ agent for the configured number of episodes
func train(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	e, err := newEnvironment(cfg, logger)
	if err != nil {
		return err
	}

	a, err := deepq.NewDeepSense(cfg.Agent, cfg.Run.Seed, logger.Named("agent"))
	if err != nil {
		return err
	}
	if cfg.Run.Resume {
		if _, statErr := os.Stat(cfg.Run.CheckpointPath); statErr == nil {
			if err := a.Load(cfg.Run.CheckpointPath); err != nil {
				return err
			}
			logger.Info("agent restored",
				zap.String("path", cfg.Run.CheckpointPath),
				zap.Int("episode", a.Episode()),
				zap.Int("gradient_steps", a.Steps()),
				zap.Float64("exploration_rate", a.Exploration()),
			)
		} else {
			logger.Warn("no checkpoint to resume from, starting afresh",
				zap.String("path", cfg.Run.CheckpointPath))
		}
	}

	st, err := store.NewSQLite(cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Warn("could not close store", zap.Error(closeErr))
		}
	}()

	// Credentials are not recorded with the run
	recorded := *cfg
	recorded.Exchange.APIKey = ""
	recorded.Exchange.APISecret = ""
	runID, err := st.CreateRun(ctx, cfg.Run.Name, recorded)
	if err != nil {
		return err
	}
	logger = logger.With(zap.String("run_id", runID))

	collector := metrics.New()
	trackers := []tracker.Tracker{
		tracker.NewStore(ctx, st, runID),
		tracker.NewMetrics(collector),
	}
	if cfg.Run.ReturnsPath != "" {
		if err := ensureDir(cfg.Run.ReturnsPath); err != nil {
			return err
		}
		trackers = append(trackers, tracker.NewReturn(cfg.Run.ReturnsPath))
	}
	if cfg.Run.LengthsPath != "" {
		if err := ensureDir(cfg.Run.LengthsPath); err != nil {
			return err
		}
		trackers = append(trackers, tracker.NewEpisodeLength(cfg.Run.LengthsPath))
	}

	var checkpointers []checkpointer.Checkpointer
	if cfg.Run.CheckpointEvery > 0 {
		if err := ensureDir(cfg.Run.CheckpointPath); err != nil {
			return err
		}
		// A resumed run continues the enumeration of its checkpoints
		written := a.Episode() / cfg.Run.CheckpointEvery
		filename, err := checkpointer.Naming(cfg.Run.CheckpointNaming,
			cfg.Run.CheckpointPath, written)
		if err != nil {
			return err
		}
		c, err := checkpointer.NewNEpisode(cfg.Run.CheckpointEvery, a, filename)
		if err != nil {
			return err
		}
		checkpointers = append(checkpointers, c)
	}

	online, err := experiment.NewOnline(e, a, cfg.Run.Config, logger, os.Stderr,
		trackers, checkpointers)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(groupCtx)
	defer cancel()

	if cfg.Metrics.Enabled {
		group.Go(func() error {
			logger.Info("serving metrics", zap.String("addr", cfg.Metrics.Addr))
			return collector.Serve(runCtx, cfg.Metrics.Addr)
		})
	}
	group.Go(func() error {
		defer cancel()
		return online.Run(runCtx)
	})

	err = group.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		logger.Warn("training interrupted", zap.Int("episodes", online.Episode()))
		err = nil
	}
	err = multierr.Append(err, online.Save())

	if cfg.Run.PlotPath != "" && online.Episode() > 0 {
		err = multierr.Append(err, plot(cfg.Run.PlotPath, e.History()))
		logger.Info("trade log rendered", zap.String("path", cfg.Run.PlotPath))
	}
	return err
}

// fetch downloads candles from the exchange and writes them to path
func fetch(ctx context.Context, cfg *config.Config, path string,
	logger *zap.Logger) error {
	f, err := dataset.NewFetcher(cfg.Exchange, logger.Named("exchange"))
	if err != nil {
		return err
	}
	candles, err := f.Fetch(ctx)
	if err != nil {
		return err
	}

	if err := ensureDir(path); err != nil {
		return err
	}
	if err := dataset.WriteFile(path, candles); err != nil {
		return err
	}
	logger.Info("candles written", zap.String("path", path),
		zap.Int("candles", len(candles)))
	return nil
}

// random runs a single episode with uniformly random actions
func random(cfg *config.Config, logger *zap.Logger) error {
	e, err := newEnvironment(cfg, logger)
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(cfg.Run.Seed))

	step, err := e.Reset()
	if err != nil {
		return err
	}
	for done := false; !done; {
		action := trading.MinDiscreteAction +
			rng.Intn(trading.MaxDiscreteAction-trading.MinDiscreteAction+1)
		if step, done, err = e.Step(action); err != nil {
			return err
		}
	}

	logger.Info("random episode finished",
		zap.Int("steps", step.Number),
		zap.Int("trades", e.History().NumTrades()),
		zap.Float64("total_reward", e.TotalReward()),
		zap.Float64("total_profit", e.TotalProfit()),
	)

	if cfg.Run.PlotPath != "" {
		return plot(cfg.Run.PlotPath, e.History())
	}
	return nil
}

func plot(path string, h trading.History) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	return render.SavePNG(path, h, plotWidth, plotHeight)
}

// ensureDir creates the parent directory of path
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create directory %v: %w", dir, err)
	}
	return nil
}
