package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/samuelfneumann/btcrl/config"
	"github.com/samuelfneumann/btcrl/log"
)

func main() {
	var configPath, mode, output string
	flag.StringVar(&configPath, "config", "",
		"configuration file, configs/config.yaml by default")
	flag.StringVar(&mode, "mode", "train",
		"one of train, fetch (download candles to -out), or random "+
			"(one episode of random actions)")
	flag.StringVar(&output, "out", "",
		"output CSV file of fetch mode, data.path by default")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not create logger: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT,
		syscall.SIGTERM)
	defer stop()

	switch mode {
	case "train":
		err = train(ctx, cfg, logger)
	case "fetch":
		if output == "" {
			output = cfg.Data.Path
		}
		err = fetch(ctx, cfg, output, logger)
	case "random":
		err = random(cfg, logger)
	default:
		err = fmt.Errorf("unknown mode %q", mode)
	}

	if err != nil {
		logger.Error("run failed", zap.String("mode", mode), zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("run finished", zap.String("mode", mode))
}
