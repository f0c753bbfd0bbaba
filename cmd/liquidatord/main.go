package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/laina-defi/laina/observability/logging"
	"github.com/laina-defi/laina/services/liquidator"
	"github.com/laina-defi/laina/services/liquidator/client"
	"github.com/laina-defi/laina/services/liquidator/config"
	"github.com/laina-defi/laina/services/liquidator/store"
)

func main() {
	configFile := flag.String("config", "./liquidator.yaml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LAINA_ENV"))
	logger := logging.Setup("liquidatord", env, os.Getenv("LAINA_LOG_LEVEL"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open loan store", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}

	bot := liquidator.New(cfg, client.New(cfg.RPCURL), st, logger)
	logger.Info("liquidator running", "node", cfg.RPCURL, "dryRun", cfg.DryRun)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("bot exited", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
