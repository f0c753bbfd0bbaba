package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/laina-defi/laina/config"
	"github.com/laina-defi/laina/core"
	"github.com/laina-defi/laina/observability/logging"
	"github.com/laina-defi/laina/rpc"
	"github.com/laina-defi/laina/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LAINA_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.Setup("lainad", env, cfg.LogLevel)

	ldb, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	defer ldb.Close()

	var db storage.Database = ldb
	if cfg.RecordTTLSeconds > 0 {
		db = storage.NewTTLStore(ldb, time.Duration(cfg.RecordTTLSeconds)*time.Second)
	}

	node, err := core.NewNode(db, cfg, logger)
	if err != nil {
		logger.Error("failed to start node", "error", err)
		os.Exit(1)
	}
	logger.Info("node ready", "pools", strings.Join(node.PoolIDs(), ","), "admin", node.AdminAddress().String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := rpc.NewServer(node, logger)
	if err := server.Serve(ctx, cfg.RPCAddress); err != nil {
		logger.Error("rpc server exited", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
