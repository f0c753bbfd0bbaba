package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime settings for the liquidation bot.
type Config struct {
	// RPCURL is the node's JSON-RPC endpoint.
	RPCURL string `yaml:"rpc_url"`
	// WSURL is the node's websocket event stream. Derived from RPCURL when
	// empty.
	WSURL string `yaml:"ws_url"`
	// LiquidatorAddress is the funded account liquidations are executed from.
	LiquidatorAddress string `yaml:"liquidator_address"`
	// DatabasePath is the sqlite file tracked loans persist in.
	DatabasePath string `yaml:"database_path"`
	// PollInterval is how often tracked loans are re-checked.
	PollInterval time.Duration `yaml:"poll_interval"`
	// DryRun logs liquidation opportunities without executing them.
	DryRun bool `yaml:"dry_run"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.RPCURL = strings.TrimSpace(cfg.RPCURL)
	cfg.WSURL = strings.TrimSpace(cfg.WSURL)
	cfg.LiquidatorAddress = strings.TrimSpace(cfg.LiquidatorAddress)
	cfg.DatabasePath = strings.TrimSpace(cfg.DatabasePath)
	if cfg.RPCURL == "" {
		cfg.RPCURL = "http://127.0.0.1:8545"
	}
	if cfg.WSURL == "" {
		derived := cfg.RPCURL
		derived = strings.Replace(derived, "https://", "wss://", 1)
		derived = strings.Replace(derived, "http://", "ws://", 1)
		cfg.WSURL = strings.TrimRight(derived, "/") + "/ws/events"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "liquidator.db"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
}

func (cfg *Config) validate() error {
	if cfg.LiquidatorAddress == "" {
		return fmt.Errorf("liquidator_address is required")
	}
	return nil
}
