package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// PoolConfig declares one lending pool the node operates.
type PoolConfig struct {
	// ID is the registry key the pool is addressed by in RPC calls and loan
	// records. Lowercase by convention.
	ID string `toml:"ID"`
	// TokenID is the ledger identifier of the pool's underlying token.
	TokenID string `toml:"TokenID"`
	// Ticker is the oracle symbol the underlying is priced under.
	Ticker string `toml:"Ticker"`
	// LiquidationThreshold is the pool's collateral factor in 7-decimal
	// fixed point, e.g. 8000000 for 0.8.
	LiquidationThreshold int64 `toml:"LiquidationThreshold"`
}

// GenesisBalance seeds an account balance when the data directory is fresh.
type GenesisBalance struct {
	Address string `toml:"Address"`
	TokenID string `toml:"TokenID"`
	Amount  int64  `toml:"Amount"`
}

// OraclePrice seeds an initial oracle sample so health factors are computable
// before the first external price submission.
type OraclePrice struct {
	Ticker string `toml:"Ticker"`
	// Price in 7-decimal fixed point.
	Price int64 `toml:"Price"`
}

type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	DataDir        string `toml:"DataDir"`
	Environment    string `toml:"Environment"`
	LogLevel       string `toml:"LogLevel"`
	AdminAddress   string `toml:"AdminAddress"`
	RevenueAddress string `toml:"RevenueAddress"`
	// RecordTTLSeconds, when positive, expires records not written within the
	// window. Mirrors ledgers that archive entries unless their lifetime is
	// extended; writes re-extend. Zero disables expiry.
	RecordTTLSeconds int64 `toml:"RecordTTLSeconds"`

	Pools   []PoolConfig     `toml:"Pool"`
	Genesis []GenesisBalance `toml:"Genesis"`
	Oracle  []OraclePrice    `toml:"Oracle"`
}

// Load reads the configuration at path, creating a default file when none
// exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0])
	}

	applyDefaults(cfg, path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config, path string) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8545"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = filepath.Join(filepath.Dir(path), "data")
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:  "127.0.0.1:8545",
		DataDir:     filepath.Join(filepath.Dir(path), "data"),
		Environment: "local",
		LogLevel:    "info",
		Pools: []PoolConfig{
			{ID: "xlm", TokenID: "XLM", Ticker: "XLM", LiquidationThreshold: 8_000_000},
			{ID: "usdc", TokenID: "USDC", Ticker: "USDC", LiquidationThreshold: 8_000_000},
		},
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
