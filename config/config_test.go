package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8545", cfg.RPCAddress)
	require.Len(t, cfg.Pools, 2)

	_, err = os.Stat(path)
	require.NoError(t, err)

	// A second load reads the written file back.
	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Pools, again.Pools)
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("RPCAddress = \"127.0.0.1:8545\"\nBananas = 3\n"), 0o600))

	_, err := Load(path)
	require.ErrorContains(t, err, "unknown field")
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[[Pool]]
ID = "xlm"
TokenID = "XLM"
Ticker = "XLM"
LiquidationThreshold = 8000000
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8545", cfg.RPCAddress)
	require.Equal(t, "local", cfg.Environment)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, filepath.Join(filepath.Dir(path), "data"), cfg.DataDir)
}

func TestValidatePools(t *testing.T) {
	base := func() *Config {
		return &Config{
			RPCAddress: "127.0.0.1:8545",
			Pools: []PoolConfig{
				{ID: "xlm", TokenID: "XLM", Ticker: "XLM", LiquidationThreshold: 8_000_000},
			},
		}
	}

	require.NoError(t, base().Validate())

	cfg := base()
	cfg.Pools = nil
	require.ErrorContains(t, cfg.Validate(), "at least one pool")

	cfg = base()
	cfg.Pools = append(cfg.Pools, PoolConfig{ID: "xlm", TokenID: "XLM2", Ticker: "XLM2", LiquidationThreshold: 8_000_000})
	require.ErrorContains(t, cfg.Validate(), "duplicate pool ID")

	cfg = base()
	cfg.Pools[0].ID = "XLM"
	require.ErrorContains(t, cfg.Validate(), "lowercase")

	cfg = base()
	cfg.Pools[0].LiquidationThreshold = 0
	require.ErrorContains(t, cfg.Validate(), "liquidation threshold")

	cfg = base()
	cfg.Pools[0].LiquidationThreshold = 10_000_001
	require.ErrorContains(t, cfg.Validate(), "liquidation threshold")
}

func TestValidateAddressesAndGenesis(t *testing.T) {
	cfg := &Config{
		RPCAddress: "127.0.0.1:8545",
		Pools: []PoolConfig{
			{ID: "xlm", TokenID: "XLM", Ticker: "XLM", LiquidationThreshold: 8_000_000},
		},
		AdminAddress: "not-a-bech32-address",
	}
	require.ErrorContains(t, cfg.Validate(), "invalid AdminAddress")

	cfg.AdminAddress = ""
	cfg.Genesis = []GenesisBalance{{Address: "also-bad", TokenID: "XLM", Amount: 100}}
	require.ErrorContains(t, cfg.Validate(), "invalid address")

	cfg.Genesis = nil
	cfg.Oracle = []OraclePrice{{Ticker: "", Price: 10_000_000}}
	require.ErrorContains(t, cfg.Validate(), "empty ticker")

	cfg.Oracle = []OraclePrice{{Ticker: "XLM", Price: 0}}
	require.ErrorContains(t, cfg.Validate(), "non-positive price")
}
