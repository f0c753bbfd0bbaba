package config

import (
	"fmt"
	"strings"

	"github.com/laina-defi/laina/crypto"
	"github.com/laina-defi/laina/native/fixedpoint"
)

// Validate checks the configuration for internal consistency. Addresses are
// only checked when present; the node generates operator keys on first run.
func (c *Config) Validate() error {
	if len(c.Pools) == 0 {
		return fmt.Errorf("config: at least one pool is required")
	}
	seen := make(map[string]struct{}, len(c.Pools))
	for i, p := range c.Pools {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return fmt.Errorf("config: pool %d has empty ID", i)
		}
		if id != strings.ToLower(id) {
			return fmt.Errorf("config: pool ID %q must be lowercase", p.ID)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("config: duplicate pool ID %q", id)
		}
		seen[id] = struct{}{}
		if strings.TrimSpace(p.TokenID) == "" {
			return fmt.Errorf("config: pool %q has empty TokenID", id)
		}
		if strings.TrimSpace(p.Ticker) == "" {
			return fmt.Errorf("config: pool %q has empty Ticker", id)
		}
		if p.LiquidationThreshold <= 0 || p.LiquidationThreshold > fixedpoint.Decimal {
			return fmt.Errorf("config: pool %q liquidation threshold %d outside (0, %d]", id, p.LiquidationThreshold, fixedpoint.Decimal)
		}
	}

	for _, field := range []struct {
		name  string
		value string
	}{
		{"AdminAddress", c.AdminAddress},
		{"RevenueAddress", c.RevenueAddress},
	} {
		if strings.TrimSpace(field.value) == "" {
			continue
		}
		if _, err := crypto.DecodeAddress(field.value); err != nil {
			return fmt.Errorf("config: invalid %s: %w", field.name, err)
		}
	}

	for i, g := range c.Genesis {
		if _, err := crypto.DecodeAddress(g.Address); err != nil {
			return fmt.Errorf("config: genesis entry %d has invalid address: %w", i, err)
		}
		if strings.TrimSpace(g.TokenID) == "" {
			return fmt.Errorf("config: genesis entry %d has empty TokenID", i)
		}
		if g.Amount <= 0 {
			return fmt.Errorf("config: genesis entry %d has non-positive amount", i)
		}
	}

	if c.RecordTTLSeconds < 0 {
		return fmt.Errorf("config: RecordTTLSeconds must not be negative")
	}

	for i, o := range c.Oracle {
		if strings.TrimSpace(o.Ticker) == "" {
			return fmt.Errorf("config: oracle entry %d has empty ticker", i)
		}
		if o.Price <= 0 {
			return fmt.Errorf("config: oracle entry %d has non-positive price", i)
		}
	}

	return nil
}
