package loan

import (
	"math/big"
	"sync"
)

// TwapRecords is the number of oracle samples averaged for risk pricing.
// Twelve five-minute samples give a one hour window.
const TwapRecords = 12

// PriceOracle supplies asset prices for health-factor math. Implementations
// return ErrNoLastPrice (or wrap it) when no usable price exists; callers
// must not fall back to a default.
type PriceOracle interface {
	// Twap returns the time-weighted average over the last records samples.
	Twap(ticker string, records uint32) (*big.Int, error)
	// LastPrice returns the most recent price sample.
	LastPrice(ticker string) (*big.Int, error)
}

// MemoryOracle is an in-process PriceOracle for tests and local runs. Each
// SetPrice call appends a sample; Twap averages the newest ones.
type MemoryOracle struct {
	mu      sync.RWMutex
	samples map[string][]*big.Int
}

// NewMemoryOracle constructs an empty in-memory oracle.
func NewMemoryOracle() *MemoryOracle {
	return &MemoryOracle{samples: make(map[string][]*big.Int)}
}

// SetPrice appends a price sample for ticker.
func (o *MemoryOracle) SetPrice(ticker string, price *big.Int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.samples[ticker] = append(o.samples[ticker], new(big.Int).Set(price))
}

// Twap implements PriceOracle.
func (o *MemoryOracle) Twap(ticker string, records uint32) (*big.Int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	samples := o.samples[ticker]
	if len(samples) == 0 || records == 0 {
		return nil, ErrNoLastPrice
	}
	n := int(records)
	if n > len(samples) {
		n = len(samples)
	}
	sum := new(big.Int)
	for _, sample := range samples[len(samples)-n:] {
		sum.Add(sum, sample)
	}
	return sum.Quo(sum, big.NewInt(int64(n))), nil
}

// LastPrice implements PriceOracle.
func (o *MemoryOracle) LastPrice(ticker string) (*big.Int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	samples := o.samples[ticker]
	if len(samples) == 0 {
		return nil, ErrNoLastPrice
	}
	return new(big.Int).Set(samples[len(samples)-1]), nil
}
