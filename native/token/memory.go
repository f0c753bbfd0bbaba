package token

import (
	"math/big"
	"sync"

	"github.com/laina-defi/laina/crypto"
)

// MemoryState is an in-memory bookState used by tests and local tooling.
type MemoryState struct {
	mu       sync.RWMutex
	balances map[string]*big.Int
}

// NewMemoryState constructs an empty in-memory balance store.
func NewMemoryState() *MemoryState {
	return &MemoryState{balances: make(map[string]*big.Int)}
}

func (m *MemoryState) key(tokenID string, addr crypto.Address) string {
	return tokenID + "/" + string(addr.Bytes())
}

func (m *MemoryState) GetBalance(tokenID string, addr crypto.Address) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if balance, ok := m.balances[m.key(tokenID, addr)]; ok {
		return new(big.Int).Set(balance), nil
	}
	return nil, nil
}

func (m *MemoryState) PutBalance(tokenID string, addr crypto.Address, balance *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[m.key(tokenID, addr)] = new(big.Int).Set(balance)
	return nil
}
