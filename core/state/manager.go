package state

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/laina-defi/laina/crypto"
	"github.com/laina-defi/laina/native/loan"
	"github.com/laina-defi/laina/native/pool"
	"github.com/laina-defi/laina/storage"
)

// KV is the storage surface the manager needs. Both storage.Database and the
// transaction overlay satisfy it.
type KV interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
}

// Manager persists protocol records as RLP-encoded values under hashed keys.
// It backs the pool engines, the token book and the loan manager.
type Manager struct {
	kv KV
}

// NewManager creates a state manager operating on the provided store.
func NewManager(kv KV) *Manager {
	return &Manager{kv: kv}
}

var (
	poolPrefix      = []byte("pool:")
	positionsPrefix = []byte("positions:")
	balancePrefix   = []byte("balance:")
	loanPrefix      = []byte("loan:")
	noncesPrefix    = []byte("loan-nonces:")
	counterPrefix   = []byte("loan-counter:")
	flagPrefix      = []byte("flag:")
)

func hashKey(prefix []byte, parts ...[]byte) []byte {
	buf := append([]byte(nil), prefix...)
	for i, part := range parts {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}

func (m *Manager) read(key []byte, out interface{}) (bool, error) {
	data, err := m.kv.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode record: %w", err)
	}
	return true, nil
}

func (m *Manager) write(key []byte, record interface{}) error {
	encoded, err := rlp.EncodeToBytes(record)
	if err != nil {
		return fmt.Errorf("state: encode record: %w", err)
	}
	return m.kv.Put(key, encoded)
}

// GetFlag reports whether a named marker has been set.
func (m *Manager) GetFlag(name string) (bool, error) {
	ok, err := m.kv.Has(hashKey(flagPrefix, []byte(name)))
	if err != nil {
		return false, err
	}
	return ok, nil
}

// SetFlag records a named marker, e.g. that genesis allocation already ran.
func (m *Manager) SetFlag(name string) error {
	return m.kv.Put(hashKey(flagPrefix, []byte(name)), []byte{1})
}

// --- pool state ---

type storedPool struct {
	TotalShares        *big.Int
	TotalBalance       *big.Int
	AvailableBalance   *big.Int
	AccrualIndex       *big.Int
	AccrualLastUpdated uint64
	CollateralFactor   *big.Int
	InterestMultiplier *big.Int
	Status             uint8
}

// GetPool loads a pool record, nil when absent.
func (m *Manager) GetPool(poolID string) (*pool.State, error) {
	stored := new(storedPool)
	ok, err := m.read(hashKey(poolPrefix, []byte(poolID)), stored)
	if err != nil || !ok {
		return nil, err
	}
	return &pool.State{
		TotalShares:        stored.TotalShares,
		TotalBalance:       stored.TotalBalance,
		AvailableBalance:   stored.AvailableBalance,
		AccrualIndex:       stored.AccrualIndex,
		AccrualLastUpdated: stored.AccrualLastUpdated,
		CollateralFactor:   stored.CollateralFactor,
		InterestMultiplier: stored.InterestMultiplier,
		Status:             pool.Status(stored.Status),
	}, nil
}

// PutPool persists a pool record.
func (m *Manager) PutPool(poolID string, st *pool.State) error {
	if st == nil {
		return errors.New("state: nil pool record")
	}
	return m.write(hashKey(poolPrefix, []byte(poolID)), &storedPool{
		TotalShares:        st.TotalShares,
		TotalBalance:       st.TotalBalance,
		AvailableBalance:   st.AvailableBalance,
		AccrualIndex:       st.AccrualIndex,
		AccrualLastUpdated: st.AccrualLastUpdated,
		CollateralFactor:   st.CollateralFactor,
		InterestMultiplier: st.InterestMultiplier,
		Status:             uint8(st.Status),
	})
}

type storedPositions struct {
	ReceivableShares *big.Int
	Liabilities      *big.Int
	Collateral       *big.Int
}

// GetPositions loads an account's positions in a pool, nil when absent.
func (m *Manager) GetPositions(poolID string, addr crypto.Address) (*pool.Positions, error) {
	stored := new(storedPositions)
	ok, err := m.read(hashKey(positionsPrefix, []byte(poolID), addr.Bytes()), stored)
	if err != nil || !ok {
		return nil, err
	}
	return &pool.Positions{
		ReceivableShares: stored.ReceivableShares,
		Liabilities:      stored.Liabilities,
		Collateral:       stored.Collateral,
	}, nil
}

// PutPositions persists an account's positions in a pool.
func (m *Manager) PutPositions(poolID string, addr crypto.Address, pos *pool.Positions) error {
	if pos == nil {
		return errors.New("state: nil positions record")
	}
	return m.write(hashKey(positionsPrefix, []byte(poolID), addr.Bytes()), &storedPositions{
		ReceivableShares: pos.ReceivableShares,
		Liabilities:      pos.Liabilities,
		Collateral:       pos.Collateral,
	})
}

// --- token balances ---

// GetBalance loads an account's balance for a token, zero when absent.
func (m *Manager) GetBalance(tokenID string, addr crypto.Address) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := m.read(hashKey(balancePrefix, []byte(tokenID), addr.Bytes()), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// PutBalance persists an account's balance for a token.
func (m *Manager) PutBalance(tokenID string, addr crypto.Address, balance *big.Int) error {
	if balance == nil {
		return errors.New("state: nil balance")
	}
	return m.write(hashKey(balancePrefix, []byte(tokenID), addr.Bytes()), balance)
}

// --- loan records ---

type storedLoan struct {
	Borrower         []byte
	Nonce            uint64
	BorrowedAmount   *big.Int
	BorrowedFrom     string
	CollateralAmount *big.Int
	CollateralFrom   string
	HealthFactor     *big.Int
	UnpaidInterest   *big.Int
	LastAccrual      *big.Int
}

func loanKey(id loan.ID) []byte {
	return hashKey(loanPrefix, id.Borrower.Bytes(), encodeUint64(id.Nonce))
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return buf
}

// GetLoan loads a loan record, nil when absent.
func (m *Manager) GetLoan(id loan.ID) (*loan.Loan, error) {
	stored := new(storedLoan)
	ok, err := m.read(loanKey(id), stored)
	if err != nil || !ok {
		return nil, err
	}
	return &loan.Loan{
		ID:               id,
		BorrowedAmount:   stored.BorrowedAmount,
		BorrowedFrom:     stored.BorrowedFrom,
		CollateralAmount: stored.CollateralAmount,
		CollateralFrom:   stored.CollateralFrom,
		HealthFactor:     stored.HealthFactor,
		UnpaidInterest:   stored.UnpaidInterest,
		LastAccrual:      stored.LastAccrual,
	}, nil
}

// PutLoan persists a loan record.
func (m *Manager) PutLoan(l *loan.Loan) error {
	if l == nil {
		return errors.New("state: nil loan record")
	}
	return m.write(loanKey(l.ID), &storedLoan{
		Borrower:         l.ID.Borrower.Bytes(),
		Nonce:            l.ID.Nonce,
		BorrowedAmount:   l.BorrowedAmount,
		BorrowedFrom:     l.BorrowedFrom,
		CollateralAmount: l.CollateralAmount,
		CollateralFrom:   l.CollateralFrom,
		HealthFactor:     l.HealthFactor,
		UnpaidInterest:   l.UnpaidInterest,
		LastAccrual:      l.LastAccrual,
	})
}

// DeleteLoan removes a loan record.
func (m *Manager) DeleteLoan(id loan.ID) error {
	return m.kv.Delete(loanKey(id))
}

// NextLoanNonce increments and returns the borrower's loan nonce counter.
// Nonces start at 1 and never repeat for a borrower.
func (m *Manager) NextLoanNonce(borrower crypto.Address) (uint64, error) {
	key := hashKey(counterPrefix, borrower.Bytes())
	var current uint64
	if _, err := m.read(key, &current); err != nil {
		return 0, err
	}
	next := current + 1
	if err := m.write(key, next); err != nil {
		return 0, err
	}
	return next, nil
}

// LoanNonces lists the borrower's active loan nonces.
func (m *Manager) LoanNonces(borrower crypto.Address) ([]uint64, error) {
	var nonces []uint64
	if _, err := m.read(hashKey(noncesPrefix, borrower.Bytes()), &nonces); err != nil {
		return nil, err
	}
	return nonces, nil
}

// AddLoanNonce appends a nonce to the borrower's active loan index.
func (m *Manager) AddLoanNonce(borrower crypto.Address, nonce uint64) error {
	nonces, err := m.LoanNonces(borrower)
	if err != nil {
		return err
	}
	return m.write(hashKey(noncesPrefix, borrower.Bytes()), append(nonces, nonce))
}

// RemoveLoanNonce drops a nonce from the borrower's active loan index.
func (m *Manager) RemoveLoanNonce(borrower crypto.Address, nonce uint64) error {
	nonces, err := m.LoanNonces(borrower)
	if err != nil {
		return err
	}
	kept := nonces[:0]
	for _, n := range nonces {
		if n != nonce {
			kept = append(kept, n)
		}
	}
	key := hashKey(noncesPrefix, borrower.Bytes())
	if len(kept) == 0 {
		return m.kv.Delete(key)
	}
	return m.write(key, kept)
}
