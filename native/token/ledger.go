package token

import (
	"errors"
	"math/big"

	"github.com/laina-defi/laina/crypto"
)

var (
	// ErrInsufficientBalance is returned when a transfer would overdraw the
	// sender's account.
	ErrInsufficientBalance = errors.New("token ledger: insufficient balance")

	errNilState      = errors.New("token ledger: state not configured")
	errInvalidAmount = errors.New("token ledger: amount must be positive")
)

// Ledger is the token-transfer primitive the lending core depends on. The
// host ledger settles every deposit, withdrawal, borrow, repayment and
// liquidation leg through it.
type Ledger interface {
	BalanceOf(tokenID string, addr crypto.Address) (*big.Int, error)
	Transfer(tokenID string, from, to crypto.Address, amount *big.Int) error
}

type bookState interface {
	GetBalance(tokenID string, addr crypto.Address) (*big.Int, error)
	PutBalance(tokenID string, addr crypto.Address, balance *big.Int) error
}

// Book implements Ledger over the persistence layer.
type Book struct {
	state bookState
}

// NewBook constructs a token book backed by the provided state.
func NewBook(state bookState) *Book {
	return &Book{state: state}
}

// BalanceOf returns the balance for an account, zero when no record exists.
func (b *Book) BalanceOf(tokenID string, addr crypto.Address) (*big.Int, error) {
	if b == nil || b.state == nil {
		return nil, errNilState
	}
	balance, err := b.state.GetBalance(tokenID, addr)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// Transfer moves amount from one account to another, failing without side
// effects when the sender's balance is insufficient.
func (b *Book) Transfer(tokenID string, from, to crypto.Address, amount *big.Int) error {
	if b == nil || b.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBalance, err := b.BalanceOf(tokenID, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance, err := b.BalanceOf(tokenID, to)
	if err != nil {
		return err
	}
	if err := b.state.PutBalance(tokenID, from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return b.state.PutBalance(tokenID, to, new(big.Int).Add(toBalance, amount))
}

// Mint credits freshly issued tokens to an account. It exists for genesis
// allocation and tests; the lending core itself never mints.
func (b *Book) Mint(tokenID string, addr crypto.Address, amount *big.Int) error {
	if b == nil || b.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	balance, err := b.BalanceOf(tokenID, addr)
	if err != nil {
		return err
	}
	return b.state.PutBalance(tokenID, addr, new(big.Int).Add(balance, amount))
}
