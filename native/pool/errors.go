package pool

import "errors"

var (
	// ErrWrongStatus rejects an operation the pool's status gate forbids.
	ErrWrongStatus = errors.New("loan pool: operation not allowed in current status")
	// ErrNegativeDeposit rejects non-positive amounts on any inbound leg.
	ErrNegativeDeposit = errors.New("loan pool: amount must be positive")
	// ErrBelowMinimumDeposit rejects a first deposit too small to seed the
	// share price safely.
	ErrBelowMinimumDeposit = errors.New("loan pool: first deposit below minimum")
	// ErrWithdrawOverBalance rejects a withdrawal exceeding the pool's
	// available (unborrowed) balance.
	ErrWithdrawOverBalance = errors.New("loan pool: withdrawal exceeds available balance")
	// ErrWithdrawIsNegative rejects a withdrawal requiring more shares than
	// the account holds.
	ErrWithdrawIsNegative = errors.New("loan pool: withdrawal exceeds receivable shares")
	// ErrInsufficientLiquidity rejects a borrow that would drain the pool.
	ErrInsufficientLiquidity = errors.New("loan pool: insufficient available balance")
	// ErrPositionUnderflow indicates a guarded position decrease would go
	// negative. A prior state corruption, not a recoverable user error.
	ErrPositionUnderflow = errors.New("loan pool: position decrease below zero")

	errNilState       = errors.New("loan pool: state not configured")
	errNilTokenLedger = errors.New("loan pool: token ledger not configured")
	errNotInitialised = errors.New("loan pool: pool not initialised")
)
