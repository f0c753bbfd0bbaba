package loan

import (
	"math/big"

	"github.com/laina-defi/laina/crypto"
)

// ID identifies a loan by its borrower and a per-borrower nonce, so one
// account can hold several concurrent loans.
type ID struct {
	Borrower crypto.Address
	Nonce    uint64
}

// Loan is the manager-owned record of a single borrow position. Amounts are
// 7-decimal fixed point; CollateralAmount is denominated in collateral-pool
// shares, converted back to tokens at the current exchange rate whenever a
// health factor is computed.
type Loan struct {
	ID               ID
	BorrowedAmount   *big.Int
	BorrowedFrom     string
	CollateralAmount *big.Int
	CollateralFrom   string
	HealthFactor     *big.Int
	UnpaidInterest   *big.Int
	// LastAccrual is the borrow pool's accrual index at the loan's last
	// synchronization. Interest owed since then is the ratio of the
	// current index to this snapshot.
	LastAccrual *big.Int
}

func (l *Loan) clone() *Loan {
	if l == nil {
		return nil
	}
	clone := &Loan{
		ID:             l.ID,
		BorrowedFrom:   l.BorrowedFrom,
		CollateralFrom: l.CollateralFrom,
	}
	if l.BorrowedAmount != nil {
		clone.BorrowedAmount = new(big.Int).Set(l.BorrowedAmount)
	}
	if l.CollateralAmount != nil {
		clone.CollateralAmount = new(big.Int).Set(l.CollateralAmount)
	}
	if l.HealthFactor != nil {
		clone.HealthFactor = new(big.Int).Set(l.HealthFactor)
	}
	if l.UnpaidInterest != nil {
		clone.UnpaidInterest = new(big.Int).Set(l.UnpaidInterest)
	}
	if l.LastAccrual != nil {
		clone.LastAccrual = new(big.Int).Set(l.LastAccrual)
	}
	return clone
}
