package events

import (
	"math/big"
	"strconv"
)

const (
	// TypeLoanCreated is emitted when a new loan record is persisted.
	TypeLoanCreated = "loan.created"
	// TypeLoanUpdated is emitted whenever an existing loan record changes.
	TypeLoanUpdated = "loan.updated"
	// TypeLoanDeleted is emitted when a loan record is removed.
	TypeLoanDeleted = "loan.deleted"
)

// LoanCreated captures a freshly persisted loan.
type LoanCreated struct {
	Borrower       string
	Nonce          uint64
	BorrowedAmount *big.Int
	BorrowedFrom   string
	CollateralFrom string
	HealthFactor   *big.Int
}

func (LoanCreated) EventType() string { return TypeLoanCreated }

func (e LoanCreated) Record() *Record {
	return &Record{Type: TypeLoanCreated, Attributes: loanAttributes(e.Borrower, e.Nonce, e.BorrowedAmount, e.BorrowedFrom, e.CollateralFrom, e.HealthFactor)}
}

// LoanUpdated captures a mutation of an existing loan (interest, repayment,
// partial liquidation).
type LoanUpdated struct {
	Borrower       string
	Nonce          uint64
	BorrowedAmount *big.Int
	BorrowedFrom   string
	CollateralFrom string
	HealthFactor   *big.Int
}

func (LoanUpdated) EventType() string { return TypeLoanUpdated }

func (e LoanUpdated) Record() *Record {
	return &Record{Type: TypeLoanUpdated, Attributes: loanAttributes(e.Borrower, e.Nonce, e.BorrowedAmount, e.BorrowedFrom, e.CollateralFrom, e.HealthFactor)}
}

// LoanDeleted captures the removal of a loan record after full closure.
type LoanDeleted struct {
	Borrower string
	Nonce    uint64
}

func (LoanDeleted) EventType() string { return TypeLoanDeleted }

func (e LoanDeleted) Record() *Record {
	return &Record{Type: TypeLoanDeleted, Attributes: map[string]string{
		"borrower": e.Borrower,
		"nonce":    strconv.FormatUint(e.Nonce, 10),
	}}
}

func loanAttributes(borrower string, nonce uint64, borrowed *big.Int, borrowedFrom, collateralFrom string, health *big.Int) map[string]string {
	attrs := map[string]string{
		"borrower":       borrower,
		"nonce":          strconv.FormatUint(nonce, 10),
		"borrowedFrom":   borrowedFrom,
		"collateralFrom": collateralFrom,
	}
	if borrowed != nil {
		attrs["borrowedAmount"] = borrowed.String()
	}
	if health != nil {
		attrs["healthFactor"] = health.String()
	}
	return attrs
}
