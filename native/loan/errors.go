package loan

import "errors"

var (
	// ErrInvalidLoanToken rejects a borrow-pool reference the manager does
	// not trust.
	ErrInvalidLoanToken = errors.New("loan manager: borrow pool not registered")
	// ErrInvalidCollateralToken rejects an untrusted collateral-pool
	// reference.
	ErrInvalidCollateralToken = errors.New("loan manager: collateral pool not registered")
	// ErrNoLastPrice is returned when the oracle has no usable price for an
	// asset. Operations must fail rather than price against stale data.
	ErrNoLastPrice = errors.New("loan manager: no oracle price available")
	// ErrLoanNotFound is returned when a loan id resolves to no record.
	ErrLoanNotFound = errors.New("loan manager: loan not found")
	// ErrHealthFactorTooLow rejects loan creation below the configured
	// health threshold.
	ErrHealthFactorTooLow = errors.New("loan manager: health factor below creation threshold")
	// ErrNotLiquidatable rejects liquidation of a loan at or above parity.
	ErrNotLiquidatable = errors.New("loan manager: loan not eligible for liquidation")
	// ErrLiquidationTooLarge bounds a single liquidation to under half of
	// the outstanding debt.
	ErrLiquidationTooLarge = errors.New("loan manager: liquidation exceeds half of borrowed amount")
	// ErrLiquidationTooSmall requires a liquidation to exceed one percent
	// of the outstanding debt.
	ErrLiquidationTooSmall = errors.New("loan manager: liquidation below one percent of borrowed amount")
	// ErrInvalidLiquidation rejects a liquidation that would leave the loan
	// less healthy than before.
	ErrInvalidLiquidation = errors.New("loan manager: liquidation would not improve health factor")
	// ErrRepayOverBorrowed rejects a repayment above the outstanding debt.
	ErrRepayOverBorrowed = errors.New("loan manager: amount exceeds borrowed amount")

	errNilState     = errors.New("loan manager: state not configured")
	errNilOracle    = errors.New("loan manager: oracle not configured")
	errZeroDebt     = errors.New("loan manager: zero borrowed value")
	errInvalidInput = errors.New("loan manager: amount must be positive")
)
