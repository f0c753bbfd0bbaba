package pool

import "math/big"

// Status gates which pool operations are permitted.
type Status uint8

const (
	// StatusHealthy permits every operation.
	StatusHealthy Status = iota
	// StatusCaution flags elevated risk; operations remain permitted.
	StatusCaution
	// StatusRestricted blocks new deposits.
	StatusRestricted
	// StatusFrozen blocks everything state-changing.
	StatusFrozen
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusCaution:
		return "caution"
	case StatusRestricted:
		return "restricted"
	case StatusFrozen:
		return "frozen"
	}
	return "unknown"
}

// Currency identifies the asset a pool accounts for. Immutable per pool, set
// at initialisation.
type Currency struct {
	// TokenID is the host ledger identifier of the underlying token.
	TokenID string
	// Ticker is the oracle symbol the asset is priced under.
	Ticker string
}

// State is the per-pool accounting record. Amounts are 7-decimal fixed point
// big integers restricted to the signed 128-bit domain.
type State struct {
	// TotalShares is the sum of all receivable shares issued minus redeemed.
	TotalShares *big.Int
	// TotalBalance is the underlying the pool accounts for, lent out or not.
	TotalBalance *big.Int
	// AvailableBalance is the underlying not currently lent out. Never
	// exceeds TotalBalance.
	AvailableBalance *big.Int
	// AccrualIndex is the pool-global cumulative interest index. Starts at
	// 1.0 and never decreases.
	AccrualIndex *big.Int
	// AccrualLastUpdated is the ledger timestamp of the last index advance.
	AccrualLastUpdated uint64
	// CollateralFactor weights this pool's asset when pledged as collateral;
	// also the liquidation threshold supplied at deployment.
	CollateralFactor *big.Int
	// InterestMultiplier scales the utilization-derived annual rate.
	InterestMultiplier *big.Int
	// Status gates which operations are currently permitted.
	Status Status
}

// Positions tracks one account's stake in a pool. Fields never go negative;
// guarded decreases fail instead of underflowing.
type Positions struct {
	// ReceivableShares is the account's claim on the pool's underlying.
	ReceivableShares *big.Int
	// Liabilities is outstanding debt (principal plus accrued interest)
	// owed to this pool.
	Liabilities *big.Int
	// Collateral is shares of another pool pledged against a loan drawn
	// from this pool, tracked by the pool that issued the shares.
	Collateral *big.Int
}

// Snapshot is the externally visible pool state returned by queries and
// mutating operations.
type Snapshot struct {
	TotalBalanceTokens     *big.Int
	AvailableBalanceTokens *big.Int
	TotalBalanceShares     *big.Int
	AnnualInterestRate     *big.Int
}

func (s *State) clone() *State {
	if s == nil {
		return nil
	}
	clone := &State{
		AccrualLastUpdated: s.AccrualLastUpdated,
		Status:             s.Status,
	}
	if s.TotalShares != nil {
		clone.TotalShares = new(big.Int).Set(s.TotalShares)
	}
	if s.TotalBalance != nil {
		clone.TotalBalance = new(big.Int).Set(s.TotalBalance)
	}
	if s.AvailableBalance != nil {
		clone.AvailableBalance = new(big.Int).Set(s.AvailableBalance)
	}
	if s.AccrualIndex != nil {
		clone.AccrualIndex = new(big.Int).Set(s.AccrualIndex)
	}
	if s.CollateralFactor != nil {
		clone.CollateralFactor = new(big.Int).Set(s.CollateralFactor)
	}
	if s.InterestMultiplier != nil {
		clone.InterestMultiplier = new(big.Int).Set(s.InterestMultiplier)
	}
	return clone
}
