package pool

import (
	"math/big"

	"github.com/laina-defi/laina/native/fixedpoint"
)

// SecondsInYear is the accrual period base (365.24 days).
const SecondsInYear = 31_556_926

// Interest rate curve constants, 7-decimal fixed point. The borrow rate rises
// gently from the base rate up to the panic threshold, then steeply towards
// the maximum so extreme utilization prices new borrowing out of the pool.
const (
	baseInterestRate    = 200_000   // 2% at zero utilization
	interestRateAtPanic = 1_000_000 // 10% at the panic threshold
	maxInterestRate     = 3_000_000 // 30% at full utilization
	panicThreshold      = 9_000_000 // 90% utilization
	utilizationTenth    = 1_000_000
)

var (
	slopeBeforePanic = big.NewInt((interestRateAtPanic - baseInterestRate) / (panicThreshold / utilizationTenth))
	slopeAfterPanic  = big.NewInt((maxInterestRate - interestRateAtPanic) / ((fixedpoint.Decimal - panicThreshold) / utilizationTenth))
)

// Utilization returns the borrowed fraction of the pool in fixed point,
// zero when the pool holds no balance.
func Utilization(st *State) (*big.Int, error) {
	if st == nil || st.TotalBalance == nil || st.AvailableBalance == nil {
		return nil, errNotInitialised
	}
	if st.TotalBalance.Sign() == 0 {
		return big.NewInt(0), nil
	}
	borrowed, err := fixedpoint.Sub(st.TotalBalance, st.AvailableBalance)
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulDiv(borrowed, fixedpoint.One(), st.TotalBalance)
}

// AnnualInterestRate derives the pool's current annualized borrow rate from
// its utilization, scaled by the pool's interest multiplier. Monotonically
// increasing in utilization.
func AnnualInterestRate(st *State) (*big.Int, error) {
	usage, err := Utilization(st)
	if err != nil {
		return nil, err
	}

	var rate *big.Int
	if usage.Cmp(big.NewInt(panicThreshold)) <= 0 {
		slope, err := fixedpoint.MulDiv(usage, slopeBeforePanic, big.NewInt(utilizationTenth))
		if err != nil {
			return nil, err
		}
		rate, err = fixedpoint.Add(big.NewInt(baseInterestRate), slope)
		if err != nil {
			return nil, err
		}
	} else {
		excess, err := fixedpoint.Sub(usage, big.NewInt(panicThreshold))
		if err != nil {
			return nil, err
		}
		slope, err := fixedpoint.MulDiv(excess, slopeAfterPanic, big.NewInt(utilizationTenth))
		if err != nil {
			return nil, err
		}
		rate, err = fixedpoint.Add(big.NewInt(interestRateAtPanic), slope)
		if err != nil {
			return nil, err
		}
	}
	if rate.Cmp(big.NewInt(maxInterestRate)) > 0 {
		rate = big.NewInt(maxInterestRate)
	}

	multiplier := st.InterestMultiplier
	if multiplier == nil || multiplier.Sign() == 0 {
		return rate, nil
	}
	return fixedpoint.Mul(rate, multiplier)
}
